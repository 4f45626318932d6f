// Package main は passgate サーバーと管理コマンドのエントリーポイントです。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ビルド時に -ldflags で上書きする
var (
	Version   = "dev"
	CommitSHA = "none"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "passgate",
		Short:         "Username/password sign-up and session login server",
		SilenceUsage:  true,
		SilenceErrors: true,
		// サブコマンドなしで起動した場合はサーバーを起動する
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
