package main

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
	"github.com/spf13/cobra"
)

const sessionSecretBytes = 32

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate a random SESSION_SECRET value (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := securecookie.GenerateRandomKey(sessionSecretBytes)
			if key == nil {
				return errors.New("failed to generate random key")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export SESSION_SECRET=%s\n", base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}
}
