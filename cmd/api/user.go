package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/passgate/internal/account"
	"github.com/yourusername/passgate/internal/auth"
	"github.com/yourusername/passgate/internal/config"
	"github.com/yourusername/passgate/internal/db"
	"github.com/yourusername/passgate/internal/users"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var username, password string

	c := &cobra.Command{
		Use:   "add",
		Short: "Register a user with the same rules as the sign-up form",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logs := zap.NewNop().Sugar()

			database, err := db.NewPostgresDB(ctx, cfg.DatabaseURL, logs)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.MigrateModels(&users.User{}); err != nil {
				return err
			}

			svc := account.NewService(users.NewGormStore(database), auth.NewBcryptHasher(cfg.BcryptCost), logs)
			return addUser(ctx, cmd.OutOrStdout(), svc, username, password)
		},
	}

	c.Flags().StringVar(&username, "username", "", "username")
	c.Flags().StringVar(&password, "password", "", "password")
	_ = c.MarkFlagRequired("username")
	_ = c.MarkFlagRequired("password")
	return c
}

type userCreator interface {
	SignUp(ctx context.Context, username, password string) (*users.User, error)
}

// addUser はサインアップと同じ検証でユーザーを登録し、結果を out に書きます。
func addUser(ctx context.Context, out io.Writer, svc userCreator, username, password string) error {
	user, err := svc.SignUp(ctx, username, password)
	if err != nil {
		return fmt.Errorf("add user %q: %w", username, err)
	}
	fmt.Fprintf(out, "created user %q (id=%s)\n", user.Username, user.ID)
	return nil
}
