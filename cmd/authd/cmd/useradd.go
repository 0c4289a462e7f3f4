package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mukkaai/authd/auth"
	"github.com/mukkaai/authd/config"
	"github.com/mukkaai/authd/store"
	"github.com/mukkaai/authd/store/backend"
)

var (
	useraddUsername string
	useraddPassword string
	useraddRole     string
	useraddEmail    string
	useraddReset    bool
)

var useraddCmd = &cobra.Command{
	Use:   "useradd",
	Short: "Create a user, or reset an existing user's password with --reset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if useraddUsername == "" || useraddPassword == "" {
			return errors.New("--username and --password are required")
		}
		if useraddRole != store.RoleUser && useraddRole != store.RoleAdmin {
			return fmt.Errorf("role must be %q or %q", store.RoleUser, store.RoleAdmin)
		}

		cfg := config.Load()
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		stores, err := backend.Open(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("opening storage backend: %w", err)
		}
		defer stores.Close(context.Background())

		hash, err := auth.HashPassword(useraddPassword)
		if err != nil {
			return err
		}

		existing, err := stores.Users.FindByUsername(ctx, useraddUsername)
		switch {
		case err == nil:
			if !useraddReset {
				return fmt.Errorf("user %q already exists; use --reset to set a new password", existing.Username)
			}
			existing.PasswordHash = hash
			existing.UpdatedAt = time.Now().UTC()
			if err := stores.Users.Update(ctx, existing); err != nil {
				return fmt.Errorf("updating user: %w", err)
			}
			if _, err := stores.RefreshTokens.RevokeAllForUser(ctx, existing.Username); err != nil {
				return fmt.Errorf("revoking refresh tokens: %w", err)
			}
			fmt.Printf("Password reset for %q; all refresh tokens revoked\n", existing.Username)
			return nil
		case errors.Is(err, store.ErrNotFound):
			now := time.Now().UTC()
			user := &store.User{
				Username:     useraddUsername,
				PasswordHash: hash,
				Role:         useraddRole,
				Email:        useraddEmail,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := stores.Users.Create(ctx, user); err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			fmt.Printf("Created user %q with role %q\n", user.Username, user.Role)
			return nil
		default:
			return fmt.Errorf("looking up user: %w", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(useraddCmd)
	useraddCmd.Flags().StringVarP(&useraddUsername, "username", "u", "", "Username")
	useraddCmd.Flags().StringVarP(&useraddPassword, "password", "p", "", "Password")
	useraddCmd.Flags().StringVar(&useraddRole, "role", store.RoleUser, "Role (user or admin)")
	useraddCmd.Flags().StringVar(&useraddEmail, "email", "", "Email address")
	useraddCmd.Flags().BoolVar(&useraddReset, "reset", false, "Reset the password if the user exists")
}
