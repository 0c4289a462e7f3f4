package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mukkaai/authd/config"
	"github.com/mukkaai/authd/store"
	"github.com/mukkaai/authd/store/file"
	"github.com/mukkaai/authd/store/mongo"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy users and live refresh tokens from the JSON file into MongoDB",
	Long: `Reads the users file configured by USERS_FILE_PATH and writes its users
and unexpired, unrevoked refresh tokens into the MongoDB instance configured
by MONGODB_URI. Existing users in the database are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		fs, err := file.Open(cfg.UsersFilePath)
		if err != nil {
			return fmt.Errorf("opening users file: %w", err)
		}

		conn, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return fmt.Errorf("connecting to mongodb: %w", err)
		}
		defer conn.Close(context.Background())

		users, tokens := fs.Export()

		var usersCopied, usersSkipped int
		for _, user := range users {
			err := conn.Users().Create(ctx, user)
			switch {
			case err == nil:
				usersCopied++
			case errors.Is(err, store.ErrDuplicateUser):
				usersSkipped++
			default:
				return fmt.Errorf("migrating user %q: %w", user.Username, err)
			}
		}

		now := time.Now()
		var tokensCopied int
		for _, token := range tokens {
			if !token.Usable(now) {
				continue
			}
			err := conn.RefreshTokens().Create(ctx, token)
			switch {
			case err == nil:
				tokensCopied++
			case errors.Is(err, store.ErrDuplicateToken):
				// Already migrated on a previous run.
			default:
				return fmt.Errorf("migrating refresh token for %q: %w", token.Username, err)
			}
		}

		fmt.Printf("Migrated %d users (%d already present), %d live refresh tokens\n",
			usersCopied, usersSkipped, tokensCopied)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
