// Package token issues bearer tokens for development and support use.
package token

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nongbuhae/cropdoc/internal/auth"
	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/datastore"
	"github.com/nongbuhae/cropdoc/internal/errors"
)

// Command creates the token command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		nickname string
		create   bool
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a user",
		Long: `Issue a bearer token signed with auth.secret.

Examples:
  # Token for an existing user
  cropdoc token 3f2a9c

  # Create the user row first, for a fresh development database
  cropdoc token dev-user --create --nickname=tester`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]

			store, err := datastore.New(settings)
			if err != nil {
				return err
			}
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			user, err := store.GetUser(cmd.Context(), userID)
			switch {
			case errors.Is(err, errors.ErrUserNotFound) && create:
				user = &datastore.User{ID: userID, Nickname: nickname}
				if err := store.SaveUser(cmd.Context(), user); err != nil {
					return err
				}
			case err != nil:
				return err
			}

			tokens, err := auth.NewTokenService(&settings.Auth)
			if err != nil {
				return err
			}
			if nickname == "" {
				nickname = user.Nickname
			}
			signed, err := tokens.Issue(userID, nickname)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&nickname, "nickname", "", "Nickname claim (default: the stored nickname)")
	cmd.Flags().BoolVar(&create, "create", false, "Create the user if it does not exist")
	return cmd
}
