// Package migrate creates or updates the database schema.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/datastore"
)

// Command creates the migrate command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long:  "Open the configured database and auto-migrate the disease, user and diagnosis tables.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.New(settings)
			if err != nil {
				return err
			}
			// Open runs the migration.
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			count, err := store.CountDiseases(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date, %d reference diseases\n",
				settings.Database.Type, count)
			return nil
		},
	}
}
