package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to the configured storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			c.logger.Info("migrations applied", zap.String("driver", store.Driver))
			return nil
		},
	}
}
