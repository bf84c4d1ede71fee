package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/config"
	"github.com/hackgods/dental-appointment-scheduling/internal/db"
	"github.com/hackgods/dental-appointment-scheduling/internal/logging"
)

// cli holds what every subcommand needs, filled in by the root's PersistentPreRunE.
type cli struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "dentalctl",
		Short:         "Operational tooling for the dental appointment scheduler",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			logger, err := logging.New(cfg.LogLevel, "console")
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger
			logger.Debug("command start", zap.String("command", cmd.CommandPath()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.AddCommand(
		newMigrateCmd(c),
		newSeedCmd(c),
		newSimulateCmd(c),
	)
	return root
}

func (c *cli) openStore(ctx context.Context) (*db.Store, error) {
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := db.Open(openCtx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}
