// Package commands implements the blockforge CLI subcommands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/forgeworks/blockforge/config"
	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/logger"
	"github.com/forgeworks/blockforge/server"
)

// loadConfig resolves the effective configuration: the --config flag wins,
// otherwise the merged file/env chain applies.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Root().PersistentFlags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// bootstrapPipeline assembles the full local pipeline for commands that
// operate on the database directly rather than through a running server.
func bootstrapPipeline(cmd *cobra.Command) (*server.Server, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load configuration")
	}
	return server.Bootstrap(cfg, logger.Logger)
}
