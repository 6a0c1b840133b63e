package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/logger"
)

// ServeCmd starts the HTTP API server.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the BlockForge HTTP API server",
	Long: `Start the HTTP API server exposing candidate submission, semantic
search, intent execution, stats and the audit chain.

The builtin block library is verified and admitted on startup; persisted
blocks and the audit chain are restored from the configured database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "load configuration")
		}

		srv, cleanup, err := bootstrapPipeline(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.GetServerPort()
		}

		pterm.DefaultHeader.WithFullWidth().Printf("BlockForge API on port %d", port)
		pterm.Println()

		// Serve until interrupted, then drain.
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(port)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Infow("Signal received, shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

func init() {
	ServeCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
}
