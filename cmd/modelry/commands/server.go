package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/logger"
	"github.com/modelry/modelry/server"
	"github.com/modelry/modelry/store"
	"github.com/modelry/modelry/sym"
)

// ServerCmd starts the Modelry API server.
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   sym.Server + " Start the Modelry HTTP/WebSocket server",
	Long:    `Launch the Modelry server exposing the repository API, design rule evaluation, impact analysis, and a WebSocket event feed.`,
	RunE:    runServer,
}

var (
	serverPortFlag int
	serverDBPath   string
)

func init() {
	ServerCmd.Flags().IntVar(&serverPortFlag, "port", 0, "Listen port (overrides config)")
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	database, cfg, err := openDatabase(serverDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if serverPortFlag > 0 {
		cfg.Server.Port = serverPortFlag
	}

	dbPath := serverDBPath
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	printStartupBanner(verbosity, dbPath, cfg.Server.Port)

	st := store.New(database, logger.Logger)
	srv := server.New(st, cfg, logger.Logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server stopped unexpectedly")
	case <-sigChan:
		logger.Logger.Infow("Shutting down gracefully (press Ctrl+C again to force)")

		shutdownDone := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			shutdownDone <- srv.Shutdown(ctx)
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "graceful shutdown failed")
			}
			logger.Logger.Infow("Server stopped")
			return nil
		case <-sigChan:
			logger.Logger.Warnw("Forced shutdown")
			return nil
		}
	}
}
