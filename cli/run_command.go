package main

import (
	"context"
	"deckhost/common"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

const runShutdownTimeout = 20 * time.Second

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the host: supervise the backend server and serve the control API",
		Description: "Runs in the foreground until interrupted. The backend server is started " +
			"shortly after launch unless auto-start is disabled, and is stopped on exit. " +
			"Edits to the config file restart the server with the new settings.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "no-auto-start",
				Aliases: []string{"n"},
				Usage:   "Do not start the backend server automatically",
			},
		},
		Action: handleRunCommand,
	}
}

func handleRunCommand(ctx context.Context, cmd *cli.Command) error {
	path := configPath(cmd)
	config, err := common.LoadHostConfig(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := startHost(ctx, config, path, config.AutoStart && !cmd.Bool("no-auto-start"))
	if err != nil {
		return err
	}

	<-ctx.Done()
	h.log.Info().Msg("Shutdown signal received...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runShutdownTimeout)
	defer cancel()
	if err := h.shutdown(shutdownCtx); err != nil {
		return err
	}
	h.log.Info().Msg("Shut down gracefully")
	return nil
}
