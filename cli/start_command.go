package main

import (
	"context"
	"deckhost/client"
	"deckhost/common"
	"deckhost/supervisor"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func newClient(cmd *cli.Command) *client.Client {
	if url := cmd.String("control-url"); url != "" {
		return client.NewClientWithURL(url)
	}
	return client.NewClient()
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(output(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var portFlag = &cli.IntFlag{
	Name:    "port",
	Aliases: []string{"p"},
	Usage:   "Port to ask the backend server to bind (defaults to the host's configured port)",
}

func NewStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start the backend server",
		Description: "Asks the running host to start the backend server. Starting an " +
			"already running server is a no-op that reports its status.",
		Flags: []cli.Flag{
			portFlag,
			&cli.BoolFlag{
				Name:    "open",
				Aliases: []string{"o"},
				Usage:   "Open the server UI in the default browser once started",
			},
		},
		Action: handleStartCommand,
	}
}

func handleStartCommand(ctx context.Context, cmd *cli.Command) error {
	status, err := newClient(cmd).StartServer(ctx, cmd.Int("port"))
	if printErr := printJSON(cmd, status); printErr != nil {
		return printErr
	}
	if err != nil {
		return err
	}

	if cmd.Bool("open") && status.Running() {
		url := common.GetServerURL(status.Port)
		log.Info().Msgf("Opening %s in default browser...", url)
		if err := openURL(url); err != nil {
			return fmt.Errorf("failed to open %s: %w", url, err)
		}
	}
	return nil
}

func NewStopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the backend server",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			status, err := newClient(cmd).StopServer(ctx)
			if printErr := printJSON(cmd, status); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

func NewRestartCommand() *cli.Command {
	return &cli.Command{
		Name:  "restart",
		Usage: "Stop the backend server if running, then start it",
		Flags: []cli.Flag{portFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			status, err := newClient(cmd).RestartServer(ctx, cmd.Int("port"))
			if printErr := printJSON(cmd, status); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the backend server status",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			status, err := newClient(cmd).GetServerStatus(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

func NewLogsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Print the backend server output captured since its last start",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Discard the captured output instead of printing it",
			},
			&cli.BoolFlag{
				Name:    "follow",
				Aliases: []string{"f"},
				Usage:   "Keep printing new output as the server writes it, until interrupted",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c := newClient(cmd)
			if cmd.Bool("clear") {
				return c.ClearServerLogs(ctx)
			}
			logs, err := c.GetServerLogs(ctx)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(output(cmd), logs); err != nil {
				return err
			}
			if cmd.Bool("follow") {
				return followLogs(ctx, cmd, c)
			}
			return nil
		},
	}
}

// followLogs prints server output lines to stdout and status changes to
// stderr until interrupted or the host goes away.
func followLogs(ctx context.Context, cmd *cli.Command, c *client.Client) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := output(cmd)
	errOut := cmd.Root().ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}

	err := c.StreamServerEvents(ctx, func(event supervisor.Event) error {
		switch event.Type {
		case supervisor.EventLog:
			_, err := fmt.Fprintln(out, event.Line)
			return err
		case supervisor.EventStatus:
			fmt.Fprintln(errOut, describeStatus(*event.Status))
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func describeStatus(status supervisor.Status) string {
	switch status.State {
	case supervisor.StateRunning:
		return fmt.Sprintf("deckhost: server running on port %d (pid %d)", status.Port, status.Pid)
	case supervisor.StateError:
		return "deckhost: server error: " + status.Message
	default:
		return "deckhost: server " + string(status.State)
	}
}

func NewKillPortCommand() *cli.Command {
	return &cli.Command{
		Name:  "kill-port",
		Usage: "Kill whatever process is holding the backend server's port",
		Description: "Frees the port when a stale server left over from an earlier run " +
			"blocks a start. The port of the server deckhost is running is refused; " +
			"use stop for that.",
		Flags: []cli.Flag{portFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			result, err := newClient(cmd).KillPortOwner(ctx, cmd.Int("port"))
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func NewOpenCommand() *cli.Command {
	return &cli.Command{
		Name:  "open",
		Usage: "Open the running backend server's UI in the default browser",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			status, err := newClient(cmd).GetServerStatus(ctx)
			if err != nil {
				return err
			}
			if !status.Running() {
				return fmt.Errorf("backend server is not running (state: %s)", status.State)
			}
			url := common.GetServerURL(status.Port)
			fmt.Fprintf(output(cmd), "Opening %s\n", url)
			return openURL(url)
		},
	}
}
