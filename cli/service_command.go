package main

import (
	"context"
	"fmt"

	"github.com/kardianos/service"
	"github.com/urfave/cli/v3"
)

func NewServiceCommand() *cli.Command {
	return &cli.Command{
		Name:  "service",
		Usage: "Manage deckhost as an OS background service",
		Description: "Installs `deckhost run` with the platform service manager (systemd, " +
			"launchd or the Windows service manager) so the backend is supervised at login.",
		Commands: []*cli.Command{
			newServiceControlCommand("install", "Install the deckhost service"),
			newServiceControlCommand("uninstall", "Remove the deckhost service"),
			newServiceControlCommand("start", "Start the installed service"),
			newServiceControlCommand("stop", "Stop the installed service"),
			newServiceControlCommand("restart", "Restart the installed service"),
			{
				Name:   "status",
				Usage:  "Show whether the service is installed and running",
				Action: handleServiceStatus,
			},
		},
	}
}

func newServiceControlCommand(action, usage string) *cli.Command {
	return &cli.Command{
		Name:  action,
		Usage: usage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := service.New(&program{}, svcConfig)
			if err != nil {
				return fmt.Errorf("failed to initialize service: %w", err)
			}
			if err := service.Control(s, action); err != nil {
				return fmt.Errorf("service %s failed: %w", action, err)
			}
			fmt.Fprintf(output(cmd), "Service %s: ok\n", action)
			return nil
		},
	}
}

func handleServiceStatus(ctx context.Context, cmd *cli.Command) error {
	s, err := service.New(&program{}, svcConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	status, err := s.Status()
	if err != nil && err != service.ErrNotInstalled {
		return fmt.Errorf("failed to query service status: %w", err)
	}
	fmt.Fprintln(output(cmd), serviceStatusText(status, err))
	return nil
}

func serviceStatusText(status service.Status, err error) string {
	if err == service.ErrNotInstalled {
		return "not installed"
	}
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
