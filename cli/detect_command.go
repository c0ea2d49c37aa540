package main

import (
	"context"
	"deckhost/common"
	"deckhost/launch"
	"errors"

	"github.com/urfave/cli/v3"
)

type detectResult struct {
	Mode   launch.Mode    `json:"mode"`
	Port   int            `json:"port"`
	Target *launch.Target `json:"target,omitempty"`
	Error  string         `json:"error,omitempty"`
	Hint   string         `json:"hint,omitempty"`
	URL    string         `json:"url"`
}

func NewDetectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "Show which mode deckhost would run in and what it would launch",
		Description: "Runs mode detection and path resolution without starting anything. " +
			"Useful for checking a bundle layout or a development checkout.",
		Flags:  []cli.Flag{portFlag},
		Action: handleDetectCommand,
	}
}

func handleDetectCommand(ctx context.Context, cmd *cli.Command) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	port := config.ServerPort
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}

	mode := launch.DetectMode(launch.CurrentEnvironment(config.DevEnvVars, common.ExecutableExt()))
	result := detectResult{
		Mode: mode,
		Port: port,
		URL:  common.GetServerURL(port),
	}

	launcher := launch.NewLauncher(launch.ConfigFromHost(config, ""))
	target, err := launcher.Resolve(mode, port)
	if err != nil {
		result.Error = err.Error()
		var launchErr *launch.LaunchError
		if errors.As(err, &launchErr) {
			result.Hint = launchErr.Hint
		}
	} else {
		result.Target = &target
	}
	return printJSON(cmd, result)
}
