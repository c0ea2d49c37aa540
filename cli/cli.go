package main

import (
	"context"
	"deckhost/common"
	"deckhost/logger"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kardianos/service"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

var version = "dev"

const serviceStopTimeout = 20 * time.Second

// program runs the headless host under the OS service manager.
type program struct {
	log  zerolog.Logger
	host *host
}

func (p *program) Start(s service.Service) error {
	path := common.GetHostConfigPath()
	config, err := common.LoadHostConfig(path)
	if err != nil {
		return err
	}
	h, err := startHost(context.Background(), config, path, config.AutoStart)
	if err != nil {
		return err
	}
	p.host = h
	return nil
}

// Stop takes the backend server down with the service.
func (p *program) Stop(s service.Service) error {
	if p.host == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), serviceStopTimeout)
	defer cancel()
	return p.host.shutdown(ctx)
}

var svcConfig = &service.Config{
	Name:        "deckhost",
	DisplayName: "Deck Host",
	Description: "Supervises the Deck backend server and serves its local control API.",
	Arguments:   []string{"run"},
}

func main() {
	// .env may set DECKHOST_LOG_LEVEL, so load it before the logger exists
	envErr := godotenv.Load()
	log := logger.Get()
	if envErr != nil && !os.IsNotExist(envErr) {
		log.Warn().Err(envErr).Msg("Warning: failed to load .env file")
	}

	if !service.Interactive() {
		serviceMain(log)
		return
	}

	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serviceMain(log zerolog.Logger) {
	prg := &program{log: log}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	svcLogger, err := s.Logger(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get service logger")
	}
	if err := s.Run(); err != nil {
		svcLogger.Error(err)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "deckhost",
		Usage:   "Start, stop and inspect the Deck backend server",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a deckhost config file (yml, yaml, toml or json)",
				Sources: cli.EnvVars("DECKHOST_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "control-url",
				Usage:   "Base URL of a running deckhost control API",
				Sources: cli.EnvVars("DECKHOST_CONTROL_URL"),
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewStartCommand(),
			NewStopCommand(),
			NewRestartCommand(),
			NewStatusCommand(),
			NewLogsCommand(),
			NewOpenCommand(),
			NewKillPortCommand(),
			NewDetectCommand(),
			NewServiceCommand(),
		},
	}
}

// configPath is the --config file if given, otherwise the discovered one.
// Empty when there is no config file.
func configPath(cmd *cli.Command) string {
	if path := cmd.String("config"); path != "" {
		return path
	}
	return common.GetHostConfigPath()
}

func loadConfig(cmd *cli.Command) (common.HostConfig, error) {
	return common.LoadHostConfig(configPath(cmd))
}
