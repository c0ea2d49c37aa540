package main

import (
	"deckhost/common"
	"deckhost/desktop"
	"deckhost/launch"
	"deckhost/logger"
	"deckhost/supervisor"
	"embed"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// .env may set DECKHOST_LOG_LEVEL, so load it before the logger exists
	envErr := godotenv.Load()
	log := logger.Get()
	if envErr != nil && !os.IsNotExist(envErr) {
		log.Warn().Err(envErr).Msg("Failed to load .env file")
	}

	configPath := common.GetHostConfigPath()
	config, err := common.LoadHostConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load deckhost config")
	}

	outputDir, err := common.GetRunOutputDir()
	if err != nil {
		log.Warn().Err(err).Msg("Server output will not be saved to disk")
		outputDir = ""
	}

	launcher := launch.NewLauncher(
		launch.ConfigFromHost(config, outputDir),
		launch.WithLogger(logger.Component("launcher")),
	)
	sup := supervisor.New(launcher,
		supervisor.WithModeDetector(launcher.DetectMode),
		supervisor.WithStopTimeout(config.StopTimeout()),
		supervisor.WithLogBufferLines(config.LogBufferLines),
		supervisor.WithLogger(logger.Component("supervisor")),
	)

	dist, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load frontend assets")
	}

	app := desktop.NewApp(config, sup,
		desktop.WithConfigReload(configPath, launcher, outputDir),
		desktop.WithLogger(logger.Component("desktop")),
	)
	if err := app.Run("Deck", dist); err != nil {
		log.Fatal().Err(err).Msg("Desktop shell exited with error")
	}
}
