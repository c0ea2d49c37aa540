package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetStateHome returns a directory path for storing user-specific deckhost
// state (host logs, captured server output). If needed, it also creates the
// necessary directories according to the XDG spec. Can be overridden by
// setting the DECKHOST_STATE_HOME environment variable.
func GetStateHome() (string, error) {
	stateDir := os.Getenv("DECKHOST_STATE_HOME")
	if stateDir != "" {
		err := os.MkdirAll(stateDir, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create deckhost state directory from DECKHOST_STATE_HOME: %w", err)
		}
		return stateDir, nil
	}

	stateDir = filepath.Join(xdg.StateHome, "deckhost")
	err := os.MkdirAll(stateDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create deckhost state directory: %w", err)
	}
	return stateDir, nil
}

// GetRunOutputDir returns the directory holding one output file per server
// run, creating it if needed.
func GetRunOutputDir() (string, error) {
	stateHome, err := GetStateHome()
	if err != nil {
		return "", err
	}

	runsDir := filepath.Join(stateHome, "runs")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run output directory '%s': %w", runsDir, err)
	}
	return runsDir, nil
}

// GetConfigHome returns the directory searched for deckhost config files.
// Unlike the state home it is never created: deckhost only reads config.
func GetConfigHome() string {
	configDir := os.Getenv("DECKHOST_CONFIG_HOME")
	if configDir != "" {
		return configDir
	}
	return filepath.Join(xdg.ConfigHome, "deckhost")
}
