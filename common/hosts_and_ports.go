package common

import (
	"fmt"
	"os"
	"strconv"
)

// 8787 is what the backend binds when PORT is unset, keep them in sync.
const defaultServerPort = 8787

const defaultControlPort = 8786

const defaultControlHost = "127.0.0.1"

// GetServerPort returns the port the backend server is asked to bind.
func GetServerPort() int {
	return getPortFromEnv("DECKHOST_SERVER_PORT", defaultServerPort)
}

// GetControlPort returns the port of the local control API served by
// `deckhost run`.
func GetControlPort() int {
	return getPortFromEnv("DECKHOST_CONTROL_PORT", defaultControlPort)
}

func GetControlHost() string {
	host := os.Getenv("DECKHOST_CONTROL_HOST")
	if host == "" {
		return defaultControlHost
	}
	return host
}

func GetControlHostPort() string {
	return fmt.Sprintf("%s:%d", GetControlHost(), GetControlPort())
}

// GetServerURL is the address a browser should use to reach the backend.
func GetServerURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}

func getPortFromEnv(name string, defaultPort int) int {
	value := os.Getenv(name)
	if value == "" {
		return defaultPort
	}

	port, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse %s: %s", name, value))
	}
	return port
}
