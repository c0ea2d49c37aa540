package common

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

// HostConfig controls how deckhost finds, launches and supervises the backend
// server. Zero-config use relies on DefaultHostConfig; an optional config file
// and DECKHOST_* environment variables override individual fields. deckhost
// never writes this configuration back anywhere.
type HostConfig struct {
	// ServerPort is requested from the backend. Only authoritative in
	// production mode, the dev task may bind its own port.
	ServerPort int `koanf:"server_port"`

	// ControlPort is where `deckhost run` serves the control API.
	ControlPort int `koanf:"control_port"`

	// Manifest marks the project root in development mode.
	Manifest string `koanf:"manifest"`

	// ServerDir is the backend's directory relative to the project root.
	ServerDir string `koanf:"server_dir"`

	PackageManager string   `koanf:"package_manager"`
	DevArgs        []string `koanf:"dev_args"`

	// CompanionBinary is the backend executable shipped next to deckhost in
	// production bundles, without platform extension.
	CompanionBinary string `koanf:"companion_binary"`

	// DevEnvVars are checked by mode detection; any one that is set selects
	// development mode.
	DevEnvVars []string `koanf:"dev_env_vars"`

	AutoStart          bool `koanf:"auto_start"`
	AutoStartDelayMs   int  `koanf:"auto_start_delay_ms"`
	StopTimeoutSeconds int  `koanf:"stop_timeout_seconds"`

	// LogBufferLines bounds the in-memory server output kept for Logs().
	LogBufferLines int `koanf:"log_buffer_lines"`

	// AllowedOrigins is the control API's Origin allowlist. Empty means the
	// loopback origins for ControlPort.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

func DefaultHostConfig() HostConfig {
	return HostConfig{
		ServerPort:         defaultServerPort,
		ControlPort:        defaultControlPort,
		Manifest:           "package.json",
		ServerDir:          "apps/server",
		PackageManager:     "npm",
		DevArgs:            []string{"run", "dev"},
		CompanionBinary:    "server",
		DevEnvVars:         []string{"DECKHOST_DEV", "DEBUG"},
		AutoStart:          true,
		AutoStartDelayMs:   500,
		StopTimeoutSeconds: 10,
		LogBufferLines:     2000,
	}
}

func (c HostConfig) AutoStartDelay() time.Duration {
	return time.Duration(c.AutoStartDelayMs) * time.Millisecond
}

func (c HostConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// ExecutableExt is the extension executables need on this platform.
func ExecutableExt() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

// Validate ensures the HostConfig is usable.
func (c HostConfig) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port out of range: %d", c.ServerPort)
	}
	if c.ControlPort <= 0 || c.ControlPort > 65535 {
		return fmt.Errorf("control_port out of range: %d", c.ControlPort)
	}
	if c.ControlPort == c.ServerPort {
		return fmt.Errorf("control_port must differ from server_port (%d)", c.ServerPort)
	}
	if c.Manifest == "" {
		return errors.New("manifest is required")
	}
	if c.PackageManager == "" {
		return errors.New("package_manager is required")
	}
	if c.CompanionBinary == "" {
		return errors.New("companion_binary is required")
	}
	if c.AutoStartDelayMs < 0 {
		return fmt.Errorf("auto_start_delay_ms must not be negative: %d", c.AutoStartDelayMs)
	}
	if c.StopTimeoutSeconds <= 0 {
		return fmt.Errorf("stop_timeout_seconds must be positive: %d", c.StopTimeoutSeconds)
	}
	if c.LogBufferLines <= 0 {
		return fmt.Errorf("log_buffer_lines must be positive: %d", c.LogBufferLines)
	}
	return nil
}

// GetHostConfigPath returns DECKHOST_CONFIG when set, otherwise the highest
// precedence config file in the config home. Returns "" if none exists.
func GetHostConfigPath() string {
	if path := os.Getenv("DECKHOST_CONFIG"); path != "" {
		return path
	}

	result := DiscoverConfigFile(GetConfigHome(), HostConfigCandidates)
	if len(result.AllFound) > 1 {
		log.Warn().
			Strs("found", result.AllFound).
			Str("using", result.ChosenPath).
			Msg("Multiple deckhost config files found")
	}
	return result.ChosenPath
}

// LoadHostConfig builds the effective configuration: defaults, then the file
// at configPath (skipped when empty or missing), then environment overrides.
func LoadHostConfig(configPath string) (HostConfig, error) {
	config := DefaultHostConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := applyConfigFile(&config, configPath); err != nil {
				return HostConfig{}, err
			}
		} else if !os.IsNotExist(err) {
			return HostConfig{}, fmt.Errorf("error reading config %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return HostConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// applyConfigFile decodes the file over config, so keys the file omits keep
// their current values. A list in the file replaces the whole default list.
func applyConfigFile(config *HostConfig, configPath string) error {
	parser := GetParserForExtension(configPath)
	if parser == nil {
		return fmt.Errorf("unsupported config file extension: %s", configPath)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), parser); err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	var md mapstructure.Metadata
	err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Metadata:         &md,
			Result:           config,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			ZeroFields:       true,
		},
	})
	if err != nil {
		return fmt.Errorf("error unmarshaling config %s: %w", configPath, err)
	}
	if len(md.Unused) > 0 {
		log.Warn().Strs("keys", md.Unused).Str("path", configPath).Msg("Ignoring unknown config keys")
	}
	return nil
}

func applyEnvOverrides(config *HostConfig) {
	if os.Getenv("DECKHOST_SERVER_PORT") != "" {
		config.ServerPort = GetServerPort()
	}
	if os.Getenv("DECKHOST_CONTROL_PORT") != "" {
		config.ControlPort = GetControlPort()
	}
	if pm := os.Getenv("DECKHOST_PACKAGE_MANAGER"); pm != "" {
		config.PackageManager = pm
	}
	if os.Getenv("DECKHOST_NO_AUTOSTART") != "" {
		config.AutoStart = false
	}
}
