package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("no files exist", func(t *testing.T) {
		t.Parallel()
		result := DiscoverConfigFile(t.TempDir(), HostConfigCandidates)
		assert.Empty(t, result.ChosenPath)
		assert.Empty(t, result.AllFound)
	})

	t.Run("multiple files exist - returns highest precedence", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		yamlPath := filepath.Join(tmpDir, "deckhost.yaml")
		jsonPath := filepath.Join(tmpDir, "deckhost.json")
		require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0644))
		require.NoError(t, os.WriteFile(yamlPath, []byte(""), 0644))

		result := DiscoverConfigFile(tmpDir, HostConfigCandidates)
		assert.Equal(t, yamlPath, result.ChosenPath)
		assert.Equal(t, []string{yamlPath, jsonPath}, result.AllFound)
	})

	t.Run("directories are ignored", func(t *testing.T) {
		t.Parallel()
		tmpDir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "deckhost.yml"), 0755))

		result := DiscoverConfigFile(tmpDir, HostConfigCandidates)
		assert.Empty(t, result.ChosenPath)
	})
}

func TestGetParserForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path      string
		expectNil bool
	}{
		{"deckhost.yml", false},
		{"deckhost.YAML", false},
		{"deckhost.toml", false},
		{"deckhost.json", false},
		{"deckhost.ini", true},
		{"deckhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if tt.expectNil {
				assert.Nil(t, GetParserForExtension(tt.path))
			} else {
				assert.NotNil(t, GetParserForExtension(tt.path))
			}
		})
	}
}

func TestLoadHostConfig_Defaults(t *testing.T) {
	t.Setenv("DECKHOST_SERVER_PORT", "")
	t.Setenv("DECKHOST_CONTROL_PORT", "")
	t.Setenv("DECKHOST_PACKAGE_MANAGER", "")
	t.Setenv("DECKHOST_NO_AUTOSTART", "")

	config, err := LoadHostConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHostConfig(), config)
	assert.Equal(t, 500*time.Millisecond, config.AutoStartDelay())
	assert.Equal(t, 10*time.Second, config.StopTimeout())
}

func TestLoadHostConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DECKHOST_SERVER_PORT", "")
	t.Setenv("DECKHOST_CONTROL_PORT", "")

	config, err := LoadHostConfig(filepath.Join(t.TempDir(), "deckhost.yml"))
	require.NoError(t, err)
	assert.Equal(t, 8787, config.ServerPort)
}

func TestLoadHostConfig_FileOverrides(t *testing.T) {
	t.Setenv("DECKHOST_SERVER_PORT", "")
	t.Setenv("DECKHOST_CONTROL_PORT", "")
	t.Setenv("DECKHOST_PACKAGE_MANAGER", "")
	t.Setenv("DECKHOST_NO_AUTOSTART", "")

	tests := []struct {
		name     string
		fileName string
		content  string
	}{
		{
			name:     "yaml",
			fileName: "deckhost.yml",
			content: `server_port: 9000
package_manager: pnpm
dev_args: [dev]
auto_start: false
`,
		},
		{
			name:     "toml",
			fileName: "deckhost.toml",
			content: `server_port = 9000
package_manager = "pnpm"
dev_args = ["dev"]
auto_start = false
`,
		},
		{
			name:     "json",
			fileName: "deckhost.json",
			content:  `{"server_port": 9000, "package_manager": "pnpm", "dev_args": ["dev"], "auto_start": false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.fileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			config, err := LoadHostConfig(path)
			require.NoError(t, err)
			assert.Equal(t, 9000, config.ServerPort)
			assert.Equal(t, "pnpm", config.PackageManager)
			assert.Equal(t, []string{"dev"}, config.DevArgs)
			assert.False(t, config.AutoStart)
			// untouched keys keep their defaults
			assert.Equal(t, "package.json", config.Manifest)
			assert.Equal(t, 8786, config.ControlPort)
		})
	}
}

func TestLoadHostConfig_FileDecodesEveryField(t *testing.T) {
	t.Setenv("DECKHOST_SERVER_PORT", "")
	t.Setenv("DECKHOST_CONTROL_PORT", "")
	t.Setenv("DECKHOST_PACKAGE_MANAGER", "")
	t.Setenv("DECKHOST_NO_AUTOSTART", "")

	path := filepath.Join(t.TempDir(), "deckhost.yml")
	require.NoError(t, os.WriteFile(path, []byte(`server_port: 9001
control_port: 9002
manifest: deno.json
server_dir: server
package_manager: deno
dev_args: [task, dev, --watch]
companion_binary: deck-server
dev_env_vars: [DECK_DEV]
auto_start: false
auto_start_delay_ms: 0
stop_timeout_seconds: 3
log_buffer_lines: 50
allowed_origins: ["http://localhost:5173"]
not_a_key: ignored
`), 0644))

	config, err := LoadHostConfig(path)
	require.NoError(t, err)

	expected := HostConfig{
		ServerPort:         9001,
		ControlPort:        9002,
		Manifest:           "deno.json",
		ServerDir:          "server",
		PackageManager:     "deno",
		DevArgs:            []string{"task", "dev", "--watch"},
		CompanionBinary:    "deck-server",
		DevEnvVars:         []string{"DECK_DEV"},
		AutoStart:          false,
		AutoStartDelayMs:   0,
		StopTimeoutSeconds: 3,
		LogBufferLines:     50,
		AllowedOrigins:     []string{"http://localhost:5173"},
	}
	assert.Equal(t, expected, config)

	// a shorter list replaces the default rather than overwriting its prefix
	require.NoError(t, os.WriteFile(path, []byte("dev_args: [start]\n"), 0644))
	config, err = LoadHostConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"start"}, config.DevArgs)
	assert.Equal(t, []string{"run", "dev"}, DefaultHostConfig().DevArgs)
}

func TestLoadHostConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckhost.yml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9000\n"), 0644))

	t.Setenv("DECKHOST_SERVER_PORT", "9100")
	t.Setenv("DECKHOST_CONTROL_PORT", "")
	t.Setenv("DECKHOST_PACKAGE_MANAGER", "yarn")
	t.Setenv("DECKHOST_NO_AUTOSTART", "1")

	config, err := LoadHostConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, config.ServerPort)
	assert.Equal(t, "yarn", config.PackageManager)
	assert.False(t, config.AutoStart)
}

func TestLoadHostConfig_Errors(t *testing.T) {
	t.Setenv("DECKHOST_SERVER_PORT", "")
	t.Setenv("DECKHOST_CONTROL_PORT", "")

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deckhost.ini")
		require.NoError(t, os.WriteFile(path, []byte("x=1"), 0644))
		_, err := LoadHostConfig(path)
		assert.ErrorContains(t, err, "unsupported config file extension")
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deckhost.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
		_, err := LoadHostConfig(path)
		assert.ErrorContains(t, err, "error loading config")
	})

	t.Run("wrong type", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deckhost.yml")
		require.NoError(t, os.WriteFile(path, []byte("server_port: [1, 2]\n"), 0644))
		_, err := LoadHostConfig(path)
		assert.ErrorContains(t, err, "error unmarshaling config")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deckhost.yml")
		require.NoError(t, os.WriteFile(path, []byte("stop_timeout_seconds: 0\n"), 0644))
		_, err := LoadHostConfig(path)
		assert.ErrorContains(t, err, "stop_timeout_seconds")
	})
}

func TestHostConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*HostConfig)
		wantErr string
	}{
		{"defaults are valid", func(c *HostConfig) {}, ""},
		{"port too large", func(c *HostConfig) { c.ServerPort = 70000 }, "server_port"},
		{"control port zero", func(c *HostConfig) { c.ControlPort = 0 }, "control_port"},
		{"ports collide", func(c *HostConfig) { c.ControlPort = c.ServerPort }, "must differ"},
		{"empty manifest", func(c *HostConfig) { c.Manifest = "" }, "manifest"},
		{"empty package manager", func(c *HostConfig) { c.PackageManager = "" }, "package_manager"},
		{"empty companion", func(c *HostConfig) { c.CompanionBinary = "" }, "companion_binary"},
		{"negative delay", func(c *HostConfig) { c.AutoStartDelayMs = -1 }, "auto_start_delay_ms"},
		{"zero log buffer", func(c *HostConfig) { c.LogBufferLines = 0 }, "log_buffer_lines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			config := DefaultHostConfig()
			tt.mutate(&config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestGetHostConfigPath(t *testing.T) {
	t.Run("explicit env wins", func(t *testing.T) {
		t.Setenv("DECKHOST_CONFIG", "/tmp/custom.yml")
		assert.Equal(t, "/tmp/custom.yml", GetHostConfigPath())
	})

	t.Run("discovers in config home", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("DECKHOST_CONFIG", "")
		t.Setenv("DECKHOST_CONFIG_HOME", dir)
		path := filepath.Join(dir, "deckhost.toml")
		require.NoError(t, os.WriteFile(path, []byte(""), 0644))
		assert.Equal(t, path, GetHostConfigPath())
	})

	t.Run("empty when nothing found", func(t *testing.T) {
		t.Setenv("DECKHOST_CONFIG", "")
		t.Setenv("DECKHOST_CONFIG_HOME", t.TempDir())
		assert.Empty(t, GetHostConfigPath())
	})
}
