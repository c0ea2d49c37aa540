package common

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
)

// HostConfigCandidates lists config file names in order of precedence.
var HostConfigCandidates = []string{"deckhost.yml", "deckhost.yaml", "deckhost.toml", "deckhost.json"}

// ConfigDiscoveryResult holds the outcome of looking for config files in a
// directory.
type ConfigDiscoveryResult struct {
	// ChosenPath is the highest-precedence file that exists, or empty.
	ChosenPath string
	// AllFound lists every candidate that exists, so callers can warn when
	// more than one is present.
	AllFound []string
}

// DiscoverConfigFile checks dir for each candidate in order.
func DiscoverConfigFile(dir string, candidates []string) ConfigDiscoveryResult {
	result := ConfigDiscoveryResult{}

	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		result.AllFound = append(result.AllFound, path)
		if result.ChosenPath == "" {
			result.ChosenPath = path
		}
	}

	return result
}

// GetParserForExtension maps .yml/.yaml/.toml/.json to a koanf parser and
// returns nil for anything else.
func GetParserForExtension(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return yaml.Parser()
	case ".toml":
		return toml.Parser()
	case ".json":
		return json.Parser()
	default:
		return nil
	}
}
