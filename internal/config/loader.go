package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config struct with defaults applied.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// A set value wins over the default; a variable with neither is collected
// and reported, all unresolved names in one error.
func expandEnv(raw []byte) ([]byte, error) {
	var out bytes.Buffer
	var missing []string

	last := 0
	for _, m := range envPattern.FindAllSubmatchIndex(raw, -1) {
		out.Write(raw[last:m[0]])
		last = m[1]

		name := string(raw[m[2]:m[3]])
		if value, ok := os.LookupEnv(name); ok {
			out.WriteString(value)
			continue
		}
		if m[4] >= 0 { // ${VAR:-default} form
			out.Write(raw[m[4]:m[5]])
			continue
		}
		missing = append(missing, name)
		out.Write(raw[m[0]:m[1]])
	}
	out.Write(raw[last:])

	if len(missing) > 0 {
		return out.Bytes(), fmt.Errorf("unresolved variables: %s", strings.Join(missing, ", "))
	}
	return out.Bytes(), nil
}

// ResolvePath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/mcphub/mcphub.yaml (or
// ~/.config/mcphub/mcphub.yaml when XDG_CONFIG_HOME is unset) →
// ./mcphub.yaml
func ResolvePath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "mcphub", "mcphub.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "mcphub", "mcphub.yaml"))
	}

	candidates = append(candidates, "mcphub.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
