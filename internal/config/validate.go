package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the structural validity of a Config. Violations here are
// fatal at startup: a malformed server descriptor must never reach discovery.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Paths.Root == "" {
		errs = append(errs, errors.New("config: paths.root is required"))
	}

	seen := make(map[string]struct{}, len(cfg.Servers))
	for i, s := range cfg.Servers {
		errs = append(errs, validateServer(i, s, seen)...)
	}

	return errors.Join(errs...)
}

func validateServer(i int, s ServerConfig, seen map[string]struct{}) []error {
	var errs []error

	switch {
	case s.Name == "":
		errs = append(errs, fmt.Errorf("config: servers[%d]: name is required", i))
	case strings.Contains(s.Name, Separator):
		errs = append(errs, fmt.Errorf("config: servers[%d]: name %q must not contain %q", i, s.Name, Separator))
	default:
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("config: servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = struct{}{}
	}

	switch {
	case s.Command != "" && s.URL != "":
		errs = append(errs, fmt.Errorf("config: servers[%d]: command and url are mutually exclusive", i))
	case s.Command == "" && s.URL == "":
		errs = append(errs, fmt.Errorf("config: servers[%d]: one of command or url is required", i))
	}

	if s.URL != "" {
		switch s.Transport {
		case TransportSSE, TransportStreamableHTTP:
		case "":
			errs = append(errs, fmt.Errorf("config: servers[%d]: transport is required for remote servers", i))
		default:
			errs = append(errs, fmt.Errorf("config: servers[%d]: unknown transport %q", i, s.Transport))
		}
	}
	if s.Command == "" && (len(s.Args) > 0 || len(s.Env) > 0) {
		errs = append(errs, fmt.Errorf("config: servers[%d]: args/env are only valid with command", i))
	}

	return errs
}
