// Package config loads service configuration from defaults, an optional YAML
// file, RECOLLECT_-prefixed environment variables, and command-line flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "RECOLLECT_"

// Config holds all service settings.
type Config struct {
	Addr         string `koanf:"addr"`
	DBPath       string `koanf:"db_path"`
	ReposDir     string `koanf:"repos_dir"`
	SessionLimit int    `koanf:"session_limit"`
	LogLevel     string `koanf:"log_level"`
}

// Load parses args (without the program name) and merges all config sources.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("recollect", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("db_path", "recollect.db", "path to the SQLite database file")
	fs.String("repos_dir", "repos", "directory for git source checkouts")
	fs.Int("session_limit", 20, "maximum cards per study session")
	fs.String("log_level", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Flags win; unset flags only contribute their defaults for keys no
	// other source provided.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.SessionLimit <= 0 {
		return nil, fmt.Errorf("session_limit must be positive, got %d", cfg.SessionLimit)
	}
	return &cfg, nil
}
