package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env"
	"github.com/dmitrijs2005/postkeeper/internal/flagx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FlagNames lists the global flags owned by this package. Commands split
// them off before parsing their own flags.
var FlagNames = []string{
	"-c", "-config", "--config",
	"-a", "-d", "-store", "-dsn", "-cache", "-log-level", "-log-format",
}

// dotenvPath is read, when present, before the environment is parsed.
var dotenvPath = ".env"

// Load builds a Config from defaults, the environment, the file named by
// -c/-config and the flags found in args, then validates it.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if path := flagx.ConfigFile(args); path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseEnv seeds the process environment from the .env file (existing
// variables win) and overlays the variables named by the env tags.
func parseEnv(cfg *Config) error {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", dotenvPath, err)
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// parseFile overlays the keys present in a JSON or YAML file. The format
// follows the extension.
func parseFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// parseFlags applies the global flags.
//
//	-a string          webhook listen address
//	-d string          data directory
//	-store string      store driver (file, sqlite, postgres)
//	-dsn string        store DSN or file path
//	-cache string      cache driver (memory, redis)
//	-log-level string  debug, info, warn, error
//	-log-format string auto, text, json
func parseFlags(cfg *Config, args []string) error {
	fset := flag.NewFlagSet("postkeeper", flag.ContinueOnError)
	fset.SetOutput(io.Discard)

	fset.StringVar(&cfg.WebhookAddr, "a", cfg.WebhookAddr, "webhook listen address")
	fset.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fset.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver")
	fset.StringVar(&cfg.StoreDSN, "dsn", cfg.StoreDSN, "store dsn")
	fset.StringVar(&cfg.CacheDriver, "cache", cfg.CacheDriver, "cache driver")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fset.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format")

	// -c is consumed by flagx.ConfigFile
	var ignored string
	fset.StringVar(&ignored, "c", "", "config file")
	fset.StringVar(&ignored, "config", "", "config file")

	if err := fset.Parse(flagx.FilterArgs(args, FlagNames)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
