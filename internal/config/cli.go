package config

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// CLIFlags holds command-line overrides. A nil field means the flag was not
// given and lower-precedence sources apply.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	DSN        *string
	NatsURL    *string
	LogLevel   *string
}

// ParseFlags parses command-line arguments into CLIFlags. Unknown flags
// return an error; usage output is suppressed so callers control reporting.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("atrium", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "shorthand for --config")
	port := fs.String("port", "", "HTTP listen port")
	fs.StringVar(port, "p", "", "shorthand for --port")
	dsn := fs.String("dsn", "", "Postgres connection string")
	natsURL := fs.String("nats-url", "", "NATS server URL")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var flags CLIFlags
	if *configPath != "" {
		flags.ConfigPath = configPath
	}
	if *port != "" {
		flags.Port = port
	}
	if *dsn != "" {
		flags.DSN = dsn
	}
	if *natsURL != "" {
		flags.NatsURL = natsURL
	}
	if *logLevel != "" {
		flags.LogLevel = logLevel
	}
	return flags, nil
}

// LoadWithCLI returns a Config using the hierarchy defaults < YAML < ENV < CLI
// together with the YAML path that was read. --config wins over ATRIUM_CONFIG,
// which wins over DefaultConfigFile.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if env := os.Getenv("ATRIUM_CONFIG"); env != "" {
		path = env
	}
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

// applyCLI overlays non-nil CLI flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
}
