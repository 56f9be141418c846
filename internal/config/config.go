// Package config loads almanac configuration.
//
// Precedence, lowest first: built-in defaults, the config file (YAML or TOML,
// chosen by extension), ALMANAC_* environment variables, command-line flags.
// The merged result is validated against an embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultOutboxSize     = 64
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultLogOutput      = "stderr"
	defaultLogMaxSizeMB   = 10
	defaultLogMaxFiles    = 5
	snapshotFileName      = "almanac.db"
)

// ErrInvalidConfig is wrapped by every configuration error caused by bad input.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Snapshot SnapshotConfig `yaml:"snapshot" toml:"snapshot"`
	Worker   WorkerConfig   `yaml:"worker" toml:"worker"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// SnapshotConfig locates the keep-latest snapshot file.
type SnapshotConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// WorkerConfig tunes the worker and its host-side client.
type WorkerConfig struct {
	// RequestTimeout bounds every request issued by the client.
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`

	// OutboxSize is the buffer size of the worker's output channels.
	OutboxSize int `yaml:"outbox_size" toml:"outbox_size"`
}

type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level"`
	Format    string `yaml:"format" toml:"format"`
	Output    string `yaml:"output" toml:"output"`
	File      string `yaml:"file" toml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" toml:"max_files"`
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigPath is an explicit config file. When set, the file must exist.
	ConfigPath string

	// Env replaces the process environment for lookups when non-nil entries
	// are present. Keys missing from Env fall back to os.LookupEnv.
	Env map[string]string

	Flags FlagOverrides
}

// FlagOverrides carries command-line values that win over every other source.
type FlagOverrides struct {
	SnapshotPath *string
	LogLevel     *string
	LogFormat    *string
}

// DefaultConfig returns the built-in configuration. The snapshot path is
// resolved against the user's data directory.
func DefaultConfig() Config {
	return Config{
		Snapshot: SnapshotConfig{
			Path: "",
		},
		Worker: WorkerConfig{
			RequestTimeout: defaultRequestTimeout,
			OutboxSize:     defaultOutboxSize,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			Format:    defaultLogFormat,
			Output:    defaultLogOutput,
			File:      "",
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

// Load builds the effective configuration.
func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	configPath, explicit, err := resolveConfigPath(opts)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	if err := loadAndApplyFile(configPath, explicit, &cfg); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg, opts); err != nil {
		return Config{}, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	if cfg.Snapshot.Path == "" {
		home, err := almanacHome(opts)
		if err != nil {
			return Config{}, err
		}
		cfg.Snapshot.Path = filepath.Join(home, snapshotFileName)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	if flags.SnapshotPath != nil {
		cfg.Snapshot.Path = *flags.SnapshotPath
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.Logging.Format = *flags.LogFormat
	}
}

func resolveConfigPath(opts LoadOptions) (string, bool, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, true, nil
	}
	if value, ok := lookupEnv(opts, "ALMANAC_CONFIG"); ok && value != "" {
		return value, true, nil
	}
	path, err := defaultConfigPath(opts)
	return path, false, err
}

func lookupEnv(opts LoadOptions, key string) (string, bool) {
	if opts.Env != nil {
		if value, ok := opts.Env[key]; ok {
			return value, true
		}
	}
	return os.LookupEnv(key)
}

func almanacHome(opts LoadOptions) (string, error) {
	if value, ok := lookupEnv(opts, "ALMANAC_HOME"); ok && value != "" {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Almanac"), nil
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := lookupEnv(opts, "XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "almanac"), nil
}

func defaultConfigPath(opts LoadOptions) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Almanac", "config.yaml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := lookupEnv(opts, "XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "almanac", "config.yaml"), nil
}
