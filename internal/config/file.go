package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Raw structs distinguish "absent" from "zero" so a file only overrides the
// keys it actually sets.
type rawConfig struct {
	Snapshot *rawSnapshot `yaml:"snapshot" toml:"snapshot"`
	Worker   *rawWorker   `yaml:"worker" toml:"worker"`
	Logging  *rawLogging  `yaml:"logging" toml:"logging"`
}

type rawSnapshot struct {
	Path *string `yaml:"path" toml:"path"`
}

type rawWorker struct {
	RequestTimeout *string `yaml:"request_timeout" toml:"request_timeout"`
	OutboxSize     *int    `yaml:"outbox_size" toml:"outbox_size"`
}

type rawLogging struct {
	Level     *string `yaml:"level" toml:"level"`
	Format    *string `yaml:"format" toml:"format"`
	Output    *string `yaml:"output" toml:"output"`
	File      *string `yaml:"file" toml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files" toml:"max_files"`
}

func loadAndApplyFile(path string, explicit bool, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	raw, err := decodeRaw(path, data)
	if err != nil {
		return err
	}
	return applyRawConfig(cfg, raw)
}

func decodeRaw(path string, data []byte) (rawConfig, error) {
	var raw rawConfig

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return raw, fmt.Errorf("%w: parse YAML file %q: %v", ErrInvalidConfig, path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return raw, fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
		}
	default:
		return raw, fmt.Errorf("%w: unsupported config file extension %q (want .yaml, .yml or .toml)", ErrInvalidConfig, ext)
	}
	return raw, nil
}

func applyRawConfig(cfg *Config, raw rawConfig) error {
	if raw.Snapshot != nil {
		setString(raw.Snapshot.Path, &cfg.Snapshot.Path)
	}

	if raw.Worker != nil {
		if err := setDuration("worker.request_timeout", raw.Worker.RequestTimeout, &cfg.Worker.RequestTimeout); err != nil {
			return err
		}
		setInt(raw.Worker.OutboxSize, &cfg.Worker.OutboxSize)
	}

	if raw.Logging != nil {
		setString(raw.Logging.Level, &cfg.Logging.Level)
		setString(raw.Logging.Format, &cfg.Logging.Format)
		setString(raw.Logging.Output, &cfg.Logging.Output)
		setString(raw.Logging.File, &cfg.Logging.File)
		setInt(raw.Logging.MaxSizeMB, &cfg.Logging.MaxSizeMB)
		setInt(raw.Logging.MaxFiles, &cfg.Logging.MaxFiles)
	}

	return nil
}

func applyEnvOverrides(cfg *Config, opts LoadOptions) error {
	if value, ok := lookupEnv(opts, "ALMANAC_SNAPSHOT_PATH"); ok {
		cfg.Snapshot.Path = value
	}

	if value, ok := lookupEnv(opts, "ALMANAC_REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: parse ALMANAC_REQUEST_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		cfg.Worker.RequestTimeout = d
	}
	if value, ok := lookupEnv(opts, "ALMANAC_OUTBOX_SIZE"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse ALMANAC_OUTBOX_SIZE: %v", ErrInvalidConfig, err)
		}
		cfg.Worker.OutboxSize = parsed
	}

	if value, ok := lookupEnv(opts, "ALMANAC_LOG_LEVEL"); ok {
		cfg.Logging.Level = value
	}
	if value, ok := lookupEnv(opts, "ALMANAC_LOG_FORMAT"); ok {
		cfg.Logging.Format = value
	}
	if value, ok := lookupEnv(opts, "ALMANAC_LOG_FILE"); ok {
		cfg.Logging.File = value
	}
	if value, ok := lookupEnv(opts, "ALMANAC_LOG_MAX_SIZE_MB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse ALMANAC_LOG_MAX_SIZE_MB: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxSizeMB = parsed
	}
	if value, ok := lookupEnv(opts, "ALMANAC_LOG_MAX_FILES"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse ALMANAC_LOG_MAX_FILES: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxFiles = parsed
	}

	return nil
}

func setDuration(field string, raw *string, target *time.Duration) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, field, err)
	}
	*target = d
	return nil
}

func setString(raw *string, target *string) {
	if raw != nil {
		*target = *raw
	}
}

func setInt(raw *int, target *int) {
	if raw != nil {
		*target = *raw
	}
}
