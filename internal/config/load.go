package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix of environment variables that override
	// configuration values, a double underscore separates nesting levels,
	// eg: MOTIONWATCH_CAPTURE__MAX_FILES sets capture.max_files
	EnvPrefix = "MOTIONWATCH_"
	// ConfigPathEnvVar names a config file when none is given explicitly
	ConfigPathEnvVar = EnvPrefix + "CONFIG"
)

// ErrInvalidConfig is returned when configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// validate is shared, validator caches struct metadata
var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration from layered sources in increasing priority:
// built in defaults, the YAML file at path, the saved settings file and
// environment variables.  An empty path falls back to $MOTIONWATCH_CONFIG,
// a missing file at either location is skipped
func Load(path string) (*Config, error) {

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	// the settings path may itself be set by the config file, so resolve it
	// before the settings layer and again after env
	if sp := settingsPath(k); sp != "" {
		if err := loadFile(k, sp); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile layers a YAML file onto k, a missing file is ignored
func loadFile(k *koanf.Koanf, path string) error {

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	return nil
}

// settingsPath returns the settings file location, an environment override
// takes precedence over the loaded value
func settingsPath(k *koanf.Koanf) string {
	if p, ok := os.LookupEnv(EnvPrefix + "SETTINGS_PATH"); ok {
		return p
	}
	return k.String("settings_path")
}

// envTransform maps MOTIONWATCH_SECTION__KEY to section.key
func envTransform(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "__", ".")
}

// Validate checks every configuration value is within range
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the runtime settings are within range
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
