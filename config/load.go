package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/modelry/modelry/errors"
)

var (
	globalConfig  *Config
	viperInstance *viper.Viper
)

// Load reads the Modelry configuration using Viper.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	applyFloors(&config)

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access.
func GetViper() *viper.Viper {
	return initViper()
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	applyFloors(&config)
	return &config, nil
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// applyFloors replaces non-positive tunables with their defaults so a partial
// or hand-edited config file cannot disable the capacity guards.
func applyFloors(c *Config) {
	if c.Limits.MaxCanvases <= 0 {
		c.Limits.MaxCanvases = 100
	}
	if c.Limits.MaxInstances <= 0 {
		c.Limits.MaxInstances = 5000
	}
	if c.Limits.MaxVisited <= 0 {
		c.Limits.MaxVisited = 1000
	}
	if c.Limits.MaxTraverseHop <= 0 {
		c.Limits.MaxTraverseHop = 10
	}
	if c.Rules.AnnotationRowHeight <= 0 {
		c.Rules.AnnotationRowHeight = 18.0
	}
	if c.Impact.RadialStep <= 0 {
		c.Impact.RadialStep = 220.0
	}
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Environment variable binding: MODELRY_DATABASE_PATH etc.
	v.SetEnvPrefix("MODELRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Merge config files in precedence order: user < project.
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// mergeConfigFiles merges configuration files, lowest precedence first.
func mergeConfigFiles(v *viper.Viper) {
	if userPath := UserConfigPath(); userPath != "" {
		if _, err := os.Stat(userPath); err == nil {
			v.SetConfigFile(userPath)
			v.SetConfigType("toml")
			_ = v.MergeInConfig()
		}
	}

	if projectPath := findProjectConfig(); projectPath != "" {
		v.SetConfigFile(projectPath)
		v.SetConfigType("toml")
		_ = v.MergeInConfig()
	}
}

// UserConfigPath returns ~/.modelry/modelry.toml, or "" if the home directory
// cannot be resolved.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".modelry", "modelry.toml")
}

// findProjectConfig searches for modelry.toml by walking up the directory
// tree. Returns the first file found, or "" if none.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "modelry.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
