package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/modelry/modelry/errors"
)

// Save writes the configuration to the user config file
// (~/.modelry/modelry.toml), creating the directory if needed and rotating a
// single .back backup of the previous file.
func Save(c *Config) error {
	path := UserConfigPath()
	if path == "" {
		return errors.New("cannot resolve home directory for config save")
	}
	return SaveTo(c, path)
}

// SaveTo writes the configuration as TOML to an explicit path.
func SaveTo(c *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	if err := backupExisting(path); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write config to %s", path)
	}

	return nil
}

// backupExisting copies the current config file to <path>.back before a save.
func backupExisting(path string) error {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(path+".back", content, 0644); err != nil {
		return errors.Wrap(err, "failed to write config backup")
	}
	return nil
}
