package commands

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/modelry/modelry/config"
	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/sym"
)

// ConfigCmd manages Modelry configuration.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: sym.Config + " Manage Modelry configuration",
	Long: sym.Config + ` config — Configuration management

Configuration merges defaults, the user file (~/.modelry/modelry.toml),
a project-local modelry.toml, and MODELRY_* environment variables.

Examples:
  modelry config show   # Print the effective merged configuration
  modelry config save   # Write the effective configuration to the user file
  modelry config path   # Print the user config file path`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective merged configuration",
	RunE:  runConfigShow,
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective configuration to the user config file",
	RunE:  runConfigSave,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the user config file path",
	RunE:  runConfigPath,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configSaveCmd)
	ConfigCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to render configuration")
	}
	fmt.Print(string(data))
	return nil
}

func runConfigSave(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("%s Configuration saved to %s\n", sym.Config, config.UserConfigPath())
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path := config.UserConfigPath()
	if path == "" {
		return errors.New("cannot resolve home directory")
	}
	fmt.Println(path)
	return nil
}
