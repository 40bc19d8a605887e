package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanhut/fxstore/internal/colors"
	"github.com/javanhut/fxstore/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get and set configuration options",
	Long: `Get and set fxstore configuration options.

Options are stored in .fxstore.yaml in the project directory and can be
overridden with FXSTORE_* environment variables, for example
FXSTORE_STORE_LEDGER_BACKEND=bolt.

Examples:
  fxstore config --list
  fxstore config store.ledger_backend
  fxstore config store.ledger_backend bolt
  fxstore config log.format json`,
	RunE: runConfig,
}

var configList bool

var configKeys = []string{
	"log.level",
	"log.format",
	"store.ledger_backend",
	"store.effects_folder",
	"store.asset_extension",
	"sync.dry_run",
	"metrics.enabled",
}

func init() {
	configCmd.Flags().BoolVar(&configList, "list", false, "List all configuration")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configList {
		return listConfig()
	}
	if len(args) == 1 {
		value, err := cfg.GetValue(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	}
	if len(args) == 2 {
		return setConfigValue(args[0], args[1])
	}
	return fmt.Errorf("invalid usage. See: fxstore config --help")
}

func listConfig() error {
	fmt.Println(colors.Bold("Configuration (" + configPath + "):"))
	for _, key := range configKeys {
		value, err := cfg.GetValue(key)
		if err != nil {
			return err
		}
		fmt.Printf("  %s = %s\n", key, colors.Cyan(value))
	}
	return nil
}

// setConfigValue changes one option and saves the configuration file.
func setConfigValue(key, value string) error {
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := fileCfg.SetValue(key, value); err != nil {
		return err
	}
	if err := config.Save(fileCfg, configPath); err != nil {
		return err
	}
	fmt.Printf("%s %s = %s\n", colors.Success("Set"), key, value)
	return nil
}
