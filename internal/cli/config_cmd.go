package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/notebase/internal/config"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/security"
)

var (
	configFormat string
	configPath   string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Long: `Write a configuration file populated with the default settings.

The file is written to notebase.<format> in the current directory unless
--path is given. An existing file is only replaced with --force.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().StringVar(&configFormat, "format", "yaml", "file format (yaml, toml, json)")
	configInitCmd.Flags().StringVar(&configPath, "path", "", "destination file")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "output format (yaml, toml, json)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = "notebase." + configFormat
	} else if cmd.Flags().Changed("format") {
		return rperrors.Validation("config init", "--format and --path cannot be combined; the extension of --path selects the format")
	}

	if err := config.WriteConfig(config.DefaultConfig(), path, configForce); err != nil {
		return err
	}
	if IsJSONOutput() {
		return printJSONOutput(map[string]string{"path": path})
	}
	printSuccess(fmt.Sprintf("Wrote %s", path))
	printSubtle("Data lives in " + config.DefaultDataDir() + " unless storage.path and projections.read_db say otherwise")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	format := configFormat
	if IsJSONOutput() {
		format = "json"
	}
	data, err := config.Marshal(cfg, format)
	if err != nil {
		return err
	}
	_, err = security.FromConfig(cfg).Writer(out()).Write(data)
	return err
}
