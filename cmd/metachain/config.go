package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/harmony-one/metachain/internal/cli"
	metachainconfig "github.com/harmony-one/metachain/internal/configs/metachain"
)

var dumpConfigCmd = &cobra.Command{
	Use:   "dumpconfig [config_file]",
	Short: "dump the config file for metachain binary configurations",
	Long:  "dump the config file for metachain binary configurations",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, err := getMetachainConfig(cmd)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(128)
		}
		if err := metachainconfig.Dump(config, args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(128)
		}
	},
}

// getMetachainConfig builds the config from the --config file (or the defaults) and
// overwrites it with the flags given on the command line.
func getMetachainConfig(cmd *cobra.Command) (metachainconfig.MetachainConfig, error) {
	var (
		config metachainconfig.MetachainConfig
		err    error
	)
	if cli.IsFlagChanged(cmd, configFlag) {
		configFile := cli.GetStringFlagValue(cmd, configFlag)
		config, err = metachainconfig.Load(configFile)
		if err != nil {
			return metachainconfig.MetachainConfig{}, err
		}
	} else {
		config = metachainconfig.GetDefaultConfigCopy()
	}

	applyRootFlags(cmd, &config)

	if err := config.Validate(); err != nil {
		return metachainconfig.MetachainConfig{}, errors.Wrap(err, "invalid config")
	}
	return config, nil
}
