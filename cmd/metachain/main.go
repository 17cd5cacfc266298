package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/harmony-one/metachain/api/service"
	"github.com/harmony-one/metachain/api/service/prometheus"
	"github.com/harmony-one/metachain/internal/cli"
	metachainconfig "github.com/harmony-one/metachain/internal/configs/metachain"
	nodeconfig "github.com/harmony-one/metachain/internal/configs/node"
	"github.com/harmony-one/metachain/internal/utils"
	"github.com/harmony-one/metachain/node"
)

var rootCmd = &cobra.Command{
	Use:   "metachain",
	Short: "metachain network services",
	Long: `metachain serves the EVM of a DeFiChain node over JSON-RPC, websocket
subscriptions and a REST api. Configuration is read from a toml file (--config) and
overwritten by command line flags.`,
	Run: runMetachain,
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "remove the evm storage under the data directory",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		config, err := getMetachainConfig(cmd)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(128)
		}
		if err := service.WipeEVMFolder(config.General.DataDir); err != nil {
			utils.FatalErrMsg(err, "cannot wipe evm storage")
		}
	},
}

func init() {
	cli.SetParseErrorHandle(func(err error) {
		os.Exit(128) // 128 - invalid command line arguments
	})
	rootCmd.AddCommand(dumpConfigCmd)
	rootCmd.AddCommand(wipeCmd)
	rootCmd.AddCommand(versionCmd)

	if err := registerRootCmdFlags(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func registerRootCmdFlags() error {
	flags := getRootFlags()
	if err := cli.RegisterPFlags(rootCmd, flags); err != nil {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMetachain(cmd *cobra.Command, args []string) {
	if cli.GetBoolFlagValue(cmd, versionFlag) {
		printVersion()
		os.Exit(0)
	}

	config, err := getMetachainConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(128)
	}
	setupLogging(config)
	config.ApplyTo(nodeconfig.GetDefaultProvider())

	utils.Logger().Info().
		Str("version", getMetachainVersion()).
		Str("network", config.General.Network).
		Str("datadir", config.General.DataDir).
		Msg("Starting metachain")

	manager, err := setupServices(config)
	if err != nil {
		utils.FatalErrMsg(err, "cannot set up services")
	}
	if err := manager.StartServices(); err != nil {
		utils.Logger().Error().Err(err).Msg("Failed to start services")
		utils.FatalErrMsg(err, "cannot start services")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	utils.Logger().Warn().Str("signal", s.String()).Msg("Gracefully shutting down...")

	if err := manager.StopServices(); err != nil {
		utils.Logger().Error().Err(err).Msg("Failed to stop services")
		os.Exit(1)
	}
	os.Exit(0)
}

func setupLogging(config metachainconfig.MetachainConfig) {
	logPath := filepath.Join(config.Log.Folder, config.Log.FileName)
	utils.AddLogFile(logPath, config.Log.RotateSize, config.Log.RotateCount, config.Log.RotateMaxAge)
	utils.SetLogVerbosity(log.Lvl(config.Log.Verbosity))
	utils.SetLogContext(config.General.Network, "metachain")
}

// setupServices registers the host services enabled by config.
func setupServices(config metachainconfig.MetachainConfig) (*service.Manager, error) {
	if err := node.Configure(service.WithProvider(nodeconfig.GetDefaultProvider())); err != nil {
		return nil, err
	}
	manager := service.NewManager()
	if err := manager.Register(service.Network, service.NewNetworkService(node.Registry(), getEndpoints(config))); err != nil {
		return nil, err
	}
	if config.Prometheus.Enabled {
		svc := prometheus.NewService(prometheus.Config{
			Enabled: config.Prometheus.Enabled,
			IP:      config.Prometheus.IP,
			Port:    config.Prometheus.Port,
		})
		if err := manager.Register(service.Prometheus, svc); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

func getEndpoints(config metachainconfig.MetachainConfig) service.Endpoints {
	var endpoints service.Endpoints
	if config.HTTP.Enabled {
		endpoints.JSONRPC = metachainconfig.Addr(config.HTTP.IP, config.HTTP.Port)
	}
	if config.WS.Enabled {
		endpoints.Websocket = metachainconfig.Addr(config.WS.IP, config.WS.Port)
	}
	if config.REST.Enabled {
		endpoints.REST = metachainconfig.Addr(config.REST.IP, config.REST.Port)
	}
	return endpoints
}
