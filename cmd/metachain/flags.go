package main

import (
	"github.com/spf13/cobra"

	"github.com/harmony-one/metachain/internal/cli"
	metachainconfig "github.com/harmony-one/metachain/internal/configs/metachain"
)

var (
	rootFlags = []cli.Flag{
		configFlag,
		versionFlag,
	}

	generalFlags = []cli.Flag{
		dataDirFlag,
		networkTypeFlag,
	}

	httpFlags = []cli.Flag{
		httpEnabledFlag,
		httpIPFlag,
		httpPortFlag,
		httpMaxConnFlag,
		httpMaxResponseFlag,
		httpCORSOriginFlag,
		httpRateLimitFlag,
	}

	wsFlags = []cli.Flag{
		wsEnabledFlag,
		wsIPFlag,
		wsPortFlag,
	}

	restFlags = []cli.Flag{
		restEnabledFlag,
		restIPFlag,
		restPortFlag,
	}

	rpcAuthFlags = []cli.Flag{
		rpcAuthUserFlag,
		rpcAuthPasswordFlag,
		rpcAuthPortFlag,
	}

	logFlags = []cli.Flag{
		logFolderFlag,
		logFileNameFlag,
		logRotateSizeFlag,
		logRotateCountFlag,
		logRotateMaxAgeFlag,
		logVerbosityFlag,
	}

	prometheusFlags = []cli.Flag{
		prometheusEnabledFlag,
		prometheusIPFlag,
		prometheusPortFlag,
	}
)

var defaultConfig = metachainconfig.DefaultConfig

var (
	configFlag = cli.StringFlag{
		Name:     "config",
		Usage:    "load node config from the config toml file.",
		DefValue: "",
	}
	versionFlag = cli.BoolFlag{
		Name:      "version",
		Shorthand: "V",
		Usage:     "display version info",
	}
)

// general flags
var (
	dataDirFlag = cli.StringFlag{
		Name:     "datadir",
		Usage:    "directory of the node data (evm storage and rpc cookie)",
		DefValue: defaultConfig.General.DataDir,
	}
	networkTypeFlag = cli.StringFlag{
		Name:      "network",
		Shorthand: "n",
		Usage:     "network to join (mainnet, testnet, changi, devnet, regtest)",
		DefValue:  defaultConfig.General.Network,
	}
)

// http flags
var (
	httpEnabledFlag = cli.BoolFlag{
		Name:     "http",
		Usage:    "enable the JSON-RPC over HTTP server",
		DefValue: defaultConfig.HTTP.Enabled,
	}
	httpIPFlag = cli.StringFlag{
		Name:     "http.ip",
		Usage:    "ip address to listen for JSON-RPC requests",
		DefValue: defaultConfig.HTTP.IP,
	}
	httpPortFlag = cli.IntFlag{
		Name:     "http.port",
		Usage:    "port to listen for JSON-RPC requests",
		DefValue: defaultConfig.HTTP.Port,
	}
	httpMaxConnFlag = cli.Uint32Flag{
		Name:     "http.maxconn",
		Usage:    "maximum concurrent connections per server (0 for unlimited)",
		DefValue: defaultConfig.HTTP.MaxConnections,
	}
	httpMaxResponseFlag = cli.Uint32Flag{
		Name:     "http.maxresponse",
		Usage:    "maximum JSON-RPC response size in bytes (0 for unlimited)",
		DefValue: defaultConfig.HTTP.MaxResponseSize,
	}
	httpCORSOriginFlag = cli.StringFlag{
		Name:     "http.corsorigin",
		Usage:    "allowed cross origin, empty disables CORS checks",
		DefValue: defaultConfig.HTTP.CORSAllowedOrigin,
	}
	httpRateLimitFlag = cli.IntFlag{
		Name:     "http.rps",
		Usage:    "requests per second allowed per client ip (0 disables the limiter)",
		DefValue: defaultConfig.HTTP.RequestsPerSecond,
	}
)

// ws flags
var (
	wsEnabledFlag = cli.BoolFlag{
		Name:     "ws",
		Usage:    "enable the websocket subscription server",
		DefValue: defaultConfig.WS.Enabled,
	}
	wsIPFlag = cli.StringFlag{
		Name:     "ws.ip",
		Usage:    "ip address to listen for websocket connections",
		DefValue: defaultConfig.WS.IP,
	}
	wsPortFlag = cli.IntFlag{
		Name:     "ws.port",
		Usage:    "port to listen for websocket connections",
		DefValue: defaultConfig.WS.Port,
	}
)

// rest flags
var (
	restEnabledFlag = cli.BoolFlag{
		Name:     "rest",
		Usage:    "enable the REST server",
		DefValue: defaultConfig.REST.Enabled,
	}
	restIPFlag = cli.StringFlag{
		Name:     "rest.ip",
		Usage:    "ip address to listen for REST requests",
		DefValue: defaultConfig.REST.IP,
	}
	restPortFlag = cli.IntFlag{
		Name:     "rest.port",
		Usage:    "port to listen for REST requests",
		DefValue: defaultConfig.REST.Port,
	}
)

// rpc auth flags
var (
	rpcAuthUserFlag = cli.StringFlag{
		Name:     "rpcauth.user",
		Usage:    "user of the companion node rpc, the cookie file is used when empty",
		DefValue: defaultConfig.RPCAuth.User,
	}
	rpcAuthPasswordFlag = cli.StringFlag{
		Name:     "rpcauth.password",
		Usage:    "password of the companion node rpc",
		DefValue: defaultConfig.RPCAuth.Password,
	}
	rpcAuthPortFlag = cli.IntFlag{
		Name:     "rpcauth.port",
		Usage:    "port of the companion node rpc",
		DefValue: defaultConfig.RPCAuth.Port,
	}
)

// log flags
var (
	logFolderFlag = cli.StringFlag{
		Name:     "log.dir",
		Usage:    "directory path to put rotation logs",
		DefValue: defaultConfig.Log.Folder,
	}
	logFileNameFlag = cli.StringFlag{
		Name:     "log.name",
		Usage:    "log file name (e.g. metachain.log)",
		DefValue: defaultConfig.Log.FileName,
	}
	logRotateSizeFlag = cli.IntFlag{
		Name:     "log.max-size",
		Usage:    "rotation log size in megabytes",
		DefValue: defaultConfig.Log.RotateSize,
	}
	logRotateCountFlag = cli.IntFlag{
		Name:     "log.rotate-count",
		Usage:    "maximum number of old log files to retain",
		DefValue: defaultConfig.Log.RotateCount,
	}
	logRotateMaxAgeFlag = cli.IntFlag{
		Name:     "log.rotate-max-age",
		Usage:    "maximum number of days to retain old logs",
		DefValue: defaultConfig.Log.RotateMaxAge,
	}
	logVerbosityFlag = cli.IntFlag{
		Name:      "log.verb",
		Shorthand: "v",
		Usage:     "logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		DefValue:  defaultConfig.Log.Verbosity,
	}
)

// prometheus flags
var (
	prometheusEnabledFlag = cli.BoolFlag{
		Name:     "prometheus",
		Usage:    "enable the /metrics http server",
		DefValue: defaultConfig.Prometheus.Enabled,
	}
	prometheusIPFlag = cli.StringFlag{
		Name:     "prometheus.ip",
		Usage:    "ip address to serve metrics",
		DefValue: defaultConfig.Prometheus.IP,
	}
	prometheusPortFlag = cli.IntFlag{
		Name:     "prometheus.port",
		Usage:    "port to serve metrics",
		DefValue: defaultConfig.Prometheus.Port,
	}
)

func getRootFlags() []cli.Flag {
	var flags []cli.Flag

	flags = append(flags, rootFlags...)
	flags = append(flags, generalFlags...)
	flags = append(flags, httpFlags...)
	flags = append(flags, wsFlags...)
	flags = append(flags, restFlags...)
	flags = append(flags, rpcAuthFlags...)
	flags = append(flags, logFlags...)
	flags = append(flags, prometheusFlags...)

	return flags
}

func applyRootFlags(cmd *cobra.Command, config *metachainconfig.MetachainConfig) {
	applyGeneralFlags(cmd, config)
	applyHTTPFlags(cmd, config)
	applyWSFlags(cmd, config)
	applyRESTFlags(cmd, config)
	applyRPCAuthFlags(cmd, config)
	applyLogFlags(cmd, config)
	applyPrometheusFlags(cmd, config)
}

func applyGeneralFlags(cmd *cobra.Command, config *metachainconfig.MetachainConfig) {
	if cli.IsFlagChanged(cmd, dataDirFlag) {
		config.General.DataDir = cli.GetStringFlagValue(cmd, dataDirFlag)
	}
	if cli.IsFlagChanged(cmd, networkTypeFlag) {
		config.General.Network = cli.GetStringFlagValue(cmd, networkTypeFlag)
	}
}

func applyHTTPFlags(cmd *cobra.Command, config *metachainconfig.MetachainConfig) {
	var isIPChanged, isPortChanged bool
	if cli.IsFlagChanged(cmd, httpIPFlag) {
		config.HTTP.IP = cli.GetStringFlagValue(cmd, httpIPFlag)
		isIPChanged = true
	}
	if cli.IsFlagChanged(cmd, httpPortFlag) {
		config.HTTP.Port = cli.GetIntFlagValue(cmd, httpPortFlag)
		isPortChanged = true
	}
	if cli.IsFlagChanged(cmd, httpEnabledFlag) {
		config.HTTP.Enabled = cli.GetBoolFlagValue(cmd, httpEnabledFlag)
	} else if isIPChanged || isPortChanged {
		config.HTTP.Enabled = true
	}

	if cli.IsFlagChanged(cmd, httpMaxConnFlag) {
		config.HTTP.MaxConnections = cli.GetUint32FlagValue(cmd, httpMaxConnFlag)
	}
	if cli.IsFlagChanged(cmd, httpMaxResponseFlag) {
		config.HTTP.MaxResponseSize = cli.GetUint32FlagValue(cmd, httpMaxResponseFlag)
	}
	if cli.IsFlagChanged(cmd, httpCORSOriginFlag) {
		config.HTTP.CORSAllowedOrigin = cli.GetStringFlagValue(cmd, httpCORSOriginFlag)
	}
	if cli.IsFlagChanged(cmd, httpRateLimitFlag) {
		config.HTTP.RequestsPerSecond = cli.GetIntFlagValue(cmd, httpRateLimitFlag)
	}
}

func applyWSFlags(cmd *cobra.Command, config *metachainconfig.MetachainConfig) {
	if cli.IsFlagChanged(cmd, wsEnabledFlag) {
		config.WS.Enabled = cli.GetBoolFlagValue(cmd, wsEnabledFlag)
	}
	if cli.IsFlagChanged(cmd, wsIPFlag) {
		config.WS.IP = cli.GetStringFlagValue(cmd, wsIPFlag)
	}
	if cli.IsFlagChanged(cmd, wsPortFlag) {
		config.WS.Port = cli.GetIntFlagValue(cmd, wsPortFlag)
	}
}

func applyRESTFlags(cmd *cobra.Command, config *metachainconfig.MetachainConfig) {
	var isIPChanged, isPortChanged bool
	if cli.IsFlagChanged(cmd, restIPFlag) {
		config.REST.IP = cli.GetStringFlagValue(cmd, restIPFlag)
		isIPChanged = true
	}
	if cli.IsFlagChanged(cmd, restPortFlag) {
		config.REST.Port = cli.GetIntFlagValue(cmd, restPortFlag)
		isPortChanged = true
	}
	if cli.IsFlagChanged(cmd, restEnabledFlag) {
		config.REST.Enabled = cli.GetBoolFlagValue(cmd, restEnabledFlag)
	} else if isIPChanged || isPortChanged {
		config.REST.Enabled = true
	}
}

func applyRPCAuthFlags(cmd *cobra.Command, config *metachainconfig.MetachainConfig) {
	if cli.IsFlagChanged(cmd, rpcAuthUserFlag) {
		config.RPCAuth.User = cli.GetStringFlagValue(cmd, rpcAuthUserFlag)
	}
	if cli.IsFlagChanged(cmd, rpcAuthPasswordFlag) {
		config.RPCAuth.Password = cli.GetStringFlagValue(cmd, rpcAuthPasswordFlag)
	}
	if cli.IsFlagChanged(cmd, rpcAuthPortFlag) {
		config.RPCAuth.Port = cli.GetIntFlagValue(cmd, rpcAuthPortFlag)
	}
}

func applyLogFlags(cmd *cobra.Command, config *metachainconfig.MetachainConfig) {
	if cli.IsFlagChanged(cmd, logFolderFlag) {
		config.Log.Folder = cli.GetStringFlagValue(cmd, logFolderFlag)
	}
	if cli.IsFlagChanged(cmd, logFileNameFlag) {
		config.Log.FileName = cli.GetStringFlagValue(cmd, logFileNameFlag)
	}
	if cli.IsFlagChanged(cmd, logRotateSizeFlag) {
		config.Log.RotateSize = cli.GetIntFlagValue(cmd, logRotateSizeFlag)
	}
	if cli.IsFlagChanged(cmd, logRotateCountFlag) {
		config.Log.RotateCount = cli.GetIntFlagValue(cmd, logRotateCountFlag)
	}
	if cli.IsFlagChanged(cmd, logRotateMaxAgeFlag) {
		config.Log.RotateMaxAge = cli.GetIntFlagValue(cmd, logRotateMaxAgeFlag)
	}
	if cli.IsFlagChanged(cmd, logVerbosityFlag) {
		config.Log.Verbosity = cli.GetIntFlagValue(cmd, logVerbosityFlag)
	}
}

func applyPrometheusFlags(cmd *cobra.Command, config *metachainconfig.MetachainConfig) {
	var isIPChanged, isPortChanged bool
	if cli.IsFlagChanged(cmd, prometheusIPFlag) {
		config.Prometheus.IP = cli.GetStringFlagValue(cmd, prometheusIPFlag)
		isIPChanged = true
	}
	if cli.IsFlagChanged(cmd, prometheusPortFlag) {
		config.Prometheus.Port = cli.GetIntFlagValue(cmd, prometheusPortFlag)
		isPortChanged = true
	}
	if cli.IsFlagChanged(cmd, prometheusEnabledFlag) {
		config.Prometheus.Enabled = cli.GetBoolFlagValue(cmd, prometheusEnabledFlag)
	} else if isIPChanged || isPortChanged {
		config.Prometheus.Enabled = true
	}
}
