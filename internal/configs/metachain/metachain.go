// Package metachain holds the config file of the metachain binary. It bridges the user
// flags and the toml file to the node config provider.
package metachain

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	nodeconfig "github.com/harmony-one/metachain/internal/configs/node"
)

// TOMLConfigVersion is the version written by Dump
const TOMLConfigVersion = "1.0.0"

// MetachainConfig contains all the configs user can set for running the metachain binary.
type MetachainConfig struct {
	Version    string
	General    GeneralConfig
	HTTP       HttpConfig
	WS         WsConfig
	REST       RestConfig
	RPCAuth    RPCAuthConfig
	Log        LogConfig
	Prometheus PrometheusConfig
}

type GeneralConfig struct {
	DataDir string
	Network string
}

type HttpConfig struct {
	Enabled           bool
	IP                string
	Port              int
	MaxConnections    uint32
	MaxResponseSize   uint32 // in bytes
	CORSAllowedOrigin string
	RequestsPerSecond int // 0 disables the rate limiter
}

type WsConfig struct {
	Enabled bool
	IP      string
	Port    int
}

type RestConfig struct {
	Enabled bool
	IP      string
	Port    int
}

// RPCAuthConfig are the credentials of the companion node rpc. An empty user makes the
// node read <datadir>/.cookie instead.
type RPCAuthConfig struct {
	User     string
	Password string
	Port     int
}

type LogConfig struct {
	Folder       string
	FileName     string
	RotateSize   int // in MB
	RotateCount  int
	RotateMaxAge int // in days
	Verbosity    int
}

type PrometheusConfig struct {
	Enabled bool
	IP      string
	Port    int
}

// DefaultConfig is the config used when no file is given.
var DefaultConfig = MetachainConfig{
	Version: TOMLConfigVersion,
	General: GeneralConfig{
		DataDir: "./",
		Network: string(nodeconfig.Mainnet),
	},
	HTTP: HttpConfig{
		Enabled:         true,
		IP:              nodeconfig.DefaultLocalListenIP,
		Port:            nodeconfig.DefaultJSONRPCPort,
		MaxConnections:  nodeconfig.DefaultMaxConnections,
		MaxResponseSize: nodeconfig.DefaultMaxResponseSize,
	},
	WS: WsConfig{
		Enabled: true,
		IP:      nodeconfig.DefaultLocalListenIP,
		Port:    nodeconfig.DefaultWSPort,
	},
	REST: RestConfig{
		Enabled: false,
		IP:      nodeconfig.DefaultLocalListenIP,
		Port:    nodeconfig.DefaultRESTPort,
	},
	RPCAuth: RPCAuthConfig{
		Port: nodeconfig.DefaultRPCPort,
	},
	Log: LogConfig{
		Folder:       "./latest",
		FileName:     "metachain.log",
		RotateSize:   100,
		RotateCount:  0,
		RotateMaxAge: 0,
		Verbosity:    int(log.LvlInfo),
	},
	Prometheus: PrometheusConfig{
		Enabled: false,
		IP:      "0.0.0.0",
		Port:    nodeconfig.DefaultPrometheusPort,
	},
}

// GetDefaultConfigCopy returns a copy of DefaultConfig.
func GetDefaultConfigCopy() MetachainConfig {
	return DefaultConfig
}

// Addr joins ip and port into a bind address.
func Addr(ip string, port int) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return fmt.Sprintf("%v:%v", ip, port)
	}
	return netip.AddrPortFrom(addr, uint16(port)).String()
}

// Validate checks the values a provider cannot represent.
func (c MetachainConfig) Validate() error {
	if !nodeconfig.NetworkType(c.General.Network).Valid() {
		return errors.Errorf("unknown network type: %v", c.General.Network)
	}
	if c.Log.Verbosity < int(log.LvlCrit) || c.Log.Verbosity > int(log.LvlTrace) {
		return errors.Errorf("invalid log verbosity: %v", c.Log.Verbosity)
	}
	ports := []struct {
		name string
		port int
	}{
		{"http", c.HTTP.Port},
		{"ws", c.WS.Port},
		{"rest", c.REST.Port},
		{"rpcauth", c.RPCAuth.Port},
		{"prometheus", c.Prometheus.Port},
	}
	for _, p := range ports {
		if p.port < 0 || p.port > 65535 {
			return errors.Errorf("invalid %v port: %v", p.name, p.port)
		}
	}
	return nil
}

// ApplyTo writes the provider values of c to p.
func (c MetachainConfig) ApplyTo(p *nodeconfig.Static) {
	p.SetDataDir(c.General.DataDir).
		SetNetwork(nodeconfig.NetworkType(c.General.Network)).
		SetMaxConnections(c.HTTP.MaxConnections).
		SetMaxResponseSize(c.HTTP.MaxResponseSize).
		SetCORSAllowedOrigin(c.HTTP.CORSAllowedOrigin).
		SetRequestsPerSecond(c.HTTP.RequestsPerSecond).
		SetRPCAuth(c.RPCAuth.User, c.RPCAuth.Password).
		SetRPCPort(c.RPCAuth.Port)
}

// Load reads the toml config file at file.
func Load(file string) (MetachainConfig, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return MetachainConfig{}, err
	}
	config := GetDefaultConfigCopy()
	if err := toml.Unmarshal(b, &config); err != nil {
		return MetachainConfig{}, errors.Wrapf(err, "cannot parse config %v", file)
	}
	if config.Version != TOMLConfigVersion {
		return MetachainConfig{}, errors.Errorf("unsupported config version %q, expect %q",
			config.Version, TOMLConfigVersion)
	}
	return config, nil
}

// Dump writes config as toml to file, creating the parent directory.
func Dump(config MetachainConfig, file string) error {
	b, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return err
	}
	return os.WriteFile(file, b, 0644)
}
