// Package nodeconfig includes the configuration read by the network services of a node.
// The values are owned by the host process and pulled by each server at the moment it starts.
package nodeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// NetworkType describes the type of the network the node is running on
type NetworkType string

// Constants for NetworkType
const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Changi  NetworkType = "changi"
	Devnet  NetworkType = "devnet"
	Regtest NetworkType = "regtest"
)

// Default listen ports of the network services and of the companion node RPC.
const (
	DefaultLocalListenIP  = "127.0.0.1"
	DefaultJSONRPCPort    = 20551
	DefaultWSPort         = 20552
	DefaultRESTPort       = 3002
	DefaultRPCPort        = 8554
	DefaultPrometheusPort = 9900

	// DefaultMaxConnections is the default maximum of concurrent client connections per server.
	DefaultMaxConnections = 100
	// DefaultMaxResponseSize is the default maximum size in bytes of a JSON-RPC response.
	DefaultMaxResponseSize = 25 * 1024 * 1024

	cookieFileName = ".cookie"
)

// ErrNoRPCAuth is returned when neither credentials nor a cookie file are available.
var ErrNoRPCAuth = errors.New("no rpc credentials available")

// ChainID returns the EVM chain id of the network.
func (n NetworkType) ChainID() uint64 {
	switch n {
	case Mainnet:
		return 1130
	case Testnet:
		return 1131
	case Devnet:
		return 1132
	case Changi:
		return 1133
	default:
		return 1133
	}
}

// Valid reports whether n is a known network.
func (n NetworkType) Valid() bool {
	switch n {
	case Mainnet, Testnet, Changi, Devnet, Regtest:
		return true
	}
	return false
}

// Provider is the read-only source of configuration values. Every method may be called
// concurrently and may return different values over time.
type Provider interface {
	MaxConnections() uint32
	MaxResponseSize() uint32
	CORSAllowedOrigin() string
	RequestsPerSecond() int
	RPCAuth() (user, pass string, err error)
	RPCPort() int
	Network() NetworkType
	DataDir() string
}

// Snapshot is the set of values a server observes when it starts.
type Snapshot struct {
	MaxConnections    uint32
	MaxResponseSize   uint32
	CORSAllowedOrigin string
	RequestsPerSecond int
}

// TakeSnapshot reads the server related values from p.
func TakeSnapshot(p Provider) Snapshot {
	return Snapshot{
		MaxConnections:    p.MaxConnections(),
		MaxResponseSize:   p.MaxResponseSize(),
		CORSAllowedOrigin: p.CORSAllowedOrigin(),
		RequestsPerSecond: p.RequestsPerSecond(),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("maxConn=%v, maxResp=%v, cors=%q, rps=%v",
		s.MaxConnections, s.MaxResponseSize, s.CORSAllowedOrigin, s.RequestsPerSecond)
}

// Static is a mutable Provider kept in memory. The host updates it through the setters.
type Static struct {
	mu sync.RWMutex

	maxConnections    uint32
	maxResponseSize   uint32
	corsAllowedOrigin string
	requestsPerSecond int
	rpcUser           string
	rpcPassword       string
	rpcPort           int
	network           NetworkType
	dataDir           string
}

var (
	defaultProvider     *Static
	onceDefaultProvider sync.Once
)

// NewStatic returns a Static provider filled with defaults.
func NewStatic() *Static {
	return &Static{
		maxConnections:  DefaultMaxConnections,
		maxResponseSize: DefaultMaxResponseSize,
		rpcPort:         DefaultRPCPort,
		network:         Mainnet,
		dataDir:         "./",
	}
}

// GetDefaultProvider returns the process-wide provider.
func GetDefaultProvider() *Static {
	onceDefaultProvider.Do(func() {
		defaultProvider = NewStatic()
	})
	return defaultProvider
}

// MaxConnections ..
func (s *Static) MaxConnections() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxConnections
}

// MaxResponseSize ..
func (s *Static) MaxResponseSize() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxResponseSize
}

// CORSAllowedOrigin returns the allowed origin. Empty means CORS is disabled.
func (s *Static) CORSAllowedOrigin() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.corsAllowedOrigin
}

// RequestsPerSecond is the per client rate limit, 0 disables limiting.
func (s *Static) RequestsPerSecond() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestsPerSecond
}

// RPCAuth returns the credentials for the companion node RPC. When no user is configured
// the cookie file in the data directory is used.
func (s *Static) RPCAuth() (string, string, error) {
	s.mu.RLock()
	user, pass, dataDir := s.rpcUser, s.rpcPassword, s.dataDir
	s.mu.RUnlock()

	if user != "" {
		return user, pass, nil
	}
	return readCookie(filepath.Join(dataDir, cookieFileName))
}

// RPCPort ..
func (s *Static) RPCPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rpcPort
}

// Network ..
func (s *Static) Network() NetworkType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network
}

// DataDir ..
func (s *Static) DataDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataDir
}

// SetMaxConnections ..
func (s *Static) SetMaxConnections(n uint32) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConnections = n
	return s
}

// SetMaxResponseSize ..
func (s *Static) SetMaxResponseSize(n uint32) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxResponseSize = n
	return s
}

// SetCORSAllowedOrigin ..
func (s *Static) SetCORSAllowedOrigin(origin string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corsAllowedOrigin = origin
	return s
}

// SetRequestsPerSecond ..
func (s *Static) SetRequestsPerSecond(rps int) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestsPerSecond = rps
	return s
}

// SetRPCAuth ..
func (s *Static) SetRPCAuth(user, pass string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcUser, s.rpcPassword = user, pass
	return s
}

// SetRPCPort ..
func (s *Static) SetRPCPort(port int) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rpcPort = port
	return s
}

// SetNetwork ..
func (s *Static) SetNetwork(n NetworkType) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.network = n
	return s
}

// SetDataDir ..
func (s *Static) SetDataDir(dir string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataDir = dir
	return s
}

func readCookie(path string) (string, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", ErrNoRPCAuth
		}
		return "", "", errors.Wrapf(err, "cannot read cookie file %v", path)
	}
	parts := strings.SplitN(strings.TrimSpace(string(b)), ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", errors.Errorf("malformed cookie file %v", path)
	}
	return parts[0], parts[1], nil
}
