package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/harmony-one/metachain/api/server"
	prom "github.com/harmony-one/metachain/api/service/prometheus"
	"github.com/harmony-one/metachain/evm"
	nodeconfig "github.com/harmony-one/metachain/internal/configs/node"
	"github.com/harmony-one/metachain/internal/executor"
	"github.com/harmony-one/metachain/internal/utils"
	"github.com/harmony-one/metachain/ocean"
	"github.com/harmony-one/metachain/rpc"
)

const registryLogTag = "[Registry]"

// DefaultShutdownTimeout bounds the wait for runtime tasks on Stop.
const DefaultShutdownTimeout = 10 * time.Second

var (
	// ErrAuthUnavailable is returned when the companion rpc credentials cannot be read.
	ErrAuthUnavailable = errors.New("rpc credentials unavailable")
	// ErrIO is returned when the evm storage cannot be removed.
	ErrIO = errors.New("storage io failure")
	// ErrNotInitialized is returned by operations that need Init first.
	ErrNotInitialized = errors.New("registry not initialized")
	// ErrStopped is returned when a server is started after Stop.
	ErrStopped = errors.New("registry stopped")
	// ErrRegistryRunning is returned by WipeStorage while the registry is running.
	ErrRegistryRunning = errors.New("registry is running")
)

// PortReporter is told the port every server is bound on.
type PortReporter = server.PortReporter

// ClientFactory builds the companion rpc client of the REST server.
type ClientFactory func(ctx context.Context, url, user, password string) (ocean.Client, error)

// APIBuilder returns the namespaces served over a protocol.
type APIBuilder func(b rpc.Backend) []gethrpc.API

var handlesGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "metachain",
		Name:      "network_handles",
		Help:      "number of running network servers by kind",
	},
	[]string{"kind"},
)

func init() {
	prom.PromRegistry().MustRegister(handlesGauge)
}

// Registry owns the runtime, the evm service and the running servers of the node.
// It is created once by the host; Init must be called before any server is started.
type Registry struct {
	provider        nodeconfig.Provider
	reporter        PortReporter
	jsonRPCAPIs     APIBuilder
	wsAPIs          APIBuilder
	newClient       ClientFactory
	shutdownTimeout time.Duration

	initLock    sync.Mutex
	initialized atomic.Bool
	stopped     atomic.Bool
	runtime     *executor.Runtime
	evm         *evm.Service

	mu      sync.Mutex
	handles map[server.Kind][]*server.Handle
}

// Option configures a Registry
type Option func(*Registry)

// WithProvider sets the config provider. Defaults to the process provider.
func WithProvider(p nodeconfig.Provider) Option {
	return func(r *Registry) { r.provider = p }
}

// WithPortReporter sets the port reporter.
func WithPortReporter(pr PortReporter) Option {
	return func(r *Registry) { r.reporter = pr }
}

// WithJSONRPCAPIs replaces the namespaces of the JSON-RPC server.
func WithJSONRPCAPIs(fn APIBuilder) Option {
	return func(r *Registry) { r.jsonRPCAPIs = fn }
}

// WithSubscriptionAPIs replaces the namespaces of the websocket server.
func WithSubscriptionAPIs(fn APIBuilder) Option {
	return func(r *Registry) { r.wsAPIs = fn }
}

// WithClientFactory replaces the companion rpc client constructor.
func WithClientFactory(fn ClientFactory) Option {
	return func(r *Registry) { r.newClient = fn }
}

// WithShutdownTimeout sets how long Stop waits for runtime tasks.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Registry) { r.shutdownTimeout = d }
}

// NewRegistry creates a registry. Nothing is started until Init.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		provider:        nodeconfig.GetDefaultProvider(),
		reporter:        logPortReporter{},
		jsonRPCAPIs:     rpc.JSONRPCAPIs,
		wsAPIs:          rpc.SubscriptionAPIs,
		newClient:       ocean.NewClient,
		shutdownTimeout: DefaultShutdownTimeout,
		handles:         make(map[server.Kind][]*server.Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init creates the runtime and opens the evm service. Later calls are no-ops, as are
// calls after Stop.
func (r *Registry) Init() error {
	r.initLock.Lock()
	defer r.initLock.Unlock()

	if r.initialized.Load() || r.stopped.Load() {
		return nil
	}
	svc, err := evm.New(r.provider.DataDir(), r.provider.Network().ChainID())
	if err != nil {
		utils.Logger().Error().Err(err).Msg(registryLogTag + " failed to open evm service")
		return err
	}
	r.evm = svc
	r.runtime = executor.New("metachain")
	r.initialized.Store(true)

	utils.Logger().Info().
		Str("network", string(r.provider.Network())).
		Str("datadir", r.provider.DataDir()).
		Msg(registryLogTag + " initialized")
	return nil
}

// IsInitialized reports whether Init succeeded.
func (r *Registry) IsInitialized() bool {
	return r.initialized.Load()
}

// Runtime returns the shared runtime.
func (r *Registry) Runtime() (*executor.Runtime, error) {
	if !r.initialized.Load() {
		return nil, ErrNotInitialized
	}
	return r.runtime, nil
}

// EVM returns the evm service.
func (r *Registry) EVM() (*evm.Service, error) {
	if !r.initialized.Load() {
		return nil, ErrNotInitialized
	}
	return r.evm, nil
}

// Handles returns the running servers of kind.
func (r *Registry) Handles(kind server.Kind) []*server.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*server.Handle(nil), r.handles[kind]...)
}

func (r *Registry) ready() error {
	if r.stopped.Load() {
		return ErrStopped
	}
	if !r.initialized.Load() {
		return ErrNotInitialized
	}
	if r.runtime.Closed() {
		return ErrStopped
	}
	return nil
}

// InitJSONRPC starts a JSON-RPC over HTTP server on addr serving the eth, debug, net
// and web3 namespaces.
func (r *Registry) InitJSONRPC(addr string) error {
	return r.initRPC(server.JSONRPC, addr, r.jsonRPCAPIs, func(s *gethrpc.Server) http.Handler {
		return s
	})
}

// InitWebsocketSubscriptions starts a websocket server on addr serving the pub/sub
// namespace.
func (r *Registry) InitWebsocketSubscriptions(addr string) error {
	return r.initRPC(server.Websocket, addr, r.wsAPIs, func(s *gethrpc.Server) http.Handler {
		// origins are checked by the CORS layer of the server
		return s.WebsocketHandler([]string{"*"})
	})
}

func (r *Registry) initRPC(
	kind server.Kind, addr string, apis APIBuilder, handler func(*gethrpc.Server) http.Handler,
) error {
	if err := r.ready(); err != nil {
		return r.fail(kind, addr, err)
	}
	surface, err := rpc.MergeAPIs(apis(r.evm)...)
	if err != nil {
		return r.fail(kind, addr, err)
	}
	rpcServer, err := surface.NewServer()
	if err != nil {
		return r.fail(kind, addr, err)
	}
	h, err := server.Bootstrap(r.runtime, server.Spec{
		Kind:     kind,
		Addr:     addr,
		Config:   nodeconfig.TakeSnapshot(r.provider),
		Handler:  handler(rpcServer),
		OnStop:   rpcServer.Stop,
		Reporter: r.reporter,
	})
	if err != nil {
		rpcServer.Stop()
		return r.fail(kind, addr, err)
	}
	utils.Logger().Info().
		Str("kind", kind.String()).
		Str("addr", h.LocalAddr().String()).
		Strs("methods", surface.Names()).
		Msg(kind.LogTag() + " serving")
	return r.addHandle(h)
}

// InitREST starts the REST server on addr, blocking until it is serving.
func (r *Registry) InitREST(addr string) error {
	if err := r.ready(); err != nil {
		return r.fail(server.REST, addr, err)
	}
	return r.runtime.BlockOn(func(ctx context.Context) error {
		return r.InitRESTContext(ctx, addr)
	})
}

// InitRESTContext starts the REST server on addr. The port is reported as soon as the
// listener is bound, before the companion rpc client is set up.
func (r *Registry) InitRESTContext(ctx context.Context, addr string) error {
	kind := server.REST
	if err := r.ready(); err != nil {
		return r.fail(kind, addr, err)
	}
	cfg := nodeconfig.TakeSnapshot(r.provider)
	ln, err := server.ListenContext(ctx, kind, addr, cfg)
	if err != nil {
		return r.fail(kind, addr, err)
	}
	local := server.ListenerAddr(ln)
	if r.reporter != nil {
		r.reporter.ReportPort(kind, int(local.Port()))
	}

	h, err := r.serveREST(ctx, ln, cfg)
	if err != nil {
		ln.Close()
		return r.fail(kind, local.String(), err)
	}
	return r.addHandle(h)
}

func (r *Registry) serveREST(ctx context.Context, ln net.Listener, cfg nodeconfig.Snapshot) (*server.Handle, error) {
	user, pass, err := r.provider.RPCAuth()
	if err != nil {
		return nil, errors.Wrapf(ErrAuthUnavailable, "%v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := r.newClient(ctx, ocean.RPCURL(r.provider.RPCPort()), user, pass)
	if err != nil {
		return nil, err
	}
	router, err := ocean.NewRouter(r.evm, client, r.provider.Network())
	if err != nil {
		client.Close()
		return nil, err
	}
	h, err := server.Serve(r.runtime, server.REST, ln, cfg, router, client.Close)
	if err != nil {
		client.Close()
		return nil, err
	}
	return h, nil
}

func (r *Registry) addHandle(h *server.Handle) error {
	r.mu.Lock()
	if r.stopped.Load() {
		r.mu.Unlock()
		h.Stop()
		return r.fail(h.Kind(), h.LocalAddr().String(), ErrStopped)
	}
	r.handles[h.Kind()] = append(r.handles[h.Kind()], h)
	handlesGauge.WithLabelValues(h.Kind().String()).Set(float64(len(r.handles[h.Kind()])))
	r.mu.Unlock()
	return nil
}

func (r *Registry) fail(kind server.Kind, addr string, err error) error {
	utils.Logger().Error().Err(err).
		Str("kind", kind.String()).
		Str("addr", addr).
		Msg(kind.LogTag() + " failed to start server")
	return err
}

// StopNetwork stops every running server and keeps the runtime. It is a no-op before Init.
func (r *Registry) StopNetwork() error {
	if !r.initialized.Load() {
		return nil
	}
	r.mu.Lock()
	var handles []*server.Handle
	for _, kind := range server.Kinds {
		handles = append(handles, r.handles[kind]...)
		delete(r.handles, kind)
		handlesGauge.WithLabelValues(kind.String()).Set(0)
	}
	r.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Stop(); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to stop %v server at %v", h.Kind(), h.LocalAddr()))
		}
	}
	utils.Logger().Info().Int("servers", len(handles)).Msg(registryLogTag + " network stopped")
	return joinErrors(errs...)
}

// Stop stops the network, closes the evm service and shuts the runtime down. The
// registry cannot be restarted. Stop is a no-op before Init and on later calls.
func (r *Registry) Stop() error {
	if !r.initialized.Load() || !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	err := joinErrors(
		r.StopNetwork(),
		r.evm.Close(),
		r.runtime.Shutdown(r.shutdownTimeout),
	)
	utils.Logger().Info().Msg(registryLogTag + " stopped")
	return err
}

// joinErrors folds the non-nil errs into one error, separated by "; ".
func joinErrors(errs ...error) error {
	var rErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if rErr != nil {
			rErr = fmt.Errorf("%v; %v", rErr, err)
		} else {
			rErr = err
		}
	}
	return rErr
}

// WipeStorage removes the evm storage of the configured data dir. The registry must not
// be running.
func (r *Registry) WipeStorage() error {
	if r.initialized.Load() && !r.stopped.Load() {
		return ErrRegistryRunning
	}
	return WipeEVMFolder(r.provider.DataDir())
}

// WipeEVMFolder removes <dataDir>/evm if it exists. An empty dataDir is in memory and
// has nothing to remove.
func WipeEVMFolder(dataDir string) error {
	if dataDir == "" {
		return nil
	}
	path := evm.DataPath(dataDir)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(ErrIO, "stat %v: %v", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return errors.Wrapf(ErrIO, "remove %v: %v", path, err)
	}
	utils.Logger().Info().Str("path", path).Msg(registryLogTag + " evm storage wiped")
	return nil
}

type logPortReporter struct{}

func (logPortReporter) ReportPort(kind server.Kind, port int) {
	utils.Logger().Info().
		Str("kind", kind.String()).
		Int("port", port).
		Msg(kind.LogTag() + " listening")
}
