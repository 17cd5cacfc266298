// Package prometheus defines a service which is used for metrics collection
// and health of a node.
package prometheus

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harmony-one/metachain/internal/utils"
)

// Config is the config for the prometheus service
type Config struct {
	Enabled bool
	IP      string
	Port    int
}

func (p Config) String() string {
	return fmt.Sprintf("%v, %v:%v", p.Enabled, p.IP, p.Port)
}

// Service provides Prometheus metrics via the /metrics route. This route will
// show all the metrics registered with PromRegistry.
type Service struct {
	config   Config
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// Handler represents a path and handler func to serve on the same port as /metrics, /goroutinez, etc.
type Handler struct {
	Path    string
	Handler func(http.ResponseWriter, *http.Request)
}

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// PromRegistry return the registry of prometheus service
func PromRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// NewService sets up a new instance for the given config. A disabled config yields nil.
func NewService(config Config, additionalHandlers ...Handler) *Service {
	if !config.Enabled {
		utils.Logger().Info().Msg("Prometheus http server disabled...")
		return nil
	}
	handler := promhttp.InstrumentMetricHandler(
		PromRegistry(),
		promhttp.HandlerFor(PromRegistry(), promhttp.HandlerOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/goroutinez", goroutinezHandler)
	for _, h := range additionalHandlers {
		mux.HandleFunc(h.Path, h.Handler)
	}
	return &Service{
		config: config,
		server: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		done:   make(chan struct{}),
	}
}

// Start binds the configured address and serves in background.
func (s *Service) Start() error {
	endpoint := net.JoinHostPort(s.config.IP, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return errors.Wrapf(err, "prometheus: cannot listen on %v", endpoint)
	}
	s.listener = listener
	utils.Logger().Info().Str("address", listener.Addr().String()).Msg("Starting prometheus service")
	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			utils.Logger().Error().Err(err).Msg("prometheus service stopped")
		}
	}()
	return nil
}

// Addr is the bound address, nil before Start.
func (s *Service) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop the service gracefully.
func (s *Service) Stop() error {
	if s.listener == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}

func goroutinezHandler(w http.ResponseWriter, _ *http.Request) {
	if err := pprof.Lookup("goroutine").WriteTo(w, 2); err != nil {
		utils.Logger().Error().Err(err).Msg("Failed to write pprof goroutines")
	}
}
