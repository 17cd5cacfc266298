// Package server binds and serves the network servers of the node: JSON-RPC over HTTP,
// websocket subscriptions and REST. Every server runs as a task of the shared runtime.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/netutil"

	nodeconfig "github.com/harmony-one/metachain/internal/configs/node"
	"github.com/harmony-one/metachain/internal/executor"
	"github.com/harmony-one/metachain/internal/utils"
)

// Kind of network server
type Kind byte

// Server kinds. Values are the ones reported to the port reporter.
const (
	JSONRPC Kind = iota + 2
	Websocket
	REST
)

// Kinds lists every server kind in start order.
var Kinds = []Kind{JSONRPC, Websocket, REST}

func (k Kind) String() string {
	switch k {
	case JSONRPC:
		return "json-rpc"
	case Websocket:
		return "ws"
	case REST:
		return "rest"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// LogTag is the tag found in the log lines of this kind of server.
func (k Kind) LogTag() string {
	switch k {
	case JSONRPC:
		return "[RPC]"
	case Websocket:
		return "[WS]"
	case REST:
		return "[REST]"
	}
	return "[" + k.String() + "]"
}

// http timeouts
const (
	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 30 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 5 * time.Second
)

var (
	// ErrInvalidAddress is returned when the bind address is not an ip:port literal.
	ErrInvalidAddress = errors.New("invalid bind address")
	// ErrBind is returned when the listener cannot be opened.
	ErrBind = errors.New("failed to bind")
)

// PortReporter is told the port a server was actually bound on.
type PortReporter interface {
	ReportPort(kind Kind, port int)
}

// PortReporterFunc adapts a function to PortReporter.
type PortReporterFunc func(kind Kind, port int)

// ReportPort calls f(kind, port).
func (f PortReporterFunc) ReportPort(kind Kind, port int) {
	f(kind, port)
}

// ParseAddress parses an ip:port literal. Port 0 asks for an ephemeral port.
func ParseAddress(addr string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(ErrInvalidAddress, "%q: %v", addr, err)
	}
	return ap, nil
}

// Spec describes a server to bootstrap.
type Spec struct {
	Kind    Kind
	Addr    string
	Config  nodeconfig.Snapshot
	Handler http.Handler
	// OnStop is called before the http server shuts down, e.g. to stop the rpc server.
	OnStop   func()
	Reporter PortReporter
}

// Bootstrap binds spec.Addr, reports the resolved port and serves spec.Handler on rt.
// The caller blocks for the bind only.
func Bootstrap(rt *executor.Runtime, spec Spec) (*Handle, error) {
	ln, err := Listen(rt, spec.Kind, spec.Addr, spec.Config)
	if err != nil {
		return nil, err
	}
	if spec.Reporter != nil {
		spec.Reporter.ReportPort(spec.Kind, int(ListenerAddr(ln).Port()))
	}
	h, err := Serve(rt, spec.Kind, ln, spec.Config, spec.Handler, spec.OnStop)
	if err != nil {
		ln.Close()
		return nil, err
	}
	return h, nil
}

// Listen opens the TCP listener of a server inside rt, applying the connection limit of cfg.
func Listen(rt *executor.Runtime, kind Kind, addr string, cfg nodeconfig.Snapshot) (net.Listener, error) {
	if _, err := ParseAddress(addr); err != nil {
		return nil, err
	}
	var ln net.Listener
	err := rt.BlockOn(func(ctx context.Context) error {
		l, err := ListenContext(ctx, kind, addr, cfg)
		ln = l
		return err
	})
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// ListenContext is Listen for callers already running on a context.
func ListenContext(ctx context.Context, kind Kind, addr string, cfg nodeconfig.Snapshot) (net.Listener, error) {
	ap, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ap.String())
	if err != nil {
		return nil, errors.Wrapf(ErrBind, "%v %v: %v", kind, ap, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, int(cfg.MaxConnections))
	}
	return ln, nil
}

// ListenerAddr returns the address ln is bound to.
func ListenerAddr(ln net.Listener) netip.AddrPort {
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return tcp.AddrPort()
	}
	ap, _ := netip.ParseAddrPort(ln.Addr().String())
	return ap
}

// Serve wraps handler with the middlewares configured in cfg and serves it on ln as a
// task of rt. ln is not closed on error.
func Serve(
	rt *executor.Runtime, kind Kind, ln net.Listener, cfg nodeconfig.Snapshot,
	handler http.Handler, onStop func(),
) (*Handle, error) {
	h := &Handle{
		kind: kind,
		addr: ListenerAddr(ln),
		done: make(chan struct{}),
	}
	if onStop != nil {
		h.onStop = append(h.onStop, onStop)
	}

	// Only JSON-RPC over HTTP is capped. The go-ethereum websocket server has no hook on
	// the size of outgoing frames.
	if kind == JSONRPC && cfg.MaxResponseSize > 0 {
		handler = NewResponseLimit(int(cfg.MaxResponseSize))(handler)
	}
	if cfg.RequestsPerSecond > 0 {
		limiter := NewIPRateLimit(cfg.RequestsPerSecond)
		handler = limiter.Middleware(handler)
		h.onStop = append(h.onStop, limiter.Close)
	}
	handler = NewCORS(cfg.CORSAllowedOrigin)(handler)

	h.srv = newHTTPServer(kind, handler)
	err := rt.Spawn(kind.String()+"@"+h.addr.String(), func(ctx context.Context) error {
		defer close(h.done)
		go func() {
			select {
			case <-ctx.Done():
				h.srv.Close()
			case <-h.done:
			}
		}()
		if err := h.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.Logger().Info().
		Str("kind", kind.String()).
		Str("addr", h.addr.String()).
		Str("config", cfg.String()).
		Msg(kind.LogTag() + " server started")
	return h, nil
}

func newHTTPServer(kind Kind, handler http.Handler) *http.Server {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: ReadTimeout,
		IdleTimeout:       IdleTimeout,
	}
	// Websocket connections are long lived and keep their own deadlines.
	if kind != Websocket {
		srv.ReadTimeout = ReadTimeout
		srv.WriteTimeout = WriteTimeout
	}
	return srv
}

// Handle is a running server.
type Handle struct {
	kind   Kind
	addr   netip.AddrPort
	srv    *http.Server
	onStop []func()

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// Kind of the server
func (h *Handle) Kind() Kind { return h.kind }

// LocalAddr is the address the server is bound to.
func (h *Handle) LocalAddr() netip.AddrPort { return h.addr }

// Done is closed once the server stopped serving.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stop shuts the server down gracefully, forcing it closed after ShutdownTimeout.
// Calling Stop more than once is safe.
func (h *Handle) Stop() error {
	h.stopOnce.Do(func() {
		for _, fn := range h.onStop {
			fn()
		}
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := h.srv.Shutdown(ctx); err != nil {
			utils.Logger().Warn().Err(err).
				Str("kind", h.kind.String()).
				Str("addr", h.addr.String()).
				Msg(h.kind.LogTag() + " graceful shutdown failed, closing")
			h.stopErr = h.srv.Close()
		}
		<-h.done
		utils.Logger().Info().
			Str("kind", h.kind.String()).
			Str("addr", h.addr.String()).
			Msg(h.kind.LogTag() + " server stopped")
	})
	return h.stopErr
}
