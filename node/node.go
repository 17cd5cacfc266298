// Package node exposes the network services of the process to the host.
//
// The process owns a single service.Registry. Configure may replace it until Init has
// succeeded; every other entry point uses the configured (or default) registry. Init must
// be called before any Init<Kind> entry point, which otherwise fails with
// service.ErrNotInitialized.
package node

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/harmony-one/metachain/api/service"
)

// ErrAlreadyInitialized is returned by Configure once the registry is running.
var ErrAlreadyInitialized = errors.New("network services already initialized")

var (
	registryLock sync.Mutex
	registry     *service.Registry
)

// Configure replaces the process registry with one built from opts.
func Configure(opts ...service.Option) error {
	registryLock.Lock()
	defer registryLock.Unlock()

	if registry != nil && registry.IsInitialized() {
		return ErrAlreadyInitialized
	}
	registry = service.NewRegistry(opts...)
	return nil
}

// Registry returns the process registry, creating a default one on first use.
func Registry() *service.Registry {
	registryLock.Lock()
	defer registryLock.Unlock()

	if registry == nil {
		registry = service.NewRegistry()
	}
	return registry
}

// Init creates the runtime and the evm service. Safe to call more than once.
func Init() error {
	return Registry().Init()
}

// InitJSONRPC starts a JSON-RPC over HTTP server on addr.
func InitJSONRPC(addr string) error {
	return Registry().InitJSONRPC(addr)
}

// InitWebsocketSubscriptions starts a websocket subscription server on addr.
func InitWebsocketSubscriptions(addr string) error {
	return Registry().InitWebsocketSubscriptions(addr)
}

// InitREST starts the REST server on addr and blocks until it is serving.
func InitREST(addr string) error {
	return Registry().InitREST(addr)
}

// InitRESTContext is InitREST for callers that already run on a context.
func InitRESTContext(ctx context.Context, addr string) error {
	return Registry().InitRESTContext(ctx, addr)
}

// StopNetwork stops every running server.
func StopNetwork() error {
	return Registry().StopNetwork()
}

// Stop stops the network services for good.
func Stop() error {
	return Registry().Stop()
}

// WipeStorage removes the evm storage. The services must be stopped first.
func WipeStorage() error {
	return Registry().WipeStorage()
}
