package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// Endpoints are the bind addresses of the servers started by NetworkService. An empty
// address leaves the server off.
type Endpoints struct {
	JSONRPC   string
	Websocket string
	REST      string
}

// NetworkService runs the registry servers as a host service.
type NetworkService struct {
	registry  *Registry
	endpoints Endpoints
}

// NewNetworkService ..
func NewNetworkService(r *Registry, endpoints Endpoints) *NetworkService {
	return &NetworkService{registry: r, endpoints: endpoints}
}

// Start initializes the registry and starts the configured servers.
func (s *NetworkService) Start() error {
	if err := s.registry.Init(); err != nil {
		return err
	}
	starts := []struct {
		addr string
		fn   func(string) error
	}{
		{s.endpoints.JSONRPC, s.registry.InitJSONRPC},
		{s.endpoints.Websocket, s.registry.InitWebsocketSubscriptions},
		{s.endpoints.REST, s.registry.InitREST},
	}
	for _, st := range starts {
		if st.addr == "" {
			continue
		}
		if err := st.fn(st.addr); err != nil {
			return errors.Wrapf(err, "cannot start server at %v", st.addr)
		}
	}
	return nil
}

// Stop stops the registry.
func (s *NetworkService) Stop() error {
	return s.registry.Stop()
}

func (e Endpoints) String() string {
	return fmt.Sprintf("json-rpc=%q ws=%q rest=%q", e.JSONRPC, e.Websocket, e.REST)
}
