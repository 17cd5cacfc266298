package service

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/harmony-one/metachain/internal/utils"
)

// Type is service type.
type Type byte

// Constants for Type.
const (
	UnknownService Type = iota
	Network
	Prometheus
)

func (t Type) String() string {
	switch t {
	case Network:
		return "Network"
	case Prometheus:
		return "Prometheus"
	default:
		return "Unknown"
	}
}

// Service is the collection of functions any host service needs to implement.
type Service interface {
	Start() error
	Stop() error
}

type entry struct {
	t       Type
	service Service
}

// Manager starts the host services in registration order and stops them in reverse.
type Manager struct {
	services []entry
	started  []entry

	logger zerolog.Logger
}

// NewManager creates a new manager
func NewManager() *Manager {
	return &Manager{
		logger: utils.Logger().With().Str("module", "service-manager").Logger(),
	}
}

// Register adds service under t. A type can only be registered once.
func (m *Manager) Register(t Type, service Service) error {
	if m.GetService(t) != nil {
		return errors.Errorf("service [%v] already registered", t)
	}
	m.logger.Info().Str("type", t.String()).Msg("Register Service")
	m.services = append(m.services, entry{t: t, service: service})
	return nil
}

// GetService get the specified service
func (m *Manager) GetService(t Type) Service {
	for _, e := range m.services {
		if e.t == t {
			return e.service
		}
	}
	return nil
}

// StartServices runs all registered services. If one of them fails to start, the
// started ones are stopped.
func (m *Manager) StartServices() (err error) {
	defer func() {
		if err != nil {
			if stopErr := m.StopServices(); stopErr != nil {
				err = fmt.Errorf("%v; %v", err, stopErr)
			}
		}
	}()

	for _, e := range m.services {
		m.logger.Info().Str("type", e.t.String()).Msg("Starting service")
		if err = e.service.Start(); err != nil {
			return errors.Wrapf(err, "cannot start service [%v]", e.t)
		}
		m.started = append(m.started, e)
	}
	return nil
}

// StopServices stops the started services in the reverse order.
func (m *Manager) StopServices() error {
	var rErr error
	for i := len(m.started) - 1; i >= 0; i-- {
		e := m.started[i]
		m.logger.Info().Str("type", e.t.String()).Msg("Stopping service")
		if err := e.service.Stop(); err != nil {
			err = errors.Wrapf(err, "failed to stop service [%v]", e.t)
			if rErr != nil {
				rErr = fmt.Errorf("%v; %v", rErr, err)
			} else {
				rErr = err
			}
		}
	}
	m.started = nil
	return rErr
}
