package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/voice-relay/backend/internal/config"
	"github.com/voice-relay/backend/internal/metrics"
	"github.com/voice-relay/backend/internal/repository"
)

// Manager runs several named hubs side by side.
type Manager struct {
	servers []*Server
	byName  map[string]*Server
	mu      sync.RWMutex
	started []*Server
}

// NewManager builds one Server per hub config. All hubs share the logger,
// metrics and journal.
func NewManager(hubs []config.HubConfig, logger *logrus.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer, journal *repository.ConnectionRepository) (*Manager, error) {
	mgr := &Manager{byName: make(map[string]*Server, len(hubs))}
	for _, h := range hubs {
		srv, err := New(Options{
			Hub:      h,
			Logger:   logger,
			Metrics:  m,
			Gatherer: gatherer,
			Journal:  journal,
		})
		if err != nil {
			return nil, err
		}
		mgr.servers = append(mgr.servers, srv)
		mgr.byName[h.Name] = srv
	}
	return mgr, nil
}

// Get returns the server for the named hub, or nil if not found.
func (m *Manager) Get(name string) *Server {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byName[name]
}

// Servers returns every managed server in config order.
func (m *Manager) Servers() []*Server {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Server, len(m.servers))
	copy(out, m.servers)
	return out
}

// Start starts every hub. If one fails to bind, the ones already started
// are stopped again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, srv := range m.servers {
		if err := srv.Start(ctx); err != nil {
			for _, started := range m.started {
				_ = started.Stop(ctx)
			}
			m.started = nil
			return err
		}
		m.started = append(m.started, srv)
	}
	return nil
}

// Stop stops every started hub and joins their errors.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	started := m.started
	m.started = nil
	m.mu.Unlock()

	var errs []error
	for _, srv := range started {
		if err := srv.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", srv.Hub().Name(), err))
		}
	}
	return errors.Join(errs...)
}
