// Package runtime coordinates service modules: each long-running component
// (council, HTTP server, announcer) implements Module and the manager starts
// and stops them as one unit.
package runtime

import (
	"context"
	"fmt"
	"sync"
)

// Module is a self-contained component with a lifecycle.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Manager starts modules in registration order and stops them in reverse.
type Manager struct {
	modules []Module
	mu      sync.Mutex
	started bool
}

func NewManager(mods ...Module) *Manager {
	return &Manager{modules: mods}
}

// Add registers a module before Start. Nil modules are ignored so optional
// components can be added unconditionally.
func (m *Manager) Add(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("runtime: cannot add modules after start")
	}
	if mod != nil {
		m.modules = append(m.modules, mod)
	}
	return nil
}

// Start brings every module up. On failure the already-started modules are
// stopped in reverse order and the error names the offender.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("runtime: already started")
	}

	started := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		if err := mod.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop(ctx)
			}
			return fmt.Errorf("runtime: module %s: %w", mod.Name(), err)
		}
		started = append(started, mod)
	}

	m.started = true
	return nil
}

// Stop shuts every module down in reverse order.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.modules) - 1; i >= 0; i-- {
		m.modules[i].Stop(ctx)
	}
	m.started = false
}
