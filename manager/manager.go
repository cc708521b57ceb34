// Package manager provides the single root of the daemon's runtime
// state: a registry of Adapters. Nothing above it and nothing beside it
// holds mutable state; everything else (logging tables, parameter
// schemas) is static.
package manager

import (
	"errors"
	"sync"

	"github.com/nfc-tools/nfcd/adapter"
)

// ErrUnknownAdapter is returned when an operation names an adapter that
// isn't registered.
var ErrUnknownAdapter = errors.New("manager: unknown adapter")

// ErrAdapterExists is returned by AddAdapter when the name is already
// taken.
var ErrAdapterExists = errors.New("manager: adapter already registered")

// Manager owns the set of Adapters the daemon currently knows about. An
// adapter typically appears when its backing hardware is detected by a
// driver plugin and disappears when that hardware is unplugged or its
// plugin unloads.
type Manager struct {
	OnAdapterAdded   func(name string, a *adapter.Adapter)
	OnAdapterRemoved func(name string)

	mu       sync.Mutex
	adapters map[string]*adapter.Adapter
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		adapters: make(map[string]*adapter.Adapter),
	}
}

// AddAdapter registers a under name. It is an error to reuse a name
// still in use.
func (m *Manager) AddAdapter(name string, a *adapter.Adapter) error {
	m.mu.Lock()
	if _, taken := m.adapters[name]; taken {
		m.mu.Unlock()
		return ErrAdapterExists
	}
	m.adapters[name] = a
	m.mu.Unlock()

	if m.OnAdapterAdded != nil {
		m.OnAdapterAdded(name, a)
	}
	return nil
}

// RemoveAdapter drops the adapter registered under name.
func (m *Manager) RemoveAdapter(name string) error {
	m.mu.Lock()
	_, ok := m.adapters[name]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownAdapter
	}
	delete(m.adapters, name)
	m.mu.Unlock()

	if m.OnAdapterRemoved != nil {
		m.OnAdapterRemoved(name)
	}
	return nil
}

// Adapter looks up an adapter by name.
func (m *Manager) Adapter(name string) (*adapter.Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.adapters[name]
	if !ok {
		return nil, ErrUnknownAdapter
	}
	return a, nil
}

// Adapters returns a snapshot of every registered adapter, keyed by
// name. Mutating the returned map does not affect the Manager.
func (m *Manager) Adapters() map[string]*adapter.Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*adapter.Adapter, len(m.adapters))
	for name, a := range m.adapters {
		out[name] = a
	}
	return out
}
