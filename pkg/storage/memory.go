package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store. Values are kept as given.
type Memory struct {
	mu     sync.RWMutex
	scopes map[string]map[string]any
}

func NewMemory() *Memory {
	return &Memory{scopes: map[string]map[string]any{}}
}

func (m *Memory) Get(ctx context.Context, scope, key string) (any, bool, error) {
	if !ValidScope(scope) {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.scopes[scope][key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, scope, key string, value any) error {
	if !ValidScope(scope) {
		return fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scopes[scope] == nil {
		m.scopes[scope] = map[string]any{}
	}
	m.scopes[scope][key] = value
	return nil
}

// Keys returns the keys of scope in sorted order.
func (m *Memory) Keys(ctx context.Context, scope string) ([]string, error) {
	if !ValidScope(scope) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.scopes[scope]))
	for k := range m.scopes[scope] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error {
	return nil
}
