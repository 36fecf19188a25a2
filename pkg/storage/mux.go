package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"hostcache/pkg/types"
)

// Mux 按句柄的 scheme 把请求分发给不同的 Store
type Mux struct {
	mu     sync.RWMutex
	stores map[string]Store
}

func NewMux() *Mux {
	return &Mux{stores: make(map[string]Store)}
}

// Handle 注册 scheme 对应的 Store；"" 表示裸路径
func (m *Mux) Handle(scheme string, store Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[strings.ToLower(scheme)] = store
}

// Schemes 返回已注册的 scheme
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.stores))
	for s := range m.stores {
		out = append(out, s)
	}
	return out
}

func (m *Mux) route(handle types.ResourceHandle) (Store, error) {
	if handle.IsZero() {
		return nil, ErrInvalidHandle
	}
	scheme := handle.Scheme()
	m.mu.RLock()
	store, ok := m.stores[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return store, nil
}

func (m *Mux) Open(ctx context.Context, handle types.ResourceHandle) (io.ReadCloser, error) {
	store, err := m.route(handle)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, handle)
}

func (m *Mux) Has(ctx context.Context, handle types.ResourceHandle) (bool, error) {
	store, err := m.route(handle)
	if err != nil {
		return false, err
	}
	return store.Has(ctx, handle)
}
