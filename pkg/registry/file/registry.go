package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"hostcache/pkg/registry"
)

const snapshotVersion = 1

// snapshot 是落盘格式
type snapshot struct {
	Version int              `cbor:"1,keyasint"`
	Entries []registry.Entry `cbor:"2,keyasint"`
}

// Registry 把条目保存在单个 CBOR 快照文件中 (默认 <root>/.hc/registry)
// 每次修改都整体重写快照，写入走 temp + rename
type Registry struct {
	path    string
	mu      sync.Mutex
	entries map[string]registry.Entry
}

// Open 加载或创建快照文件
func Open(path string) (*Registry, error) {
	r := &Registry{
		path:    path,
		entries: make(map[string]registry.Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	if len(data) == 0 {
		return r, nil
	}

	var snap snapshot
	if err := registry.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupted registry file: %w", err)
	}
	for _, e := range snap.Entries {
		r.entries[e.Path] = e
	}
	return r, nil
}

func (r *Registry) Track(_ context.Context, e registry.Entry) error {
	e, err := registry.Normalize(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.entries[e.Path]
	r.entries[e.Path] = e
	if err := r.save(); err != nil {
		// 回滚内存状态，保持与磁盘一致
		if had {
			r.entries[e.Path] = prev
		} else {
			delete(r.entries, e.Path)
		}
		return err
	}
	return nil
}

func (r *Registry) List(_ context.Context) ([]registry.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]registry.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	registry.SortEntries(out)
	return out, nil
}

func (r *Registry) Forget(_ context.Context, path string) error {
	key := registry.CleanPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.entries[key]
	if !ok {
		return registry.ErrNotTracked
	}
	delete(r.entries, key)
	if err := r.save(); err != nil {
		r.entries[key] = prev
		return err
	}
	return nil
}

func (r *Registry) Close() error { return nil }

// save 调用方必须持有锁
func (r *Registry) save() error {
	snap := snapshot{Version: snapshotVersion, Entries: make([]registry.Entry, 0, len(r.entries))}
	for _, e := range r.entries {
		snap.Entries = append(snap.Entries, e)
	}
	registry.SortEntries(snap.Entries)

	data, err := registry.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hc-registry-*")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // rename 成功后这里是 no-op

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	return os.Rename(tmpName, r.path)
}
