package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidEntry = errors.New("invalid registry entry")
	ErrNotTracked   = errors.New("path is not tracked")
)

// Entry 代表一个已物化到缓存目录中的文件
// 缓存文件是一次性的：Sweep 时会被删除
type Entry struct {
	ID        string            `json:"id" cbor:"1,keyasint"`
	Path      string            `json:"path" cbor:"2,keyasint"`     // 缓存文件的绝对路径 (主键)
	Handle    string            `json:"handle" cbor:"3,keyasint"`   // 来源句柄
	Size      int64             `json:"size" cbor:"4,keyasint"`     // 物化完成后回填
	Labels    map[string]string `json:"labels,omitempty" cbor:"5,keyasint,omitempty"`
	CreatedAt time.Time         `json:"created_at" cbor:"6,keyasint"`
}

// Registry 记录哪些缓存文件由本进程创建，替代 "退出时删除"
// 所有实现必须是并发安全的
type Registry interface {
	// Track 登记 (或覆盖) 一个条目，以 Path 为键
	Track(ctx context.Context, e Entry) error
	// List 按创建时间返回全部条目
	List(ctx context.Context) ([]Entry, error)
	// Forget 移除一个条目；未登记的路径返回 ErrNotTracked
	Forget(ctx context.Context, path string) error
	Close() error
}

// NewEntry 创建一个带 ID 和时间戳的条目
func NewEntry(path, handle string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Path:      path,
		Handle:    handle,
		CreatedAt: time.Now().UTC(),
	}
}

// Normalize 校验条目并补全缺省字段，各后端在写入前调用
func Normalize(e Entry) (Entry, error) {
	if e.Path == "" {
		return e, ErrInvalidEntry
	}
	e.Path = CleanPath(e.Path)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e, nil
}

func CleanPath(p string) string {
	return filepath.Clean(p)
}

// SortEntries 按 CreatedAt 升序排列，时间相同时按 Path
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
