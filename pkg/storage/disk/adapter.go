package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hostcache/pkg/storage"
	"hostcache/pkg/types"
)

// Adapter 实现了 storage.Store 接口，处理 file:// 句柄和裸路径
type Adapter struct {
	baseDir string // 可选：相对路径以它为基准，且所有路径都不能逃出它
}

// NewAdapter 创建一个新的磁盘资源适配器；baseDir 为空表示不限制
func NewAdapter(baseDir string) (*Adapter, error) {
	if baseDir == "" {
		return &Adapter{}, nil
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base dir: %w", err)
	}
	return &Adapter{baseDir: abs}, nil
}

// locate 返回句柄对应的物理路径
func (s *Adapter) locate(handle types.ResourceHandle) (string, error) {
	switch handle.Scheme() {
	case "", "file":
	default:
		return "", fmt.Errorf("%w: %q", storage.ErrUnsupportedScheme, handle.Scheme())
	}

	p := handle.Path()
	if p == "" {
		return "", storage.ErrInvalidHandle
	}
	p = filepath.FromSlash(p)

	if s.baseDir == "" {
		return filepath.Clean(p), nil
	}

	if !filepath.IsAbs(p) {
		p = filepath.Join(s.baseDir, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(s.baseDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", storage.ErrInvalidHandle, p, s.baseDir)
	}
	return p, nil
}

func (s *Adapter) Open(ctx context.Context, handle types.ResourceHandle) (io.ReadCloser, error) {
	target, err := s.locate(handle)
	if err != nil {
		return nil, err
	}

	// 目录不是资源
	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, storage.ErrNotFound
	}

	f, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, handle types.ResourceHandle) (bool, error) {
	target, err := s.locate(handle)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
