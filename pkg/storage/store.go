package storage

import (
	"context"
	"errors"
	"io"

	"hostcache/pkg/types"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnsupportedScheme = errors.New("unsupported resource scheme")
	ErrInvalidHandle     = errors.New("invalid resource handle")
)

// Store 把不透明的资源句柄解析成可读流。
// 实现可以是本地磁盘、对象存储，或宿主提供的 content resolver。
type Store interface {
	// Open 打开句柄对应的字节流，调用方负责 Close。
	// 注意：句柄能解析但宿主给不出流时，允许返回 (nil, nil)，调用方需要处理这种情况。
	Open(ctx context.Context, handle types.ResourceHandle) (io.ReadCloser, error)

	// Has 检查资源是否存在
	Has(ctx context.Context, handle types.ResourceHandle) (bool, error)
}
