package iox

import (
	"errors"
	"io"
)

const (
	KB = 1024
	MB = KB * KB

	// DefaultChunkSize 是默认的拷贝块大小
	DefaultChunkSize = 32 * KB
	// MaxChunkSize 是块大小上限，超过的值会被截断
	MaxChunkSize = 64 * MB
)

// ProgressFunc 在每个块写入后被调用，参数是累计写入的字节数
type ProgressFunc func(total int64)

// Flusher 是可选能力：拷贝结束后如果 sink 实现了它，会被调用一次
type Flusher interface {
	Flush() error
}

// Copier 按固定大小的块把 source 拷贝到 sink
// 零值可用，ChunkSize <= 0 时使用 DefaultChunkSize，大于 MaxChunkSize 时使用 MaxChunkSize
type Copier struct {
	ChunkSize int
}

// Copy 使用默认块大小拷贝
func Copy(src io.Reader, dst io.Writer, onProgress ProgressFunc) (int64, error) {
	return Copier{}.Copy(src, dst, onProgress)
}

// Copy 从 src 读到 EOF，按读取顺序把每一块原样写入 dst。
// 不关闭 src / dst，流的所有权留在调用方。
// 任何读写失败都以 *Error 返回，返回值是已经成功写入的字节数。
func (c Copier) Copy(src io.Reader, dst io.Writer, onProgress ProgressFunc) (int64, error) {
	if src == nil {
		return 0, NewError(SourceUnreadable, "read", "", ErrNilStream)
	}
	if dst == nil {
		return 0, NewError(SinkUnwritable, "write", "", ErrNilStream)
	}

	buf := make([]byte, c.chunkSize())
	var total int64
	for {
		n, rErr := src.Read(buf)
		// 先处理读到的数据，再看错误 (io.Reader 允许 n > 0 且 err == EOF)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			total += int64(w)
			if wErr != nil {
				return total, NewError(SinkUnwritable, "write", "", wErr)
			}
			if w < n {
				return total, NewError(SinkUnwritable, "write", "", io.ErrShortWrite)
			}
			if onProgress != nil {
				onProgress(total)
			}
		}
		if rErr != nil {
			if errors.Is(rErr, io.EOF) {
				break
			}
			return total, NewError(SourceUnreadable, "read", "", rErr)
		}
	}

	if f, ok := dst.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return total, NewError(SinkUnwritable, "flush", "", err)
		}
	}
	return total, nil
}

// CopyAndClose 与 Copy 相同，但接管 dst 的所有权：
// 无论成功失败，dst 都恰好被关闭一次。拷贝成功但关闭失败时返回关闭错误。
func (c Copier) CopyAndClose(src io.Reader, dst io.WriteCloser, onProgress ProgressFunc) (n int64, err error) {
	if dst == nil {
		return 0, NewError(SinkUnwritable, "write", "", ErrNilStream)
	}
	defer func() {
		if cErr := dst.Close(); cErr != nil && err == nil {
			err = NewError(SinkUnwritable, "close", "", cErr)
		}
	}()
	return c.Copy(src, dst, onProgress)
}

func (c Copier) chunkSize() int {
	switch {
	case c.ChunkSize <= 0:
		return DefaultChunkSize
	case c.ChunkSize > MaxChunkSize:
		return MaxChunkSize
	default:
		return c.ChunkSize
	}
}
