package iox

import (
	"bytes"
	"io"
)

// ReadAll 按块把 r 读进内存；r 为 nil 时返回 nil, nil
func ReadAll(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if _, err := Copy(r, &buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CloseQuietly 关闭 c 并忽略错误，c 可以为 nil
func CloseQuietly(c io.Closer) {
	if c == nil {
		return
	}
	_ = c.Close()
}
