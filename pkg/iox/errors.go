package iox

import (
	"errors"
	"fmt"
)

// ErrNilStream 表示调用方传入了 nil 的 Reader/Writer
var ErrNilStream = errors.New("nil stream")

// Kind 对 I/O 失败做粗粒度分类，供需要区分原因的调用方使用
type Kind int

const (
	KindUnknown Kind = iota
	SourceUnreadable
	SinkUnwritable
	DirectoryUncreatable
	ResourceUnresolvable
)

func (k Kind) String() string {
	switch k {
	case SourceUnreadable:
		return "source_unreadable"
	case SinkUnwritable:
		return "sink_unwritable"
	case DirectoryUncreatable:
		return "directory_uncreatable"
	case ResourceUnresolvable:
		return "resource_unresolvable"
	default:
		return "unknown"
	}
}

// Error 是拷贝引擎返回的类型化错误
type Error struct {
	Kind Kind
	Op   string // read / write / flush / open / create / close / transfer / mkdir
	Path string // 可选：涉及的文件路径
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError 构造一个 *Error
func NewError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf 从错误链中提取 Kind；不是拷贝引擎的错误则返回 KindUnknown
func KindOf(err error) Kind {
	var ioErr *Error
	if errors.As(err, &ioErr) {
		return ioErr.Kind
	}
	return KindUnknown
}

// IsKind 判断错误链中是否存在指定 Kind 的 *Error
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
