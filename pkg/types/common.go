// pkg/types/common.go
package types

import (
	"net/url"
	"strings"
)

// ResourceHandle 是一个不透明的资源标识 (content URI, s3://bucket/key, 本地路径 ...)
// 这是一个"值对象"，应当是不可变的。
type ResourceHandle string

func (h ResourceHandle) String() string { return string(h) }

func (h ResourceHandle) IsZero() bool { return strings.TrimSpace(string(h)) == "" }

// Scheme 返回小写的 scheme；裸路径返回 ""
func (h ResourceHandle) Scheme() string {
	u, err := h.parse()
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Host 返回 authority 部分 (s3 的 bucket，content URI 的 provider)
func (h ResourceHandle) Host() string {
	u, err := h.parse()
	if err != nil {
		return ""
	}
	return u.Host
}

// Path 返回解码后的路径部分
func (h ResourceHandle) Path() string {
	u, err := h.parse()
	if err != nil {
		return string(h)
	}
	return u.Path
}

// LastPathSegment 返回路径的最后一个非空片段
// Example: "content://media/external/images/1234" -> "1234"
//
//	"s3://bucket/models/v1/" -> "v1"
func (h ResourceHandle) LastPathSegment() string {
	segments := strings.Split(h.Path(), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := segments[i]; seg != "" {
			return seg
		}
	}
	return ""
}

func (h ResourceHandle) parse() (*url.URL, error) {
	raw := strings.TrimSpace(string(h))
	// 裸路径 (没有 scheme) 不交给 url.Parse，避免 "%" 之类的字符被当成转义
	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "file:") {
		return &url.URL{Path: raw}, nil
	}
	return url.Parse(raw)
}
