package dirs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hostcache/pkg/iox"

	"github.com/sirupsen/logrus"
)

// DirPerm 是新建目录使用的权限 (应用私有)
const DirPerm = 0o700

var (
	ErrNoRoot        = errors.New("no storage root available")
	ErrInvalidSubdir = errors.New("subdir escapes storage root")
)

// RootProvider 由宿主实现，提供缓存根目录
type RootProvider interface {
	// PreferredRoot 首选根目录 (如外部缓存)，不可用时返回 false
	PreferredRoot() (string, bool)
	// FallbackRoot 备用根目录 (如内部缓存)
	FallbackRoot() (string, bool)
}

// Resolver 在宿主提供的根目录下计算 (并可选创建) 存储目录
type Resolver struct {
	roots RootProvider
	log   logrus.FieldLogger
}

// NewResolver 创建 Resolver；log 可以为 nil
func NewResolver(roots RootProvider, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{roots: roots, log: log}
}

// ResolveStorageDir 返回 root/subdir。
// createIfMissing 为 false 时只做路径计算，不检查是否存在；
// 为 true 时目录不存在则递归创建，创建失败返回 ("", false)。
// 根目录不可用同样返回 ("", false)。
func (r *Resolver) ResolveStorageDir(subdir string, createIfMissing bool) (string, bool) {
	var (
		dir string
		err error
	)
	if createIfMissing {
		dir, err = r.EnsureDir(subdir)
	} else {
		dir, err = r.Compose(subdir)
	}
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"action": "resolve_dir",
			"subdir": subdir,
			"create": createIfMissing,
		}).WithError(err).Debug("storage dir unavailable")
		return "", false
	}
	return dir, true
}

// StorageDir 等价于 ResolveStorageDir(subdir, true)
func (r *Resolver) StorageDir(subdir string) (string, bool) {
	return r.ResolveStorageDir(subdir, true)
}

// Root 返回根目录本身
func (r *Resolver) Root() (string, bool) {
	return r.ResolveStorageDir("", true)
}

// Compose 只拼接路径，不触碰文件系统 (除了探测根目录是否可用)
func (r *Resolver) Compose(subdir string) (string, error) {
	root, ok := r.root()
	if !ok {
		return "", iox.NewError(iox.ResourceUnresolvable, "root", "", ErrNoRoot)
	}
	rel, err := cleanSubdir(subdir)
	if err != nil {
		return "", iox.NewError(iox.DirectoryUncreatable, "compose", subdir, err)
	}
	if rel == "" {
		return root, nil
	}
	return filepath.Join(root, rel), nil
}

// EnsureDir 与 ResolveStorageDir(subdir, true) 相同，但返回具体的失败原因
func (r *Resolver) EnsureDir(subdir string) (string, error) {
	dir, err := r.Compose(subdir)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(dir)
	if err == nil {
		if info.IsDir() {
			return dir, nil
		}
		return "", iox.NewError(iox.DirectoryUncreatable, "mkdir", dir, fmt.Errorf("not a directory"))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", iox.NewError(iox.DirectoryUncreatable, "stat", dir, err)
	}

	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return "", iox.NewError(iox.DirectoryUncreatable, "mkdir", dir, err)
	}
	return dir, nil
}

func (r *Resolver) root() (string, bool) {
	if r.roots == nil {
		return "", false
	}
	if dir, ok := r.roots.PreferredRoot(); ok && dir != "" {
		return dir, true
	}
	if dir, ok := r.roots.FallbackRoot(); ok && dir != "" {
		return dir, true
	}
	return "", false
}

// cleanSubdir 规范化子目录，拒绝绝对路径和 ".." 逃逸
func cleanSubdir(subdir string) (string, error) {
	subdir = strings.TrimSpace(subdir)
	if subdir == "" {
		return "", nil
	}
	if filepath.IsAbs(subdir) {
		return "", ErrInvalidSubdir
	}
	clean := filepath.Clean(subdir)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidSubdir
	}
	return clean, nil
}
