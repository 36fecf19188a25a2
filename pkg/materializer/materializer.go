package materializer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"hostcache/pkg/iox"
	"hostcache/pkg/registry"
	"hostcache/pkg/storage"
	"hostcache/pkg/types"

	"github.com/sirupsen/logrus"
)

// CacheSubdir 是物化文件所在的逻辑子目录
const CacheSubdir = "cache"

// PartialPrefix 是物化过程中临时文件的前缀；进程崩溃后残留的临时文件未登记，由 orphan sweep 清理
const PartialPrefix = ".hc-partial-"

var ErrNoFileName = errors.New("handle has no usable file name")

// DirResolver 提供 (并按需创建) 存储目录，由 dirs.Resolver 实现
type DirResolver interface {
	EnsureDir(subdir string) (string, error)
}

// Materializer 把资源句柄物化为缓存目录中的本地文件
type Materializer struct {
	dirs   DirResolver
	store  storage.Store
	reg    registry.Registry // 可以为 nil：不登记
	copier iox.Copier
	log    logrus.FieldLogger
	labels map[string]string

	// 测试注入点：在 dir 中创建临时目标文件，返回 sink 和它的路径
	openSink func(dir string) (io.WriteCloser, string, error)
}

func New(resolver DirResolver, store storage.Store, reg registry.Registry, log logrus.FieldLogger) *Materializer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Materializer{
		dirs:     resolver,
		store:    store,
		reg:      reg,
		log:      log,
		openSink: createTemp,
	}
}

// WithChunkSize 设置拷贝块大小，n <= 0 使用 iox.DefaultChunkSize
func (m *Materializer) WithChunkSize(n int) *Materializer {
	m.copier = iox.Copier{ChunkSize: n}
	return m
}

// WithLabels 设置写入登记表的附加标签 (例如进程名)
func (m *Materializer) WithLabels(labels map[string]string) *Materializer {
	m.labels = labels
	return m
}

// MaterializeToCache 把 handle 指向的资源拷贝到 <root>/cache/<最后一段路径>，返回文件路径。
// 任何失败都折叠为 ("", false)，原因记录在日志中。
// 注意：宿主给不出字节流 (Open 返回 nil, nil) 时，返回的是一个空文件的路径。
func (m *Materializer) MaterializeToCache(ctx context.Context, handle types.ResourceHandle) (string, bool) {
	return m.MaterializeWithProgress(ctx, handle, nil)
}

// MaterializeWithProgress 同 MaterializeToCache，拷贝过程中回调累计字节数
func (m *Materializer) MaterializeWithProgress(ctx context.Context, handle types.ResourceHandle, onProgress iox.ProgressFunc) (string, bool) {
	path, err := m.Materialize(ctx, handle, onProgress)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"action": "materialize",
			"handle": handle.String(),
			"kind":   iox.KindOf(err).String(),
		}).WithError(err).Warn("materialize failed")
		return "", false
	}
	return path, true
}

// Materialize 是带具体错误的版本
func (m *Materializer) Materialize(ctx context.Context, handle types.ResourceHandle, onProgress iox.ProgressFunc) (string, error) {
	// 1. 缓存目录
	dir, err := m.dirs.EnsureDir(CacheSubdir)
	if err != nil {
		return "", err
	}

	// 2. 文件名
	name := handle.LastPathSegment()
	if !validName(name) {
		return "", iox.NewError(iox.ResourceUnresolvable, "name", handle.String(), ErrNoFileName)
	}
	dst := filepath.Join(dir, name)

	// 3. 先写入同目录下的临时文件，完成后再 rename 覆盖 dst。
	// dst 在拷贝完成前不会被截断，所以来源恰好是 dst 本身时也能正确读取
	sink, tmp, err := m.openSink(dir)
	if err != nil {
		return "", iox.NewError(iox.SinkUnwritable, "create", dst, err)
	}

	// 4. 打开来源
	src, err := m.store.Open(ctx, handle)
	if err != nil {
		iox.CloseQuietly(sink)
		m.discard(tmp)
		return "", iox.NewError(openKind(err), "open", handle.String(), err)
	}

	var n int64
	if src == nil {
		// 宿主没有给出字节流：保留空文件
		if err := sink.Close(); err != nil {
			m.discard(tmp)
			return "", iox.NewError(iox.SinkUnwritable, "close", dst, err)
		}
		m.log.WithFields(logrus.Fields{
			"action": "materialize",
			"handle": handle.String(),
			"path":   dst,
		}).Info("no source stream, keeping empty cache file")
	} else {
		// 5. 拷贝 (CopyAndClose 保证 sink 恰好关闭一次)
		n, err = m.copier.CopyAndClose(src, sink, onProgress)
		src.Close()
		if err != nil {
			m.discard(tmp)
			return "", err
		}
	}

	// 6. 落盘
	if err := os.Rename(tmp, dst); err != nil {
		m.discard(tmp)
		return "", iox.NewError(iox.SinkUnwritable, "rename", dst, err)
	}

	// 7. 登记，登记失败不影响物化
	entry := registry.NewEntry(dst, handle.String())
	entry.Size = n
	entry.Labels = m.entryLabels(handle)
	m.track(ctx, entry)

	m.log.WithFields(logrus.Fields{
		"action": "materialize",
		"handle": handle.String(),
		"path":   dst,
		"bytes":  n,
	}).Debug("materialized")
	return dst, nil
}

// CopyFileToFolder 把 srcPath 拷贝到存储目录 destDir 下的 destName，返回目标文件的绝对路径。
// 目录无法解析或 destName 非法时返回 ""；拷贝本身是尽力而为的 (见 iox.CopyFile)。
func (m *Materializer) CopyFileToFolder(destDir, destName, srcPath string) string {
	fields := logrus.Fields{"action": "copy_to_folder", "dir": destDir, "name": destName}
	dir, err := m.dirs.EnsureDir(destDir)
	if err != nil {
		m.log.WithFields(fields).WithError(err).Warn("destination dir unavailable")
		return ""
	}
	if !validName(destName) || filepath.Base(destName) != destName {
		m.log.WithFields(fields).Warn("invalid destination name")
		return ""
	}

	dst := filepath.Join(dir, destName)
	iox.CopyFile(srcPath, dst, m.log)

	abs, err := filepath.Abs(dst)
	if err != nil {
		return dst
	}
	return abs
}

func (m *Materializer) track(ctx context.Context, e registry.Entry) {
	if m.reg == nil {
		return
	}
	if err := m.reg.Track(ctx, e); err != nil {
		m.log.WithFields(logrus.Fields{"action": "track", "path": e.Path}).WithError(err).Warn("failed to track cache entry")
	}
}

// discard 删除写了一半的临时文件
func (m *Materializer) discard(tmp string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		m.log.WithFields(logrus.Fields{"action": "discard", "path": tmp}).WithError(err).Warn("failed to remove partial file")
	}
}

func (m *Materializer) entryLabels(handle types.ResourceHandle) map[string]string {
	labels := make(map[string]string, len(m.labels)+1)
	for k, v := range m.labels {
		labels[k] = v
	}
	scheme := handle.Scheme()
	if scheme == "" {
		scheme = "file"
	}
	labels["scheme"] = scheme
	return labels
}

func openKind(err error) iox.Kind {
	if k := iox.KindOf(err); k != iox.KindUnknown {
		return k
	}
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrUnsupportedScheme),
		errors.Is(err, storage.ErrInvalidHandle):
		return iox.ResourceUnresolvable
	default:
		return iox.SourceUnreadable
	}
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".."
}

func createTemp(dir string) (io.WriteCloser, string, error) {
	f, err := os.CreateTemp(dir, PartialPrefix+"*")
	if err != nil {
		return nil, "", err
	}
	// CreateTemp 默认 0600，与 os.Create 的结果对齐
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, "", err
	}
	return f, f.Name(), nil
}
