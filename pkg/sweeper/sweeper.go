package sweeper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"hostcache/pkg/ignore"
	"hostcache/pkg/registry"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency 并发删除的上限
const DefaultConcurrency = 8

// Report 汇总一次清理的结果
type Report struct {
	Removed []string // 已删除 (或本来就不存在) 的文件
	Kept    []string // 命中保留规则的文件，仅 SweepOrphans 使用
	Failed  map[string]error
	Bytes   int64 // 实际释放的字节数
}

func newReport() *Report {
	return &Report{Failed: make(map[string]error)}
}

// Sweeper 负责删除登记过的缓存文件，替代 "进程退出时删除"
type Sweeper struct {
	reg         registry.Registry
	log         logrus.FieldLogger
	concurrency int
}

func New(reg registry.Registry, log logrus.FieldLogger) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{reg: reg, log: log, concurrency: DefaultConcurrency}
}

// WithConcurrency 调整并发删除上限，n <= 0 时忽略
func (s *Sweeper) WithConcurrency(n int) *Sweeper {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Sweep 删除所有已登记的缓存文件并注销
// 单个文件失败不会中断整体清理，失败记录在 Report.Failed 中
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	entries, err := s.reg.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}

	report := newReport()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			freed, err := removeFile(e.Path)
			if err == nil {
				err = s.forget(gctx, e.Path)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[e.Path] = err
				s.log.WithFields(logrus.Fields{"action": "sweep", "path": e.Path}).WithError(err).Warn("failed to remove cache entry")
				return nil
			}
			report.Removed = append(report.Removed, e.Path)
			report.Bytes += freed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	s.log.WithFields(logrus.Fields{
		"action":  "sweep",
		"removed": len(report.Removed),
		"failed":  len(report.Failed),
		"bytes":   report.Bytes,
	}).Info("cache sweep finished")
	return report, nil
}

// SweepOrphans 删除 dir 下未登记的普通文件，命中 .cacheignore (及默认规则) 的除外
// 登记过的文件留给 Sweep 处理
func (s *Sweeper) SweepOrphans(ctx context.Context, dir string) (*Report, error) {
	matcher, err := ignore.NewMatcher(dir)
	if err != nil {
		return nil, fmt.Errorf("load keep rules: %w", err)
	}

	entries, err := s.reg.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	tracked := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		tracked[registry.CleanPath(e.Path)] = struct{}{}
	}

	report := newReport()
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			report.Failed[path] = walkErr
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == dir || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if matcher.Matches(rel) {
			report.Kept = append(report.Kept, path)
			return nil
		}
		if _, ok := tracked[registry.CleanPath(path)]; ok {
			return nil
		}

		freed, err := removeFile(path)
		if err != nil {
			report.Failed[path] = err
			return nil
		}
		report.Removed = append(report.Removed, path)
		report.Bytes += freed
		return nil
	})
	if err != nil {
		return report, err
	}

	s.log.WithFields(logrus.Fields{
		"action":  "sweep_orphans",
		"dir":     dir,
		"removed": len(report.Removed),
		"kept":    len(report.Kept),
		"failed":  len(report.Failed),
	}).Info("orphan sweep finished")
	return report, nil
}

func (s *Sweeper) forget(ctx context.Context, path string) error {
	err := s.reg.Forget(ctx, path)
	if errors.Is(err, registry.ErrNotTracked) {
		return nil
	}
	return err
}

// removeFile 删除文件并返回其大小；文件不存在视为已删除
func removeFile(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("refusing to remove directory %s", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return info.Size(), nil
}
