// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hostcache/pkg/config"
	"hostcache/pkg/dirs"
	"hostcache/pkg/frame"
	"hostcache/pkg/logging"
	"hostcache/pkg/materializer"
	"hostcache/pkg/registry"
	fileregistry "hostcache/pkg/registry/file"
	redisregistry "hostcache/pkg/registry/redis"
	sqlregistry "hostcache/pkg/registry/sql"
	"hostcache/pkg/storage"
	"hostcache/pkg/storage/disk"
	"hostcache/pkg/storage/s3"
	"hostcache/pkg/sweeper"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 宿主没有配置缓存根目录时，使用 <UserCacheDir>/hostcache
const defaultCacheDirName = "hostcache"

// MetaSubdir 存放 hostcache 自己的状态文件 (登记表等)，与物化文件所在的 cache 目录分开，
// 资源文件名不会与它们冲突
const MetaSubdir = ".hc"

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Config       *config.Config
	Frame        *frame.Frame
	Roots        frame.Roots
	Resolver     *dirs.Resolver
	Store        storage.Store
	Registry     registry.Registry
	Materializer *materializer.Materializer
	Sweeper      *sweeper.Sweeper
	Logger       *logrus.Logger
	ChunkSize    int
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log, cfg.Frame.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	// 1. 进程上下文 (替代全局静态变量)
	fr := frame.New(cfg.Frame.Package, cfg.Frame.Debug)
	if fr.PackageName == "" {
		// 没有配置包名时，以当前进程为主进程
		fr.PackageName = fr.ProcessName()
	}
	log := logger.WithFields(logging.ProcessFields(fr.PackageName, fr.ProcessName(), fr.IsMainProcess()))

	// 2. 缓存根目录
	roots, err := initRoots(cfg)
	if err != nil {
		return nil, err
	}
	resolver := dirs.NewResolver(roots, log)

	// 3. 资源来源
	store, err := initStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// 4. 登记表
	reg, err := initRegistry(ctx, cfg, resolver)
	if err != nil {
		return nil, fmt.Errorf("failed to init registry: %w", err)
	}

	chunkSize := int(cfg.Copy.ChunkSize)
	mat := materializer.New(resolver, store, reg, log).
		WithChunkSize(chunkSize).
		WithLabels(map[string]string{"process": fr.ProcessName()})
	sw := sweeper.New(reg, log).WithConcurrency(cfg.Cache.SweepConcurrency)

	a := &App{
		Config:       cfg,
		Frame:        fr,
		Roots:        roots,
		Resolver:     resolver,
		Store:        store,
		Registry:     reg,
		Materializer: mat,
		Sweeper:      sw,
		Logger:       logger,
		ChunkSize:    chunkSize,
	}

	// 5. 启动时清理上一次运行留下的缓存文件 (替代 deleteOnExit)
	if cfg.Cache.SweepOnStart {
		if _, err := sw.Sweep(ctx); err != nil {
			log.WithError(err).Warn("startup sweep failed")
		}
	}

	return a, nil
}

// Close 释放登记表连接
func (a *App) Close() error {
	if a.Registry == nil {
		return nil
	}
	return a.Registry.Close()
}

// initRoots 确定缓存根目录：
// 显式配置优先；配置了包名则按 Android 约定推导；都没有时使用用户缓存目录
func initRoots(cfg *config.Config) (frame.Roots, error) {
	roots := frame.Roots{
		External:       cfg.Storage.ExternalCache,
		Internal:       cfg.Storage.InternalCache,
		PreferExternal: cfg.Storage.PreferExternal,
	}
	if roots.External != "" || roots.Internal != "" {
		return roots, nil
	}

	if cfg.Frame.Package != "" {
		android := frame.AndroidRoots(cfg.Frame.Package)
		android.PreferExternal = cfg.Storage.PreferExternal
		if _, ok := android.FallbackRoot(); ok {
			return android, nil
		}
		if _, ok := android.PreferredRoot(); ok {
			return android, nil
		}
	}

	// 这里 App 自己充当宿主，所以负责创建根目录
	base, err := os.UserCacheDir()
	if err != nil {
		return roots, fmt.Errorf("no cache root configured: %w", err)
	}
	roots.Internal = filepath.Join(base, defaultCacheDirName)
	if err := os.MkdirAll(roots.Internal, dirs.DirPerm); err != nil {
		return roots, fmt.Errorf("create default cache root: %w", err)
	}
	return roots, nil
}

// initStore 组装资源来源：本地文件始终可用，配置了 bucket 时挂载 s3
func initStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	mux := storage.NewMux()

	local, err := disk.NewAdapter(cfg.Source.BaseDir)
	if err != nil {
		return nil, err
	}
	mux.Handle("", local)
	mux.Handle("file", local)

	if s3cfg := cfg.Source.S3; s3cfg.Bucket != "" || s3cfg.Endpoint != "" {
		if s3cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required when an endpoint is set")
		}
		remote, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			AccessKeyID:     s3cfg.AccessKey,
			SecretAccessKey: s3cfg.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		mux.Handle("s3", remote)
	}
	return mux, nil
}

// initRegistry 按 registry.type 选择登记表后端
func initRegistry(ctx context.Context, cfg *config.Config, resolver *dirs.Resolver) (registry.Registry, error) {
	rc := cfg.Registry

	switch rc.Type {
	case config.RegistryFile:
		path := rc.Path
		if path == "" {
			dir, err := resolver.EnsureDir(MetaSubdir)
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "registry")
		}
		return fileregistry.Open(path)

	case config.RegistrySQLite:
		dsn := rc.DSN
		if dsn == "" {
			dsn = rc.Path
		}
		if dsn == "" {
			dir, err := resolver.EnsureDir(MetaSubdir)
			if err != nil {
				return nil, err
			}
			dsn = filepath.Join(dir, "registry.db")
		}
		return sqlregistry.Open(ctx, sqlregistry.Config{Driver: "sqlite", DSN: dsn})

	case config.RegistryPostgres:
		if rc.DSN == "" {
			return nil, errors.New("registry dsn is required")
		}
		return sqlregistry.Open(ctx, sqlregistry.Config{Driver: "postgres", DSN: rc.DSN})

	case config.RegistryRedis:
		return redisregistry.Open(ctx, redisregistry.Config{RedisURL: rc.RedisURL, Key: rc.Key})

	default:
		return nil, fmt.Errorf("unsupported registry type: %q", rc.Type)
	}
}
