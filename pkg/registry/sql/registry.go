package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hostcache/pkg/registry"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var ErrUnsupportedDriver = errors.New("unsupported registry driver")

// Config 数据库配置
type Config struct {
	Driver string // "sqlite" | "postgres"
	DSN    string // sqlite: 文件路径；postgres: "host=... user=... dbname=..."
}

// EntryModel 是 registry.Entry 在关系型数据库中的投影
type EntryModel struct {
	// Path 是主键：同一个缓存文件只登记一次
	Path   string `gorm:"primaryKey;type:varchar(1024)"`
	ID     string `gorm:"uniqueIndex;type:char(36);not null"`
	Handle string `gorm:"type:text"`
	Size   int64

	// Labels: {"scheme": "s3", "process": "com.example.app"}
	Labels datatypes.JSON

	CreatedAt time.Time `gorm:"index"`
}

func (EntryModel) TableName() string {
	return "cache_entries"
}

// Registry 基于 GORM 的登记表
type Registry struct {
	conn *gorm.DB
}

// Open 初始化数据库连接并迁移表结构
func Open(ctx context.Context, cfg Config) (*Registry, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return NewWithConn(db)
}

// NewWithConn 复用已有的 GORM 连接 (测试里用内存 SQLite)
func NewWithConn(conn *gorm.DB) (*Registry, error) {
	if err := conn.AutoMigrate(&EntryModel{}); err != nil {
		return nil, fmt.Errorf("auto migration failed: %w", err)
	}
	return &Registry{conn: conn}, nil
}

func (r *Registry) Track(ctx context.Context, e registry.Entry) error {
	e, err := registry.Normalize(e)
	if err != nil {
		return err
	}
	m, err := toModel(e)
	if err != nil {
		return err
	}

	// Upsert: 同一路径再次物化时覆盖旧记录
	return r.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (r *Registry) List(ctx context.Context) ([]registry.Entry, error) {
	var models []EntryModel
	if err := r.conn.WithContext(ctx).Order("created_at asc, path asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	out := make([]registry.Entry, 0, len(models))
	for _, m := range models {
		e, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Registry) Forget(ctx context.Context, path string) error {
	res := r.conn.WithContext(ctx).
		Where("path = ?", registry.CleanPath(path)).
		Delete(&EntryModel{})
	if res.Error != nil {
		return fmt.Errorf("forget entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return registry.ErrNotTracked
	}
	return nil
}

func (r *Registry) Close() error {
	sqlDB, err := r.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(e registry.Entry) (EntryModel, error) {
	m := EntryModel{
		Path:      e.Path,
		ID:        e.ID,
		Handle:    e.Handle,
		Size:      e.Size,
		CreatedAt: e.CreatedAt,
	}
	if len(e.Labels) > 0 {
		raw, err := json.Marshal(e.Labels)
		if err != nil {
			return m, fmt.Errorf("encode labels: %w", err)
		}
		m.Labels = datatypes.JSON(raw)
	}
	return m, nil
}

func fromModel(m EntryModel) (registry.Entry, error) {
	e := registry.Entry{
		ID:        m.ID,
		Path:      m.Path,
		Handle:    m.Handle,
		Size:      m.Size,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Labels) > 0 {
		if err := json.Unmarshal(m.Labels, &e.Labels); err != nil {
			return e, fmt.Errorf("decode labels for %s: %w", m.Path, err)
		}
	}
	return e, nil
}
