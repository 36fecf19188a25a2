package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"hostcache/pkg/iox"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 登记表后端
const (
	RegistryFile     = "file"
	RegistrySQLite   = "sqlite"
	RegistryPostgres = "postgres"
	RegistryRedis    = "redis"
)

var ErrInvalidConfig = errors.New("invalid config")

// ByteSize 支持 "32KiB"、"1MB" 这种写法，也接受纯数字
type ByteSize int64

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Config 是 Viper 配置的类型化视图
type Config struct {
	Frame    FrameConfig    `mapstructure:"frame"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Copy     CopyConfig     `mapstructure:"copy"`
	Source   SourceConfig   `mapstructure:"source"`
	Registry RegistryConfig `mapstructure:"registry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

type FrameConfig struct {
	Package string `mapstructure:"package"`
	Debug   bool   `mapstructure:"debug"`
}

type StorageConfig struct {
	ExternalCache  string `mapstructure:"external_cache"`
	InternalCache  string `mapstructure:"internal_cache"`
	PreferExternal bool   `mapstructure:"prefer_external"`
}

type CopyConfig struct {
	ChunkSize ByteSize `mapstructure:"chunk_size"`
}

type SourceConfig struct {
	BaseDir string   `mapstructure:"base_dir"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type RegistryConfig struct {
	Type     string `mapstructure:"type"`
	Path     string `mapstructure:"path"` // file: 快照路径；sqlite: 数据库文件 (dsn 为空时)
	DSN      string `mapstructure:"dsn"`
	RedisURL string `mapstructure:"redis_url"`
	Key      string `mapstructure:"key"`
}

type CacheConfig struct {
	SweepOnStart     bool `mapstructure:"sweep_on_start"`
	SweepConcurrency int  `mapstructure:"sweep_concurrency"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Decode 把 Viper 中的配置解析为 Config 并校验
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Registry.Type = strings.ToLower(strings.TrimSpace(cfg.Registry.Type))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Copy.ChunkSize < 0 {
		return fmt.Errorf("%w: copy.chunk_size must not be negative", ErrInvalidConfig)
	}
	if c.Copy.ChunkSize > iox.MaxChunkSize {
		return fmt.Errorf("%w: copy.chunk_size %s exceeds %s", ErrInvalidConfig, c.Copy.ChunkSize, ByteSize(iox.MaxChunkSize))
	}
	switch c.Registry.Type {
	case RegistryFile, RegistrySQLite, RegistryRedis:
	case RegistryPostgres:
		if c.Registry.DSN == "" {
			return fmt.Errorf("%w: registry.dsn is required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported registry type %q", ErrInvalidConfig, c.Registry.Type)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return nil
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(ByteSize(0))

	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return ByteSize(0), nil
			}
			n, err := humanize.ParseBytes(v)
			if err != nil {
				return nil, fmt.Errorf("无法解析字节大小: %s", v)
			}
			return ByteSize(n), nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		case ByteSize:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的字节大小类型: %T", v)
		}
	}
}
