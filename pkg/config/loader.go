package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀：HC_STORAGE_INTERNAL_CACHE 对应 storage.internal_cache
const EnvPrefix = "HC"

// Load 初始化全局 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
// 返回实际使用的配置文件路径，没找到配置文件时返回 ""
func Load(cfgFile string) (string, error) {
	// 1. 设置默认值 (Defaults)
	SetDefaults(viper.GetViper())

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：当前目录 -> ./.hc -> ~/.hc
		viper.AddConfigPath(".")
		viper.AddConfigPath(".hc")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".hc"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，可能全部来自默认值和环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return "", nil
		}
		return "", fmt.Errorf("fatal error config file: %w", err)
	}
	return viper.ConfigFileUsed(), nil
}

// SetDefaults 为所有已知 key 设置默认值
// 注意：AutomaticEnv 只对 Viper 认识的 key 生效，所以空字符串的默认值也要设置
func SetDefaults(v *viper.Viper) {
	// 进程上下文
	v.SetDefault("frame.package", "")
	v.SetDefault("frame.debug", false)

	// 缓存根目录
	v.SetDefault("storage.external_cache", "")
	v.SetDefault("storage.internal_cache", "")
	v.SetDefault("storage.prefer_external", true)

	// 拷贝
	v.SetDefault("copy.chunk_size", "32KiB")

	// 资源来源
	v.SetDefault("source.base_dir", "")
	v.SetDefault("source.s3.endpoint", "")
	v.SetDefault("source.s3.region", "us-east-1")
	v.SetDefault("source.s3.bucket", "")
	v.SetDefault("source.s3.access_key", "")
	v.SetDefault("source.s3.secret_key", "")

	// 登记表
	v.SetDefault("registry.type", RegistryFile)
	v.SetDefault("registry.path", "")
	v.SetDefault("registry.dsn", "")
	v.SetDefault("registry.redis_url", "redis://localhost:6379/0")
	v.SetDefault("registry.key", "")

	// 清理
	v.SetDefault("cache.sweep_on_start", false)
	v.SetDefault("cache.sweep_concurrency", 8)

	// 日志
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.compress", true)
}
