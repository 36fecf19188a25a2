package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hostcache/pkg/registry"

	"github.com/redis/go-redis/v9"
)

// DefaultKey 是登记表所在的 hash key
const DefaultKey = "hc:entries"

type Config struct {
	RedisURL string // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	Key      string // 为空时使用 DefaultKey
}

// Registry 把条目存成一个 Redis hash：field 为缓存路径，value 为 CBOR 编码的 Entry
type Registry struct {
	client *redis.Client
	key    string
}

// Open 解析 URL 并做 fail-fast 连接检查
func Open(ctx context.Context, cfg Config) (*Registry, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.Key), nil
}

func NewWithClient(client *redis.Client, key string) *Registry {
	if key == "" {
		key = DefaultKey
	}
	return &Registry{client: client, key: key}
}

func (r *Registry) Track(ctx context.Context, e registry.Entry) error {
	e, err := registry.Normalize(e)
	if err != nil {
		return err
	}
	data, err := registry.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, e.Path, data).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *Registry) List(ctx context.Context) ([]registry.Entry, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	out := make([]registry.Entry, 0, len(raw))
	for field, val := range raw {
		var e registry.Entry
		if err := registry.Unmarshal([]byte(val), &e); err != nil {
			return nil, fmt.Errorf("corrupted entry %s: %w", field, err)
		}
		out = append(out, e)
	}
	registry.SortEntries(out)
	return out, nil
}

func (r *Registry) Forget(ctx context.Context, path string) error {
	n, err := r.client.HDel(ctx, r.key, registry.CleanPath(path)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return registry.ErrNotTracked
		}
		return fmt.Errorf("redis hdel: %w", err)
	}
	if n == 0 {
		return registry.ErrNotTracked
	}
	return nil
}

func (r *Registry) Close() error {
	return r.client.Close()
}
