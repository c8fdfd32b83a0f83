package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned when a key isn't cached or has expired.
var ErrMiss = errors.New("cache: miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New creates a cache of the given type: "memory" (default) or "redis".
// For redis, conn is either a redis:// URL or a host:port address.
func New(ctx context.Context, typ, conn string) (Cache, error) {
	switch typ {
	case "", "memory":
		return NewMemory(time.Minute), nil
	case "redis":
		var opts *redis.Options
		if strings.HasPrefix(conn, "redis://") || strings.HasPrefix(conn, "rediss://") {
			var err error
			opts, err = redis.ParseURL(conn)
			if err != nil {
				return nil, fmt.Errorf("cache: couldn't parse redis url: %w", err)
			}
		} else {
			if conn == "" {
				conn = "localhost:6379"
			}
			opts = &redis.Options{Addr: conn}
		}
		client := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("cache: couldn't connect to redis: %w", err)
		}
		return &Redis{client: client, prefix: "melodify:"}, nil
	default:
		return nil, fmt.Errorf("cache: unknown type %q", typ)
	}
}

// Redis is a cache backed by a redis server, shared between instances.
type Redis struct {
	client *redis.Client
	prefix string
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: couldn't get %s: %w", key, err)
	}
	return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: couldn't set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
