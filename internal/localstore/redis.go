package localstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fastpartybox/internal/domain"
)

const sizesKey = "__sizes"

// RedisKV stores values under prefix:key. Byte usage per key lives in the
// prefix:__sizes hash so the quota survives restarts.
type RedisKV struct {
	client *redis.Client
	prefix string
	quota  int64
}

var _ KV = (*RedisKV)(nil)

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Prefix     string
	QuotaBytes int64
}

func NewRedisKV(ctx context.Context, cfg RedisConfig) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisKVFromClient(client, cfg.Prefix, cfg.QuotaBytes), nil
}

func NewRedisKVFromClient(client *redis.Client, prefix string, quota int64) *RedisKV {
	if prefix == "" {
		prefix = "fastpartybox"
	}
	return &RedisKV{client: client, prefix: prefix, quota: quota}
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

func (r *RedisKV) key(k string) string { return r.prefix + ":" + k }

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	size := int64(len(key) + len(value))
	if r.quota > 0 {
		sizes, err := r.client.HGetAll(ctx, r.key(sizesKey)).Result()
		if err != nil {
			return fmt.Errorf("redis usage: %w", err)
		}
		var used int64
		for k, v := range sizes {
			if k == key {
				continue
			}
			n, _ := strconv.ParseInt(v, 10, 64)
			used += n
		}
		if used+size > r.quota {
			return &domain.QuotaExceededError{Key: key}
		}
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(key), value, 0)
		pipe.HSet(ctx, r.key(sizesKey), key, size)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Remove(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(key))
		pipe.HDel(ctx, r.key(sizesKey), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remove %s: %w", key, err)
	}
	return nil
}
