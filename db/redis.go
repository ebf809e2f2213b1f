package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV keeps session records in Redis under a key prefix
type RedisKV struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures the remote backend
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // defaults to "veritas:"
}

// NewRedisKV connects to Redis and verifies the connection with a PING
func NewRedisKV(ctx context.Context, opts RedisOptions) (*RedisKV, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "veritas:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisKV{client: client, prefix: prefix}, nil
}

// Get implements KV
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

// Set implements KV
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete implements KV
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// maxUpdateRetries bounds optimistic retries when a watched key keeps changing
const maxUpdateRetries = 100

// Update implements KV with WATCH/MULTI, retrying when another client
// modified the key between the read and the write.
func (r *RedisKV) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	k := r.prefix + key
	txf := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			old, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", key, err)
		}

		value, err := fn(old)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if value == nil {
				pipe.Del(ctx, k)
			} else {
				pipe.Set(ctx, k, value, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update %s: too much contention", key)
}

// Size implements KV as the summed value length of all prefixed keys
func (r *RedisKV) Size(ctx context.Context) (int64, error) {
	var total int64
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := r.client.StrLen(ctx, iter.Val()).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to measure %s: %w", iter.Val(), err)
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan keys: %w", err)
	}
	return total, nil
}

// Close implements KV
func (r *RedisKV) Close() error {
	return r.client.Close()
}
