// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/redis/go-redis/v9"
)

// RedisKeyedStore keeps keyed records in Redis so several server instances
// share rate limits, history and bookmarks.
type RedisKeyedStore struct {
	client *redis.Client
	prefix string
}

var _ KeyedStore = (*RedisKeyedStore)(nil)

// NewRedisKeyedStore pings the server before returning.
func NewRedisKeyedStore(ctx context.Context, client *redis.Client, prefix string) (*RedisKeyedStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping: %w", model.ErrInfrastructure, err)
	}
	return &RedisKeyedStore{client: client, prefix: prefix}, nil
}

func (r *RedisKeyedStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisKeyedStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, infra("redis get", err)
	}
	return val, nil
}

func (r *RedisKeyedStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return infra("redis set", err)
	}
	return nil
}

func (r *RedisKeyedStore) Append(ctx context.Context, key string, value []byte) error {
	if err := r.client.RPush(ctx, r.key(key), value).Err(); err != nil {
		return infra("redis rpush", err)
	}
	return nil
}

func (r *RedisKeyedStore) Range(ctx context.Context, key string) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, r.key(key), 0, -1).Result()
	if err != nil {
		return nil, infra("redis lrange", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (r *RedisKeyedStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := r.key(key)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	if ttl > 0 {
		pipe.ExpireNX(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, infra("redis incr", err)
	}
	return incr.Val(), nil
}

func (r *RedisKeyedStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return infra("redis del", err)
	}
	return nil
}

func (r *RedisKeyedStore) Close() error {
	return r.client.Close()
}
