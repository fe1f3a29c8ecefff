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

package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/assert"
)

func TestMemoryKeyedStoreValues(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryKeyedStore()

	_, err := m.Get(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrKeyNotFound))

	assert.NoError(t, m.Put(ctx, "k", []byte("v"), 0))
	got, err := m.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, string(got), "v")

	assert.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.True(t, errors.Is(err, store.ErrKeyNotFound))
}

func TestMemoryKeyedStoreLists(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryKeyedStore()

	empty, err := m.Range(ctx, "history:v")
	assert.NoError(t, err)
	assert.Equal(t, len(empty), 0)

	assert.NoError(t, m.Append(ctx, "history:v", []byte("a")))
	assert.NoError(t, m.Append(ctx, "history:v", []byte("b")))
	items, err := m.Range(ctx, "history:v")
	assert.NoError(t, err)
	assert.Equal(t, len(items), 2)
	assert.Equal(t, string(items[0]), "a")
	assert.Equal(t, string(items[1]), "b")
}

func TestMemoryKeyedStoreCounterExpiry(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryKeyedStore()
	now := time.Date(2024, 10, 11, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	n, err := m.Incr(ctx, "ratelimit:1.2.3.4", time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, n, int64(1))
	n, _ = m.Incr(ctx, "ratelimit:1.2.3.4", time.Hour)
	assert.Equal(t, n, int64(2))

	now = now.Add(2 * time.Hour)
	n, _ = m.Incr(ctx, "ratelimit:1.2.3.4", time.Hour)
	assert.Equal(t, n, int64(1))
}

// TestRedisKeyedStore runs against the server named by REDIS_ADDR.
func TestRedisKeyedStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	r, err := store.NewRedisKeyedStore(ctx, client, "test:"+uuid.NewString()+":")
	assert.NoError(t, err)
	defer r.Close()

	_, err = r.Get(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrKeyNotFound))

	assert.NoError(t, r.Put(ctx, "k", []byte("v"), time.Minute))
	got, err := r.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, string(got), "v")

	assert.NoError(t, r.Append(ctx, "list", []byte("a")))
	assert.NoError(t, r.Append(ctx, "list", []byte("b")))
	items, err := r.Range(ctx, "list")
	assert.NoError(t, err)
	assert.Equal(t, len(items), 2)
	assert.Equal(t, string(items[1]), "b")

	n, err := r.Incr(ctx, "counter", time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, n, int64(1))

	assert.NoError(t, r.Delete(ctx, "k", "list", "counter"))
	items, err = r.Range(ctx, "list")
	assert.NoError(t, err)
	assert.Equal(t, len(items), 0)
}
