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

// Package store persists video sessions and the small keyed records (rate
// limit counters, search history, bookmarks) that live beside them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// SessionStore persists VideoSessions with their segments and frames.
// Missing sessions are reported as model.ErrNotFound; every other failure
// wraps model.ErrInfrastructure.
type SessionStore interface {
	Load(ctx context.Context, id string) (*model.VideoSession, error)
	Save(ctx context.Context, session *model.VideoSession) error
	Delete(ctx context.Context, id string) error
	LoadStatus(ctx context.Context, id string) (*model.ProcessingStatus, error)
	SaveStatus(ctx context.Context, status *model.ProcessingStatus) error
	// List returns session headers without segments or frames.
	List(ctx context.Context) ([]*model.VideoSession, error)
}

// ErrKeyNotFound is returned by KeyedStore.Get for a missing or expired key.
var ErrKeyNotFound = errors.New("key not found")

// KeyedStore is a minimal key/value and key/list store. A zero ttl means the
// key never expires.
type KeyedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Append pushes value to the end of the list stored at key.
	Append(ctx context.Context, key string, value []byte) error
	// Range returns the whole list stored at key, oldest first.
	Range(ctx context.Context, key string) ([][]byte, error)
	// Incr adds one to the counter at key and returns the new value. The ttl
	// is applied when the counter is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
