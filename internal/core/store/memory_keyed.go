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
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	list    [][]byte
	counter int64
	expires time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemoryKeyedStore is a process-local KeyedStore for single instance
// deployments and tests.
type MemoryKeyedStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

var _ KeyedStore = (*MemoryKeyedStore)(nil)

func NewMemoryKeyedStore() *MemoryKeyedStore {
	return &MemoryKeyedStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

// lookup returns a live entry, dropping it when expired. Callers hold mu.
func (m *MemoryKeyedStore) lookup(key string) *memoryEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryKeyedStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryKeyedStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil || e.value == nil {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryKeyedStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memoryEntry{value: append([]byte{}, value...), expires: m.expiry(ttl)}
	return nil
}

func (m *MemoryKeyedStore) Append(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	e.list = append(e.list, append([]byte{}, value...))
	return nil
}

func (m *MemoryKeyedStore) Range(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil {
		return [][]byte{}, nil
	}
	out := make([][]byte, len(e.list))
	for i, v := range e.list {
		out[i] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *MemoryKeyedStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil {
		e = &memoryEntry{expires: m.expiry(ttl)}
		m.entries[key] = e
	}
	e.counter++
	return e.counter, nil
}

func (m *MemoryKeyedStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *MemoryKeyedStore) Close() error {
	return nil
}

// SetClock replaces the time source, for expiry tests.
func (m *MemoryKeyedStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
