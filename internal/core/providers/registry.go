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

package providers

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Factory builds a provider on first use.
type Factory[T any] func(ctx context.Context) (T, error)

// lazy initialises a value once. Failures are not cached so a later call can
// retry after a transient error.
type lazy[T any] struct {
	mu      sync.Mutex
	factory Factory[T]
	value   T
	ready   bool
}

func (l *lazy[T]) get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return l.value, nil
	}
	var zero T
	if l.factory == nil {
		return zero, ErrUnavailable
	}
	v, err := l.factory(ctx)
	if err != nil {
		return zero, wrap("initialise", err)
	}
	l.value = v
	l.ready = true
	return v, nil
}

func (l *lazy[T]) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil
	}
	l.ready = false
	if c, ok := any(l.value).(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *lazy[T]) configured() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready || l.factory != nil
}

// Registry owns the process-wide providers. Each role is created on first use
// and released by Close.
type Registry struct {
	text        lazy[TextEmbedder]
	visual      lazy[VisualEmbedder]
	transcriber lazy[Transcriber]
}

// NewRegistry creates a registry from per-role factories. A nil factory
// leaves that role unavailable.
func NewRegistry(text Factory[TextEmbedder], visual Factory[VisualEmbedder], transcriber Factory[Transcriber]) *Registry {
	return &Registry{
		text:        lazy[TextEmbedder]{factory: text},
		visual:      lazy[VisualEmbedder]{factory: visual},
		transcriber: lazy[Transcriber]{factory: transcriber},
	}
}

// NewStaticRegistry wraps already built providers. Nil values are unavailable.
func NewStaticRegistry(text TextEmbedder, visual VisualEmbedder, transcriber Transcriber) *Registry {
	r := &Registry{}
	if text != nil {
		r.text = lazy[TextEmbedder]{value: text, ready: true}
	}
	if visual != nil {
		r.visual = lazy[VisualEmbedder]{value: visual, ready: true}
	}
	if transcriber != nil {
		r.transcriber = lazy[Transcriber]{value: transcriber, ready: true}
	}
	return r
}

func (r *Registry) TextEmbedder(ctx context.Context) (TextEmbedder, error) {
	return r.text.get(ctx)
}

func (r *Registry) VisualEmbedder(ctx context.Context) (VisualEmbedder, error) {
	return r.visual.get(ctx)
}

func (r *Registry) Transcriber(ctx context.Context) (Transcriber, error) {
	return r.transcriber.get(ctx)
}

// Available reports which roles have a provider or a factory.
func (r *Registry) Available() map[string]bool {
	return map[string]bool{
		"text_embedder":   r.text.configured(),
		"visual_embedder": r.visual.configured(),
		"transcriber":     r.transcriber.configured(),
	}
}

// Close releases every initialised provider that implements io.Closer.
func (r *Registry) Close() {
	for name, closer := range map[string]func() error{
		"text_embedder":   r.text.close,
		"visual_embedder": r.visual.close,
		"transcriber":     r.transcriber.close,
	} {
		if err := closer(); err != nil {
			slog.Warn("failed to close provider", "role", name, "error", err)
		}
	}
}
