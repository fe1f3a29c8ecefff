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
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// MaxRetries bounds the attempts a quota-aware provider makes per call.
const MaxRetries = 3

// QuotaAwareTextEmbedder throttles a TextEmbedder to a request rate and
// retries failed calls with a linear backoff.
type QuotaAwareTextEmbedder struct {
	wrapped TextEmbedder
	limiter *rate.Limiter
	backoff time.Duration
}

var _ TextEmbedder = (*QuotaAwareTextEmbedder)(nil)

// NewQuotaAwareTextEmbedder allows requestsPerSecond calls with an equal burst.
// A non-positive rate disables throttling.
func NewQuotaAwareTextEmbedder(wrapped TextEmbedder, requestsPerSecond int, backoff time.Duration) *QuotaAwareTextEmbedder {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = requestsPerSecond
	}
	return &QuotaAwareTextEmbedder{
		wrapped: wrapped,
		limiter: rate.NewLimiter(limit, burst),
		backoff: backoff,
	}
}

func (q *QuotaAwareTextEmbedder) Model() string {
	return q.wrapped.Model()
}

func (q *QuotaAwareTextEmbedder) EmbedTexts(ctx context.Context, texts []string) (out [][]float32, err error) {
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		if werr := q.limiter.Wait(ctx); werr != nil {
			return nil, wrap("quota wait", werr)
		}
		out, err = q.wrapped.EmbedTexts(ctx, texts)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return out, err
		}
		slog.WarnContext(ctx, "embedding call failed", "model", q.Model(), "attempt", attempt, "error", err)
		if attempt == MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, wrap("quota backoff", ctx.Err())
		case <-time.After(q.backoff * time.Duration(attempt)):
		}
	}
	return nil, wrap("embed after retries", err)
}

func (q *QuotaAwareTextEmbedder) Close() error {
	if c, ok := q.wrapped.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
