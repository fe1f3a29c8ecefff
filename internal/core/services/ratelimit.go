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

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
)

// counterTTL outlives the day a counter belongs to.
const counterTTL = 48 * time.Hour

// RateLimiter counts uploads per client per calendar day.
type RateLimiter struct {
	Store store.KeyedStore
	// Limit is the daily allowance; zero or less disables limiting.
	Limit int
	Now   func() time.Time
}

func (r *RateLimiter) key(client string) string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return fmt.Sprintf("ratelimit:%s:%s", client, now().Format(time.DateOnly))
}

// Allow consumes one unit of the client's allowance and returns what is left.
// Once exhausted it returns model.ErrRateLimited.
func (r *RateLimiter) Allow(ctx context.Context, client string) (remaining int, err error) {
	if r.Limit <= 0 {
		return -1, nil
	}
	n, err := r.Store.Incr(ctx, r.key(client), counterTTL)
	if err != nil {
		return 0, err
	}
	if n > int64(r.Limit) {
		return 0, fmt.Errorf("%w: maximum %d uploads per day", model.ErrRateLimited, r.Limit)
	}
	return r.Limit - int(n), nil
}
