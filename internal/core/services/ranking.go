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
	"math"
	"sort"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// SearchPolicy holds the weights and thresholds of the ranking pipeline.
type SearchPolicy struct {
	KeywordBonus          float64
	TextThreshold         float64
	TextWeight            float64
	VisualWeight          float64
	HybridVisualThreshold float64
	VisualOversample      int
	ProviderTimeout       time.Duration
}

// DefaultSearchPolicy is the policy used when nothing is configured.
func DefaultSearchPolicy() SearchPolicy {
	return SearchPolicy{
		KeywordBonus:          0.3,
		TextThreshold:         0.3,
		TextWeight:            0.5,
		VisualWeight:          0.5,
		HybridVisualThreshold: 0.2,
		VisualOversample:      2,
		ProviderTimeout:       30 * time.Second,
	}
}

// SearchPolicyFromConfig maps the [search] section onto a policy.
func SearchPolicyFromConfig(c cloud.Search) SearchPolicy {
	p := SearchPolicy{
		KeywordBonus:          c.KeywordBonus,
		TextThreshold:         c.TextThreshold,
		TextWeight:            c.TextWeight,
		VisualWeight:          c.VisualWeight,
		HybridVisualThreshold: c.HybridVisualThreshold,
		VisualOversample:      c.VisualOversample,
		ProviderTimeout:       time.Duration(c.ProviderTimeoutSeconds) * time.Second,
	}
	if p.VisualOversample < 1 {
		p.VisualOversample = 1
	}
	if p.ProviderTimeout <= 0 {
		p.ProviderTimeout = DefaultSearchPolicy().ProviderTimeout
	}
	return p
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// bucketOf maps a timestamp to its 100ms dedup bucket. The epsilon absorbs
// float error so 10.1 lands in bucket 101 rather than 100.
func bucketOf(ts float64) int64 {
	return int64(math.Floor(ts*10 + 1e-6))
}

// BucketOf is exported for callers that group results the same way.
func BucketOf(ts float64) int64 {
	return bucketOf(ts)
}

func sortByScore(results []*model.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// Rank orders candidates by score, keeps the first candidate per 100ms bucket
// and truncates to topK. It returns the truncated list and the number of
// results that survived deduplication.
func Rank(candidates []*model.SearchResult, topK int) ([]*model.SearchResult, int) {
	sorted := make([]*model.SearchResult, len(candidates))
	copy(sorted, candidates)
	sortByScore(sorted)

	seen := make(map[int64]struct{}, len(sorted))
	unique := make([]*model.SearchResult, 0, len(sorted))
	for _, r := range sorted {
		b := bucketOf(r.Timestamp)
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		unique = append(unique, r)
	}
	sortByScore(unique)

	total := len(unique)
	if topK >= 0 && len(unique) > topK {
		unique = unique[:topK]
	}
	return unique, total
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
