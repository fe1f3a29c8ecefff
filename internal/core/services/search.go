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

// Package services contains the business logic behind the HTTP surface and
// the CLI. This file holds the retrieval engine: it embeds a query in the
// text and visual spaces, scores the segments and frames of one video and
// returns a single ranked, deduplicated list.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HistoryRecorder receives an entry for every completed search.
type HistoryRecorder interface {
	Record(ctx context.Context, videoId string, entry *model.HistoryEntry) error
}

// SearchService runs searches against completed video sessions. It only
// reads session data.
type SearchService struct {
	Sessions  store.SessionStore
	Providers *providers.Registry
	History   HistoryRecorder
	Policy    SearchPolicy
}

// modeResult is the outcome of one embedding space.
type modeResult struct {
	candidates []*model.SearchResult
	err        error
}

// Search validates the request, scores every requested mode and ranks the
// combined candidates.
func (s *SearchService) Search(ctx context.Context, req *model.SearchRequest) (*model.SearchResponse, error) {
	ctx, span := otel.Tracer("search-service").Start(ctx, "search")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", model.ErrInvalidQuery)
	}
	if req.TopK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1", model.ErrInvalidQuery)
	}
	searchType, err := model.ParseSearchType(string(req.SearchType))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("video_id", req.VideoId),
		attribute.String("search_type", string(searchType)),
		attribute.Int("top_k", req.TopK),
	)

	session, err := s.Sessions.Load(ctx, req.VideoId)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotReady, req.VideoId)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, model.ErrInfrastructure) {
			err = fmt.Errorf("%w: %w", model.ErrInfrastructure, err)
		}
		return nil, err
	}
	if !session.IsReady() {
		return nil, fmt.Errorf("%w: %s is %s", model.ErrNotReady, req.VideoId, session.Status)
	}

	var text, visual modeResult
	switch searchType {
	case model.SearchTypeText:
		text = s.textCandidates(ctx, session, query, 1)
	case model.SearchTypeVisual:
		visual = s.visualCandidates(ctx, session, query, math.Inf(-1))
		if visual.err == nil {
			visual.candidates = truncateVisual(visual.candidates, s.Policy.VisualOversample*req.TopK)
		}
	case model.SearchTypeHybrid:
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			text = s.textCandidates(ctx, session, query, s.Policy.TextWeight)
		}()
		go func() {
			defer wg.Done()
			visual = s.visualCandidates(ctx, session, query, s.Policy.HybridVisualThreshold)
		}()
		wg.Wait()
		for _, c := range visual.candidates {
			c.Score *= s.Policy.VisualWeight
		}
	}

	if err := s.checkModes(ctx, searchType, text, visual); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	candidates := append(text.candidates, visual.candidates...)
	results, total := Rank(candidates, req.TopK)

	s.record(ctx, req.VideoId, query, searchType, results, total)
	return &model.SearchResponse{
		Results:      results,
		TotalMatches: total,
		SearchType:   searchType,
		Model:        session.ModelName(),
	}, nil
}

// checkModes logs failed modes and fails the request only when every
// requested mode failed.
func (s *SearchService) checkModes(ctx context.Context, searchType model.SearchType, text, visual modeResult) error {
	var requested []modeResult
	switch searchType {
	case model.SearchTypeText:
		requested = []modeResult{text}
	case model.SearchTypeVisual:
		requested = []modeResult{visual}
	default:
		requested = []modeResult{text, visual}
	}
	var errs []error
	for _, m := range requested {
		if m.err != nil {
			slog.WarnContext(ctx, "search mode degraded", "search_type", searchType, "error", m.err)
			errs = append(errs, m.err)
		}
	}
	if len(errs) == len(requested) {
		return fmt.Errorf("%w: %w", model.ErrProvider, errors.Join(errs...))
	}
	return nil
}

func (s *SearchService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Policy.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Policy.ProviderTimeout)
}

// textCandidates scores every segment against the query in the text space.
// weight scales the final score.
func (s *SearchService) textCandidates(ctx context.Context, session *model.VideoSession, query string, weight float64) modeResult {
	if !hasSegmentEmbeddings(session) {
		return modeResult{candidates: []*model.SearchResult{}}
	}
	embedder, err := s.Providers.TextEmbedder(ctx)
	if err != nil {
		return modeResult{err: err}
	}
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	qv, err := providers.EmbedOne(tctx, embedder, query)
	if err != nil {
		return modeResult{err: fmt.Errorf("text query embedding: %w", err)}
	}

	lowered := strings.ToLower(query)
	out := make([]*model.SearchResult, 0)
	for _, seg := range session.Segments {
		if len(seg.Embedding) == 0 {
			continue
		}
		score := Cosine(qv, seg.Embedding)
		if strings.Contains(strings.ToLower(seg.Text), lowered) {
			score += s.Policy.KeywordBonus
		}
		score = min(score, 1.0)
		if score <= s.Policy.TextThreshold {
			continue
		}
		out = append(out, &model.SearchResult{
			Timestamp:  seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			Score:      score * weight,
			SearchType: model.SearchTypeText,
		})
	}
	return modeResult{candidates: out}
}

// visualCandidates scores every frame against the query in the visual space.
// Frames at or below threshold are dropped.
func (s *SearchService) visualCandidates(ctx context.Context, session *model.VideoSession, query string, threshold float64) modeResult {
	if !hasFrameEmbeddings(session) {
		return modeResult{candidates: []*model.SearchResult{}}
	}
	embedder, err := s.Providers.VisualEmbedder(ctx)
	if err != nil {
		return modeResult{err: err}
	}
	tctx, cancel := s.withTimeout(ctx)
	defer cancel()
	qv, err := embedder.EmbedQuery(tctx, query)
	if err != nil {
		return modeResult{err: fmt.Errorf("visual query embedding: %w", err)}
	}

	out := make([]*model.SearchResult, 0, len(session.Frames))
	for _, f := range session.Frames {
		if len(f.Embedding) == 0 {
			continue
		}
		sim := Cosine(qv, f.Embedding)
		if sim <= threshold {
			continue
		}
		clipScore := round3(sim)
		out = append(out, &model.SearchResult{
			Timestamp:  f.Timestamp,
			End:        f.Timestamp + 1,
			Text:       session.SegmentTextAt(f.Timestamp),
			Score:      sim,
			SearchType: model.SearchTypeVisual,
			FrameUrl:   fmt.Sprintf("/frame/%s/%d", session.Id, f.FrameNumber),
			ClipScore:  &clipScore,
		})
	}
	return modeResult{candidates: out}
}

func truncateVisual(in []*model.SearchResult, n int) []*model.SearchResult {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Score > in[j].Score })
	if n >= 0 && len(in) > n {
		return in[:n]
	}
	return in
}

func (s *SearchService) record(ctx context.Context, videoId string, query string, searchType model.SearchType, results []*model.SearchResult, total int) {
	if s.History == nil {
		return
	}
	entry := &model.HistoryEntry{
		Query:        query,
		SearchType:   searchType,
		Timestamp:    time.Now(),
		ResultsCount: total,
	}
	if len(results) > 0 {
		entry.TopScore = results[0].Score
	}
	if err := s.History.Record(ctx, videoId, entry); err != nil {
		slog.WarnContext(ctx, "failed to record search history", "video_id", videoId, "error", err)
	}
}

func hasSegmentEmbeddings(v *model.VideoSession) bool {
	for _, s := range v.Segments {
		if len(s.Embedding) > 0 {
			return true
		}
	}
	return false
}

func hasFrameEmbeddings(v *model.VideoSession) bool {
	for _, f := range v.Frames {
		if len(f.Embedding) > 0 {
			return true
		}
	}
	return false
}
