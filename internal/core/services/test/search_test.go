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

package services_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/services"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	test "github.com/jaycherian/gcp-go-clip-finder/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorTextEmbedder maps known texts to fixed vectors.
type vectorTextEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (v *vectorTextEmbedder) Model() string { return "fixed-text" }

func (v *vectorTextEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if v.err != nil {
		return nil, v.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = v.vectors[t]
	}
	return out, nil
}

// unit returns a 2D unit vector whose cosine with (1, 0) is c.
func unit(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func saveSession(t *testing.T, sessions store.SessionStore, session *model.VideoSession) {
	t.Helper()
	require.NoError(t, sessions.Save(context.Background(), session))
}

func completedSession(id string) *model.VideoSession {
	s := model.NewVideoSession(id, id+".mp4", "/tmp/"+id+".mp4")
	s.Status = model.StatusCompleted
	s.Progress = 1
	return s
}

func newSearch(t *testing.T, text providers.TextEmbedder, visual providers.VisualEmbedder) (*services.SearchService, store.SessionStore, *services.HistoryService) {
	t.Helper()
	sessions := test.NewSessionStore(t)
	history := &services.HistoryService{Store: store.NewMemoryKeyedStore()}
	return &services.SearchService{
		Sessions:  sessions,
		Providers: providers.NewStaticRegistry(text, visual, nil),
		History:   history,
		Policy:    services.DefaultSearchPolicy(),
	}, sessions, history
}

func TestTextSearchKeywordMatch(t *testing.T) {
	ctx := context.Background()
	embedder := &test.HashTextEmbedder{}
	svc, sessions, history := newSearch(t, embedder, nil)

	session := completedSession("vid-text")
	session.TextModel = embedder.Model()
	texts := []string{"cats are great", "sunny weather today"}
	vectors, err := embedder.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	for i, text := range texts {
		session.Segments = append(session.Segments, &model.Segment{
			Start: float64(i * 5), End: float64(i*5 + 4), Text: text, Embedding: vectors[i]})
	}
	saveSession(t, sessions, session)

	resp, err := svc.Search(ctx, &model.SearchRequest{VideoId: "vid-text", Query: "Cats", SearchType: model.SearchTypeText, TopK: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.Equal(t, "cats are great", r.Text)
	assert.Equal(t, model.SearchTypeText, r.SearchType)
	assert.Greater(t, r.Score, 0.3)
	assert.LessOrEqual(t, r.Score, 1.0)
	assert.Equal(t, 0.0, r.Timestamp)
	assert.Equal(t, 4.0, r.End)
	assert.Nil(t, r.ClipScore)
	assert.Equal(t, 1, resp.TotalMatches)
	assert.Equal(t, "hash-bow", resp.Model)

	entries, err := history.List(ctx, "vid-text")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Cats", entries[0].Query)
	assert.Equal(t, 1, entries[0].ResultsCount)
	assert.Equal(t, r.Score, entries[0].TopScore)
}

func TestVisualSearchOrdersAndTruncates(t *testing.T) {
	ctx := context.Background()
	visual := &test.FakeVisualEmbedder{Queries: map[string][]float32{"a red car": {1, 0}}}
	svc, sessions, _ := newSearch(t, nil, visual)

	session := completedSession("vid-visual")
	session.VisualModel = visual.Model()
	session.Segments = []*model.Segment{{Start: 0, End: 1.5, Text: "opening shot"}}
	for i, c := range []float64{0.9, 0.1, 0.5} {
		session.Frames = append(session.Frames, &model.Frame{
			Timestamp: float64(i), FrameNumber: i, Path: "f.jpg", Embedding: unit(c)})
	}
	saveSession(t, sessions, session)

	resp, err := svc.Search(ctx, &model.SearchRequest{VideoId: "vid-visual", Query: "a red car", SearchType: model.SearchTypeVisual, TopK: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.InDelta(t, 0.9, resp.Results[0].Score, 1e-6)
	assert.InDelta(t, 0.5, resp.Results[1].Score, 1e-6)
	assert.Equal(t, 3, resp.TotalMatches)

	first := resp.Results[0]
	assert.Equal(t, "/frame/vid-visual/0", first.FrameUrl)
	require.NotNil(t, first.ClipScore)
	assert.Equal(t, 0.9, *first.ClipScore)
	assert.Equal(t, 1.0, first.End)
	assert.Equal(t, "opening shot", first.Text)
	assert.Equal(t, "Visual content at 2.0s", resp.Results[1].Text)
}

func TestHybridSearchWeightsBothModes(t *testing.T) {
	ctx := context.Background()
	text := &vectorTextEmbedder{vectors: map[string][]float32{"harbour": {1, 0}}}
	visual := &test.FakeVisualEmbedder{Queries: map[string][]float32{"harbour": {1, 0}}}
	svc, sessions, _ := newSearch(t, text, visual)

	session := completedSession("vid-hybrid")
	session.TextModel = text.Model()
	session.VisualModel = visual.Model()
	session.Segments = []*model.Segment{{Start: 5, End: 8, Text: "boats at the dock", Embedding: unit(0.8)}}
	session.Frames = []*model.Frame{
		{Timestamp: 20, FrameNumber: 20, Path: "a.jpg", Embedding: unit(0.25)},
		{Timestamp: 21, FrameNumber: 21, Path: "b.jpg", Embedding: unit(0.15)},
	}
	saveSession(t, sessions, session)

	resp, err := svc.Search(ctx, &model.SearchRequest{VideoId: "vid-hybrid", Query: "harbour", TopK: 10})
	require.NoError(t, err)
	assert.Equal(t, model.SearchTypeHybrid, resp.SearchType)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, model.SearchTypeText, resp.Results[0].SearchType)
	assert.InDelta(t, 0.4, resp.Results[0].Score, 1e-5)
	assert.Equal(t, model.SearchTypeVisual, resp.Results[1].SearchType)
	assert.InDelta(t, 0.125, resp.Results[1].Score, 1e-5)
	assert.Equal(t, "fake-clip + fixed-text", resp.Model)
}

func TestHybridDegradesWhenOneModeFails(t *testing.T) {
	ctx := context.Background()
	text := &vectorTextEmbedder{err: errors.New("quota exceeded")}
	visual := &test.FakeVisualEmbedder{Default: []float32{1, 0}}
	svc, sessions, _ := newSearch(t, text, visual)

	session := completedSession("vid-degrade")
	session.Segments = []*model.Segment{{Start: 0, End: 3, Text: "hello there", Embedding: unit(1)}}
	session.Frames = []*model.Frame{{Timestamp: 2, FrameNumber: 2, Path: "a.jpg", Embedding: unit(0.9)}}
	saveSession(t, sessions, session)

	resp, err := svc.Search(ctx, &model.SearchRequest{VideoId: "vid-degrade", Query: "hello", SearchType: model.SearchTypeHybrid, TopK: 5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, model.SearchTypeVisual, resp.Results[0].SearchType)

	_, err = svc.Search(ctx, &model.SearchRequest{VideoId: "vid-degrade", Query: "hello", SearchType: model.SearchTypeText, TopK: 5})
	assert.ErrorIs(t, err, model.ErrProvider)
}

func TestSearchWithoutEmbeddingsReturnsNothing(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newSearch(t, nil, nil)
	saveSession(t, sessions, completedSession("vid-empty"))

	resp, err := svc.Search(ctx, &model.SearchRequest{VideoId: "vid-empty", Query: "anything", SearchType: model.SearchTypeHybrid, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.TotalMatches)
	assert.Equal(t, "Unknown", resp.Model)
}

func TestSearchValidation(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := newSearch(t, &test.HashTextEmbedder{}, nil)
	processing := completedSession("vid-busy")
	processing.Status = model.StatusTranscribing
	saveSession(t, sessions, processing)

	cases := []struct {
		name string
		req  *model.SearchRequest
		want error
	}{
		{"empty query", &model.SearchRequest{VideoId: "vid-busy", Query: "   ", TopK: 3}, model.ErrInvalidQuery},
		{"zero top k", &model.SearchRequest{VideoId: "vid-busy", Query: "x", TopK: 0}, model.ErrInvalidQuery},
		{"unknown type", &model.SearchRequest{VideoId: "vid-busy", Query: "x", SearchType: "audio", TopK: 3}, model.ErrInvalidQuery},
		{"unknown video", &model.SearchRequest{VideoId: "missing", Query: "x", TopK: 3}, model.ErrNotReady},
		{"still processing", &model.SearchRequest{VideoId: "vid-busy", Query: "x", TopK: 3}, model.ErrNotReady},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.Search(ctx, c.req)
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestSearchIsDeterministic(t *testing.T) {
	ctx := context.Background()
	embedder := &test.HashTextEmbedder{}
	visual := &test.FakeVisualEmbedder{Default: []float32{0.6, 0.8}}
	svc, sessions, _ := newSearch(t, embedder, visual)

	session := completedSession("vid-same")
	texts := []string{"go routines", "go channels", "go maps"}
	vectors, _ := embedder.EmbedTexts(ctx, texts)
	for i, text := range texts {
		session.Segments = append(session.Segments, &model.Segment{Start: float64(i), End: float64(i) + 1, Text: text, Embedding: vectors[i]})
		session.Frames = append(session.Frames, &model.Frame{Timestamp: float64(i) + 0.5, FrameNumber: i, Path: "f.jpg", Embedding: unit(0.6)})
	}
	saveSession(t, sessions, session)

	req := &model.SearchRequest{VideoId: "vid-same", Query: "go", TopK: 10}
	first, err := svc.Search(ctx, req)
	require.NoError(t, err)
	second, err := svc.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	for i := 1; i < len(first.Results); i++ {
		assert.GreaterOrEqual(t, first.Results[i-1].Score, first.Results[i].Score)
	}
}
