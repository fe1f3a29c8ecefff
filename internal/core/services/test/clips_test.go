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
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/services"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipCreate(t *testing.T) {
	ctx := context.Background()
	f := newVideoFixture(t)
	f.ingested(t, "vid-clip")

	clip, err := f.clips.Create(ctx, &model.ClipRequest{VideoId: "vid-clip", StartTime: 10.7, EndTime: 25.2})
	require.NoError(t, err)
	assert.Equal(t, "clip_vid-clip_10_25.mp4", clip.Filename)
	assert.Equal(t, "/download-clip/clip_vid-clip_10_25.mp4", clip.ClipUrl)

	path, err := f.clips.ClipPath(clip.Filename)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestClipCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newVideoFixture(t)
	f.ingested(t, "vid-clip")
	busy := f.layout.NewSession("vid-busy", "busy.mp4")
	require.NoError(t, f.sessions.Save(ctx, busy))

	_, err := f.clips.Create(ctx, &model.ClipRequest{VideoId: "vid-clip", StartTime: 5, EndTime: 5})
	assert.ErrorIs(t, err, model.ErrInvalidQuery)
	_, err = f.clips.Create(ctx, &model.ClipRequest{VideoId: "vid-clip", StartTime: -1, EndTime: 5})
	assert.ErrorIs(t, err, model.ErrInvalidQuery)
	_, err = f.clips.Create(ctx, &model.ClipRequest{VideoId: "missing", StartTime: 0, EndTime: 5})
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.clips.Create(ctx, &model.ClipRequest{VideoId: "vid-busy", StartTime: 0, EndTime: 5})
	assert.ErrorIs(t, err, model.ErrNotReady)
}

func TestClipPathRejectsTraversal(t *testing.T) {
	f := newVideoFixture(t)
	for _, name := range []string{"../secret.mp4", "..", "a/b.mp4", `a\b.mp4`, ""} {
		_, err := f.clips.ClipPath(name)
		assert.ErrorIs(t, err, model.ErrInvalidQuery, name)
	}
	_, err := f.clips.ClipPath("clip_none_0_1.mp4")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBookmarks(t *testing.T) {
	ctx := context.Background()
	f := newVideoFixture(t)
	f.ingested(t, "vid-bm")

	first, err := f.bookmarks.Create(ctx, &model.BookmarkRequest{VideoId: "vid-bm", Timestamp: 12.5, Note: "demo starts"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.Id)
	_, err = f.bookmarks.Create(ctx, &model.BookmarkRequest{VideoId: "vid-bm", Timestamp: 40})
	require.NoError(t, err)

	list, err := f.bookmarks.List(ctx, "vid-bm")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Id, list[0].Id)
	assert.Equal(t, "demo starts", list[0].Note)
	assert.Equal(t, 40.0, list[1].Timestamp)

	_, err = f.bookmarks.Create(ctx, &model.BookmarkRequest{VideoId: "missing", Timestamp: 1})
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.bookmarks.Create(ctx, &model.BookmarkRequest{VideoId: "vid-bm", Timestamp: -2})
	assert.ErrorIs(t, err, model.ErrInvalidQuery)
}

func TestHistoryOrder(t *testing.T) {
	ctx := context.Background()
	history := &services.HistoryService{Store: store.NewMemoryKeyedStore()}
	for _, q := range []string{"first", "second", "third"} {
		require.NoError(t, history.Record(ctx, "vid", &model.HistoryEntry{Query: q, SearchType: model.SearchTypeText}))
	}
	entries, err := history.List(ctx, "vid")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Query)
	assert.Equal(t, "third", entries[2].Query)

	require.NoError(t, history.Delete(ctx, "vid"))
	entries, err = history.List(ctx, "vid")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 10, 11, 9, 0, 0, 0, time.UTC)
	limiter := &services.RateLimiter{Store: store.NewMemoryKeyedStore(), Limit: 2, Now: func() time.Time { return day }}

	remaining, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	remaining, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	_, err = limiter.Allow(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, model.ErrRateLimited)

	remaining, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	day = day.Add(24 * time.Hour)
	remaining, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}
