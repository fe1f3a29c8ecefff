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
	"testing"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionStore(t *testing.T) *store.GormSessionStore {
	t.Helper()
	db, err := store.OpenDatabase(":memory:", false)
	require.NoError(t, err)
	s, err := store.NewGormSessionStore(db)
	require.NoError(t, err)
	return s
}

func sampleSession() *model.VideoSession {
	v := model.NewVideoSession("vid-1", "trailer.mp4", "/data/uploads/vid-1.mp4")
	v.FramesDir = "/data/cache/vid-1"
	v.TextModel = "text-embedding-005"
	v.VisualModel = "clip-vit-base-patch32"
	v.Segments = []*model.Segment{
		{Start: 0, End: 2.5, Text: "cats are great", Embedding: []float32{0.6, 0.8}},
		{Start: 3, End: 5, Text: "dogs too", Embedding: []float32{1, 0}},
	}
	v.Frames = []*model.Frame{
		{Timestamp: 0, FrameNumber: 0, Path: "/data/cache/vid-1/frame_00001.jpg", Embedding: []float32{0, 1, 0}},
		{Timestamp: 1, FrameNumber: 1, Path: "/data/cache/vid-1/frame_00002.jpg"},
	}
	v.Status = model.StatusCompleted
	v.Progress = 1
	v.ComputeDuration()
	return v
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSessionStore(t)
	require.NoError(t, s.Save(ctx, sampleSession()))

	got, err := s.Load(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, "trailer.mp4", got.Filename)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 5.0, got.Duration)
	require.Len(t, got.Segments, 2)
	assert.Equal(t, "cats are great", got.Segments[0].Text)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, got.Segments[0].Embedding, 1e-6)
	require.Len(t, got.Frames, 2)
	assert.Equal(t, 1, got.Frames[1].FrameNumber)
	assert.Nil(t, got.Frames[1].Embedding)
	assert.Equal(t, "clip-vit-base-patch32 + text-embedding-005", got.ModelName())
}

func TestSessionSaveReplacesChildren(t *testing.T) {
	ctx := context.Background()
	s := newSessionStore(t)
	v := sampleSession()
	require.NoError(t, s.Save(ctx, v))

	v.Segments = v.Segments[:1]
	v.Frames = nil
	require.NoError(t, s.Save(ctx, v))

	got, err := s.Load(ctx, "vid-1")
	require.NoError(t, err)
	assert.Len(t, got.Segments, 1)
	assert.Empty(t, got.Frames)
}

func TestSessionStatus(t *testing.T) {
	ctx := context.Background()
	s := newSessionStore(t)
	v := model.NewVideoSession("vid-2", "a.mp4", "a.mp4")
	require.NoError(t, s.Save(ctx, v))

	st, err := s.LoadStatus(ctx, "vid-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, st.Status)
	assert.Equal(t, "Queued for processing", st.Message)

	require.NoError(t, s.SaveStatus(ctx, &model.ProcessingStatus{VideoId: "vid-2", Status: model.StatusTranscribing, Progress: 0.3, Message: "Transcribing audio..."}))
	st, err = s.LoadStatus(ctx, "vid-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusTranscribing, st.Status)
	assert.Equal(t, 0.3, st.Progress)

	err = s.SaveStatus(ctx, &model.ProcessingStatus{VideoId: "missing", Status: model.StatusError})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSessionDelete(t *testing.T) {
	ctx := context.Background()
	s := newSessionStore(t)
	require.NoError(t, s.Save(ctx, sampleSession()))

	require.NoError(t, s.Delete(ctx, "vid-1"))
	_, err := s.Load(ctx, "vid-1")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	err = s.Delete(ctx, "vid-1")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSessionList(t *testing.T) {
	ctx := context.Background()
	s := newSessionStore(t)
	require.NoError(t, s.Save(ctx, sampleSession()))
	require.NoError(t, s.Save(ctx, model.NewVideoSession("vid-3", "b.mp4", "b.mp4")))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
