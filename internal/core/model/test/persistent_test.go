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

// Package model_test covers the constructors and derived values of the
// session types.
package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/stretchr/testify/assert"
)

// TestNewVideoSession checks the initial queued state of a session.
func TestNewVideoSession(t *testing.T) {
	v := model.NewVideoSession("abc", "trailer.mp4", "/tmp/abc.mp4")

	assert.Equal(t, "abc", v.Id)
	assert.Equal(t, model.StatusQueued, v.Status)
	assert.Equal(t, "Queued for processing", v.Message)
	assert.Equal(t, 0.0, v.Progress)
	assert.Equal(t, model.DefaultFrameInterval, v.FrameInterval)
	assert.Empty(t, v.Segments)
	assert.Empty(t, v.Frames)
	assert.WithinDuration(t, time.Now(), v.CreateDate, time.Second)
	assert.False(t, v.IsReady())

	v.Status = model.StatusCompleted
	assert.True(t, v.IsReady())

	var missing *model.VideoSession
	assert.False(t, missing.IsReady())
}

func TestComputeDuration(t *testing.T) {
	v := model.NewVideoSession("abc", "a.mp4", "a.mp4")
	assert.Equal(t, 0.0, v.ComputeDuration())

	v.Frames = []*model.Frame{{Timestamp: 0}, {Timestamp: 4}, {Timestamp: 2}}
	assert.Equal(t, 4.0, v.ComputeDuration())

	// Segments win over frames.
	v.Segments = []*model.Segment{{Start: 0, End: 3.5}, {Start: 5, End: 9.25}}
	assert.Equal(t, 9.25, v.ComputeDuration())
	assert.Equal(t, 9.25, v.Duration)
}

func TestSegmentTextAt(t *testing.T) {
	v := model.NewVideoSession("abc", "a.mp4", "a.mp4")
	v.Segments = []*model.Segment{
		{Start: 0, End: 2, Text: "first"},
		{Start: 2, End: 4, Text: "second"},
	}

	assert.Equal(t, "first", v.SegmentTextAt(2))
	assert.Equal(t, "second", v.SegmentTextAt(3))
	assert.Equal(t, "Visual content at 7.0s", v.SegmentTextAt(7))
}

func TestModelName(t *testing.T) {
	v := &model.VideoSession{}
	assert.Equal(t, "Unknown", v.ModelName())
	v.TextModel = "text-embedding-005"
	assert.Equal(t, "text-embedding-005", v.ModelName())
	v.VisualModel = "clip-vit-base-patch32"
	assert.Equal(t, "clip-vit-base-patch32 + text-embedding-005", v.ModelName())
}

func TestGenerateVideoId(t *testing.T) {
	at := time.Date(2024, 10, 11, 3, 4, 8, 0, time.UTC)
	id := model.GenerateVideoId("trailer.mp4", at)

	assert.Len(t, id, 16)
	assert.Equal(t, id, model.GenerateVideoId("trailer.mp4", at))
	assert.NotEqual(t, id, model.GenerateVideoId("trailer.mp4", at.Add(time.Millisecond)))
}

func TestParseSearchType(t *testing.T) {
	st, err := model.ParseSearchType("")
	assert.NoError(t, err)
	assert.Equal(t, model.SearchTypeHybrid, st)

	st, err = model.ParseSearchType(" Visual ")
	assert.NoError(t, err)
	assert.Equal(t, model.SearchTypeVisual, st)

	_, err = model.ParseSearchType("audio")
	assert.True(t, errors.Is(err, model.ErrInvalidQuery))
}

func TestNewCatalogEntry(t *testing.T) {
	v := model.NewVideoSession("abc", "a.mp4", "a.mp4")
	v.Segments = []*model.Segment{{Start: 0, End: 1, Text: "hello"}}
	v.Frames = []*model.Frame{{}, {}}
	v.TextModel = "t"
	v.VisualModel = "v"

	e := model.NewCatalogEntry(v)
	assert.Equal(t, "abc", e.Id)
	assert.Equal(t, 1, e.SegmentsCount)
	assert.Equal(t, 2, e.FramesCount)
	assert.Equal(t, "v", e.VisualModel)
}
