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

package workflow_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-clip-finder/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore remembers every progress value written through SaveStatus.
type recordingStore struct {
	store.SessionStore
	mu       sync.Mutex
	progress []float64
}

func (r *recordingStore) SaveStatus(ctx context.Context, status *model.ProcessingStatus) error {
	r.mu.Lock()
	r.progress = append(r.progress, status.Progress)
	r.mu.Unlock()
	return r.SessionStore.SaveStatus(ctx, status)
}

type blockingTranscriber struct {
	started chan struct{}
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, _ string) ([]*model.Segment, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func transcript() *test.FakeTranscriber {
	return &test.FakeTranscriber{Segments: []*model.Segment{
		{Start: 0, End: 2.5, Text: "  welcome to the course "},
		{Start: 2.5, End: 3, Text: "ok"},
		{Start: 3, End: 8.5, Text: "goroutines and channels"},
	}}
}

func newSession(t *testing.T, w *workflow.VideoIngestWorkflow, id string) *model.VideoSession {
	t.Helper()
	session := w.Layout().NewSession(id, id+".mp4")
	require.NoError(t, os.WriteFile(session.VideoPath, []byte("video"), 0o644))
	return session
}

func runToEnd(t *testing.T, w *workflow.VideoIngestWorkflow, session *model.VideoSession) {
	t.Helper()
	require.NoError(t, w.Submit(ctx, session))
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, w.Wait(waitCtx, session.Id))
}

func TestIngestCompletes(t *testing.T) {
	cfg := test.TempConfig(t)
	sessions := &recordingStore{SessionStore: test.NewSessionStore(t)}
	registry := providers.NewStaticRegistry(&test.HashTextEmbedder{},
		&test.FakeVisualEmbedder{Default: []float32{1, 0}}, transcript())
	w := workflow.NewVideoIngestWorkflow(cfg, registry, sessions, workflow.IngestClients{Runner: test.FakeToolRunner(7)})
	defer w.Close()

	runToEnd(t, w, newSession(t, w, "vid-complete"))

	loaded, err := sessions.Load(ctx, "vid-complete")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Status)
	assert.Equal(t, 1.0, loaded.Progress)
	assert.Equal(t, "Processing complete!", loaded.Message)
	require.Len(t, loaded.Segments, 2)
	assert.Equal(t, "welcome to the course", loaded.Segments[0].Text)
	assert.NotEmpty(t, loaded.Segments[0].Embedding)
	require.Len(t, loaded.Frames, 7)
	assert.Equal(t, 6.0, loaded.Frames[6].Timestamp)
	assert.Equal(t, []float32{1, 0}, loaded.Frames[3].Embedding)
	assert.Equal(t, "hash-bow", loaded.TextModel)
	assert.Equal(t, "fake-clip", loaded.VisualModel)
	assert.Equal(t, 8.5, loaded.Duration)

	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	require.NotEmpty(t, sessions.progress)
	for i := 1; i < len(sessions.progress); i++ {
		assert.GreaterOrEqual(t, sessions.progress[i], sessions.progress[i-1])
	}
	assert.Equal(t, 1.0, sessions.progress[len(sessions.progress)-1])
}

func TestIngestFromURL(t *testing.T) {
	cfg := test.TempConfig(t)
	sessions := test.NewSessionStore(t)
	registry := providers.NewStaticRegistry(&test.HashTextEmbedder{}, nil, transcript())
	w := workflow.NewVideoIngestWorkflow(cfg, registry, sessions, workflow.IngestClients{Runner: test.FakeToolRunner(3)})
	defer w.Close()

	session := w.Layout().NewSession("vid-url", "video.mp4")
	session.SourceURL = "https://example.com/watch?v=abc"
	runToEnd(t, w, session)

	loaded, err := sessions.Load(ctx, "vid-url")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Status)
	assert.FileExists(t, session.VideoPath)
	// No visual embedder: frames are kept without vectors.
	assert.Len(t, loaded.Frames, 3)
	assert.Empty(t, loaded.VisualModel)
	assert.Equal(t, "hash-bow", loaded.ModelName())
}

func TestIngestFrameFailureDegrades(t *testing.T) {
	cfg := test.TempConfig(t)
	sessions := test.NewSessionStore(t)
	registry := providers.NewStaticRegistry(&test.HashTextEmbedder{},
		&test.FakeVisualEmbedder{Default: []float32{1, 0}}, transcript())
	w := workflow.NewVideoIngestWorkflow(cfg, registry, sessions,
		workflow.IngestClients{Runner: test.FailingToolRunner(5, "-vf")})
	defer w.Close()

	runToEnd(t, w, newSession(t, w, "vid-noframes"))

	loaded, err := sessions.Load(ctx, "vid-noframes")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Status)
	assert.Empty(t, loaded.Frames)
	assert.Empty(t, loaded.VisualModel)
	assert.Len(t, loaded.Segments, 2)
}

func TestIngestVisualBatchFailureDegrades(t *testing.T) {
	cfg := test.TempConfig(t)
	sessions := test.NewSessionStore(t)
	registry := providers.NewStaticRegistry(&test.HashTextEmbedder{},
		&test.FakeVisualEmbedder{ImageErr: errors.New("model crashed")}, transcript())
	w := workflow.NewVideoIngestWorkflow(cfg, registry, sessions, workflow.IngestClients{Runner: test.FakeToolRunner(6)})
	defer w.Close()

	runToEnd(t, w, newSession(t, w, "vid-badclip"))

	loaded, err := sessions.Load(ctx, "vid-badclip")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Status)
	require.Len(t, loaded.Frames, 6)
	for _, f := range loaded.Frames {
		assert.Empty(t, f.Embedding)
	}
	assert.Empty(t, loaded.VisualModel)
}

func TestIngestTranscriptionFailure(t *testing.T) {
	cfg := test.TempConfig(t)
	sessions := test.NewSessionStore(t)
	registry := providers.NewStaticRegistry(&test.HashTextEmbedder{}, nil,
		&test.FakeTranscriber{Err: errors.New("decoder exploded")})
	w := workflow.NewVideoIngestWorkflow(cfg, registry, sessions, workflow.IngestClients{Runner: test.FakeToolRunner(2)})
	defer w.Close()

	runToEnd(t, w, newSession(t, w, "vid-fail"))

	status, err := sessions.LoadStatus(ctx, "vid-fail")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, status.Status)
	assert.True(t, strings.HasPrefix(status.Message, "Processing failed: "))
	assert.Contains(t, status.Message, "decoder exploded")
	assert.Less(t, status.Progress, 1.0)
}

func TestIngestAudioFailure(t *testing.T) {
	cfg := test.TempConfig(t)
	sessions := test.NewSessionStore(t)
	registry := providers.NewStaticRegistry(&test.HashTextEmbedder{}, nil, transcript())
	w := workflow.NewVideoIngestWorkflow(cfg, registry, sessions,
		workflow.IngestClients{Runner: test.FailingToolRunner(2, "-vn")})
	defer w.Close()

	runToEnd(t, w, newSession(t, w, "vid-noaudio"))

	status, err := sessions.LoadStatus(ctx, "vid-noaudio")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, status.Status)
	assert.Contains(t, status.Message, "simulated failure")
}

func TestCancelStopsIngestion(t *testing.T) {
	cfg := test.TempConfig(t)
	sessions := test.NewSessionStore(t)
	blocking := &blockingTranscriber{started: make(chan struct{})}
	registry := providers.NewStaticRegistry(&test.HashTextEmbedder{}, nil, blocking)
	w := workflow.NewVideoIngestWorkflow(cfg, registry, sessions, workflow.IngestClients{Runner: test.FakeToolRunner(2)})
	defer w.Close()

	session := newSession(t, w, "vid-cancel")
	require.NoError(t, w.Submit(ctx, session))
	<-blocking.started
	assert.True(t, w.Running("vid-cancel"))

	err := w.Submit(ctx, session)
	assert.ErrorIs(t, err, workflow.ErrAlreadyRunning)

	assert.True(t, w.Cancel("vid-cancel", 5*time.Second))
	assert.False(t, w.Running("vid-cancel"))
	assert.False(t, w.Cancel("vid-cancel", time.Second))

	status, err := sessions.LoadStatus(ctx, "vid-cancel")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, status.Status)
}

func TestProgressTrackerIsMonotonic(t *testing.T) {
	session := model.NewVideoSession("vid-progress", "a.mp4", "a.mp4")
	tracker := commands.NewProgressTracker(nil, session)

	tracker.Update(ctx, model.StatusEmbedding, 0.7, "Encoded 5/10 frames...")
	tracker.Update(ctx, model.StatusEmbedding, 0.66, "late update")
	snapshot := tracker.Snapshot()
	assert.Equal(t, 0.7, snapshot.Progress)
	assert.Equal(t, "late update", snapshot.Message)

	tracker.Fail(ctx, errors.New("boom"))
	snapshot = tracker.Snapshot()
	assert.Equal(t, model.StatusError, snapshot.Status)
	assert.Equal(t, 0.7, snapshot.Progress)
	assert.Equal(t, "Processing failed: boom", snapshot.Message)
}
