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

// Package workflow assembles commands into the ingestion pipelines and runs
// them in the background.
//
// VideoIngestWorkflow is the core pipeline. For every submitted session it
// downloads the source when there is one, extracts audio, transcribes it,
// samples frames, embeds segments and frames and stores the finished session
// in one write. A second, best-effort chain then archives the video and
// writes the analytics catalog row; its failures are logged and never change
// the session status.
package workflow

import (
	goctx "context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
)

// ErrAlreadyRunning is returned by Submit for a video that is still being ingested.
var ErrAlreadyRunning = errors.New("ingestion already running")

// IngestClients are the optional cloud clients of the best-effort chain.
type IngestClients struct {
	Storage  *storage.Client
	BigQuery *bigquery.Client
	// Runner replaces the external tool runner, mainly in tests.
	Runner commands.ToolRunner
}

type run struct {
	cancel goctx.CancelFunc
	done   chan struct{}
}

// VideoIngestWorkflow runs ingestions, one goroutine per video.
type VideoIngestWorkflow struct {
	cor.BaseCommand
	sessions store.SessionStore
	layout   commands.Layout
	chain    cor.Chain
	post     cor.Chain

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

func NewVideoIngestWorkflow(
	config *cloud.Config,
	registry *providers.Registry,
	sessions store.SessionStore,
	clients IngestClients) *VideoIngestWorkflow {

	out := &VideoIngestWorkflow{
		BaseCommand: *cor.NewBaseCommand("video-ingest-workflow"),
		sessions:    sessions,
		layout:      commands.Layout{UploadDir: config.Storage.UploadDir, CacheDir: config.Storage.CacheDir},
		runs:        make(map[string]*run),
	}
	out.initializeChain(config, registry, clients)
	return out
}

func (w *VideoIngestWorkflow) initializeChain(config *cloud.Config, registry *providers.Registry, clients IngestClients) {
	runner := clients.Runner
	if runner == nil {
		runner = commands.ExecRunner
	}
	ingestion := config.Ingestion

	chain := cor.NewBaseChain(w.GetName())
	chain.AddCommand(commands.NewVideoDownload("video-download", ingestion.YtDlpPath, ingestion.DownloadTimeout()).WithRunner(runner))
	chain.AddCommand(commands.NewFFMpegAudioExtractor("extract-audio", ingestion.FFMpegPath, ingestion.AudioTimeout()).WithRunner(runner))
	chain.AddCommand(commands.NewTranscribe("transcribe-audio", registry, ingestion.MinSegmentChars))
	chain.AddCommand(commands.NewFFMpegFrameExtractor("extract-frames", ingestion.FFMpegPath, ingestion.FrameInterval, 0).WithRunner(runner))
	chain.AddCommand(commands.NewTextEmbedding("embed-segments", registry))
	chain.AddCommand(commands.NewFrameEmbedding("embed-frames", registry,
		ingestion.FrameBatchSize, ingestion.ProgressEvery, config.Application.ThreadPoolSize))
	chain.AddCommand(commands.NewSessionPersist("store-session", w.sessions))
	w.chain = chain

	post := cor.NewBaseChain(w.GetName() + "-post")
	post.ContinueOnFailure(true)
	if clients.Storage != nil && config.Storage.ArchiveBucket != "" {
		post.AddCommand(commands.NewGCSFileUpload("archive-video", clients.Storage, config.Storage.ArchiveBucket))
	}
	if clients.BigQuery != nil && config.BigQueryDataSource.CatalogTable != "" {
		post.AddCommand(commands.NewCatalogPersistToBigQuery("write-catalog", clients.BigQuery,
			config.BigQueryDataSource.DatasetName, config.BigQueryDataSource.CatalogTable))
	}
	w.post = post
}

// Layout is where the workflow keeps videos and frames.
func (w *VideoIngestWorkflow) Layout() commands.Layout {
	return w.layout
}

func (w *VideoIngestWorkflow) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(commands.GetSessionParameterName()) != nil
}

// Execute runs the pipeline synchronously for the session in the context.
// The outcome is written to the session status; errors stay in the context.
func (w *VideoIngestWorkflow) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := context.Get(commands.GetSessionParameterName()).(*model.VideoSession)
	progress, ok := context.Get(commands.GetProgressParameterName()).(*commands.ProgressTracker)
	if !ok {
		progress = commands.NewProgressTracker(w.sessions, session)
		context.Add(commands.GetProgressParameterName(), progress)
	}

	ctx, span := w.Tracer.Start(ctx, w.GetName())
	defer span.End()
	span.SetAttributes(attribute.String("video_id", session.Id))
	context.SetContext(ctx)

	start := time.Now()
	w.chain.Execute(context)
	if err := context.Err(); err != nil {
		span.RecordError(err)
		w.GetErrorCounter().Add(ctx, 1)
		progress.Fail(ctx, err)
		slog.ErrorContext(ctx, "ingestion failed", "video_id", session.Id, "error", err)
		return
	}
	w.GetSuccessCounter().Add(ctx, 1)
	slog.InfoContext(ctx, "ingestion complete", "video_id", session.Id, "elapsed", time.Since(start))

	postCtx := cor.NewContext(ctx, nil)
	postCtx.Add(commands.GetSessionParameterName(), session)
	w.post.Execute(postCtx)
	if err := postCtx.Err(); err != nil {
		slog.WarnContext(ctx, "post processing failed", "video_id", session.Id, "error", err)
	}
}

// Submit stores the queued session and starts its ingestion in the
// background. The run outlives ctx; use Cancel to stop it.
func (w *VideoIngestWorkflow) Submit(ctx goctx.Context, session *model.VideoSession) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.runs[session.Id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, session.Id)
	}
	if err := w.sessions.Save(ctx, session); err != nil {
		return err
	}

	runCtx, cancel := goctx.WithCancel(goctx.WithoutCancel(ctx))
	r := &run{cancel: cancel, done: make(chan struct{})}
	w.runs[session.Id] = r
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer close(r.done)
		defer cancel()

		chainCtx := cor.NewContext(runCtx, nil)
		chainCtx.Add(commands.GetSessionParameterName(), session)
		w.Execute(chainCtx)
		chainCtx.Close()

		w.mu.Lock()
		delete(w.runs, session.Id)
		w.mu.Unlock()
	}()
	return nil
}

// Cancel stops the ingestion of id and waits up to timeout for it to exit.
// It reports whether a run was found.
func (w *VideoIngestWorkflow) Cancel(id string, timeout time.Duration) bool {
	w.mu.Lock()
	r, ok := w.runs[id]
	w.mu.Unlock()
	if !ok {
		return false
	}
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(timeout):
		slog.Warn("ingestion did not stop in time", "video_id", id)
	}
	return true
}

// Wait blocks until the run of id has finished or ctx is done.
func (w *VideoIngestWorkflow) Wait(ctx goctx.Context, id string) error {
	w.mu.Lock()
	r, ok := w.runs[id]
	w.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether id is being ingested.
func (w *VideoIngestWorkflow) Running(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.runs[id]
	return ok
}

// Close cancels every run and waits for all of them.
func (w *VideoIngestWorkflow) Close() {
	w.mu.Lock()
	for _, r := range w.runs {
		r.cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
}
