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

package commands

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// StatusWriter persists status snapshots. store.SessionStore satisfies it.
type StatusWriter interface {
	SaveStatus(ctx context.Context, status *model.ProcessingStatus) error
}

// ProgressTracker publishes ingestion progress. Progress never decreases
// while the run succeeds; writes that fail are logged and dropped.
type ProgressTracker struct {
	mu      sync.Mutex
	writer  StatusWriter
	session *model.VideoSession
}

func NewProgressTracker(writer StatusWriter, session *model.VideoSession) *ProgressTracker {
	return &ProgressTracker{writer: writer, session: session}
}

// Update records a new stage. A lower progress value keeps the current one.
func (p *ProgressTracker) Update(ctx context.Context, status model.Status, progress float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return
	}
	p.session.Status = status
	p.session.Progress = max(p.session.Progress, min(progress, 1))
	p.session.Message = message
	p.session.UpdateDate = time.Now()
	p.write(ctx)
}

// Fail marks the run as failed, keeping the progress reached so far.
func (p *ProgressTracker) Fail(ctx context.Context, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return
	}
	p.session.Status = model.StatusError
	p.session.Message = "Processing failed: " + err.Error()
	p.session.UpdateDate = time.Now()
	p.write(ctx)
}

// Snapshot returns the current status.
func (p *ProgressTracker) Snapshot() *model.ProcessingStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return model.NotFoundStatus()
	}
	return p.snapshot()
}

func (p *ProgressTracker) snapshot() *model.ProcessingStatus {
	return &model.ProcessingStatus{
		VideoId:  p.session.Id,
		Status:   p.session.Status,
		Progress: p.session.Progress,
		Message:  p.session.Message,
	}
}

func (p *ProgressTracker) write(ctx context.Context) {
	if p.writer == nil {
		return
	}
	// A cancelled run still reports its final status.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := p.writer.SaveStatus(ctx, p.snapshot()); err != nil {
		slog.WarnContext(ctx, "failed to save processing status", "video_id", p.session.Id, "error", err)
	}
}
