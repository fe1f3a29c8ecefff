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

package workflow

import (
	goctx "context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
)

// ClipJanitor deletes generated clips once they are older than the retention.
type ClipJanitor struct {
	cor.BaseCommand
	dir       string
	retention time.Duration
	now       func() time.Time
}

func NewClipJanitor(dir string, retention time.Duration) *ClipJanitor {
	return &ClipJanitor{
		BaseCommand: *cor.NewBaseCommand("clip-janitor"),
		dir:         dir,
		retention:   retention,
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (j *ClipJanitor) SetClock(now func() time.Time) {
	j.now = now
}

func (j *ClipJanitor) IsExecutable(context cor.Context) bool {
	return context != nil && j.retention > 0
}

// Execute removes expired clips and outputs how many were removed.
func (j *ClipJanitor) Execute(context cor.Context) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			j.Succeed(context, 0)
			return
		}
		j.Fail(context, err)
		return
	}
	cutoff := j.now().Add(-j.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".mp4" {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil {
			slog.WarnContext(context.GetContext(), "failed to remove clip", "clip", e.Name(), "error", err)
			continue
		}
		removed++
	}
	j.Succeed(context, removed)
}

// StartTimer sweeps every interval until ctx is done.
func (j *ClipJanitor) StartTimer(ctx goctx.Context, interval time.Duration) {
	if interval <= 0 || j.retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				traceCtx, span := j.Tracer.Start(ctx, "clip-janitor-sweep")
				chainCtx := cor.NewContext(traceCtx, nil)
				j.Execute(chainCtx)
				if err := chainCtx.Err(); err != nil {
					span.SetStatus(codes.Error, err.Error())
				} else {
					removed, _ := chainCtx.Get(cor.CtxOut).(int)
					span.SetAttributes(attribute.Int("removed", removed))
					span.SetStatus(codes.Ok, "")
				}
				span.End()
			case <-ctx.Done():
				return
			}
		}
	}()
}
