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

// This file defines the command that encodes sampled frames into the joint
// visual space. Frames are cut into batches and handed to a pool of workers;
// each batch runs under its own span. A failed batch leaves its frames
// without embeddings, which only removes them from visual search.
package commands

import (
	goctx "context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
)

const (
	visualProgressStart = 0.65
	visualProgressSpan  = 0.25
)

// FrameEmbedding encodes session frames with the visual embedder.
type FrameEmbedding struct {
	cor.BaseCommand
	providers       *providers.Registry
	batchSize       int
	progressEvery   int
	numberOfWorkers int
}

func NewFrameEmbedding(name string, registry *providers.Registry, batchSize int, progressEvery int, numberOfWorkers int) *FrameEmbedding {
	return &FrameEmbedding{
		BaseCommand:     *cor.NewBaseCommand(name),
		providers:       registry,
		batchSize:       max(batchSize, 1),
		progressEvery:   max(progressEvery, 1),
		numberOfWorkers: max(numberOfWorkers, 1),
	}
}

func (c *FrameEmbedding) IsExecutable(context cor.Context) bool {
	return hasSession(context) && len(sessionOf(context).Frames) > 0
}

// frameJob is one batch of frames for a worker.
type frameJob struct {
	ctx    goctx.Context
	span   trace.Span
	frames []*model.Frame
}

func (j *frameJob) close(err error) {
	if err != nil {
		j.span.RecordError(err)
		j.span.SetStatus(codes.Error, err.Error())
	} else {
		j.span.SetStatus(codes.Ok, "success")
	}
	j.span.End()
}

type frameResult struct {
	count int
	err   error
}

func (c *FrameEmbedding) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := sessionOf(context)
	progress := progressOf(context)
	total := len(session.Frames)
	progress.Update(ctx, model.StatusEmbedding, visualProgressStart,
		fmt.Sprintf("Generating visual embeddings for %d frames...", total))

	embedder, err := c.providers.VisualEmbedder(ctx)
	if err != nil {
		if !errors.Is(err, providers.ErrUnavailable) {
			c.GetErrorCounter().Add(ctx, 1)
		}
		slog.WarnContext(ctx, "visual embedder unavailable, visual search disabled", "video_id", session.Id, "error", err)
		return
	}

	var wg sync.WaitGroup
	jobs := make(chan *frameJob)
	results := make(chan *frameResult)

	for w := 0; w < c.numberOfWorkers; w++ {
		wg.Add(1)
		go frameWorker(embedder, jobs, results, &wg)
	}
	go func() {
		defer close(jobs)
		for start := 0; start < total; start += c.batchSize {
			batch := session.Frames[start:min(start+c.batchSize, total)]
			jobCtx, span := c.Tracer.Start(ctx, fmt.Sprintf("%s_batch_%d", c.GetName(), start/c.batchSize))
			span.SetAttributes(attribute.Int("first_frame", start), attribute.Int("frames", len(batch)))
			select {
			case jobs <- &frameJob{ctx: jobCtx, span: span, frames: batch}:
			case <-ctx.Done():
				span.End()
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	done, failed, lastReported := 0, 0, 0
	for r := range results {
		done += r.count
		n := done
		if r.err != nil {
			failed += r.count
			c.GetErrorCounter().Add(ctx, 1)
			slog.WarnContext(ctx, "frame batch failed", "video_id", session.Id, "frames", r.count, "error", r.err)
		}
		if n/c.progressEvery > lastReported/c.progressEvery || n == total {
			lastReported = n
			progress.Update(ctx, model.StatusEmbedding,
				visualProgressStart+visualProgressSpan*float64(n)/float64(total),
				fmt.Sprintf("Encoded %d/%d frames...", n, total))
		}
	}

	if err := ctx.Err(); err != nil {
		c.Fail(context, err)
		return
	}
	if failed < total {
		session.VisualModel = embedder.Model()
	}
	c.Succeed(context, session.Frames)
}

func frameWorker(embedder providers.VisualEmbedder, jobs <-chan *frameJob, results chan<- *frameResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		err := embedBatch(job.ctx, embedder, job.frames)
		job.close(err)
		results <- &frameResult{count: len(job.frames), err: err}
	}
}

func embedBatch(ctx goctx.Context, embedder providers.VisualEmbedder, frames []*model.Frame) error {
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.Path
	}
	vectors, err := embedder.EmbedImages(ctx, paths)
	if err != nil {
		return err
	}
	if len(vectors) != len(frames) {
		return fmt.Errorf("got %d vectors for %d frames", len(vectors), len(frames))
	}
	for i, f := range frames {
		f.Embedding = vectors[i]
	}
	return nil
}
