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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
)

// Transcribe turns the extracted audio into transcript segments. Segments
// whose trimmed text is shorter than minChars are dropped. When no
// transcriber is configured the session carries no segments.
type Transcribe struct {
	cor.BaseCommand
	providers *providers.Registry
	minChars  int
}

func NewTranscribe(name string, registry *providers.Registry, minChars int) *Transcribe {
	out := &Transcribe{
		BaseCommand: *cor.NewBaseCommand(name),
		providers:   registry,
		minChars:    minChars,
	}
	out.WithParams(GetAudioFileParameterName(), "")
	return out
}

func (c *Transcribe) IsExecutable(context cor.Context) bool {
	return hasSession(context) && context.Get(c.GetInputParam()) != nil
}

func (c *Transcribe) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := sessionOf(context)
	audioPath := context.Get(c.GetInputParam()).(string)
	progressOf(context).Update(ctx, model.StatusTranscribing, 0.3, "Transcribing audio...")

	transcriber, err := c.providers.Transcriber(ctx)
	if errors.Is(err, providers.ErrUnavailable) {
		slog.WarnContext(ctx, "no transcriber configured, text search disabled", "video_id", session.Id)
		return
	}
	if err != nil {
		c.Fail(context, err)
		return
	}

	ctx, span := c.Tracer.Start(ctx, c.GetName()+"_transcribe")
	defer span.End()
	segments, err := transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		span.RecordError(err)
		c.Fail(context, fmt.Errorf("transcription: %w", err))
		return
	}
	session.Segments = FilterSegments(segments, c.minChars)
	slog.InfoContext(ctx, "transcribed audio", "video_id", session.Id,
		"segments", len(session.Segments), "dropped", len(segments)-len(session.Segments))
	c.Succeed(context, session.Segments)
}

// FilterSegments trims segment text and drops segments shorter than minChars.
func FilterSegments(in []*model.Segment, minChars int) []*model.Segment {
	out := make([]*model.Segment, 0, len(in))
	for _, s := range in {
		text := strings.TrimSpace(s.Text)
		if len([]rune(text)) < minChars {
			continue
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		s.Text = text
		out = append(out, s)
	}
	return out
}
