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

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
)

// TextEmbedding embeds every transcript segment and records the model used.
type TextEmbedding struct {
	cor.BaseCommand
	providers *providers.Registry
}

func NewTextEmbedding(name string, registry *providers.Registry) *TextEmbedding {
	return &TextEmbedding{BaseCommand: *cor.NewBaseCommand(name), providers: registry}
}

func (c *TextEmbedding) IsExecutable(context cor.Context) bool {
	return hasSession(context) && len(sessionOf(context).Segments) > 0
}

func (c *TextEmbedding) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := sessionOf(context)
	progressOf(context).Update(ctx, model.StatusEmbedding, 0.55,
		fmt.Sprintf("Generating text embeddings for %d segments...", len(session.Segments)))

	embedder, err := c.providers.TextEmbedder(ctx)
	if errors.Is(err, providers.ErrUnavailable) {
		slog.WarnContext(ctx, "no text embedder configured, text search disabled", "video_id", session.Id)
		return
	}
	if err != nil {
		c.Fail(context, err)
		return
	}

	texts := make([]string, len(session.Segments))
	for i, s := range session.Segments {
		texts[i] = s.Text
	}
	vectors, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		c.Fail(context, fmt.Errorf("text embeddings: %w", err))
		return
	}
	if len(vectors) != len(texts) {
		c.Fail(context, fmt.Errorf("text embeddings: got %d vectors for %d segments", len(vectors), len(texts)))
		return
	}
	for i, s := range session.Segments {
		s.Embedding = vectors[i]
	}
	session.TextModel = embedder.Model()
	c.Succeed(context, session.Segments)
}
