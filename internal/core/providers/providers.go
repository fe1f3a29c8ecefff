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

// Package providers holds the model-backed building blocks of the system:
// text embedders, the joint image/text visual embedder and transcribers. All
// of them sit behind small interfaces so the search engine and the ingestion
// pipeline never depend on a concrete vendor.
package providers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// TextEmbedder maps text into the text embedding space.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// VisualEmbedder maps both images and text into one joint space. A single
// implementation serves both sides so query and frame vectors always match.
type VisualEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	EmbedImages(ctx context.Context, paths []string) ([][]float32, error)
	Model() string
}

// Transcriber turns an audio file into ordered, timestamped segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]*model.Segment, error)
}

// ErrUnavailable is returned when no provider is configured for a role.
var ErrUnavailable = fmt.Errorf("%w: provider not configured", model.ErrProvider)

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// EmbedOne embeds a single text with a TextEmbedder.
func EmbedOne(ctx context.Context, e TextEmbedder, text string) ([]float32, error) {
	out, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", model.ErrProvider, len(out))
	}
	return out[0], nil
}

// wrap tags a vendor error as a provider failure.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, model.ErrProvider) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", model.ErrProvider, op, err)
}

func batches[T any](in []T, size int) [][]T {
	if size <= 0 {
		size = len(in)
	}
	out := make([][]T, 0, (len(in)+size-1)/max(size, 1))
	for start := 0; start < len(in); start += size {
		end := min(start+size, len(in))
		out = append(out, in[start:end])
	}
	return out
}
