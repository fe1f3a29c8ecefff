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

package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// vertexBatchSize stays under the per-request instance limit of the Vertex
// text embedding models.
const vertexBatchSize = 100

// VertexTextEmbedder embeds text with a Vertex AI embedding model.
type VertexTextEmbedder struct {
	models    *genai.Models
	modelName string
}

var _ TextEmbedder = (*VertexTextEmbedder)(nil)

func NewVertexTextEmbedder(models *genai.Models, modelName string) *VertexTextEmbedder {
	return &VertexTextEmbedder{models: models, modelName: modelName}
}

func (v *VertexTextEmbedder) Model() string {
	return v.modelName
}

func (v *VertexTextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, vertexBatchSize) {
		contents := make([]*genai.Content, len(batch))
		for i, t := range batch {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}
		resp, err := v.models.EmbedContent(ctx, v.modelName, contents, nil)
		if err != nil {
			return nil, wrap("vertex embed", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, wrap("vertex embed", fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Embeddings)))
		}
		for _, e := range resp.Embeddings {
			out = append(out, Normalize(e.Values))
		}
	}
	return out, nil
}
