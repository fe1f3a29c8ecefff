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

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaTextEmbedder embeds text with a local Ollama model.
type OllamaTextEmbedder struct {
	embedder  embeddings.Embedder
	modelName string
}

var _ TextEmbedder = (*OllamaTextEmbedder)(nil)

func NewOllamaTextEmbedder(serverURL string, modelName string) (*OllamaTextEmbedder, error) {
	llm, err := ollama.New(
		ollama.WithModel(modelName),
		ollama.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return &OllamaTextEmbedder{embedder: embedder, modelName: modelName}, nil
}

func (o *OllamaTextEmbedder) Model() string {
	return o.modelName
}

func (o *OllamaTextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, wrap("ollama embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, wrap("ollama embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}
	for _, v := range vectors {
		Normalize(v)
	}
	return vectors, nil
}
