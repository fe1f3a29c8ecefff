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
	"sort"
	"strings"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	openai "github.com/sashabaranov/go-openai"
)

const openAIBatchSize = 512

// NewOpenAIClient builds a client, honouring a custom base url for
// compatible gateways.
func NewOpenAIClient(apiKey string, baseURL string) *openai.Client {
	if baseURL == "" {
		return openai.NewClient(apiKey)
	}
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL
	return openai.NewClientWithConfig(clientConfig)
}

// OpenAITextEmbedder embeds text with the OpenAI embeddings endpoint.
type OpenAITextEmbedder struct {
	client    *openai.Client
	modelName string
}

var _ TextEmbedder = (*OpenAITextEmbedder)(nil)

func NewOpenAITextEmbedder(client *openai.Client, modelName string) *OpenAITextEmbedder {
	return &OpenAITextEmbedder{client: client, modelName: modelName}
}

func (o *OpenAITextEmbedder) Model() string {
	return o.modelName
}

func (o *OpenAITextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, openAIBatchSize) {
		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(o.modelName),
			Input: batch,
		})
		if err != nil {
			return nil, wrap("openai embed", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, wrap("openai embed", fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data)))
		}
		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		for _, d := range data {
			out = append(out, Normalize(d.Embedding))
		}
	}
	return out, nil
}

// OpenAITranscriber transcribes audio with the Whisper API and keeps its
// segment timing.
type OpenAITranscriber struct {
	client    *openai.Client
	modelName string
	language  string
}

var _ Transcriber = (*OpenAITranscriber)(nil)

func NewOpenAITranscriber(client *openai.Client, modelName string, language string) *OpenAITranscriber {
	if modelName == "" {
		modelName = openai.Whisper1
	}
	return &OpenAITranscriber{client: client, modelName: modelName, language: language}
}

func (o *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) ([]*model.Segment, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.modelName,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: o.language,
	})
	if err != nil {
		return nil, wrap("openai transcribe", err)
	}
	segments := make([]*model.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, &model.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	if len(segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		segments = append(segments, &model.Segment{Start: 0, End: resp.Duration, Text: strings.TrimSpace(resp.Text)})
	}
	return segments, nil
}
