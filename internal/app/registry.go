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

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
)

// NewRegistry maps the [providers] section onto provider factories. Roles
// left empty have no provider; nothing is loaded until first use.
func NewRegistry(config *cloud.Config, clients *cloud.ServiceClients) *providers.Registry {
	return providers.NewRegistry(
		textFactory(config, clients),
		visualFactory(config),
		transcriberFactory(config),
	)
}

func textFactory(config *cloud.Config, clients *cloud.ServiceClients) providers.Factory[providers.TextEmbedder] {
	switch config.Providers.TextEmbedder {
	case "vertex":
		return func(_ context.Context) (providers.TextEmbedder, error) {
			key := config.Providers.TextModel
			models, ok := clients.EmbeddingModels[key]
			if !ok {
				return nil, fmt.Errorf("no vertex embedding model %q configured", key)
			}
			settings := config.EmbeddingModels[key]
			return providers.NewQuotaAwareTextEmbedder(
				providers.NewVertexTextEmbedder(models, settings.Model),
				settings.MaxRequestsPerSecond, time.Second), nil
		}
	case "openai":
		return func(_ context.Context) (providers.TextEmbedder, error) {
			client := providers.NewOpenAIClient(config.OpenAI.APIKey, config.OpenAI.BaseURL)
			return providers.NewOpenAITextEmbedder(client, config.OpenAI.EmbeddingModel), nil
		}
	case "ollama":
		return func(_ context.Context) (providers.TextEmbedder, error) {
			return providers.NewOllamaTextEmbedder(config.Ollama.ServerURL, config.Ollama.Model)
		}
	}
	return nil
}

func visualFactory(config *cloud.Config) providers.Factory[providers.VisualEmbedder] {
	if config.Providers.VisualEmbedder != "clip" {
		return nil
	}
	return func(_ context.Context) (providers.VisualEmbedder, error) {
		return providers.NewClipEmbedder(providers.ClipOptions{
			ModelName:         config.Clip.ModelName,
			SharedLibraryPath: config.Clip.SharedLibraryPath,
			TokenizerPath:     config.Clip.TokenizerPath,
			TextModelPath:     config.Clip.TextModelPath,
			VisionModelPath:   config.Clip.VisionModelPath,
			IntraOpThreads:    config.Clip.IntraOpThreads,
		})
	}
}

func transcriberFactory(config *cloud.Config) providers.Factory[providers.Transcriber] {
	switch config.Providers.Transcriber {
	case "openai":
		return func(_ context.Context) (providers.Transcriber, error) {
			client := providers.NewOpenAIClient(config.OpenAI.APIKey, config.OpenAI.BaseURL)
			return providers.NewOpenAITranscriber(client, config.OpenAI.TranscriptionModel, config.OpenAI.Language), nil
		}
	case "whisper_cli":
		return func(_ context.Context) (providers.Transcriber, error) {
			return &providers.WhisperCLITranscriber{
				BinaryPath: config.Whisper.BinaryPath,
				ModelPath:  config.Whisper.ModelPath,
				Language:   config.Whisper.Language,
				Threads:    config.Whisper.Threads,
			}, nil
		}
	}
	return nil
}
