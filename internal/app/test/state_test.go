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

package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	test "github.com/jaycherian/gcp-go-clip-finder/internal/testutil"
)

func TestNewRegistryFollowsConfig(t *testing.T) {
	cfg := test.TempConfig(t)
	clients := &cloud.ServiceClients{}

	available := app.NewRegistry(cfg, clients).Available()
	assert.False(t, available["text_embedder"])
	assert.False(t, available["visual_embedder"])
	assert.False(t, available["transcriber"])

	cfg.Providers.TextEmbedder = "openai"
	cfg.Providers.VisualEmbedder = "clip"
	cfg.Providers.Transcriber = "whisper_cli"
	available = app.NewRegistry(cfg, clients).Available()
	assert.True(t, available["text_embedder"])
	assert.True(t, available["visual_embedder"])
	assert.True(t, available["transcriber"])
}

func TestVertexWithoutModelFails(t *testing.T) {
	cfg := test.TempConfig(t)
	cfg.Providers.TextEmbedder = "vertex"
	cfg.Providers.TextModel = "multi-lingual"

	registry := app.NewRegistry(cfg, &cloud.ServiceClients{})
	defer registry.Close()
	_, err := registry.TextEmbedder(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multi-lingual")
}

func TestAssembleLocal(t *testing.T) {
	cfg := test.TempConfig(t)
	registry := providers.NewStaticRegistry(&test.HashTextEmbedder{}, nil, nil)
	state := app.Assemble(cfg, &cloud.ServiceClients{}, registry,
		test.NewSessionStore(t), store.NewMemoryKeyedStore(), commands.ExecRunner)
	defer state.Close()

	assert.Nil(t, state.GCSIngest)
	assert.False(t, state.Catalog.Enabled())
	assert.Equal(t, cfg.Storage.ClipsDir, state.Clips.ClipsDir)
	assert.Equal(t, cfg.RateLimit.UploadsPerDay, state.RateLimiter.Limit)

	state.Tools["ffmpeg"] = true
	deps := state.Dependencies()
	assert.True(t, deps["ffmpeg"])
	assert.True(t, deps["text_embedder"])
	assert.False(t, deps["transcriber"])
}
