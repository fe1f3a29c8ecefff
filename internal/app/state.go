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

// Package app wires configuration, cloud clients, stores, providers, services
// and workflows into one State shared by the HTTP server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/services"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/workflow"
)

// cancelTimeout bounds how long a delete waits for its ingestion to stop.
const cancelTimeout = 10 * time.Second

// State is the assembled application.
type State struct {
	Config    *cloud.Config
	Cloud     *cloud.ServiceClients
	Providers *providers.Registry
	Sessions  store.SessionStore
	Keyed     store.KeyedStore

	Search      *services.SearchService
	Videos      *services.VideoService
	Clips       *services.ClipService
	History     *services.HistoryService
	Bookmarks   *services.BookmarkService
	RateLimiter *services.RateLimiter
	Catalog     *services.CatalogService

	Ingest    *workflow.VideoIngestWorkflow
	GCSIngest *workflow.GCSIngestWorkflow
	Janitor   *workflow.ClipJanitor

	// Tools records which external binaries answered at startup.
	Tools map[string]bool
}

// New opens every client the configuration asks for and assembles the State.
func New(ctx context.Context, config *cloud.Config) (*State, error) {
	for _, dir := range []string{config.Storage.UploadDir, config.Storage.ClipsDir, config.Storage.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, err
	}
	sessions, err := store.NewGormSessionStore(clients.Database)
	if err != nil {
		clients.Close()
		return nil, err
	}
	keyed, err := newKeyedStore(ctx, config, clients)
	if err != nil {
		clients.Close()
		return nil, err
	}

	state := Assemble(config, clients, NewRegistry(config, clients), sessions, keyed, commands.ExecRunner)
	state.Tools = map[string]bool{
		"ffmpeg": commands.ToolAvailable(ctx, config.Ingestion.FFMpegPath, "-version"),
		"yt-dlp": commands.ToolAvailable(ctx, config.Ingestion.YtDlpPath, "--version"),
	}
	slog.Info("application state ready", "tools", state.Tools, "providers", state.Providers.Available())
	return state, nil
}

func newKeyedStore(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) (store.KeyedStore, error) {
	if clients.RedisClient != nil {
		return store.NewRedisKeyedStore(ctx, clients.RedisClient, config.KeyedStore.Prefix)
	}
	return store.NewMemoryKeyedStore(), nil
}

// Assemble builds the services and workflows over already opened dependencies.
func Assemble(
	config *cloud.Config,
	clients *cloud.ServiceClients,
	registry *providers.Registry,
	sessions store.SessionStore,
	keyed store.KeyedStore,
	runner commands.ToolRunner) *State {

	s := &State{
		Config:    config,
		Cloud:     clients,
		Providers: registry,
		Sessions:  sessions,
		Keyed:     keyed,
		Tools:     map[string]bool{},
	}

	s.Ingest = workflow.NewVideoIngestWorkflow(config, registry, sessions, workflow.IngestClients{
		Storage:  clients.StorageClient,
		BigQuery: clients.BiqQueryClient,
		Runner:   runner,
	})
	if clients.StorageClient != nil {
		s.GCSIngest = workflow.NewGCSIngestWorkflow(config, clients.StorageClient, s.Ingest)
	}
	layout := s.Ingest.Layout()

	s.History = &services.HistoryService{Store: keyed}
	s.Bookmarks = &services.BookmarkService{Store: keyed, Sessions: sessions}
	s.RateLimiter = &services.RateLimiter{Store: keyed, Limit: config.RateLimit.UploadsPerDay}
	s.Search = &services.SearchService{
		Sessions:  sessions,
		Providers: registry,
		History:   s.History,
		Policy:    services.SearchPolicyFromConfig(config.Search),
	}
	s.Videos = &services.VideoService{
		Sessions:      sessions,
		History:       s.History,
		Bookmarks:     s.Bookmarks,
		Ingestion:     s.Ingest,
		Layout:        layout,
		ClipsDir:      config.Storage.ClipsDir,
		StorageClient: clients.StorageClient,
		IAMClient:     clients.IAMClient,
		SignerEmail:   config.Application.SignerServiceAccountEmail,
		ArchiveBucket: config.Storage.ArchiveBucket,
		SignedURLTTL:  time.Duration(config.Storage.SignedURLMinutes) * time.Minute,
		CancelTimeout: cancelTimeout,
	}
	s.Clips = &services.ClipService{
		Sessions: sessions,
		Layout:   layout,
		ClipsDir: config.Storage.ClipsDir,
		Clip:     commands.NewFFMpegClip("create-clip", config.Ingestion.FFMpegPath, config.Ingestion.ClipTimeout()).WithRunner(runner),
	}
	s.Catalog = &services.CatalogService{
		BigqueryClient: clients.BiqQueryClient,
		DatasetName:    config.BigQueryDataSource.DatasetName,
		CatalogTable:   config.BigQueryDataSource.CatalogTable,
	}
	s.Janitor = workflow.NewClipJanitor(config.Storage.ClipsDir,
		time.Duration(config.Storage.ClipRetentionHours)*time.Hour)
	return s
}

// Start launches the periodic clip janitor.
func (s *State) Start(ctx context.Context) {
	s.Janitor.StartTimer(ctx, time.Duration(s.Config.Storage.JanitorMinutes)*time.Minute)
}

// Dependencies reports the availability of tools and providers.
func (s *State) Dependencies() map[string]bool {
	out := make(map[string]bool)
	for k, v := range s.Tools {
		out[k] = v
	}
	for k, v := range s.Providers.Available() {
		out[k] = v
	}
	return out
}

// Close stops running ingestions and releases providers, stores and clients.
func (s *State) Close() {
	s.Ingest.Close()
	s.Providers.Close()
	// A redis keyed store shares its client with Cloud, which closes it.
	if s.Keyed != nil && (s.Cloud == nil || s.Cloud.RedisClient == nil) {
		if err := s.Keyed.Close(); err != nil {
			slog.Warn("failed to close keyed store", "error", err)
		}
	}
	if s.Cloud != nil {
		s.Cloud.Close()
	}
}
