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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
	"google.golang.org/genai"
	"gorm.io/gorm"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
)

// ServiceClients bundles every external client. Google Cloud clients are only
// created when the configuration needs them, so a purely local deployment
// runs with all of them nil.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BiqQueryClient  *bigquery.Client
	IAMClient       *credentials.IamCredentialsClient
	Database        *gorm.DB
	RedisClient     *redis.Client
	PubSubListeners map[string]*PubSubListener
	EmbeddingModels map[string]*genai.Models
}

// Close releases every client that was opened.
func (c *ServiceClients) Close() {
	var errs []error
	if c.StorageClient != nil {
		errs = append(errs, c.StorageClient.Close())
	}
	if c.PubsubClient != nil {
		errs = append(errs, c.PubsubClient.Close())
	}
	if c.BiqQueryClient != nil {
		errs = append(errs, c.BiqQueryClient.Close())
	}
	if c.IAMClient != nil {
		errs = append(errs, c.IAMClient.Close())
	}
	if c.RedisClient != nil {
		errs = append(errs, c.RedisClient.Close())
	}
	if c.Database != nil {
		if sqlDB, err := c.Database.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("error closing service clients", "error", err)
	}
}

func (c *Config) clientOptions() []option.ClientOption {
	if c.Application.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(c.Application.CredentialsFile)}
}

// NeedsStorage reports whether a GCS client is required.
func (c *Config) NeedsStorage() bool {
	return c.Storage.ArchiveBucket != "" || len(c.ActiveSubscriptions()) > 0
}

// ActiveSubscriptions are the topic subscriptions that name a subscription.
func (c *Config) ActiveSubscriptions() map[string]TopicSubscription {
	out := make(map[string]TopicSubscription)
	for k, v := range c.TopicSubscriptions {
		if v.Name != "" {
			out[k] = v
		}
	}
	return out
}

// NewCloudServiceClients opens the clients the configuration asks for. On
// error every client opened so far is closed.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		EmbeddingModels: make(map[string]*genai.Models),
	}
	defer func() {
		if err != nil {
			cloud.Close()
			cloud = nil
		}
	}()
	opts := config.clientOptions()
	project := config.Application.GoogleProjectId

	cloud.Database, err = store.OpenDatabase(config.Database.DSN, config.Database.Debug)
	if err != nil {
		return cloud, err
	}

	if config.KeyedStore.Driver == "redis" {
		cloud.RedisClient = redis.NewClient(&redis.Options{
			Addr:     config.KeyedStore.RedisAddress,
			Password: config.KeyedStore.RedisPassword,
			DB:       config.KeyedStore.RedisDB,
		})
	}

	if config.NeedsStorage() {
		if cloud.StorageClient, err = storage.NewClient(ctx, opts...); err != nil {
			return cloud, fmt.Errorf("storage client: %w", err)
		}
	}

	if subscriptions := config.ActiveSubscriptions(); len(subscriptions) > 0 {
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, project, opts...); err != nil {
			return cloud, fmt.Errorf("pubsub client: %w", err)
		}
		for subKey, values := range subscriptions {
			listener, err := NewPubSubListener(cloud.PubsubClient, values.Name, nil)
			if err != nil {
				return cloud, err
			}
			cloud.PubSubListeners[subKey] = listener
		}
	}

	if config.Providers.TextEmbedder == "vertex" {
		cloud.GenAIClient, err = genai.NewClient(ctx, &genai.ClientConfig{
			Project:  project,
			Location: config.Application.GoogleLocation,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			return cloud, fmt.Errorf("genai client: %w", err)
		}
		for embKey := range config.EmbeddingModels {
			cloud.EmbeddingModels[embKey] = cloud.GenAIClient.Models
		}
	}

	if config.BigQueryDataSource.DatasetName != "" && config.BigQueryDataSource.CatalogTable != "" {
		if cloud.BiqQueryClient, err = bigquery.NewClient(ctx, project, opts...); err != nil {
			return cloud, fmt.Errorf("bigquery client: %w", err)
		}
	}

	if config.Application.SignerServiceAccountEmail != "" {
		if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx, opts...); err != nil {
			return cloud, fmt.Errorf("iam credentials client: %w", err)
		}
	}

	slog.Info("service clients ready",
		"project", project,
		"storage", cloud.StorageClient != nil,
		"pubsub", cloud.PubsubClient != nil,
		"vertex", cloud.GenAIClient != nil,
		"bigquery", cloud.BiqQueryClient != nil,
		"redis", cloud.RedisClient != nil)
	return cloud, nil
}
