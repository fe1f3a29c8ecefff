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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

const (
	// QryRecentVideos lists the newest catalog rows.
	QryRecentVideos = "SELECT id, filename, source_url, duration, segments_count, frames_count, text_model, visual_model, create_date " +
		"FROM `%s` ORDER BY create_date DESC LIMIT @limit"
	// QryCatalogTotals aggregates the whole catalog.
	QryCatalogTotals = "SELECT COUNT(*) AS videos, IFNULL(SUM(duration), 0) AS seconds, " +
		"IFNULL(SUM(segments_count), 0) AS segments, IFNULL(SUM(frames_count), 0) AS frames FROM `%s`"
)

// CatalogTotals summarises every catalogued video.
type CatalogTotals struct {
	Videos   int64   `json:"videos" bigquery:"videos"`
	Seconds  float64 `json:"seconds" bigquery:"seconds"`
	Segments int64   `json:"segments" bigquery:"segments"`
	Frames   int64   `json:"frames" bigquery:"frames"`
}

// CatalogService reads the analytics catalog written after each ingestion.
type CatalogService struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	CatalogTable   string
}

// Enabled reports whether a catalog table is configured.
func (s *CatalogService) Enabled() bool {
	return s != nil && s.BigqueryClient != nil && s.CatalogTable != ""
}

// GetFQN is the dotted, fully qualified table name used in queries.
func (s *CatalogService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.CatalogTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

func (s *CatalogService) Recent(ctx context.Context, limit int) ([]*model.CatalogEntry, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("%w: catalog is not enabled", model.ErrNotFound)
	}
	q := s.BigqueryClient.Query(fmt.Sprintf(QryRecentVideos, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: max(limit, 1)}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog query: %w", model.ErrInfrastructure, err)
	}
	out := make([]*model.CatalogEntry, 0, limit)
	for {
		entry := &model.CatalogEntry{}
		err := itr.Next(entry)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: catalog read: %w", model.ErrInfrastructure, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *CatalogService) Totals(ctx context.Context) (*CatalogTotals, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("%w: catalog is not enabled", model.ErrNotFound)
	}
	itr, err := s.BigqueryClient.Query(fmt.Sprintf(QryCatalogTotals, s.GetFQN())).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog query: %w", model.ErrInfrastructure, err)
	}
	totals := &CatalogTotals{}
	if err := itr.Next(totals); err != nil && !errors.Is(err, iterator.Done) {
		return nil, fmt.Errorf("%w: catalog read: %w", model.ErrInfrastructure, err)
	}
	return totals, nil
}
