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
	goctx "context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// RowInserter streams rows into a table. *bigquery.Inserter satisfies it.
type RowInserter interface {
	Put(ctx goctx.Context, src any) error
}

// CatalogPersistToBigQuery appends a catalog row for a completed session.
type CatalogPersistToBigQuery struct {
	cor.BaseCommand
	inserter RowInserter
	table    string
}

func NewCatalogPersistToBigQuery(name string, client *bigquery.Client, dataset string, table string) *CatalogPersistToBigQuery {
	return NewCatalogPersist(name, client.Dataset(dataset).Table(table).Inserter(), dataset+"."+table)
}

// NewCatalogPersist writes through any RowInserter.
func NewCatalogPersist(name string, inserter RowInserter, table string) *CatalogPersistToBigQuery {
	return &CatalogPersistToBigQuery{BaseCommand: *cor.NewBaseCommand(name), inserter: inserter, table: table}
}

func (c *CatalogPersistToBigQuery) IsExecutable(context cor.Context) bool {
	return hasSession(context) && sessionOf(context).IsReady()
}

func (c *CatalogPersistToBigQuery) Execute(context cor.Context) {
	session := sessionOf(context)
	entry := model.NewCatalogEntry(session)
	if err := c.inserter.Put(context.GetContext(), entry); err != nil {
		c.Fail(context, fmt.Errorf("catalog insert for %s: %w", session.Id, err))
		return
	}
	slog.InfoContext(context.GetContext(), "catalogued video", "video_id", session.Id, "table", c.table)
	c.Succeed(context, entry)
}
