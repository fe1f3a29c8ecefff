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

package workflow

import (
	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// GCSIngestWorkflow handles bucket notifications: it copies the new object
// into the upload directory and submits it to the ingest workflow.
type GCSIngestWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

func (m *GCSIngestWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

func NewGCSIngestWorkflow(config *cloud.Config, storageClient *storage.Client, ingest *VideoIngestWorkflow) *GCSIngestWorkflow {
	out := &GCSIngestWorkflow{BaseCommand: *cor.NewBaseCommand("gcs-ingest-workflow")}

	chain := cor.NewBaseChain(out.GetName())
	chain.AddCommand(commands.NewGCSTriggerToGCSObject("gcs-topic-listener", config.Ingestion.AllowedExtensions))
	chain.AddCommand(commands.NewGCSToUploadFile("gcs-to-upload-file", storageClient, ingest.Layout(), config.Storage.MaxFileSize()))
	chain.AddCommand(newSubmitIngestion("submit-ingestion", ingest))
	out.chain = chain
	return out
}

// submitIngestion hands the session in CtxIn to the ingest workflow.
type submitIngestion struct {
	cor.BaseCommand
	ingest *VideoIngestWorkflow
}

func newSubmitIngestion(name string, ingest *VideoIngestWorkflow) *submitIngestion {
	return &submitIngestion{BaseCommand: *cor.NewBaseCommand(name), ingest: ingest}
}

func (c *submitIngestion) Execute(context cor.Context) {
	session := context.Get(c.GetInputParam()).(*model.VideoSession)
	if err := c.ingest.Submit(context.GetContext(), session); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context, session.Id)
}
