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
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// GCSToUploadFile copies a notified object into the upload directory and
// opens a queued session for it.
type GCSToUploadFile struct {
	cor.BaseCommand
	client      *storage.Client
	layout      Layout
	maxFileSize int64
}

func NewGCSToUploadFile(name string, client *storage.Client, layout Layout, maxFileSize int64) *GCSToUploadFile {
	return &GCSToUploadFile{BaseCommand: *cor.NewBaseCommand(name), client: client, layout: layout, maxFileSize: maxFileSize}
}

func (c *GCSToUploadFile) Execute(context cor.Context) {
	ctx := context.GetContext()
	obj := context.Get(c.GetInputParam()).(*cloud.GCSObject)
	if c.maxFileSize > 0 && obj.Size > c.maxFileSize {
		c.Fail(context, fmt.Errorf("%w: %s is %d bytes, limit is %d", model.ErrInvalidQuery, obj.URI(), obj.Size, c.maxFileSize))
		return
	}

	session := c.layout.NewSession(model.GenerateVideoId(obj.BaseName(), time.Now()), obj.BaseName())
	reader, err := c.client.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to open %s: %w", obj.URI(), err))
		return
	}
	defer reader.Close()

	file, err := os.Create(session.VideoPath)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if _, err = io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(session.VideoPath)
		c.Fail(context, fmt.Errorf("failed to download %s: %w", obj.URI(), err))
		return
	}
	if err = file.Close(); err != nil {
		os.Remove(session.VideoPath)
		c.Fail(context, err)
		return
	}
	slog.InfoContext(ctx, "downloaded object", "uri", obj.URI(), "video_id", session.Id)
	context.Add(GetSessionParameterName(), session)
	c.Succeed(context, session)
}
