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
	"path/filepath"

	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
)

// GCSFileUpload archives the session video to a bucket. The local copy is
// kept; it still serves streaming, frames and clips.
type GCSFileUpload struct {
	cor.BaseCommand
	client *storage.Client
	bucket string
}

func NewGCSFileUpload(name string, client *storage.Client, bucket string) *GCSFileUpload {
	return &GCSFileUpload{BaseCommand: *cor.NewBaseCommand(name), client: client, bucket: bucket}
}

func (c *GCSFileUpload) IsExecutable(context cor.Context) bool {
	return hasSession(context) && c.client != nil && c.bucket != ""
}

// ArchiveObjectName is the object name of an archived video.
func ArchiveObjectName(videoId string, videoPath string) string {
	return fmt.Sprintf("videos/%s%s", videoId, filepath.Ext(videoPath))
}

func (c *GCSFileUpload) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := sessionOf(context)

	dat, err := os.Open(session.VideoPath)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to open file %s: %w", session.VideoPath, err))
		return
	}
	defer dat.Close()

	objectName := ArchiveObjectName(session.Id, session.VideoPath)
	writer := c.client.Bucket(c.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = "video/mp4"
	if _, err = io.Copy(writer, dat); err != nil {
		writer.Close()
		c.Fail(context, fmt.Errorf("failed to copy %s to gs://%s/%s: %w", session.VideoPath, c.bucket, objectName, err))
		return
	}
	if err = writer.Close(); err != nil {
		c.Fail(context, fmt.Errorf("failed to finalize gs://%s/%s: %w", c.bucket, objectName, err))
		return
	}
	uri := fmt.Sprintf("gs://%s/%s", c.bucket, objectName)
	slog.InfoContext(ctx, "archived video", "video_id", session.Id, "uri", uri)
	c.Succeed(context, uri)
}
