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
	"os"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// VideoDownload fetches the session's source URL with yt-dlp into the
// session video path. Sessions without a source URL skip it.
type VideoDownload struct {
	cor.BaseCommand
	commandPath string
	timeout     time.Duration
	runner      ToolRunner
}

func NewVideoDownload(name string, commandPath string, timeout time.Duration) *VideoDownload {
	return &VideoDownload{
		BaseCommand: *cor.NewBaseCommand(name),
		commandPath: commandPath,
		timeout:     timeout,
		runner:      ExecRunner,
	}
}

func (c *VideoDownload) WithRunner(runner ToolRunner) *VideoDownload {
	c.runner = runner
	return c
}

func (c *VideoDownload) IsExecutable(context cor.Context) bool {
	return hasSession(context) && sessionOf(context).SourceURL != ""
}

func (c *VideoDownload) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := sessionOf(context)
	progress := progressOf(context)
	progress.Update(ctx, model.StatusDownloading, 0.05, "Downloading video...")

	args := []string{"-f", "best[ext=mp4]/best", "--no-playlist", "-o", session.VideoPath, session.SourceURL}
	if err := runTool(ctx, c.runner, c.timeout, c.commandPath, args...); err != nil {
		os.Remove(session.VideoPath)
		c.Fail(context, fmt.Errorf("download: %w", err))
		return
	}
	if _, err := os.Stat(session.VideoPath); err != nil {
		c.Fail(context, fmt.Errorf("download produced no file: %w", err))
		return
	}
	progress.Update(ctx, model.StatusDownloading, 0.1, "Download complete, starting processing...")
	c.Succeed(context, session.VideoPath)
}
