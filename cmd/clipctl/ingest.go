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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

var ingestURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a local video file or a URL and wait for it to finish",
	Example: `  clipctl ingest lecture.mp4
  clipctl ingest --url https://www.youtube.com/watch?v=abc`,
	Args: func(cmd *cobra.Command, args []string) error {
		if ingestURL == "" {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.NoArgs(cmd, args)
	},
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "download the video from this URL")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	layout := state.Ingest.Layout()

	var session *model.VideoSession
	if ingestURL != "" {
		id := model.GenerateVideoId(ingestURL, time.Now())
		session = layout.NewSession(id, ingestURL)
		session.SourceURL = ingestURL
	} else {
		source := args[0]
		ext := strings.ToLower(filepath.Ext(source))
		if !slices.Contains(state.Config.Ingestion.AllowedExtensions, ext) {
			return fmt.Errorf("unsupported file format %q", ext)
		}
		id := model.GenerateVideoId(filepath.Base(source), time.Now())
		session = layout.NewSession(id, filepath.Base(source))
		if err := copyFile(source, session.VideoPath); err != nil {
			return err
		}
	}

	if err := state.Ingest.Submit(ctx, session); err != nil {
		return err
	}
	fmt.Printf("Ingesting %s as %s\n", session.Filename, session.Id)
	return follow(ctx, session.Id)
}

// follow prints status changes until the ingestion of id ends.
func follow(ctx context.Context, id string) error {
	done := make(chan error, 1)
	go func() { done <- state.Ingest.Wait(ctx, id) }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var last string
	report := func() *model.ProcessingStatus {
		status, err := state.Videos.Status(ctx, id)
		if err != nil {
			return nil
		}
		line := fmt.Sprintf("[%3.0f%%] %s: %s", status.Progress*100, status.Status, status.Message)
		if line != last {
			fmt.Println(line)
			last = line
		}
		return status
	}
	for {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			if status := report(); status != nil && status.Status == model.StatusError {
				return fmt.Errorf("ingestion failed: %s", status.Message)
			}
			return nil
		case <-ticker.C:
			report()
		}
	}
}

func copyFile(source string, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
