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
	"os"
	"path/filepath"
	"strings"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
)

// ClipService cuts downloadable clips out of completed videos.
type ClipService struct {
	Sessions store.SessionStore
	Layout   commands.Layout
	ClipsDir string
	Clip     *commands.FFMpegClip
}

// ClipFilename names the clip of [start, end) of a video.
func ClipFilename(videoId string, start float64, end float64) string {
	return fmt.Sprintf("clip_%s_%d_%d.mp4", videoId, int(start), int(end))
}

func (s *ClipService) Create(ctx context.Context, req *model.ClipRequest) (*model.ClipResult, error) {
	if req.StartTime < 0 || req.EndTime <= req.StartTime {
		return nil, fmt.Errorf("%w: end_time must be greater than start_time", model.ErrInvalidQuery)
	}
	status, err := s.Sessions.LoadStatus(ctx, req.VideoId)
	if err != nil {
		return nil, err
	}
	if status.Status != model.StatusCompleted {
		return nil, fmt.Errorf("%w: video %s is %s", model.ErrNotReady, req.VideoId, status.Status)
	}

	filename := ClipFilename(req.VideoId, req.StartTime, req.EndTime)
	if err := os.MkdirAll(s.ClipsDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInfrastructure, err)
	}
	job := &commands.ClipJob{
		VideoPath: s.Layout.VideoPath(req.VideoId),
		Start:     req.StartTime,
		End:       req.EndTime,
		Output:    filepath.Join(s.ClipsDir, filename),
	}
	chainCtx := cor.NewContext(ctx, nil)
	defer chainCtx.Close()
	chainCtx.Add(commands.GetClipJobParameterName(), job)
	s.Clip.Execute(chainCtx)
	if err := chainCtx.Err(); err != nil {
		if errors.Is(err, model.ErrInvalidQuery) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrInfrastructure, err)
	}
	return &model.ClipResult{ClipUrl: "/download-clip/" + filename, Filename: filename}, nil
}

// ClipPath resolves a clip filename inside the clips directory. Names that
// could escape it are rejected.
func (s *ClipService) ClipPath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") ||
		strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("%w: invalid clip name", model.ErrInvalidQuery)
	}
	return existing(filepath.Join(s.ClipsDir, filename), "clip")
}
