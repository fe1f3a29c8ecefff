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
	"log/slog"
	"os"
	"path/filepath"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
)

// IngestionCanceller stops an in-flight ingestion.
type IngestionCanceller interface {
	Cancel(id string, timeout time.Duration) bool
}

// VideoService owns the lifecycle of ingested videos outside the pipeline:
// status, metadata, file lookup, signed URLs and deletion.
type VideoService struct {
	Sessions      store.SessionStore
	History       *HistoryService
	Bookmarks     *BookmarkService
	Ingestion     IngestionCanceller
	Layout        commands.Layout
	ClipsDir      string
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient
	SignerEmail   string
	ArchiveBucket string
	SignedURLTTL  time.Duration
	// CancelTimeout bounds how long Delete waits for a cancelled ingestion.
	CancelTimeout time.Duration
}

// Status never fails for an unknown id; it reports the not_found status instead.
func (s *VideoService) Status(ctx context.Context, id string) (*model.ProcessingStatus, error) {
	status, err := s.Sessions.LoadStatus(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.NotFoundStatus(), nil
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Info describes a completed video.
func (s *VideoService) Info(ctx context.Context, id string) (*model.VideoInfo, error) {
	session, err := s.ready(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.VideoInfo{
		VideoId:         session.Id,
		Duration:        session.Duration,
		SegmentsCount:   len(session.Segments),
		FramesCount:     len(session.Frames),
		FrameInterval:   session.FrameInterval,
		Model:           session.ModelName(),
		HasTextSearch:   session.TextModel != "" && len(session.Segments) > 0,
		HasVisualSearch: session.VisualModel != "" && len(session.Frames) > 0,
	}, nil
}

func (s *VideoService) ready(ctx context.Context, id string) (*model.VideoSession, error) {
	session, err := s.Sessions.Load(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("%w: video %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !session.IsReady() {
		return nil, fmt.Errorf("%w: video %s is %s", model.ErrNotReady, id, session.Status)
	}
	return session, nil
}

// List returns every known video, newest first, without segments or frames.
func (s *VideoService) List(ctx context.Context) ([]*model.VideoSession, error) {
	return s.Sessions.List(ctx)
}

// Delete cancels any running ingestion and removes the video, its frames,
// its clips, its session, its history and its bookmarks.
func (s *VideoService) Delete(ctx context.Context, id string) error {
	if s.Ingestion != nil {
		timeout := s.CancelTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		if s.Ingestion.Cancel(id, timeout) {
			slog.InfoContext(ctx, "cancelled running ingestion", "video_id", id)
		}
	}
	if _, err := s.Sessions.LoadStatus(ctx, id); err != nil {
		return err
	}

	removeQuietly(ctx, s.Layout.VideoPath(id))
	if err := os.RemoveAll(s.Layout.FramesDir(id)); err != nil {
		slog.WarnContext(ctx, "failed to remove frames", "video_id", id, "error", err)
	}
	if s.ClipsDir != "" {
		clips, _ := filepath.Glob(filepath.Join(s.ClipsDir, fmt.Sprintf("clip_%s_*.mp4", id)))
		for _, c := range clips {
			removeQuietly(ctx, c)
		}
	}

	if err := s.Sessions.Delete(ctx, id); err != nil {
		return err
	}
	if s.History != nil {
		if err := s.History.Delete(ctx, id); err != nil {
			slog.WarnContext(ctx, "failed to delete history", "video_id", id, "error", err)
		}
	}
	if s.Bookmarks != nil {
		if err := s.Bookmarks.Delete(ctx, id); err != nil {
			slog.WarnContext(ctx, "failed to delete bookmarks", "video_id", id, "error", err)
		}
	}
	slog.InfoContext(ctx, "deleted video", "video_id", id)
	return nil
}

func removeQuietly(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.WarnContext(ctx, "failed to remove file", "path", path, "error", err)
	}
}

// FramePath locates the JPEG of frame n.
func (s *VideoService) FramePath(_ context.Context, id string, n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("%w: frame number must not be negative", model.ErrInvalidQuery)
	}
	return existing(commands.FramePath(s.Layout.FramesDir(id), n), "frame")
}

// VideoPath locates the uploaded video.
func (s *VideoService) VideoPath(_ context.Context, id string) (string, error) {
	return existing(s.Layout.VideoPath(id), "video")
}

func existing(path string, what string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s %s", model.ErrNotFound, what, filepath.Base(path))
		}
		return "", fmt.Errorf("%w: %w", model.ErrInfrastructure, err)
	}
	return path, nil
}

// SignedURL returns a time limited GET URL for the archived copy of a video.
// URLs are signed by the IAM credentials API on behalf of SignerEmail, so the
// server needs no private key.
func (s *VideoService) SignedURL(ctx context.Context, id string) (string, error) {
	if s.StorageClient == nil || s.ArchiveBucket == "" {
		return "", fmt.Errorf("%w: archiving is not enabled", model.ErrNotFound)
	}
	session, err := s.ready(ctx, id)
	if err != nil {
		return "", err
	}
	objectName := commands.ArchiveObjectName(session.Id, session.VideoPath)

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.SignedURLTTL),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    "projects/-/serviceAccounts/" + s.SignerEmail,
				Payload: b,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := s.StorageClient.Bucket(s.ArchiveBucket).SignedURL(objectName, opts)
	if err != nil {
		return "", fmt.Errorf("%w: Bucket(%q).SignedURL(%q): %w", model.ErrInfrastructure, s.ArchiveBucket, objectName, err)
	}
	return u, nil
}
