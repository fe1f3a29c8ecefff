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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
)

// BookmarkService stores user notes pinned to a timestamp of a video.
type BookmarkService struct {
	Store    store.KeyedStore
	Sessions store.SessionStore
}

func bookmarkKey(videoId string) string {
	return "bookmarks:" + videoId
}

// Create validates and appends a bookmark. The video must exist.
func (b *BookmarkService) Create(ctx context.Context, req *model.BookmarkRequest) (*model.Bookmark, error) {
	if strings.TrimSpace(req.VideoId) == "" {
		return nil, fmt.Errorf("%w: video_id is required", model.ErrInvalidQuery)
	}
	if req.Timestamp < 0 {
		return nil, fmt.Errorf("%w: timestamp must not be negative", model.ErrInvalidQuery)
	}
	if b.Sessions != nil {
		if _, err := b.Sessions.LoadStatus(ctx, req.VideoId); err != nil {
			return nil, err
		}
	}
	bm := &model.Bookmark{
		Id:        uuid.NewString(),
		Timestamp: req.Timestamp,
		Note:      req.Note,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(bm)
	if err != nil {
		return nil, fmt.Errorf("encode bookmark: %w", err)
	}
	if err := b.Store.Append(ctx, bookmarkKey(req.VideoId), raw); err != nil {
		return nil, err
	}
	return bm, nil
}

func (b *BookmarkService) List(ctx context.Context, videoId string) ([]*model.Bookmark, error) {
	raw, err := b.Store.Range(ctx, bookmarkKey(videoId))
	if err != nil {
		return nil, err
	}
	out := make([]*model.Bookmark, 0, len(raw))
	for _, r := range raw {
		var bm model.Bookmark
		if err := json.Unmarshal(r, &bm); err != nil {
			slog.WarnContext(ctx, "skipping corrupt bookmark", "video_id", videoId, "error", err)
			continue
		}
		out = append(out, &bm)
	}
	return out, nil
}

func (b *BookmarkService) Delete(ctx context.Context, videoId string) error {
	return b.Store.Delete(ctx, bookmarkKey(videoId))
}
