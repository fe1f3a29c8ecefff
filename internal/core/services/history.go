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

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
)

// HistoryService keeps the per-video list of past searches.
type HistoryService struct {
	Store store.KeyedStore
}

var _ HistoryRecorder = (*HistoryService)(nil)

func historyKey(videoId string) string {
	return "history:" + videoId
}

func (h *HistoryService) Record(ctx context.Context, videoId string, entry *model.HistoryEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	return h.Store.Append(ctx, historyKey(videoId), b)
}

// List returns the history oldest first. Undecodable entries are skipped.
func (h *HistoryService) List(ctx context.Context, videoId string) ([]*model.HistoryEntry, error) {
	raw, err := h.Store.Range(ctx, historyKey(videoId))
	if err != nil {
		return nil, err
	}
	out := make([]*model.HistoryEntry, 0, len(raw))
	for _, b := range raw {
		var e model.HistoryEntry
		if err := json.Unmarshal(b, &e); err != nil {
			slog.WarnContext(ctx, "skipping corrupt history entry", "video_id", videoId, "error", err)
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

func (h *HistoryService) Delete(ctx context.Context, videoId string) error {
	return h.Store.Delete(ctx, historyKey(videoId))
}
