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

// Package model defines the data structures for the application. This file
// contains the transient shapes exchanged with callers: search requests and
// results, processing status snapshots, history entries and bookmarks.
//
// None of these are owned by a VideoSession. Results are produced per call,
// history and bookmarks live in the keyed store.
package model

import (
	"fmt"
	"strings"
	"time"
)

// SearchType selects which embedding spaces a search consults.
type SearchType string

const (
	SearchTypeText   SearchType = "text"
	SearchTypeVisual SearchType = "visual"
	SearchTypeHybrid SearchType = "hybrid"
)

// DefaultTopK is used when a request does not name a result count.
const DefaultTopK = 10

// ParseSearchType validates a search type, defaulting an empty value to hybrid.
func ParseSearchType(in string) (SearchType, error) {
	switch SearchType(strings.ToLower(strings.TrimSpace(in))) {
	case "", SearchTypeHybrid:
		return SearchTypeHybrid, nil
	case SearchTypeText:
		return SearchTypeText, nil
	case SearchTypeVisual:
		return SearchTypeVisual, nil
	}
	return "", fmt.Errorf("%w: unknown search type %q", ErrInvalidQuery, in)
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	VideoId    string     `json:"video_id" binding:"required"`
	Query      string     `json:"query"`
	SearchType SearchType `json:"search_type"`
	TopK       int        `json:"top_k"`
}

// SearchResult is one ranked match. Score semantics depend on the search type
// that produced it.
type SearchResult struct {
	Timestamp  float64    `json:"timestamp"`
	End        float64    `json:"end"`
	Text       string     `json:"text"`
	Score      float64    `json:"score"`
	SearchType SearchType `json:"search_type"`
	FrameUrl   string     `json:"frame_url,omitempty"`
	ClipScore  *float64   `json:"clip_score,omitempty"`
}

// SearchResponse is the ranked, deduplicated, truncated answer.
type SearchResponse struct {
	Results      []*SearchResult `json:"results"`
	TotalMatches int             `json:"total_matches"`
	SearchType   SearchType      `json:"search_type"`
	Model        string          `json:"model"`
}

// ProcessingStatus is a snapshot of ingestion progress.
type ProcessingStatus struct {
	VideoId  string  `json:"video_id,omitempty"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

// NotFoundStatus is reported for unknown video ids.
func NotFoundStatus() *ProcessingStatus {
	return &ProcessingStatus{Status: StatusNotFound, Progress: 0, Message: "Video not found"}
}

// HistoryEntry records one completed search.
type HistoryEntry struct {
	Query        string     `json:"query"`
	SearchType   SearchType `json:"search_type"`
	Timestamp    time.Time  `json:"timestamp"`
	ResultsCount int        `json:"results_count"`
	TopScore     float64    `json:"top_score"`
}

// BookmarkRequest is the body of a bookmark creation call.
type BookmarkRequest struct {
	VideoId   string  `json:"video_id" binding:"required"`
	Timestamp float64 `json:"timestamp"`
	Note      string  `json:"note"`
}

// Bookmark is a user note pinned to a timestamp.
type Bookmark struct {
	Id        string    `json:"id"`
	Timestamp float64   `json:"timestamp"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// ClipRequest asks for a sub-clip of an ingested video.
type ClipRequest struct {
	VideoId   string  `json:"video_id" binding:"required"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// ClipResult names a created clip and where to download it.
type ClipResult struct {
	ClipUrl  string `json:"clip_url"`
	Filename string `json:"filename"`
}

// VideoInfo summarises a processed video.
type VideoInfo struct {
	VideoId         string  `json:"video_id"`
	Duration        float64 `json:"duration"`
	SegmentsCount   int     `json:"segments_count"`
	FramesCount     int     `json:"frames_count"`
	FrameInterval   float64 `json:"frame_interval"`
	Model           string  `json:"model"`
	HasTextSearch   bool    `json:"has_text_search"`
	HasVisualSearch bool    `json:"has_visual_search"`
}

// CatalogEntry is the row written to the analytics catalog for every
// completed ingestion.
type CatalogEntry struct {
	Id            string    `json:"id" bigquery:"id"`
	Filename      string    `json:"filename" bigquery:"filename"`
	SourceURL     string    `json:"source_url" bigquery:"source_url"`
	Duration      float64   `json:"duration" bigquery:"duration"`
	SegmentsCount int       `json:"segments_count" bigquery:"segments_count"`
	FramesCount   int       `json:"frames_count" bigquery:"frames_count"`
	TextModel     string    `json:"text_model" bigquery:"text_model"`
	VisualModel   string    `json:"visual_model" bigquery:"visual_model"`
	CreateDate    time.Time `json:"create_date" bigquery:"create_date"`
}

// NewCatalogEntry builds the catalog row for a session.
func NewCatalogEntry(v *VideoSession) *CatalogEntry {
	return &CatalogEntry{
		Id:            v.Id,
		Filename:      v.Filename,
		SourceURL:     v.SourceURL,
		Duration:      v.Duration,
		SegmentsCount: len(v.Segments),
		FramesCount:   len(v.Frames),
		TextModel:     v.TextModel,
		VisualModel:   v.VisualModel,
		CreateDate:    v.CreateDate,
	}
}
