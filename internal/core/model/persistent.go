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
// holds the persistent shapes: a VideoSession and the Segments and Frames it
// owns. These are written once by the ingestion pipeline and only read by the
// search engine afterwards.
package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Status is the processing state of a video session.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusDownloading  Status = "downloading"
	StatusExtracting   Status = "extracting"
	StatusTranscribing Status = "transcribing"
	StatusEmbedding    Status = "embedding"
	StatusStoring      Status = "storing"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
	// StatusNotFound is only ever reported, never stored.
	StatusNotFound Status = "not_found"
)

// DefaultFrameInterval is the frame sampling interval in seconds.
const DefaultFrameInterval = 1.0

// Segment is a time-bounded transcript unit with its own text embedding.
type Segment struct {
	Start     float64   `json:"start"`               // Start time in seconds.
	End       float64   `json:"end"`                 // End time in seconds, never before Start.
	Text      string    `json:"text"`                // The transcribed text.
	Embedding []float32 `json:"embedding,omitempty"` // L2-normalized vector in the text embedding space.
}

// Contains reports whether the timestamp falls inside the closed interval [Start, End].
func (s *Segment) Contains(ts float64) bool {
	return s.Start <= ts && ts <= s.End
}

// Frame is a sampled video image with its own visual embedding.
type Frame struct {
	Timestamp   float64   `json:"timestamp"`           // FrameNumber * sampling interval.
	FrameNumber int       `json:"frame_number"`        // Zero based index of the sample.
	Path        string    `json:"frame_path"`          // Location of the stored JPEG.
	Embedding   []float32 `json:"embedding,omitempty"` // Vector in the joint visual space. Never compare with Segment embeddings.
}

// VideoSession aggregates everything derived from one ingested video.
type VideoSession struct {
	Id            string     `json:"video_id"`
	Filename      string     `json:"filename"`
	SourceURL     string     `json:"source_url,omitempty"`
	VideoPath     string     `json:"video_path"`
	FramesDir     string     `json:"frames_dir"`
	Segments      []*Segment `json:"segments"`
	Frames        []*Frame   `json:"frames"`
	Duration      float64    `json:"duration"`
	FrameInterval float64    `json:"frame_interval"`
	TextModel     string     `json:"text_model"`
	VisualModel   string     `json:"visual_model"`
	Status        Status     `json:"status"`
	Progress      float64    `json:"progress"`
	Message       string     `json:"message"`
	CreateDate    time.Time  `json:"create_date"`
	UpdateDate    time.Time  `json:"update_date"`
}

// NewVideoSession creates a queued session for a freshly received video.
func NewVideoSession(id string, filename string, videoPath string) *VideoSession {
	now := time.Now()
	return &VideoSession{
		Id:            id,
		Filename:      filename,
		VideoPath:     videoPath,
		Segments:      make([]*Segment, 0),
		Frames:        make([]*Frame, 0),
		FrameInterval: DefaultFrameInterval,
		Status:        StatusQueued,
		Message:       "Queued for processing",
		CreateDate:    now,
		UpdateDate:    now,
	}
}

// IsReady reports whether the session can be searched.
func (v *VideoSession) IsReady() bool {
	return v != nil && v.Status == StatusCompleted
}

// ModelName describes the embedding models used for the session.
func (v *VideoSession) ModelName() string {
	switch {
	case v.TextModel == "" && v.VisualModel == "":
		return "Unknown"
	case v.TextModel == "":
		return v.VisualModel
	case v.VisualModel == "":
		return v.TextModel
	}
	return fmt.Sprintf("%s + %s", v.VisualModel, v.TextModel)
}

// ComputeDuration sets Duration to the end of the last segment, falling back
// to the latest frame timestamp, or zero when neither exists.
func (v *VideoSession) ComputeDuration() float64 {
	v.Duration = 0
	if len(v.Segments) > 0 {
		v.Duration = v.Segments[len(v.Segments)-1].End
		return v.Duration
	}
	for _, f := range v.Frames {
		if f.Timestamp > v.Duration {
			v.Duration = f.Timestamp
		}
	}
	return v.Duration
}

// SegmentTextAt returns the text of the first segment containing ts, or a
// placeholder naming the timestamp.
func (v *VideoSession) SegmentTextAt(ts float64) string {
	for _, s := range v.Segments {
		if s.Contains(ts) {
			return s.Text
		}
	}
	return fmt.Sprintf("Visual content at %.1fs", ts)
}

// FrameByNumber finds a frame by its sample index.
func (v *VideoSession) FrameByNumber(n int) *Frame {
	for _, f := range v.Frames {
		if f.FrameNumber == n {
			return f
		}
	}
	return nil
}

// GenerateVideoId derives a 16 character id from the file name and the time
// it was received.
func GenerateVideoId(filename string, received time.Time) string {
	sum := md5.Sum([]byte(filename + received.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:16]
}
