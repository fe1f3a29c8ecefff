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

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-clip-finder/internal/api"
	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	test "github.com/jaycherian/gcp-go-clip-finder/internal/testutil"
)

// mp4Header is the start of an ISO base media file.
var mp4Header = append([]byte{0x00, 0x00, 0x00, 0x20}, []byte("ftypisom\x00\x00\x02\x00isomiso2avc1mp41")...)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	state  *app.State
	router *gin.Engine
}

func newServer(t *testing.T, configure func(*cloud.Config)) *server {
	t.Helper()
	cfg := test.TempConfig(t)
	if configure != nil {
		configure(cfg)
	}
	registry := providers.NewStaticRegistry(
		&test.HashTextEmbedder{},
		&test.FakeVisualEmbedder{Default: []float32{1, 0}},
		&test.FakeTranscriber{Segments: []*model.Segment{
			{Start: 0, End: 4, Text: "goroutines and channels"},
			{Start: 4, End: 9, Text: "select statements in depth"},
		}})
	state := app.Assemble(cfg, &cloud.ServiceClients{}, registry,
		test.NewSessionStore(t), store.NewMemoryKeyedStore(), test.FakeToolRunner(6))
	t.Cleanup(state.Close)
	return &server{state: state, router: api.NewRouter(state)}
}

func (s *server) do(t *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := make(map[string]any)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// ingested uploads a video and waits for its ingestion to finish.
func (s *server) ingested(t *testing.T) string {
	t.Helper()
	rec := s.upload(t, "lecture.mp4", mp4Header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decode(t, rec)["video_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.state.Ingest.Wait(ctx, id))
	return id
}

func TestHealthAndRoot(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "goroutines")
	assert.NotEmpty(t, rec.Header().Get(api.RequestIdHeader))

	rec = s.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deps := decode(t, rec)["dependencies"].(map[string]any)
	assert.Equal(t, true, deps["text_embedder"])
}

func TestStatusUnknownVideo(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(t, http.MethodGet, "/status/missing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_found", body["status"])
	assert.Equal(t, 0.0, body["progress"])
	assert.Equal(t, "Video not found", body["message"])
}

func TestUploadRejectsBadInput(t *testing.T) {
	s := newServer(t, nil)

	rec := s.upload(t, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "Invalid file format")

	rec = s.upload(t, "fake.mp4", []byte("definitely not a video"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "not a video")

	rec = s.do(t, http.MethodPost, "/upload-url?url=%20", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRateLimited(t *testing.T) {
	s := newServer(t, func(c *cloud.Config) { c.RateLimit.UploadsPerDay = 1 })

	rec := s.upload(t, "first.mp4", mp4Header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0.0, decode(t, rec)["remaining_uploads"])

	rec = s.upload(t, "second.mp4", mp4Header)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVideoLifecycle(t *testing.T) {
	s := newServer(t, nil)
	id := s.ingested(t)

	rec := s.do(t, http.MethodGet, "/status/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode(t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/video-info/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode(t, rec)
	assert.Equal(t, 2.0, info["segments_count"])
	assert.Equal(t, 6.0, info["frames_count"])
	assert.Equal(t, "fake-clip + hash-bow", info["model"])

	rec = s.do(t, http.MethodPost, "/search", gin.H{"video_id": id, "query": "goroutines"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp model.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.SearchTypeHybrid, resp.SearchType)
	require.NotEmpty(t, resp.Results)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}

	rec = s.do(t, http.MethodGet, "/search-history/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["history"], 1)

	rec = s.do(t, http.MethodGet, "/frame/"+id+"/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/frame/"+id+"/99", nil).Code)

	rec = s.do(t, http.MethodGet, "/video/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/bookmarks", gin.H{"video_id": id, "timestamp": 4.5, "note": "select"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodGet, "/bookmarks/"+id, nil)
	assert.Len(t, decode(t, rec)["bookmarks"], 1)

	rec = s.do(t, http.MethodPost, "/create-clip", gin.H{"video_id": id, "start_time": 1.5, "end_time": 4.2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	clip := decode(t, rec)
	filename := fmt.Sprintf("clip_%s_1_4.mp4", id)
	assert.Equal(t, filename, clip["filename"])
	assert.Equal(t, "/download-clip/"+filename, clip["clip_url"])
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/download-clip/"+filename, nil).Code)

	rec = s.do(t, http.MethodDelete, "/video/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not_found", decode(t, s.do(t, http.MethodGet, "/status/"+id, nil))["status"])
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/video/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/download-clip/"+filename, nil).Code)
	assert.Len(t, decode(t, s.do(t, http.MethodGet, "/bookmarks/"+id, nil))["bookmarks"], 0)
}

func TestSearchErrors(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPost, "/search", gin.H{"video_id": "missing", "query": "cats"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "not processed")

	rec = s.do(t, http.MethodPost, "/search", gin.H{"query": "cats"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := s.ingested(t)
	rec = s.do(t, http.MethodPost, "/search", gin.H{"video_id": id, "query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPost, "/search", gin.H{"video_id": id, "query": "cats", "search_type": "audio"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClipErrors(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPost, "/create-clip", gin.H{"video_id": "missing", "start_time": 1, "end_time": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/download-clip/clip_nope_1_2.mp4", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/download-clip/..", nil).Code)
}

func TestCatalogDisabled(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/catalog", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/video/missing/stream", nil).Code)
}
