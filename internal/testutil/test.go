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

// Package test provides the configuration loader, sample notifications and
// deterministic provider fakes shared by the test suites.
package test

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/providers"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/store"
	"github.com/stretchr/testify/require"
)

var (
	once   sync.Once
	config *cloud.Config
)

// repoRoot walks up from the working directory to the directory holding go.mod.
func repoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at configs/.env.test.toml.
func SetupOS() error {
	if err := os.Setenv(cloud.EnvConfigFilePrefix, filepath.Join(repoRoot(), "configs")); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once per test binary.
func GetConfig() *cloud.Config {
	once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config = cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
	})
	return config
}

// TempConfig returns a copy of the test configuration whose directories live under t.TempDir().
func TempConfig(t *testing.T) *cloud.Config {
	t.Helper()
	c := *GetConfig()
	root := t.TempDir()
	c.Storage.UploadDir = filepath.Join(root, "uploads")
	c.Storage.ClipsDir = filepath.Join(root, "clips")
	c.Storage.CacheDir = filepath.Join(root, "cache")
	for _, d := range []string{c.Storage.UploadDir, c.Storage.ClipsDir, c.Storage.CacheDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return &c
}

// NewSessionStore opens a private in-memory database.
func NewSessionStore(t *testing.T) *store.GormSessionStore {
	t.Helper()
	db, err := store.OpenDatabase(":memory:", false)
	require.NoError(t, err)
	s, err := store.NewGormSessionStore(db)
	require.NoError(t, err)
	return s
}

// GetTestUploadMessageText is a bucket notification for a finalized video.
func GetTestUploadMessageText() string {
	return `{
  "kind": "storage#object",
  "id": "clip_finder_uploads/lectures/intro-to-go.mp4/1728615848664286",
  "name": "lectures/intro-to-go.mp4",
  "bucket": "clip_finder_uploads",
  "generation": "1728615848664286",
  "contentType": "video/mp4",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "updated": "2024-10-11T03:04:08.672Z",
  "size": "259348037",
  "md5Hash": "67c1rAU+1RYZzK5zp8iBkA=="
}`
}

// GetTestImageMessageText is a bucket notification for a non-video object.
func GetTestImageMessageText() string {
	return `{"name": "posters/intro.png", "bucket": "clip_finder_uploads", "contentType": "image/png", "size": "1024"}`
}

// HashTextEmbedder is a bag-of-words embedder: every lower-cased word adds
// one to a hashed dimension. Texts sharing words are similar.
type HashTextEmbedder struct {
	Dim   int
	Err   error
	Calls atomic.Int32
}

func (h *HashTextEmbedder) Model() string { return "hash-bow" }

func (h *HashTextEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	h.Calls.Add(1)
	if h.Err != nil {
		return nil, h.Err
	}
	dim := h.Dim
	if dim == 0 {
		dim = 64
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.Trim(w, ".,!?;:\"'")
			if w == "" {
				continue
			}
			f := fnv.New32a()
			f.Write([]byte(w))
			v[f.Sum32()%uint32(dim)]++
		}
		out[i] = providers.Normalize(v)
	}
	return out, nil
}

// FakeVisualEmbedder returns fixed vectors. Queries are matched exactly;
// images by file base name, falling back to Default.
type FakeVisualEmbedder struct {
	Queries  map[string][]float32
	Images   map[string][]float32
	Default  []float32
	QueryErr error
	ImageErr error
}

func (f *FakeVisualEmbedder) Model() string { return "fake-clip" }

func (f *FakeVisualEmbedder) EmbedQuery(_ context.Context, query string) ([]float32, error) {
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	if v, ok := f.Queries[query]; ok {
		return v, nil
	}
	return f.Default, nil
}

func (f *FakeVisualEmbedder) EmbedImages(_ context.Context, paths []string) ([][]float32, error) {
	if f.ImageErr != nil {
		return nil, f.ImageErr
	}
	out := make([][]float32, len(paths))
	for i, p := range paths {
		if v, ok := f.Images[filepath.Base(p)]; ok {
			out[i] = v
		} else {
			out[i] = f.Default
		}
	}
	return out, nil
}

// FakeTranscriber returns copies of fixed segments.
type FakeTranscriber struct {
	Segments []*model.Segment
	Err      error
}

func (f *FakeTranscriber) Transcribe(_ context.Context, _ string) ([]*model.Segment, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]*model.Segment, len(f.Segments))
	for i, s := range f.Segments {
		c := *s
		out[i] = &c
	}
	return out, nil
}

// FakeToolRunner stands in for ffmpeg and yt-dlp. It creates the files the
// real tools would write: frames sampled frames for a frame extraction, an
// empty file for audio, clips and downloads.
func FakeToolRunner(frames int) commands.ToolRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case contains(args, "-vf"):
			pattern := args[len(args)-1]
			for i := 1; i <= frames; i++ {
				if err := os.WriteFile(fmt.Sprintf(pattern, i), []byte("jpeg"), 0o644); err != nil {
					return nil, err
				}
			}
		case contains(args, "-vn"):
			return nil, touch(args[len(args)-1])
		case contains(args, "-ss"):
			return nil, touch(args[len(args)-2])
		case contains(args, "-o"):
			return nil, touch(args[indexOf(args, "-o")+1])
		}
		return nil, nil
	}
}

// FailingToolRunner fails every invocation whose arguments contain marker.
func FailingToolRunner(frames int, marker string) commands.ToolRunner {
	ok := FakeToolRunner(frames)
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if contains(args, marker) {
			return []byte("fatal: simulated failure"), fmt.Errorf("exit status 1")
		}
		return ok(ctx, name, args...)
	}
}

func touch(path string) error {
	return os.WriteFile(path, nil, 0o644)
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}

func contains(args []string, v string) bool {
	return indexOf(args, v) >= 0
}
