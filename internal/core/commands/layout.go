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
	"path/filepath"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// Layout places the files of a session on local disk.
type Layout struct {
	UploadDir string
	CacheDir  string
}

// VideoPath is where the source video of id is kept.
func (l Layout) VideoPath(id string) string {
	return filepath.Join(l.UploadDir, id+".mp4")
}

// FramesDir is the directory of the sampled frames of id.
func (l Layout) FramesDir(id string) string {
	return filepath.Join(l.CacheDir, "frames_"+id)
}

// NewSession creates a queued session with its paths filled in.
func (l Layout) NewSession(id string, filename string) *model.VideoSession {
	session := model.NewVideoSession(id, filename, l.VideoPath(id))
	session.FramesDir = l.FramesDir(id)
	return session
}
