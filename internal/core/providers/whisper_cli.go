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

package providers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// WhisperCLITranscriber shells out to a whisper.cpp binary and reads back the
// SRT file it writes.
type WhisperCLITranscriber struct {
	BinaryPath string
	ModelPath  string
	Language   string
	Threads    int
}

var _ Transcriber = (*WhisperCLITranscriber)(nil)

func (w *WhisperCLITranscriber) args(audioPath string, outPrefix string) []string {
	args := []string{"-m", w.ModelPath, "-f", audioPath, "-osrt", "-of", outPrefix}
	if w.Language != "" {
		args = append(args, "-l", w.Language)
	}
	if w.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.Threads))
	}
	return args
}

func (w *WhisperCLITranscriber) Transcribe(ctx context.Context, audioPath string) ([]*model.Segment, error) {
	dir, err := os.MkdirTemp("", "whisper-")
	if err != nil {
		return nil, wrap("whisper", err)
	}
	defer os.RemoveAll(dir)

	outPrefix := filepath.Join(dir, "transcript")
	cmd := exec.CommandContext(ctx, w.BinaryPath, w.args(audioPath, outPrefix)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, wrap("whisper", fmt.Errorf("%w: %s", err, lastLine(output)))
	}
	srt, err := os.ReadFile(outPrefix + ".srt")
	if err != nil {
		return nil, wrap("whisper", err)
	}
	return ParseSRT(string(srt)), nil
}

func lastLine(output []byte) string {
	end := len(output)
	for end > 0 && (output[end-1] == '\n' || output[end-1] == '\r') {
		end--
	}
	start := end
	for start > 0 && output[start-1] != '\n' {
		start--
	}
	return string(output[start:end])
}
