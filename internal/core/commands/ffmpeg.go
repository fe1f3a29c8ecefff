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

// This file holds the commands that shell out to FFmpeg: audio extraction,
// frame sampling and clip cutting. They share one tool runner so tests can
// substitute the binary.
package commands

import (
	"bytes"
	goctx "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

const (
	// FramePattern is the printf pattern FFmpeg writes sampled frames with.
	// FFmpeg numbers from 1; frame n of the session lives in file n+1.
	FramePattern = "frame_%05d.jpg"
	frameGlob    = "frame_*.jpg"
)

// ToolRunner runs an external binary and returns its combined output.
type ToolRunner func(ctx goctx.Context, name string, args ...string) ([]byte, error)

// ExecRunner is the ToolRunner backed by os/exec.
func ExecRunner(ctx goctx.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// runTool applies the timeout and turns a failure into an error carrying the
// tool's last output line.
func runTool(ctx goctx.Context, runner ToolRunner, timeout time.Duration, name string, args ...string) error {
	if runner == nil {
		runner = ExecRunner
	}
	if timeout > 0 {
		var cancel goctx.CancelFunc
		ctx, cancel = goctx.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := runner(ctx, name, args...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), goctx.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", filepath.Base(name), timeout)
	}
	return fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, tail(out))
}

func tail(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// ToolAvailable reports whether the binary starts with the given probe arguments.
func ToolAvailable(ctx goctx.Context, path string, args ...string) bool {
	ctx, cancel := goctx.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, path, args...).Run() == nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FFMpegAudioExtractor writes the soundtrack of the session video as 16 kHz
// mono PCM, the input format of the transcriber.
type FFMpegAudioExtractor struct {
	cor.BaseCommand
	commandPath string
	timeout     time.Duration
	runner      ToolRunner
}

func NewFFMpegAudioExtractor(name string, commandPath string, timeout time.Duration) *FFMpegAudioExtractor {
	return &FFMpegAudioExtractor{
		BaseCommand: *cor.NewBaseCommand(name),
		commandPath: commandPath,
		timeout:     timeout,
		runner:      ExecRunner,
	}
}

// WithRunner replaces the tool runner.
func (c *FFMpegAudioExtractor) WithRunner(runner ToolRunner) *FFMpegAudioExtractor {
	c.runner = runner
	return c
}

func (c *FFMpegAudioExtractor) IsExecutable(context cor.Context) bool {
	return hasSession(context)
}

func (c *FFMpegAudioExtractor) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := sessionOf(context)
	progressOf(context).Update(ctx, model.StatusExtracting, 0.15, "Extracting audio...")

	audio, err := os.CreateTemp("", fmt.Sprintf("%s-*.wav", session.Id))
	if err != nil {
		c.Fail(context, err)
		return
	}
	audio.Close()
	context.AddTempFile(audio.Name())

	args := []string{"-y", "-hide_banner", "-i", session.VideoPath,
		"-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", audio.Name()}
	if err := runTool(ctx, c.runner, c.timeout, c.commandPath, args...); err != nil {
		c.Fail(context, fmt.Errorf("audio extraction: %w", err))
		return
	}
	context.Add(GetAudioFileParameterName(), audio.Name())
	c.Succeed(context, audio.Name())
}

// FFMpegFrameExtractor samples one JPEG every interval seconds into the
// session frames directory. A failure leaves the session without frames and
// the run continues with text search only.
type FFMpegFrameExtractor struct {
	cor.BaseCommand
	commandPath string
	interval    float64
	timeout     time.Duration
	runner      ToolRunner
}

func NewFFMpegFrameExtractor(name string, commandPath string, interval float64, timeout time.Duration) *FFMpegFrameExtractor {
	if interval <= 0 {
		interval = model.DefaultFrameInterval
	}
	return &FFMpegFrameExtractor{
		BaseCommand: *cor.NewBaseCommand(name),
		commandPath: commandPath,
		interval:    interval,
		timeout:     timeout,
		runner:      ExecRunner,
	}
}

func (c *FFMpegFrameExtractor) WithRunner(runner ToolRunner) *FFMpegFrameExtractor {
	c.runner = runner
	return c
}

func (c *FFMpegFrameExtractor) IsExecutable(context cor.Context) bool {
	return hasSession(context) && sessionOf(context).FramesDir != ""
}

func (c *FFMpegFrameExtractor) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := sessionOf(context)
	session.FrameInterval = c.interval
	progressOf(context).Update(ctx, model.StatusExtracting, 0.45,
		fmt.Sprintf("Extracting frames (every %s seconds)...", formatSeconds(c.interval)))

	frames, err := c.extract(ctx, session.VideoPath, session.FramesDir)
	if err != nil {
		if ctx.Err() != nil {
			c.Fail(context, err)
			return
		}
		c.GetErrorCounter().Add(ctx, 1)
		slog.WarnContext(ctx, "frame extraction failed, continuing without visual search",
			"video_id", session.Id, "error", err)
		session.Frames = nil
		return
	}
	session.Frames = frames
	slog.InfoContext(ctx, "extracted frames", "video_id", session.Id, "count", len(frames))
	c.Succeed(context, frames)
}

func (c *FFMpegFrameExtractor) extract(ctx goctx.Context, videoPath string, dir string) ([]*model.Frame, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	args := []string{"-y", "-hide_banner", "-i", videoPath,
		"-vf", "fps=1/" + formatSeconds(c.interval), "-q:v", "2", filepath.Join(dir, FramePattern)}
	if err := runTool(ctx, c.runner, c.timeout, c.commandPath, args...); err != nil {
		return nil, fmt.Errorf("frame extraction: %w", err)
	}
	return ListFrames(dir, c.interval)
}

// ListFrames builds the frame list from the files FFmpeg wrote to dir.
func ListFrames(dir string, interval float64) ([]*model.Frame, error) {
	paths, err := filepath.Glob(filepath.Join(dir, frameGlob))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	frames := make([]*model.Frame, 0, len(paths))
	for i, p := range paths {
		frames = append(frames, &model.Frame{
			Timestamp:   float64(i) * interval,
			FrameNumber: i,
			Path:        p,
		})
	}
	return frames, nil
}

// FramePath is the file of the zero based frame n inside dir.
func FramePath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf(FramePattern, n+1))
}

// ClipJob describes one clip to cut.
type ClipJob struct {
	VideoPath string
	Start     float64
	End       float64
	Output    string
}

// FFMpegClip cuts [Start, End) of a video into an H.264/AAC MP4.
type FFMpegClip struct {
	cor.BaseCommand
	commandPath string
	timeout     time.Duration
	runner      ToolRunner
}

func NewFFMpegClip(name string, commandPath string, timeout time.Duration) *FFMpegClip {
	out := &FFMpegClip{
		BaseCommand: *cor.NewBaseCommand(name),
		commandPath: commandPath,
		timeout:     timeout,
		runner:      ExecRunner,
	}
	out.WithParams(GetClipJobParameterName(), "")
	return out
}

func (c *FFMpegClip) WithRunner(runner ToolRunner) *FFMpegClip {
	c.runner = runner
	return c
}

func (c *FFMpegClip) Execute(context cor.Context) {
	job, ok := context.Get(c.GetInputParam()).(*ClipJob)
	if !ok || job.End <= job.Start {
		c.Fail(context, fmt.Errorf("%w: clip end must be after start", model.ErrInvalidQuery))
		return
	}
	args := []string{"-i", job.VideoPath,
		"-ss", formatSeconds(job.Start), "-t", formatSeconds(job.End - job.Start),
		"-c:v", "libx264", "-c:a", "aac", "-strict", "experimental", job.Output, "-y"}
	if err := runTool(context.GetContext(), c.runner, c.timeout, c.commandPath, args...); err != nil {
		os.Remove(job.Output)
		c.Fail(context, fmt.Errorf("clip: %w", err))
		return
	}
	c.Succeed(context, job.Output)
}

// MoveFile renames sourcePath to destPath, copying when the two live on
// different file systems.
func MoveFile(sourcePath, destPath string) error {
	if err := os.Rename(sourcePath, destPath); err == nil {
		return nil
	}
	inputFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("could not open source file: %w", err)
	}
	defer inputFile.Close()

	outputFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("could not open dest file: %w", err)
	}
	if _, err = io.Copy(outputFile, inputFile); err != nil {
		outputFile.Close()
		return fmt.Errorf("could not copy to dest from source: %w", err)
	}
	if err = outputFile.Close(); err != nil {
		return err
	}
	inputFile.Close()
	if err = os.Remove(sourcePath); err != nil {
		return fmt.Errorf("could not remove source file: %w", err)
	}
	return nil
}
