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

// Package commands contains the steps of the ingestion pipeline. Every step
// is a cor.Command; the workflows in the workflow package arrange them into
// chains. Commands share the video session and the progress tracker through
// the chain context.
package commands

import (
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// GetSessionParameterName is the context key of the *model.VideoSession being built.
func GetSessionParameterName() string {
	return "__SESSION__"
}

// GetProgressParameterName is the context key of the *ProgressTracker.
func GetProgressParameterName() string {
	return "__PROGRESS__"
}

// GetAudioFileParameterName is the context key of the extracted WAV path.
func GetAudioFileParameterName() string {
	return "__AUDIO_FILE__"
}

// GetClipJobParameterName is the context key of a *ClipJob.
func GetClipJobParameterName() string {
	return "__CLIP_JOB__"
}

func sessionOf(context cor.Context) *model.VideoSession {
	v, _ := context.Get(GetSessionParameterName()).(*model.VideoSession)
	return v
}

// progressOf returns the tracker, or a detached one so commands never need a nil check.
func progressOf(context cor.Context) *ProgressTracker {
	if p, ok := context.Get(GetProgressParameterName()).(*ProgressTracker); ok && p != nil {
		return p
	}
	return NewProgressTracker(nil, sessionOf(context))
}

// hasSession is the common precondition of the session-based commands.
func hasSession(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && sessionOf(context) != nil
}
