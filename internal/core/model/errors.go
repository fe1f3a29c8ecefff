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

package model

import "errors"

// Sentinel errors shared by services, the pipeline and the HTTP layer.
// Use errors.Is to classify; wrap with fmt.Errorf("%w: ...") to add detail.
var (
	// ErrNotReady means the video is unknown or has not finished processing.
	// The caller may retry later.
	ErrNotReady = errors.New("video not processed yet")

	// ErrInvalidQuery means the request itself is malformed.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrProvider means an embedding or transcription provider failed or timed out.
	ErrProvider = errors.New("provider failure")

	// ErrInfrastructure means persisted state could not be read or written.
	ErrInfrastructure = errors.New("infrastructure failure")

	// ErrNotFound means a requested artifact (frame, clip, video file) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited means the caller exhausted its daily allowance.
	ErrRateLimited = errors.New("rate limit exceeded")
)
