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

package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
)

// UploadTopic is the subscription key of bucket upload notifications.
const UploadTopic = "UploadTopic"

// SetupListeners attaches the GCS ingest workflow to the upload subscription
// and starts receiving. Nothing happens when no subscription is configured.
func SetupListeners(ctx context.Context, state *app.State) {
	listener, ok := state.Cloud.PubSubListeners[UploadTopic]
	if !ok {
		return
	}
	if state.GCSIngest == nil {
		slog.Warn("upload subscription configured without a storage client", "topic", UploadTopic)
		return
	}
	listener.SetCommand(state.GCSIngest)
	listener.Listen(ctx)
}
