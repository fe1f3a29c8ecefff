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
	goctx "context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// SessionSaver persists a whole session. store.SessionStore satisfies it.
type SessionSaver interface {
	Save(ctx goctx.Context, session *model.VideoSession) error
}

// SessionPersist stores the finished session in one write. The session
// becomes searchable only once this write lands.
type SessionPersist struct {
	cor.BaseCommand
	store SessionSaver
}

func NewSessionPersist(name string, store SessionSaver) *SessionPersist {
	return &SessionPersist{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

func (c *SessionPersist) IsExecutable(context cor.Context) bool {
	return hasSession(context)
}

func (c *SessionPersist) Execute(context cor.Context) {
	ctx := context.GetContext()
	session := sessionOf(context)
	progress := progressOf(context)
	progress.Update(ctx, model.StatusStoring, 0.92, "Storing embeddings...")

	if err := ctx.Err(); err != nil {
		c.Fail(context, err)
		return
	}
	session.Duration = session.ComputeDuration()
	session.Status = model.StatusCompleted
	session.Progress = 1
	session.Message = "Processing complete!"
	if err := c.store.Save(ctx, session); err != nil {
		c.Fail(context, fmt.Errorf("store session %s: %w", session.Id, err))
		return
	}
	progress.Update(ctx, model.StatusCompleted, 1, "Processing complete!")
	slog.InfoContext(ctx, "video ready for search", "video_id", session.Id,
		"segments", len(session.Segments), "frames", len(session.Frames), "duration", session.Duration)
	c.Succeed(context, session)
}
