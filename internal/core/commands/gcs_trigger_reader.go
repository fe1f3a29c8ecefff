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
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/cor"
)

// GCSTriggerToGCSObject decodes a bucket notification. Objects that are not
// videos produce no output, so the rest of the chain is skipped.
type GCSTriggerToGCSObject struct {
	cor.BaseCommand
	allowedExtensions []string
}

func NewGCSTriggerToGCSObject(name string, allowedExtensions []string) *GCSTriggerToGCSObject {
	return &GCSTriggerToGCSObject{BaseCommand: *cor.NewBaseCommand(name), allowedExtensions: allowedExtensions}
}

func (c *GCSTriggerToGCSObject) Execute(context cor.Context) {
	in, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		c.Fail(context, fmt.Errorf("expected a notification payload, got %T", context.Get(c.GetInputParam())))
		return
	}
	notification, err := cloud.ParseGCSNotification(in)
	if err != nil {
		c.Fail(context, err)
		return
	}
	obj := notification.Object()
	if !obj.IsVideo(c.allowedExtensions) {
		slog.InfoContext(context.GetContext(), "ignoring non video object", "uri", obj.URI(), "content_type", obj.MIMEType)
		context.Remove(c.GetOutputParam())
		return
	}
	context.Add(cloud.GetGCSObjectName(), obj)
	c.Succeed(context, obj)
}
