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

// Package api exposes the HTTP surface of the service as gin routes.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
)

// RequestIdHeader carries the id assigned to every request.
const RequestIdHeader = "X-Request-Id"

// NewRouter builds the engine with every route registered.
func NewRouter(state *app.State) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(state.Config.Application.Name))
	r.Use(requestId())
	r.Use(cors.Default())
	// Media responses are already compressed.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`^/video/[^/]+$`, `^/frame/`, `^/download-clip/`})))

	Dashboard(r, state)
	VideoRouter(r, state)
	SearchRouter(r, state)
	ClipRouter(r, state)
	return r
}

func requestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIdHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIdHeader, id)
		c.Next()
	}
}
