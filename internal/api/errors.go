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

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/workflow"
)

// StatusOf maps an error onto an HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotReady), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, workflow.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, model.ErrProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail aborts the request with a {"detail": ...} body.
func fail(c *gin.Context, err error) {
	code := StatusOf(err)
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"detail": err.Error()})
}

func badRequest(c *gin.Context, detail string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": detail})
}
