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
	"net/http"
	"runtime"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
)

// Dashboard registers the service information, health, listing and catalog
// endpoints.
func Dashboard(r gin.IRouter, state *app.State) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":      state.Config.Application.Name,
			"version":      state.Config.Application.Version,
			"status":       "running",
			"dependencies": state.Dependencies(),
		})
	})

	r.GET("/health", func(c *gin.Context) {
		out := gin.H{
			"status":     "healthy",
			"ffmpeg":     state.Tools["ffmpeg"],
			"goroutines": runtime.NumGoroutine(),
		}
		if vm, err := mem.VirtualMemoryWithContext(c.Request.Context()); err == nil {
			out["memory_used_percent"] = vm.UsedPercent
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/videos", func(c *gin.Context) {
		videos, err := state.Videos.List(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"videos": videos})
	})

	// The catalog is only served when BigQuery is configured.
	r.GET("/catalog", func(c *gin.Context) {
		if !state.Catalog.Enabled() {
			c.JSON(http.StatusNotFound, gin.H{"detail": "catalog is not enabled"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		recent, err := state.Catalog.Recent(c.Request.Context(), limit)
		if err != nil {
			fail(c, err)
			return
		}
		totals, err := state.Catalog.Totals(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"recent": recent, "totals": totals})
	})
}
