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

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// ClipRouter registers clip creation and download.
func ClipRouter(r gin.IRouter, state *app.State) {
	r.POST("/create-clip", func(c *gin.Context) {
		req := &model.ClipRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			badRequest(c, err.Error())
			return
		}
		out, err := state.Clips.Create(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/download-clip/:filename", func(c *gin.Context) {
		filename := c.Param("filename")
		path, err := state.Clips.ClipPath(filename)
		if err != nil {
			fail(c, err)
			return
		}
		c.FileAttachment(path, filename)
	})
}
