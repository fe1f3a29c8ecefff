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

// SearchRouter registers search, search history and bookmark endpoints.
func SearchRouter(r gin.IRouter, state *app.State) {
	defaultTopK := state.Config.Search.DefaultTopK
	if defaultTopK <= 0 {
		defaultTopK = model.DefaultTopK
	}

	r.POST("/search", func(c *gin.Context) {
		req := &model.SearchRequest{SearchType: model.SearchTypeHybrid, TopK: defaultTopK}
		if err := c.ShouldBindJSON(req); err != nil {
			badRequest(c, err.Error())
			return
		}
		out, err := state.Search.Search(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/search-history/:id", func(c *gin.Context) {
		id := c.Param("id")
		history, err := state.History.List(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"video_id": id, "history": history})
	})

	r.POST("/bookmarks", func(c *gin.Context) {
		req := &model.BookmarkRequest{}
		if err := c.ShouldBindJSON(req); err != nil {
			badRequest(c, err.Error())
			return
		}
		bm, err := state.Bookmarks.Create(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Bookmark added successfully", "bookmark": bm})
	})

	r.GET("/bookmarks/:id", func(c *gin.Context) {
		id := c.Param("id")
		bookmarks, err := state.Bookmarks.List(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"video_id": id, "bookmarks": bookmarks})
	})
}
