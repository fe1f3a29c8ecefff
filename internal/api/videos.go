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
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// sniffLength is the number of leading bytes filetype needs to match.
const sniffLength = 261

// VideoRouter registers ingestion, status and video file endpoints.
func VideoRouter(r gin.IRouter, state *app.State) {
	layout := state.Ingest.Layout()
	allowed := state.Config.Ingestion.AllowedExtensions
	maxSize := state.Config.Storage.MaxFileSize()

	r.POST("/upload", func(c *gin.Context) {
		ctx := c.Request.Context()
		header, err := c.FormFile("file")
		if err != nil || header.Filename == "" {
			badRequest(c, "No filename provided")
			return
		}
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !slices.Contains(allowed, ext) {
			badRequest(c, "Invalid file format. Supported: "+strings.Join(allowed, ", "))
			return
		}
		if header.Size > maxSize {
			badRequest(c, fmt.Sprintf("File too large. Max size: %dMB", state.Config.Storage.MaxFileSizeMB))
			return
		}
		if err := sniffVideo(header); err != nil {
			badRequest(c, err.Error())
			return
		}
		remaining, err := state.RateLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			fail(c, err)
			return
		}

		id := model.GenerateVideoId(header.Filename, time.Now())
		if err := c.SaveUploadedFile(header, layout.VideoPath(id)); err != nil {
			fail(c, fmt.Errorf("upload failed: %w", err))
			return
		}
		if err := state.Ingest.Submit(ctx, layout.NewSession(id, header.Filename)); err != nil {
			fail(c, err)
			return
		}
		slog.InfoContext(ctx, "video uploaded", "video_id", id, "filename", header.Filename, "size", header.Size)
		c.JSON(http.StatusOK, gin.H{
			"video_id":          id,
			"filename":          header.Filename,
			"message":           "Upload successful. Processing started.",
			"remaining_uploads": remaining,
		})
	})

	r.POST("/upload-url", func(c *gin.Context) {
		ctx := c.Request.Context()
		url := strings.TrimSpace(c.Query("url"))
		if url == "" {
			badRequest(c, "URL cannot be empty")
			return
		}
		remaining, err := state.RateLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			fail(c, err)
			return
		}
		id := model.GenerateVideoId(url, time.Now())
		session := layout.NewSession(id, url)
		session.SourceURL = url
		if err := state.Ingest.Submit(ctx, session); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"video_id":          id,
			"url":               url,
			"message":           "Download started.",
			"remaining_uploads": remaining,
		})
	})

	r.GET("/status/:id", func(c *gin.Context) {
		status, err := state.Videos.Status(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	r.GET("/video/:id", func(c *gin.Context) {
		path, err := state.Videos.VideoPath(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Type", "video/mp4")
		c.File(path)
	})

	r.GET("/video/:id/stream", func(c *gin.Context) {
		url, err := state.Videos.SignedURL(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	})

	r.GET("/video-info/:id", func(c *gin.Context) {
		info, err := state.Videos.Info(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	r.DELETE("/video/:id", func(c *gin.Context) {
		if err := state.Videos.Delete(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Video and all associated data deleted"})
	})

	r.GET("/frame/:id/:n", func(c *gin.Context) {
		n, err := strconv.Atoi(c.Param("n"))
		if err != nil {
			badRequest(c, "frame number must be an integer")
			return
		}
		path, err := state.Videos.FramePath(c.Request.Context(), c.Param("id"), n)
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Type", "image/jpeg")
		c.File(path)
	})
}

// sniffVideo rejects uploads whose content is not a known video container.
func sniffVideo(header *multipart.FileHeader) error {
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("unable to read upload: %w", err)
	}
	if !filetype.IsVideo(head[:n]) {
		return errors.New("uploaded content is not a video")
	}
	return nil
}
