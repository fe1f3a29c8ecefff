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

// Package main is the entry point of the clip finder server.
//
// It loads the configuration, sets up logging and OpenTelemetry, assembles the
// application state and serves the HTTP API until interrupted. Bucket upload
// notifications received over Pub/Sub are ingested in the background.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-clip-finder/internal/api"
	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
	"github.com/jaycherian/gcp-go-clip-finder/internal/telemetry"
)

func main() {
	config, err := GetConfig()
	if err != nil {
		log.Fatal(err)
	}

	closer := telemetry.SetupLogging(config.Application.LogFile, config.Application.LogLevel)
	defer closer.Close()
	slog.Info("Logging initialized", "level", config.Application.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	state, err := app.New(ctx, config)
	if err != nil {
		slog.Error("Failed to initialize state", "error", err)
		log.Fatal(err)
	}
	state.Start(ctx)
	SetupListeners(ctx, state)
	slog.Info("Initialized State")

	if config.Application.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	// Uploads and clip downloads can be large, so there is no write timeout.
	srv := &http.Server{
		Addr:              config.Application.ListenAddress,
		Handler:           api.NewRouter(state),
		ReadHeaderTimeout: 20 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
			cancel()
		}
	}()
	slog.Info("Server ready", "address", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	cancel()
	state.Close()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("failed to shutdown telemetry", "error", err)
	}
	slog.Info("Server exiting")
}
