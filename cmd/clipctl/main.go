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

// Package main is clipctl, a command line client that runs ingestion, search
// and video management directly against the configured stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-clip-finder/internal/app"
	"github.com/jaycherian/gcp-go-clip-finder/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-finder/internal/telemetry"
)

var (
	configDir string
	runtime   string
	logLevel  string

	state  *app.State
	closer io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "clipctl",
	Short: "Ingest and search videos from the command line",
	Long: `clipctl ingests local files or URLs, searches their transcripts and frames,
cuts clips and manages the stored videos. It reads the same layered TOML
configuration as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		if err := os.Setenv(cloud.EnvConfigFilePrefix, configDir); err != nil {
			return err
		}
		if err := os.Setenv(cloud.EnvConfigRuntime, runtime); err != nil {
			return err
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return err
		}
		closer = telemetry.SetupLogging("", logLevel)

		var err error
		state, err = app.New(cmd.Context(), config)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "directory holding the .env TOML files")
	rootCmd.PersistentFlags().StringVar(&runtime, "runtime", "local", "runtime configuration overlay")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(ingestCmd, searchCmd, infoCmd, listCmd, deleteCmd, clipCmd, catalogCmd)
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if state != nil {
		state.Close()
	}
	if closer != nil {
		_ = closer.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
