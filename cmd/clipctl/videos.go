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

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <video_id>",
	Short: "Show the metadata of a processed video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := state.Videos.Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(info)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known videos, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		videos, err := state.Videos.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tDURATION\tFILENAME")
		for _, v := range videos {
			fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%.1fs\t%s\n", v.Id, v.Status, v.Progress*100, v.Duration, v.Filename)
		}
		return w.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <video_id>",
	Short: "Delete a video and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := state.Videos.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var catalogLimit int

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show recent entries and totals of the BigQuery catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !state.Catalog.Enabled() {
			return fmt.Errorf("catalog is not configured; set big_query_data_source")
		}
		totals, err := state.Catalog.Totals(cmd.Context())
		if err != nil {
			return err
		}
		recent, err := state.Catalog.Recent(cmd.Context(), catalogLimit)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"totals": totals, "recent": recent})
	},
}

func init() {
	catalogCmd.Flags().IntVarP(&catalogLimit, "limit", "n", 20, "number of recent entries")
}
