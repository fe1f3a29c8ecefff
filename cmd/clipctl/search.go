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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

var (
	searchType string
	searchTopK int
	asJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <video_id> <query>",
	Short: "Search the transcript and frames of a processed video",
	Example: `  clipctl search 3f2a9c1b0d4e5f67 "whiteboard diagram" --type visual
  clipctl search 3f2a9c1b0d4e5f67 goroutines -n 5`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := state.Search.Search(cmd.Context(), &model.SearchRequest{
			VideoId:    args[0],
			Query:      args[1],
			SearchType: model.SearchType(searchType),
			TopK:       searchTopK,
		})
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(resp)
		}
		if len(resp.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		fmt.Printf("%d of %d matches (%s, %s)\n\n", len(resp.Results), resp.TotalMatches, resp.SearchType, resp.Model)
		for i, r := range resp.Results {
			fmt.Printf("%2d. %7.2fs  %.3f  [%s] %s\n", i+1, r.Timestamp, r.Score, r.SearchType, r.Text)
		}
		return nil
	},
}

var clipCmd = &cobra.Command{
	Use:   "clip <video_id> <start> <end>",
	Short: "Cut a clip between two timestamps in seconds",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
		end, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid end: %w", err)
		}
		out, err := state.Clips.Create(cmd.Context(), &model.ClipRequest{VideoId: args[0], StartTime: start, EndTime: end})
		if err != nil {
			return err
		}
		path, err := state.Clips.ClipPath(out.Filename)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchType, "type", "t", string(model.SearchTypeHybrid), "text, visual or hybrid")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "n", model.DefaultTopK, "max results")
	searchCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response")
}
