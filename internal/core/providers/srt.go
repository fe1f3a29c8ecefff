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

package providers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
)

// ParseSRT reads SubRip text into segments, one per cue. Multi-line cue text
// is joined with spaces; cues with a malformed timing line are skipped.
//
//	1
//	00:00:00,000 --> 00:00:01,830
//	I'm happy to
//	have you here today.
func ParseSRT(transcript string) []*model.Segment {
	segments := make([]*model.Segment, 0)
	var current *model.Segment
	var text []string

	flush := func() {
		if current != nil && len(text) > 0 {
			current.Text = strings.Join(text, " ")
			segments = append(segments, current)
		}
		current = nil
		text = text[:0]
	}

	for _, line := range strings.Split(strings.ReplaceAll(transcript, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.Contains(line, "-->"):
			flush()
			parts := strings.SplitN(line, "-->", 2)
			start, errStart := ParseSRTTimestamp(parts[0])
			end, errEnd := ParseSRTTimestamp(parts[1])
			if errStart == nil && errEnd == nil {
				current = &model.Segment{Start: start, End: max(start, end)}
			}
		case current == nil && isDigitOnly(line):
			// cue sequence number
		case current != nil:
			text = append(text, line)
		}
	}
	flush()
	return segments
}

// ParseSRTTimestamp converts HH:MM:SS,mmm (or HH:MM:SS.mmm) to seconds.
func ParseSRTTimestamp(in string) (float64, error) {
	in = strings.TrimSpace(in)
	// Position settings may follow the end time.
	if i := strings.IndexByte(in, ' '); i >= 0 {
		in = in[:i]
	}
	in = strings.Replace(in, ",", ".", 1)
	parts := strings.Split(in, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timestamp %q", in)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hours in %q: %w", in, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minutes in %q: %w", in, err)
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed seconds in %q: %w", in, err)
	}
	return float64(h*3600+m*60) + s, nil
}

func isDigitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
