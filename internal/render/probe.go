package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe JSON output the renderer reads
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes one stream of a media file
type ProbeStream struct {
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
}

// ProbeFormat captures container-level metadata
type ProbeFormat struct {
	Duration string `json:"duration"`
}

// DurationSeconds returns the container duration, falling back to the
// longest audio stream. Returns 0 when neither is available.
func (r ProbeResult) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	var longest float64
	for _, s := range r.Streams {
		if !strings.EqualFold(s.CodecType, "audio") {
			continue
		}
		if d := parseFloat(s.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// Probe runs ffprobe against path and decodes its JSON output
func (f *FFmpeg) Probe(ctx context.Context, path string) (ProbeResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ProbeResult{}, errors.New("ffprobe: empty path")
	}

	cmd := commandContext(ctx, f.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w", path, exitDetail(err))
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// AudioDuration returns the playing time of an audio file in seconds
func (f *FFmpeg) AudioDuration(ctx context.Context, path string) (float64, error) {
	result, err := f.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	d := result.DurationSeconds()
	if d <= 0 || math.IsNaN(d) {
		return 0, fmt.Errorf("ffprobe %s: no duration reported", path)
	}
	return d, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
