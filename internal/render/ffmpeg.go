// Package render assembles still images and narration audio into a video
// with the ffmpeg and ffprobe executables.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// Config holds renderer settings
type Config struct {
	FFmpegBinary  string
	FFprobeBinary string
	FPS           int
	Width         int
	Height        int
}

// Clip is one scene to render: a still image held for the length of its
// narration
type Clip struct {
	Scene     int // 1-based scene number, used in logs
	ImagePath string
	AudioPath string
}

// FFmpeg renders clips by shelling out to ffmpeg
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	fps     int
	width   int
	height  int
	logger  *slog.Logger
}

// New creates a renderer, filling unset fields with defaults
func New(cfg Config, logger *slog.Logger) *FFmpeg {
	f := &FFmpeg{
		ffmpeg:  strings.TrimSpace(cfg.FFmpegBinary),
		ffprobe: strings.TrimSpace(cfg.FFprobeBinary),
		fps:     cfg.FPS,
		width:   cfg.Width,
		height:  cfg.Height,
		logger:  logger,
	}
	if f.ffmpeg == "" {
		f.ffmpeg = "ffmpeg"
	}
	if f.ffprobe == "" {
		f.ffprobe = "ffprobe"
	}
	if f.fps <= 0 {
		f.fps = 24
	}
	if f.width <= 0 || f.height <= 0 {
		f.width, f.height = 1280, 720
	}
	// libx264 with yuv420p needs even dimensions
	f.width -= f.width % 2
	f.height -= f.height % 2
	return f
}

// Render encodes each clip into workDir and concatenates the encoded ones in
// order into output. A clip whose probe or encode fails is logged and left
// out; Render fails only when no clip is left. It returns the number of clips
// in the video. Intermediate files stay in workDir; the caller owns its
// cleanup.
func (f *FFmpeg) Render(ctx context.Context, clips []Clip, workDir, output string) (int, error) {
	if len(clips) == 0 {
		return 0, errors.New("render: no clips")
	}

	var lastErr error
	segments := make([]string, 0, len(clips))
	for i, clip := range clips {
		scene := clip.Scene
		if scene == 0 {
			scene = i + 1
		}

		segment := filepath.Join(workDir, fmt.Sprintf("clip_%03d.mp4", i+1))
		duration, err := f.renderClip(ctx, clip, segment)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			f.logger.Warn("Skipping scene that failed to render",
				slog.Int("scene", scene),
				slog.Any("error", err),
			)
			lastErr = fmt.Errorf("scene %d: %w", scene, err)
			continue
		}
		segments = append(segments, segment)

		f.logger.Debug("Clip rendered",
			slog.Int("scene", scene),
			slog.Float64("duration_seconds", duration),
		)
	}

	if len(segments) == 0 {
		return 0, fmt.Errorf("none of %d clips rendered: %w", len(clips), lastErr)
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(concatList(segments)), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write concat list: %w", err)
	}
	if err := f.run(ctx, concatArgs(listPath, output)); err != nil {
		return 0, fmt.Errorf("concat: %w", err)
	}

	f.logger.Info("Video rendered",
		slog.Int("clips", len(segments)),
		slog.Int("skipped", len(clips)-len(segments)),
		slog.String("output", output),
	)
	return len(segments), nil
}

func (f *FFmpeg) renderClip(ctx context.Context, clip Clip, segment string) (float64, error) {
	duration, err := f.AudioDuration(ctx, clip.AudioPath)
	if err != nil {
		return 0, err
	}
	if err := f.run(ctx, clipArgs(clip, duration, f.fps, f.width, f.height, segment)); err != nil {
		return 0, err
	}
	return duration, nil
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := commandContext(ctx, f.ffmpeg, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func clipArgs(clip Clip, duration float64, fps, width, height int, out string) []string {
	rate := strconv.Itoa(fps)
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,format=yuv420p",
		width, height, width, height,
	)
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-loop", "1",
		"-framerate", rate,
		"-i", clip.ImagePath,
		"-i", clip.AudioPath,
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-r", rate,
		"-vf", filter,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "48000",
		"-ac", "2",
		"-shortest",
		out,
	}
}

func concatArgs(listPath, out string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		out,
	}
}

// concatList builds an ffmpeg concat demuxer script
func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func exitDetail(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}
