package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("RENDER_HELPER_MODE") {
	case "probe":
		fmt.Fprint(os.Stdout, `{"streams":[{"codec_type":"audio","duration":"2.500"}],"format":{"duration":"2.500"}}`)
	case "fail":
		fmt.Fprint(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	}
	os.Exit(0)
}

type call struct {
	name string
	args []string
}

func stubCommands(t *testing.T, ffmpegMode string) *[]call {
	t.Helper()
	return stubCommandsFunc(t, func(name string, _ []string) string {
		if name == "ffprobe" {
			return "probe"
		}
		return ffmpegMode
	})
}

// stubCommandsFunc runs every command as the helper process in the mode
// chosen for it
func stubCommandsFunc(t *testing.T, modeFor func(name string, args []string) string) *[]call {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []call
	)
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		mu.Lock()
		calls = append(calls, call{name: name, args: append([]string(nil), args...)})
		mu.Unlock()

		mode := modeFor(name, args)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "RENDER_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
	return &calls
}

func testRenderer() *FFmpeg {
	return New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRender_ClipsThenConcat(t *testing.T) {
	calls := stubCommands(t, "ok")
	dir := t.TempDir()
	clips := []Clip{
		{ImagePath: "scene_1.png", AudioPath: "scene_1.wav"},
		{ImagePath: "scene_3.png", AudioPath: "scene_3.wav"},
	}

	n, err := testRenderer().Render(context.Background(), clips, dir, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var names []string
	for _, c := range *calls {
		names = append(names, c.name)
	}
	assert.Equal(t, []string{"ffprobe", "ffmpeg", "ffprobe", "ffmpeg", "ffmpeg"}, names)

	first := (*calls)[1].args
	assert.Contains(t, first, "scene_1.png")
	assert.Contains(t, first, "2.500")
	assert.Contains(t, strings.Join(first, " "), "-r 24")

	list, err := os.ReadFile(filepath.Join(dir, "concat.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		fmt.Sprintf("file '%s'\nfile '%s'\n", filepath.Join(dir, "clip_001.mp4"), filepath.Join(dir, "clip_002.mp4")),
		string(list))
}

func TestRender_FailureIncludesOutput(t *testing.T) {
	stubCommands(t, "fail")
	dir := t.TempDir()

	n, err := testRenderer().Render(context.Background(), []Clip{{ImagePath: "a.png", AudioPath: "a.wav"}}, dir, filepath.Join(dir, "out.mp4"))
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "none of 1 clips rendered")
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestRender_SkipsFailedClip(t *testing.T) {
	calls := stubCommandsFunc(t, func(name string, args []string) string {
		if name != "ffprobe" {
			return "ok"
		}
		if args[len(args)-1] == "scene_2.wav" {
			return "fail"
		}
		return "probe"
	})
	dir := t.TempDir()
	clips := []Clip{
		{Scene: 1, ImagePath: "scene_1.png", AudioPath: "scene_1.wav"},
		{Scene: 2, ImagePath: "scene_2.png", AudioPath: "scene_2.wav"},
		{Scene: 3, ImagePath: "scene_3.png", AudioPath: "scene_3.wav"},
	}

	n, err := testRenderer().Render(context.Background(), clips, dir, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var names []string
	for _, c := range *calls {
		names = append(names, c.name)
	}
	assert.Equal(t, []string{"ffprobe", "ffmpeg", "ffprobe", "ffprobe", "ffmpeg", "ffmpeg"}, names)

	list, err := os.ReadFile(filepath.Join(dir, "concat.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		fmt.Sprintf("file '%s'\nfile '%s'\n", filepath.Join(dir, "clip_001.mp4"), filepath.Join(dir, "clip_003.mp4")),
		string(list))
}

func TestRender_NoClips(t *testing.T) {
	_, err := testRenderer().Render(context.Background(), nil, t.TempDir(), "out.mp4")
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	f := New(Config{Width: 1921, Height: 1081}, slog.Default())
	assert.Equal(t, "ffmpeg", f.ffmpeg)
	assert.Equal(t, 24, f.fps)
	assert.Equal(t, 1920, f.width)
	assert.Equal(t, 1080, f.height)
}

func TestClipArgs(t *testing.T) {
	args := clipArgs(Clip{ImagePath: "img.png", AudioPath: "voice.wav"}, 3.25, 24, 1280, 720, "clip.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-loop 1 -framerate 24 -i img.png -i voice.wav -t 3.250 -r 24")
	assert.Contains(t, joined, "scale=1280:720")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-c:a aac")
	assert.Equal(t, "clip.mp4", args[len(args)-1])
}

func TestConcatListEscapesQuotes(t *testing.T) {
	assert.Equal(t, "file '/tmp/it'\\''s/clip.mp4'\n", concatList([]string{"/tmp/it's/clip.mp4"}))
}

func TestProbeResultDuration(t *testing.T) {
	tests := []struct {
		name   string
		result ProbeResult
		want   float64
	}{
		{"format duration", ProbeResult{Format: ProbeFormat{Duration: "4.2"}}, 4.2},
		{"stream fallback", ProbeResult{Streams: []ProbeStream{{CodecType: "video", Duration: "9"}, {CodecType: "audio", Duration: "1.5"}}}, 1.5},
		{"missing", ProbeResult{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.result.DurationSeconds(), 1e-9)
		})
	}
}
