package blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(LocalConfig{
		Root:    t.TempDir(),
		BaseURL: "http://localhost:8080/assets/",
		Secret:  "test-secret",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return l
}

func TestLocal_UploadDownload(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	key := SceneKey("job-1", 2, "png")

	u, err := l.Upload(ctx, key, strings.NewReader("image bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/assets/job-1/scene_2.png", u)

	var buf bytes.Buffer
	require.NoError(t, l.Download(ctx, key, &buf))
	assert.Equal(t, "image bytes", buf.String())

	assert.Error(t, l.Download(ctx, "job-1/missing.png", &buf))
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	l := newTestLocal(t)

	for _, key := range []string{"../etc/passwd", "a/../../b", "", ".."} {
		t.Run(key, func(t *testing.T) {
			_, err := l.Upload(context.Background(), key, strings.NewReader("x"), "")
			assert.Error(t, err)
		})
	}
}

func TestLocal_SignedURL(t *testing.T) {
	l := newTestLocal(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	signed, err := l.SignedURL(context.Background(), FinalVideoKey("job-9"), time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/assets/job-9/final_video.mp4", u.Path)

	q := u.Query()
	assert.NoError(t, l.Verify("job-9/final_video.mp4", q.Get("expires"), q.Get("sig")))
	assert.ErrorIs(t, l.Verify("job-9/scene_1.png", q.Get("expires"), q.Get("sig")), ErrInvalidSignature)
	assert.ErrorIs(t, l.Verify("job-9/final_video.mp4", "not-a-number", q.Get("sig")), ErrInvalidSignature)

	now = now.Add(2 * time.Hour)
	assert.ErrorIs(t, l.Verify("job-9/final_video.mp4", q.Get("expires"), q.Get("sig")), ErrInvalidSignature)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "abc/scene_1.wav", SceneKey("abc", 1, "wav"))
	assert.Equal(t, "abc/final_video.mp4", FinalVideoKey("abc"))

	k, err := CleanKey("/abc//scene_1.png")
	require.NoError(t, err)
	assert.Equal(t, "abc/scene_1.png", k)

	k, err = KeyFromURL("https://storage.googleapis.com/bucket/abc/scene_2.mp3", "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc/scene_2.mp3", k)

	k, err = KeyFromURL("http://localhost:8080/assets/abc/scene_1.png?sig=x", "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc/scene_1.png", k)

	_, err = KeyFromURL("https://storage.googleapis.com/bucket/other/scene_2.mp3", "abc")
	assert.Error(t, err)
}
