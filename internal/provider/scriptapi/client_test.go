package scriptapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{URL: srv.URL + "/generate", APIKey: "secret"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestGenerateScript_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a shy robot", req.Topic)
		assert.Equal(t, "whimsical", req.Style)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scenes":[{"narration":"Beep.","image_prompt":"robot"},{"narration":"Boop.","image_prompt":"garden"}]}`))
	})

	scenes, err := c.GenerateScript(context.Background(), "a shy robot", "whimsical")
	require.NoError(t, err)
	assert.Equal(t, domain.Scenes{
		{Narration: "Beep.", ImagePrompt: "robot"},
		{Narration: "Boop.", ImagePrompt: "garden"},
	}, scenes)
}

func TestGenerateScript_Faults(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: "warming up"},
		{name: "malformed body", status: http.StatusOK, body: `{"scenes":`},
		{name: "missing scenes", status: http.StatusOK, body: `{"title":"x"}`, wantErr: domain.ErrNoScenes},
		{name: "empty scenes", status: http.StatusOK, body: `{"scenes":[]}`, wantErr: domain.ErrNoScenes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			scenes, err := c.GenerateScript(context.Background(), "topic", "style")
			require.Error(t, err)
			assert.Nil(t, scenes)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{}, slog.Default())
	assert.Error(t, err)
}
