// Package scriptapi calls an HTTP script-writing service that turns a topic
// and style into an ordered list of scene drafts.
package scriptapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
)

// Config holds script service connection settings
type Config struct {
	URL     string
	APIKey  string // optional bearer token
	Timeout time.Duration
}

// Client is the HTTP script provider
type Client struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

type generateRequest struct {
	Topic string `json:"topic"`
	Style string `json:"style"`
}

type generateResponse struct {
	Scenes []struct {
		Narration   string `json:"narration"`
		ImagePrompt string `json:"image_prompt"`
	} `json:"scenes"`
}

// NewClient creates a script service client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("scriptapi: empty url")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// GenerateScript posts the brief and returns the scenes of the response.
// Any non-2xx status, undecodable body or missing scene list is an error.
func (c *Client) GenerateScript(ctx context.Context, topic, style string) (domain.Scenes, error) {
	body, err := json.Marshal(generateRequest{Topic: topic, Style: style})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal script request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build script request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("script request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("script service http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode script response: %w", err)
	}
	if len(payload.Scenes) == 0 {
		return nil, domain.ErrNoScenes
	}

	scenes := make(domain.Scenes, 0, len(payload.Scenes))
	for _, s := range payload.Scenes {
		scenes = append(scenes, domain.Scene{Narration: s.Narration, ImagePrompt: s.ImagePrompt})
	}

	c.logger.Debug("Script generated",
		slog.String("topic", topic),
		slog.Int("scenes", len(scenes)),
	)
	return scenes, nil
}
