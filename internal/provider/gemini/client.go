// Package gemini implements the script, image and speech providers on top of
// the Gemini API.
package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// Config holds Gemini provider settings
type Config struct {
	APIKey       string
	BaseURL      string
	ScriptModel  string
	ImageModel   string
	SpeechModel  string
	Voice        string
	LanguageCode string
	AspectRatio  string
}

// Client wraps a genai client with the models used by the pipeline
type Client struct {
	client       *genai.Client
	scriptModel  string
	imageModel   string
	speechModel  string
	voice        string
	languageCode string
	aspectRatio  string
	logger       *slog.Logger
}

// NewClient creates a Gemini client using the official SDK
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		client:       c,
		scriptModel:  orDefault(cfg.ScriptModel, "gemini-2.5-flash"),
		imageModel:   orDefault(cfg.ImageModel, "imagen-4.0-generate-001"),
		speechModel:  orDefault(cfg.SpeechModel, "gemini-2.5-flash-preview-tts"),
		voice:        orDefault(cfg.Voice, "Kore"),
		languageCode: orDefault(cfg.LanguageCode, "en-US"),
		aspectRatio:  orDefault(cfg.AspectRatio, "16:9"),
		logger:       logger,
	}, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func userContent(text string) []*genai.Content {
	return []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: text}},
	}}
}

// firstParts returns the parts of the first candidate, or nil
func firstParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}
