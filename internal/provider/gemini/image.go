package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/story-factory/internal/provider"
	"google.golang.org/genai"
)

// GenerateImage renders one image for prompt at the configured aspect ratio
func (c *Client) GenerateImage(ctx context.Context, prompt string) (provider.Media, error) {
	resp, err := c.client.Models.GenerateImages(ctx, c.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    c.aspectRatio,
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return provider.Media{}, fmt.Errorf("gemini image: %w", err)
	}

	media, err := firstImage(resp)
	if err != nil {
		return provider.Media{}, err
	}
	c.logger.Debug("Image generated",
		slog.Int("bytes", len(media.Data)),
		slog.String("mime_type", media.MIMEType),
	)
	return media, nil
}

func firstImage(resp *genai.GenerateImagesResponse) (provider.Media, error) {
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return provider.Media{}, errors.New("gemini image: no image returned")
	}
	img := resp.GeneratedImages[0]
	if img.Image == nil || len(img.Image.ImageBytes) == 0 {
		if img.RAIFilteredReason != "" {
			return provider.Media{}, fmt.Errorf("gemini image: filtered: %s", img.RAIFilteredReason)
		}
		return provider.Media{}, errors.New("gemini image: empty image")
	}

	mimeType := img.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return provider.Media{Data: img.Image.ImageBytes, MIMEType: mimeType}, nil
}
