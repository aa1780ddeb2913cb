package stage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cuongbtq/story-factory/internal/blob"
	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/internal/metrics"
	"github.com/cuongbtq/story-factory/internal/provider"
)

// ImageGenerator renders one image for a prompt
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (provider.Media, error)
}

// SpeechSynthesizer voices narration text
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (provider.Media, error)
}

// Uploader writes blobs by key
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// AssetProcessor generates the image and narration audio of every scene
type AssetProcessor struct {
	images ImageGenerator
	speech SpeechSynthesizer
	blobs  Uploader
	logger *slog.Logger
}

// NewAssetProcessor creates the asset stage
func NewAssetProcessor(images ImageGenerator, speech SpeechSynthesizer, blobs Uploader, logger *slog.Logger) *AssetProcessor {
	return &AssetProcessor{images: images, speech: speech, blobs: blobs, logger: logger}
}

// Stage implements worker.Processor
func (p *AssetProcessor) Stage() domain.Stage {
	return domain.StageAsset
}

// Process implements worker.Processor. A failing scene records its error
// and the remaining scenes still run; the job always advances.
func (p *AssetProcessor) Process(ctx context.Context, job *domain.Job) domain.Resolution {
	scenes := job.Scenes.Clone()
	if scenes == nil {
		scenes = domain.Scenes{}
	}

	failed := 0
	for i := range scenes {
		n := i + 1
		scene := &scenes[i]
		resetAssets(scene)

		if err := p.processScene(ctx, job.ID, n, scene); err != nil {
			failed++
			scene.Error = err.Error()
			p.logger.Warn("Scene asset generation failed",
				slog.String("job_id", job.ID),
				slog.Int("scene", n),
				slog.Any("error", err),
			)
			continue
		}
		p.logger.Debug("Scene assets ready",
			slog.String("job_id", job.ID),
			slog.Int("scene", n),
		)
	}

	p.logger.Info("Assets generated",
		slog.String("job_id", job.ID),
		slog.Int("scenes", len(scenes)),
		slog.Int("failed_scenes", failed),
	)
	return domain.Succeeded(domain.StatusCompilePending, scenes)
}

// processScene stops at the first fault, so a failed image skips the audio
func (p *AssetProcessor) processScene(ctx context.Context, jobID string, n int, scene *domain.Scene) error {
	if strings.TrimSpace(scene.ImagePrompt) != "" {
		media, err := p.images.GenerateImage(ctx, scene.ImagePrompt)
		if err != nil {
			metrics.IncSceneFailure("image")
			return fmt.Errorf("image generation: %w", err)
		}
		key, url, err := p.store(ctx, jobID, n, media, provider.DefaultImageExtension)
		if err != nil {
			metrics.IncSceneFailure("image")
			return fmt.Errorf("image upload: %w", err)
		}
		scene.ImageKey, scene.ImageURL = key, url
	}

	if strings.TrimSpace(scene.Narration) != "" {
		media, err := p.speech.Synthesize(ctx, scene.Narration)
		if err != nil {
			metrics.IncSceneFailure("audio")
			return fmt.Errorf("speech synthesis: %w", err)
		}
		key, url, err := p.store(ctx, jobID, n, media, provider.DefaultAudioExtension)
		if err != nil {
			metrics.IncSceneFailure("audio")
			return fmt.Errorf("audio upload: %w", err)
		}
		scene.AudioKey, scene.AudioURL = key, url
	}

	return nil
}

func (p *AssetProcessor) store(ctx context.Context, jobID string, n int, media provider.Media, fallbackExt string) (string, string, error) {
	if len(media.Data) == 0 {
		return "", "", fmt.Errorf("empty %s payload", media.MIMEType)
	}
	key := blob.SceneKey(jobID, n, provider.Extension(media.MIMEType, fallbackExt))
	url, err := p.blobs.Upload(ctx, key, bytes.NewReader(media.Data), media.MIMEType)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

func resetAssets(scene *domain.Scene) {
	scene.ImageURL, scene.ImageKey = "", ""
	scene.AudioURL, scene.AudioKey = "", ""
	scene.Error = ""
}
