package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/story-factory/internal/bootstrap"
	"github.com/cuongbtq/story-factory/internal/config"
	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/internal/provider/gemini"
	"github.com/cuongbtq/story-factory/internal/provider/scriptapi"
	"github.com/cuongbtq/story-factory/internal/render"
	"github.com/cuongbtq/story-factory/internal/retry"
	"github.com/cuongbtq/story-factory/internal/stage"
	"github.com/cuongbtq/story-factory/internal/worker"
)

// buildProcessor wires the providers one stage calls. The returned func
// releases whatever the processor holds open.
func buildProcessor(ctx context.Context, s domain.Stage, cfg *config.Config, logger *slog.Logger) (worker.Processor, func(), error) {
	noop := func() {}

	switch s {
	case domain.StageScript:
		generator, err := newScriptGenerator(ctx, cfg, logger)
		if err != nil {
			return nil, noop, err
		}
		policy := retry.Fixed(cfg.Worker.Retry.Attempts, cfg.Worker.Retry.Wait)
		return stage.NewScriptProcessor(generator, policy, logger), noop, nil

	case domain.StageAsset:
		client, err := gemini.NewClient(ctx, geminiConfig(&cfg.Providers.Gemini), logger)
		if err != nil {
			return nil, noop, err
		}
		blobs, err := bootstrap.InitBlobStore(ctx, &cfg.Storage, logger)
		if err != nil {
			return nil, noop, err
		}
		return stage.NewAssetProcessor(client, client, blobs, logger), closeBlobs(blobs, logger), nil

	case domain.StageVideo:
		blobs, err := bootstrap.InitBlobStore(ctx, &cfg.Storage, logger)
		if err != nil {
			return nil, noop, err
		}
		renderer := render.New(render.Config{
			FFmpegBinary:  cfg.Render.FFmpegBinary,
			FFprobeBinary: cfg.Render.FFprobeBinary,
			FPS:           cfg.Render.FPS,
			Width:         cfg.Render.Width,
			Height:        cfg.Render.Height,
		}, logger)
		return stage.NewVideoProcessor(blobs, renderer, stage.VideoConfig{
			TempDir:            cfg.Worker.TempDir,
			URLTTL:             cfg.Storage.URLTTL,
			MinRenderableRatio: cfg.Render.MinRenderableRatio,
		}, logger), closeBlobs(blobs, logger), nil
	}

	return nil, noop, fmt.Errorf("unknown stage %q", s)
}

func newScriptGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stage.ScriptGenerator, error) {
	switch cfg.Providers.Script.Kind {
	case "gemini":
		return gemini.NewClient(ctx, geminiConfig(&cfg.Providers.Gemini), logger)
	case "http":
		return scriptapi.NewClient(scriptapi.Config{
			URL:     cfg.Providers.Script.URL,
			APIKey:  cfg.Providers.Script.APIKey,
			Timeout: cfg.Providers.Script.Timeout,
		}, logger)
	}
	return nil, fmt.Errorf("unknown script provider kind %q", cfg.Providers.Script.Kind)
}

func geminiConfig(cfg *config.GeminiConfig) gemini.Config {
	return gemini.Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		ScriptModel:  cfg.ScriptModel,
		ImageModel:   cfg.ImageModel,
		SpeechModel:  cfg.SpeechModel,
		Voice:        cfg.Voice,
		LanguageCode: cfg.LanguageCode,
		AspectRatio:  cfg.AspectRatio,
	}
}

func closeBlobs(blobs bootstrap.BlobStore, logger *slog.Logger) func() {
	return func() {
		if err := blobs.Close(); err != nil {
			logger.Warn("Failed to close blob store", slog.Any("error", err))
		}
	}
}
