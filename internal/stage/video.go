package stage

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cuongbtq/story-factory/internal/blob"
	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/internal/render"
)

// Renderer turns ordered clips into one video file and reports how many
// clips made it in
type Renderer interface {
	Render(ctx context.Context, clips []render.Clip, workDir, output string) (int, error)
}

// VideoConfig holds video stage settings
type VideoConfig struct {
	TempDir            string        // parent of per-job work directories; os.TempDir() when empty
	URLTTL             time.Duration // lifetime of the signed final video URL
	MinRenderableRatio float64       // share of scenes that must be renderable; 0 requires one
}

// VideoProcessor downloads scene assets, renders and publishes the video
type VideoProcessor struct {
	blobs    blob.Store
	renderer Renderer
	cfg      VideoConfig
	logger   *slog.Logger
}

// NewVideoProcessor creates the video stage
func NewVideoProcessor(blobs blob.Store, renderer Renderer, cfg VideoConfig, logger *slog.Logger) *VideoProcessor {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = time.Hour
	}
	return &VideoProcessor{blobs: blobs, renderer: renderer, cfg: cfg, logger: logger}
}

// Stage implements worker.Processor
func (p *VideoProcessor) Stage() domain.Stage {
	return domain.StageVideo
}

// Process implements worker.Processor. The per-job work directory is
// removed on every return path.
func (p *VideoProcessor) Process(ctx context.Context, job *domain.Job) domain.Resolution {
	var renderable []int
	for i, scene := range job.Scenes {
		if scene.Renderable() {
			renderable = append(renderable, i)
		}
	}

	if len(renderable) == 0 {
		return domain.Failed(domain.StatusCompileFailed,
			"%v: none of %d scenes has both an image and audio", domain.ErrNoRenderableClips, len(job.Scenes))
	}
	if res, low := p.belowRatio(len(renderable), len(job.Scenes), "renderable"); low {
		return res
	}

	workDir, err := os.MkdirTemp(p.cfg.TempDir, "job-"+job.ID+"-")
	if err != nil {
		return domain.Failed(domain.StatusCompileFailed, "Failed to create work directory: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			p.logger.Warn("Failed to remove work directory",
				slog.String("job_id", job.ID),
				slog.String("dir", workDir),
				slog.Any("error", err),
			)
		}
	}()

	clips := make([]render.Clip, 0, len(renderable))
	for _, i := range renderable {
		scene := job.Scenes[i]
		imagePath, err := p.fetch(ctx, job.ID, workDir, scene.ImageKey, scene.ImageURL)
		if err != nil {
			return domain.Failed(domain.StatusCompileFailed, "Download failed for scene %d image: %v", i+1, err)
		}
		audioPath, err := p.fetch(ctx, job.ID, workDir, scene.AudioKey, scene.AudioURL)
		if err != nil {
			return domain.Failed(domain.StatusCompileFailed, "Download failed for scene %d audio: %v", i+1, err)
		}
		clips = append(clips, render.Clip{Scene: i + 1, ImagePath: imagePath, AudioPath: audioPath})
	}

	output := filepath.Join(workDir, "final_video.mp4")
	rendered, err := p.renderer.Render(ctx, clips, workDir, output)
	if err != nil {
		return domain.Failed(domain.StatusCompileFailed, "Render failed: %v", err)
	}
	if res, low := p.belowRatio(rendered, len(job.Scenes), "rendered"); low {
		return res
	}

	url, err := p.publish(ctx, job.ID, output)
	if err != nil {
		return domain.Failed(domain.StatusCompileFailed, "Upload failed: %v", err)
	}

	p.logger.Info("Video published",
		slog.String("job_id", job.ID),
		slog.Int("clips", rendered),
		slog.Int("skipped_scenes", len(job.Scenes)-rendered),
	)
	return domain.Resolution{Status: domain.StatusCompleted, FinalVideoURL: url}
}

// belowRatio fails the job when fewer than the configured share of scenes
// made it through
func (p *VideoProcessor) belowRatio(n, total int, what string) (domain.Resolution, bool) {
	if float64(n)/float64(total) >= p.cfg.MinRenderableRatio {
		return domain.Resolution{}, false
	}
	return domain.Failed(domain.StatusCompileFailed,
		"only %d of %d scenes are %s, below the required ratio %.2f",
		n, total, what, p.cfg.MinRenderableRatio), true
}

// fetch downloads one asset into workDir and returns its local path
func (p *VideoProcessor) fetch(ctx context.Context, jobID, workDir, key, rawURL string) (string, error) {
	if key == "" {
		var err error
		if key, err = blob.KeyFromURL(rawURL, jobID); err != nil {
			return "", err
		}
	}

	local := filepath.Join(workDir, path.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", err
	}
	if err := p.blobs.Download(ctx, key, f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return local, nil
}

func (p *VideoProcessor) publish(ctx context.Context, jobID, output string) (string, error) {
	f, err := os.Open(output)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := blob.FinalVideoKey(jobID)
	if _, err := p.blobs.Upload(ctx, key, f, "video/mp4"); err != nil {
		return "", err
	}
	return p.blobs.SignedURL(ctx, key, p.cfg.URLTTL)
}
