// Package stage implements the work each pipeline stage performs on a
// claimed job. Processors never write to the job store; they return the
// resolution for the worker loop to persist.
package stage

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/internal/retry"
)

// MsgTopicMissing is the error message of a job submitted without a topic
const MsgTopicMissing = "Topic is missing"

// ScriptGenerator turns a brief into ordered scene drafts
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, topic, style string) (domain.Scenes, error)
}

// ScriptProcessor writes the scene list of a job
type ScriptProcessor struct {
	generator ScriptGenerator
	policy    retry.Policy
	logger    *slog.Logger
}

// NewScriptProcessor creates the script stage. policy wraps every call to
// the generator.
func NewScriptProcessor(generator ScriptGenerator, policy retry.Policy, logger *slog.Logger) *ScriptProcessor {
	return &ScriptProcessor{generator: generator, policy: policy, logger: logger}
}

// Stage implements worker.Processor
func (p *ScriptProcessor) Stage() domain.Stage {
	return domain.StageScript
}

// Process implements worker.Processor
func (p *ScriptProcessor) Process(ctx context.Context, job *domain.Job) domain.Resolution {
	if strings.TrimSpace(job.Topic) == "" {
		p.logger.Warn("Job has no topic", slog.String("job_id", job.ID))
		return domain.Failed(domain.StatusScriptFailed, MsgTopicMissing)
	}

	policy := p.policy
	policy.OnRetry = func(attempt int, err error) {
		p.logger.Warn("Script generation failed, retrying",
			slog.String("job_id", job.ID),
			slog.Int("attempt", attempt),
			slog.Duration("retry_after", policy.Wait),
			slog.Any("error", err),
		)
	}

	attempts := 0
	scenes, err := retry.Do(ctx, policy, func(ctx context.Context) (domain.Scenes, error) {
		attempts++
		scenes, err := p.generator.GenerateScript(ctx, job.Topic, job.Style)
		if err == nil && len(scenes) == 0 {
			err = domain.ErrNoScenes
		}
		return scenes, err
	})
	if err != nil {
		return domain.Failed(domain.StatusScriptFailed, "Failed after %d attempts: %v", attempts, err)
	}

	p.logger.Info("Script written",
		slog.String("job_id", job.ID),
		slog.Int("scenes", len(scenes)),
		slog.Int("attempts", attempts),
	)
	return domain.Succeeded(domain.StatusAssetsPending, scenes)
}
