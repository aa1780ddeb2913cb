package dto

import (
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
)

type CreateJobRequest struct {
	Topic string `json:"topic" binding:"required"`
	Style string `json:"style"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type SceneDTO struct {
	Narration   string `json:"narration"`
	ImagePrompt string `json:"image_prompt"`
	ImageURL    string `json:"image_url,omitempty"`
	AudioURL    string `json:"audio_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

type JobDTO struct {
	JobID             string     `json:"job_id"`
	Topic             string     `json:"topic"`
	Style             string     `json:"style"`
	Status            string     `json:"status"`
	Scenes            []SceneDTO `json:"scenes,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	FinalVideoURL     string     `json:"final_video_url,omitempty"`
	CreatedAt         string     `json:"created_at"`
	UpdatedAt         string     `json:"updated_at"`
	ScriptCompletedAt string     `json:"script_completed_at,omitempty"`
	AssetsCompletedAt string     `json:"assets_completed_at,omitempty"`
	CompletedAt       string     `json:"completed_at,omitempty"`
}

// FromJob renders a job for API responses. Storage keys and lease
// bookkeeping stay internal.
func FromJob(job *domain.Job) JobDTO {
	out := JobDTO{
		JobID:             job.ID,
		Topic:             job.Topic,
		Style:             job.Style,
		Status:            string(job.Status),
		ErrorMessage:      deref(job.ErrorMessage),
		FinalVideoURL:     deref(job.FinalVideoURL),
		CreatedAt:         job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         job.UpdatedAt.Format(time.RFC3339),
		ScriptCompletedAt: formatTime(job.ScriptCompletedAt),
		AssetsCompletedAt: formatTime(job.AssetsCompletedAt),
		CompletedAt:       formatTime(job.CompletedAt),
	}

	for _, s := range job.Scenes {
		out.Scenes = append(out.Scenes, SceneDTO{
			Narration:   s.Narration,
			ImagePrompt: s.ImagePrompt,
			ImageURL:    s.ImageURL,
			AudioURL:    s.AudioURL,
			Error:       s.Error,
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
