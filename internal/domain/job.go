package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Scene is one narrated beat of a story. Media fields are filled in by the
// asset stage; Error records a per-scene asset failure.
type Scene struct {
	Narration   string `json:"narration"`
	ImagePrompt string `json:"image_prompt"`
	ImageURL    string `json:"image_url,omitempty"`
	AudioURL    string `json:"audio_url,omitempty"`
	ImageKey    string `json:"image_key,omitempty"`
	AudioKey    string `json:"audio_key,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Renderable reports whether the scene has both an image and narration audio.
func (s Scene) Renderable() bool {
	return s.ImageURL != "" && s.AudioURL != ""
}

// Scenes is the ordered scene list of a job, persisted as a JSON document.
type Scenes []Scene

// Value implements driver.Valuer. A nil list is stored as NULL; anything else
// is stored as JSON text.
func (s Scenes) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal([]Scene(s))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scenes: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *Scenes) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported scenes column type %T", src)
	}

	var scenes []Scene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return fmt.Errorf("failed to unmarshal scenes: %w", err)
	}
	*s = scenes
	return nil
}

// Clone returns a copy that shares no backing array with s.
func (s Scenes) Clone() Scenes {
	if s == nil {
		return nil
	}
	out := make(Scenes, len(s))
	copy(out, s)
	return out
}

// Job is one story-to-video production request and its pipeline state.
type Job struct {
	ID                string     `db:"id" json:"id"`
	Topic             string     `db:"topic" json:"topic"`
	Style             string     `db:"style" json:"style"`
	Status            Status     `db:"status" json:"status"`
	Scenes            Scenes     `db:"scenes" json:"scenes,omitempty"`
	ErrorMessage      *string    `db:"error_message" json:"error_message,omitempty"`
	FinalVideoURL     *string    `db:"final_video_url" json:"final_video_url,omitempty"`
	LeaseOwner        *string    `db:"lease_owner" json:"-"`
	LeaseExpiresAt    *time.Time `db:"lease_expires_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	ScriptCompletedAt *time.Time `db:"script_completed_at" json:"script_completed_at,omitempty"`
	AssetsCompletedAt *time.Time `db:"assets_completed_at" json:"assets_completed_at,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Scenes = j.Scenes.Clone()
	c.ErrorMessage = clonePtr(j.ErrorMessage)
	c.FinalVideoURL = clonePtr(j.FinalVideoURL)
	c.LeaseOwner = clonePtr(j.LeaseOwner)
	c.LeaseExpiresAt = clonePtr(j.LeaseExpiresAt)
	c.ScriptCompletedAt = clonePtr(j.ScriptCompletedAt)
	c.AssetsCompletedAt = clonePtr(j.AssetsCompletedAt)
	c.CompletedAt = clonePtr(j.CompletedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Resolution is the outcome a stage processor hands back for a claimed job.
// The store derives which completion timestamp to set from Status.
type Resolution struct {
	Status        Status
	Scenes        Scenes // nil leaves stored scenes untouched
	ErrorMessage  string // persisted only for failure statuses
	FinalVideoURL string
	At            time.Time
}

// Succeeded returns a resolution advancing the job to status.
func Succeeded(status Status, scenes Scenes) Resolution {
	return Resolution{Status: status, Scenes: scenes}
}

// Failed returns a resolution moving the job to a failure status.
func Failed(status Status, format string, args ...any) Resolution {
	return Resolution{Status: status, ErrorMessage: fmt.Sprintf(format, args...)}
}

// Apply writes r onto job in memory, mirroring what a store persists.
func (r Resolution) Apply(job *Job) {
	job.Status = r.Status
	if r.Scenes != nil {
		job.Scenes = r.Scenes.Clone()
	}
	if r.Status.IsFailed() {
		msg := r.ErrorMessage
		job.ErrorMessage = &msg
	} else {
		job.ErrorMessage = nil
	}
	if r.FinalVideoURL != "" && r.Status == StatusCompleted {
		url := r.FinalVideoURL
		job.FinalVideoURL = &url
	}

	at := r.At
	switch r.Status {
	case StatusAssetsPending:
		job.ScriptCompletedAt = &at
	case StatusCompilePending:
		job.AssetsCompletedAt = &at
	case StatusCompleted:
		job.CompletedAt = &at
	}
	job.LeaseOwner = nil
	job.LeaseExpiresAt = nil
	job.UpdatedAt = at
}
