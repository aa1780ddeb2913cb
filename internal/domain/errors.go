package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when a claim loses the race for a pending job
	ErrJobAlreadyClaimed = errors.New("job already claimed or no longer pending")

	// ErrLeaseLost is returned when a worker writes to a job it no longer owns
	ErrLeaseLost = errors.New("job lease lost")

	// ErrInvalidTransition is returned for a status change outside the status graph
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotResubmittable is returned when an operator retries a job that is not failed
	ErrNotResubmittable = errors.New("job is not in a failed state")

	// ErrNoScenes is returned when a script provider response carries no scenes
	ErrNoScenes = errors.New("script response did not contain any scenes")

	// ErrNoRenderableClips is returned when no scene has both an image and audio
	ErrNoRenderableClips = errors.New("no renderable clips")
)
