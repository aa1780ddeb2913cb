package domain

// Status is the pipeline position of a job. It doubles as the work queue key
// and as the claim lock for each stage.
type Status string

// Job status constants
const (
	StatusScriptPending    Status = "script_pending"
	StatusScriptProcessing Status = "script_processing"
	StatusScriptFailed     Status = "script_failed"

	StatusAssetsPending    Status = "assets_pending"
	StatusAssetsProcessing Status = "assets_processing"

	StatusCompilePending Status = "compile_pending"
	StatusCompiling      Status = "compiling"
	StatusCompileFailed  Status = "compile_failed"

	StatusCompleted Status = "completed"
)

// Stage identifies one phase of the pipeline.
type Stage string

// Pipeline stages
const (
	StageScript Stage = "script"
	StageAsset  Stage = "asset"
	StageVideo  Stage = "video"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageScript, StageAsset, StageVideo}

// ParseStage converts a configured stage name into a Stage.
func ParseStage(name string) (Stage, bool) {
	for _, s := range Stages {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// Pending returns the status a job waits in before this stage claims it.
func (s Stage) Pending() Status {
	switch s {
	case StageScript:
		return StatusScriptPending
	case StageAsset:
		return StatusAssetsPending
	case StageVideo:
		return StatusCompilePending
	}
	return ""
}

// Processing returns the status held by a job while this stage owns it.
func (s Stage) Processing() Status {
	switch s {
	case StageScript:
		return StatusScriptProcessing
	case StageAsset:
		return StatusAssetsProcessing
	case StageVideo:
		return StatusCompiling
	}
	return ""
}

// transitions is the full edge set of the status graph. Reclaim edges
// (processing back to pending) and operator resubmission edges are included.
var transitions = map[Status][]Status{
	StatusScriptPending:    {StatusScriptProcessing},
	StatusScriptProcessing: {StatusAssetsPending, StatusScriptFailed, StatusScriptPending},
	StatusScriptFailed:     {StatusScriptPending},

	StatusAssetsPending:    {StatusAssetsProcessing},
	StatusAssetsProcessing: {StatusCompilePending, StatusAssetsPending},

	StatusCompilePending: {StatusCompiling},
	StatusCompiling:      {StatusCompleted, StatusCompileFailed, StatusCompilePending},
	StatusCompileFailed:  {StatusCompilePending},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusCompleted {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// IsFailed reports whether s is one of the failure states.
func (s Status) IsFailed() bool {
	return s == StatusScriptFailed || s == StatusCompileFailed
}

// IsTerminal reports whether s is an absorbing state for the pipeline.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s.IsFailed()
}

// ResubmitTarget returns the pending status a failed job re-enters when an
// operator resubmits it.
func (s Status) ResubmitTarget() (Status, bool) {
	switch s {
	case StatusScriptFailed:
		return StatusScriptPending, true
	case StatusCompileFailed:
		return StatusCompilePending, true
	}
	return "", false
}

// Failed returns the failure status of this stage. The asset stage has none.
func (s Stage) Failed() (Status, bool) {
	switch s {
	case StageScript:
		return StatusScriptFailed, true
	case StageVideo:
		return StatusCompileFailed, true
	}
	return "", false
}

// Next returns the status a job enters when this stage succeeds.
func (s Stage) Next() Status {
	switch s {
	case StageScript:
		return StatusAssetsPending
	case StageAsset:
		return StatusCompilePending
	case StageVideo:
		return StatusCompleted
	}
	return ""
}
