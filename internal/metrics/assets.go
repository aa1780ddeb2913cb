package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sceneFailuresTotal, jobsSubmittedTotal) }

var sceneFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_scene_failures_total",
		Help: "Per-scene asset generation failures, labeled by asset kind.",
	},
	[]string{"kind"}, // 'image', 'audio'
)

var jobsSubmittedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "story_jobs_submitted_total",
		Help: "Jobs created through the operator API.",
	},
)

// IncSceneFailure records a failed scene asset.
func IncSceneFailure(kind string) {
	sceneFailuresTotal.WithLabelValues(kind).Inc()
}

// IncJobsSubmitted records a newly submitted job.
func IncJobsSubmitted() {
	jobsSubmittedTotal.Inc()
}
