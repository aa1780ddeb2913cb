package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(stageJobsTotal, stageDuration, claimConflictsTotal, leasesReclaimedTotal, loopFaultsTotal)
}

var stageJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_stage_jobs_total",
		Help: "Jobs resolved by a stage worker, labeled by stage and resulting status.",
	},
	[]string{"stage", "outcome"},
)

var stageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "story_stage_duration_seconds",
		Help:    "Wall time spent processing one claimed job.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	},
	[]string{"stage"},
)

var claimConflictsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_claim_conflicts_total",
		Help: "Claims lost to another worker of the same stage.",
	},
	[]string{"stage"},
)

var leasesReclaimedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_leases_reclaimed_total",
		Help: "Jobs returned to pending after their processing lease expired.",
	},
	[]string{"stage"},
)

var loopFaultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "story_loop_faults_total",
		Help: "Unexpected faults in a worker polling loop.",
	},
	[]string{"stage"},
)

// ObserveStage records one resolved job.
func ObserveStage(stage, outcome string, elapsed time.Duration) {
	stageJobsTotal.WithLabelValues(stage, outcome).Inc()
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// IncClaimConflict records a lost claim race.
func IncClaimConflict(stage string) {
	claimConflictsTotal.WithLabelValues(stage).Inc()
}

// AddLeasesReclaimed records reclaimed jobs.
func AddLeasesReclaimed(stage string, n int64) {
	if n <= 0 {
		return
	}
	leasesReclaimedTotal.WithLabelValues(stage).Add(float64(n))
}

// IncLoopFault records a polling loop fault.
func IncLoopFault(stage string) {
	loopFaultsTotal.WithLabelValues(stage).Inc()
}
