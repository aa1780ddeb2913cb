package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStageCounters(t *testing.T) {
	before := testutil.ToFloat64(stageJobsTotal.WithLabelValues("script", "assets_pending"))
	ObserveStage("script", "assets_pending", 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(stageJobsTotal.WithLabelValues("script", "assets_pending")))

	before = testutil.ToFloat64(leasesReclaimedTotal.WithLabelValues("video"))
	AddLeasesReclaimed("video", 0)
	AddLeasesReclaimed("video", 2)
	assert.Equal(t, before+2, testutil.ToFloat64(leasesReclaimedTotal.WithLabelValues("video")))

	before = testutil.ToFloat64(sceneFailuresTotal.WithLabelValues("image"))
	IncSceneFailure("image")
	assert.Equal(t, before+1, testutil.ToFloat64(sceneFailuresTotal.WithLabelValues("image")))
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}
