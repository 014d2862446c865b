package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetLiveVersionMovesMarker(t *testing.T) {
	SetLiveVersion("test-model", "", "1.0.0")
	assert.Equal(t, float64(1), testutil.ToFloat64(LiveModelInfo.WithLabelValues("test-model", "1.0.0")))

	SetLiveVersion("test-model", "1.0.0", "1.0.1")
	assert.Equal(t, float64(1), testutil.ToFloat64(LiveModelInfo.WithLabelValues("test-model", "1.0.1")))
	assert.False(t, LiveModelInfo.DeleteLabelValues("test-model", "1.0.0"))

	// republishing the same version keeps the marker
	SetLiveVersion("test-model", "1.0.1", "1.0.1")
	assert.Equal(t, float64(1), testutil.ToFloat64(LiveModelInfo.WithLabelValues("test-model", "1.0.1")))
}

func TestPredictionCounters(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("test-model", PathFallback))
	PredictionsTotal.WithLabelValues("test-model", PathFallback).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PredictionsTotal.WithLabelValues("test-model", PathFallback)))
}
