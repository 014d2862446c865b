package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prediction paths
const (
	PathTrained  = "trained"
	PathFallback = "fallback"
	// PathDegraded marks a loaded model whose trained inference failed
	// and was answered by the fallback.
	PathDegraded = "degraded"
)

// PredictionsTotal counts served predictions by model and dispatch path
var PredictionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modelserver_predictions_total",
		Help: "Total number of predictions served",
	},
	[]string{"model", "path"},
)

// PredictionDuration records prediction latency per model
var PredictionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "modelserver_prediction_duration_seconds",
		Help:    "Latency in seconds to compute a prediction",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"model"},
)

// Training metrics
var (
	TrainingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelserver_training_runs_total",
			Help: "Total number of training runs by outcome",
		},
		[]string{"model", "status"},
	)

	TrainingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelserver_training_duration_seconds",
			Help:    "Wall time of a training run",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)
)

// LiveModelInfo is 1 for the version currently published per model
var LiveModelInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "modelserver_live_model_info",
		Help: "Currently published model version",
	},
	[]string{"model", "version"},
)

// Artifact store and cache metrics
var (
	ArtifactOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelserver_artifact_operations_total",
			Help: "Artifact store operations by type and result",
		},
		[]string{"op", "result"},
	)

	PredictionCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelserver_prediction_cache_total",
			Help: "Prediction cache lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(PredictionsTotal, PredictionDuration)
	prometheus.MustRegister(TrainingRunsTotal, TrainingDuration)
	prometheus.MustRegister(LiveModelInfo, ArtifactOperations, PredictionCache)
}

// SetLiveVersion moves the live marker of model to version.
func SetLiveVersion(model, previous, version string) {
	if previous != "" && previous != version {
		LiveModelInfo.DeleteLabelValues(model, previous)
	}
	LiveModelInfo.WithLabelValues(model, version).Set(1)
}
