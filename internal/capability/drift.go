package capability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Aidin1998/modelserver/internal/features"
	"github.com/Aidin1998/modelserver/internal/learner"
)

// driftZLimit is the z-score above which a metric counts as deviating.
const driftZLimit = 2.0

// Reference envelope used before any training data has been seen, in
// features.DriftMetricKeys order.
var (
	defaultDriftMeans = []float64{0.85, 200.0, 0.02, 100.0, 500.0}
	defaultDriftStds  = []float64{0.10, 50.0, 0.01, 30.0, 100.0}
)

// DriftInput is one observation of an agent's operating metrics.
type DriftInput struct {
	AgentID string             `json:"agent_id"`
	Metrics map[string]float64 `json:"metrics"`
}

// DriftResult reports whether an agent left its normal envelope.
type DriftResult struct {
	AgentID          string   `json:"agent_id"`
	IsDrifting       bool     `json:"is_drifting"`
	AnomalyScore     float64  `json:"anomaly_score"`
	Threshold        float64  `json:"threshold"`
	Details          string   `json:"details"`
	DeviatingMetrics []string `json:"deviating_metrics"`
}

// DriftDetectorModel learns the normal operating envelope of agents with
// an isolation forest. The fallback is a z-score rule.
type DriftDetectorModel struct {
	base
	forest *learner.IsolationForest
	means  []float64
	stds   []float64
}

var _ Predictor[DriftInput, DriftResult] = (*DriftDetectorModel)(nil)
var _ Trainable = (*DriftDetectorModel)(nil)

func NewDriftDetector() *DriftDetectorModel {
	return &DriftDetectorModel{base: newBase(DriftDetector, false)}
}

// Train fits on rows of normal behaviour; labels are ignored.
func (m *DriftDetectorModel) Train(X [][]float64, _ []int) (map[string]float64, error) {
	forest := learner.NewIsolationForest()
	if err := forest.Fit(X); err != nil {
		return nil, err
	}

	width := len(X[0])
	means := make([]float64, width)
	stds := make([]float64, width)
	column := make([]float64, len(X))
	for c := 0; c < width; c++ {
		for i, row := range X {
			column[i] = row[c]
		}
		mean, variance := stat.PopMeanVariance(column, nil)
		means[c] = mean
		stds[c] = math.Sqrt(variance)
		if stds[c] == 0 {
			stds[c] = 1
		}
	}

	m.forest = forest
	m.means = means
	m.stds = stds
	m.metrics = map[string]float64{
		"training_samples": float64(len(X)),
		"contamination":    forest.Contamination,
		"feature_count":    float64(width),
	}
	m.loaded = true
	return m.Metrics(), nil
}

func (m *DriftDetectorModel) Predict(_ context.Context, in DriftInput) (DriftResult, error) {
	if m.forest == nil {
		return DriftResult{}, learner.ErrNotFitted
	}
	scores, err := m.forest.DecisionFunction([][]float64{features.DriftVector(in.Metrics)})
	if err != nil {
		return DriftResult{}, err
	}
	score := scores[0]
	drifting := score < 0
	_, deviating := m.zScores(in.Metrics)

	details := "Metrics are within the normal operating envelope."
	if drifting {
		details = "Anomalous behaviour detected, metrics deviate from learned normal envelope."
	}
	return DriftResult{
		AgentID:          in.AgentID,
		IsDrifting:       drifting,
		AnomalyScore:     round(score, 4),
		Threshold:        0,
		Details:          details,
		DeviatingMetrics: deviating,
	}, nil
}

// Fallback flags drift when any metric is more than two standard
// deviations from the trained or reference mean.
func (m *DriftDetectorModel) Fallback(in DriftInput) DriftResult {
	z, deviating := m.zScores(in.Metrics)
	maxZ := floats.Max(z)
	drifting := maxZ > driftZLimit

	details := "All metrics within 2 standard deviations of expected range."
	if drifting {
		details = "Drift detected, metrics deviating >2 std: " + strings.Join(deviating, ", ")
	}
	return DriftResult{
		AgentID:          in.AgentID,
		IsDrifting:       drifting,
		AnomalyScore:     round(-maxZ, 4),
		Threshold:        -driftZLimit,
		Details:          details,
		DeviatingMetrics: deviating,
	}
}

func (m *DriftDetectorModel) zScores(metrics map[string]float64) ([]float64, []string) {
	means, stds := defaultDriftMeans, defaultDriftStds
	if len(m.means) == len(features.DriftMetricKeys) && len(m.stds) == len(m.means) {
		means, stds = m.means, m.stds
	}
	v := features.DriftVector(metrics)
	z := make([]float64, len(v))
	deviating := []string{}
	for i := range v {
		z[i] = math.Abs((v[i] - means[i]) / stds[i])
		if z[i] > driftZLimit {
			deviating = append(deviating, features.DriftMetricKeys[i])
		}
	}
	return z, deviating
}

type driftState struct {
	Kind    Kind                     `json:"kind"`
	Metrics map[string]float64       `json:"metrics"`
	Forest  *learner.IsolationForest `json:"forest"`
	Means   []float64                `json:"means,omitempty"`
	Stds    []float64                `json:"stds,omitempty"`
}

func (m *DriftDetectorModel) Save(dir string) error {
	return writeState(dir, StateFile, driftState{
		Kind:    m.kind,
		Metrics: m.metrics,
		Forest:  m.forest,
		Means:   m.means,
		Stds:    m.stds,
	})
}

func (m *DriftDetectorModel) Load(dir string) error {
	var st driftState
	ok, err := readState(dir, StateFile, &st)
	if err != nil || !ok {
		return err
	}
	if st.Kind != m.kind {
		return fmt.Errorf("state belongs to %q, not %q", st.Kind, m.kind)
	}
	if len(st.Means) != len(st.Stds) {
		return errors.New("drift statistics are inconsistent")
	}
	if st.Metrics != nil {
		m.metrics = st.Metrics
	}
	m.means, m.stds = st.Means, st.Stds
	if st.Forest == nil {
		return nil
	}
	if len(st.Forest.Forest) == 0 {
		return errors.New("state has an empty isolation forest")
	}
	m.forest = st.Forest
	m.loaded = true
	return nil
}
