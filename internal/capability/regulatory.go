package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aidin1998/modelserver/internal/features"
	"github.com/Aidin1998/modelserver/internal/learner"
	"github.com/Aidin1998/modelserver/pkg/models"
)

// Default signal strength assumed for regulations known only by ID.
const (
	DefaultChangeFrequency = 2
	DefaultSeverity        = 2
)

// RegulatoryChange is the forecast for one regulation.
type RegulatoryChange struct {
	RegulationID    string  `json:"regulation_id"`
	PredictedChange string  `json:"predicted_change"`
	Likelihood      float64 `json:"likelihood"`
	Timeframe       string  `json:"timeframe"`
	Impact          string  `json:"impact"`
}

// RegulatoryPredictorModel forecasts regulation changes with gradient
// boosted trees and falls back to a frequency/severity heuristic.
type RegulatoryPredictorModel struct {
	base
	booster *learner.GradientBoosting
}

var _ Predictor[[]models.Record, []RegulatoryChange] = (*RegulatoryPredictorModel)(nil)
var _ Trainable = (*RegulatoryPredictorModel)(nil)

func NewRegulatoryPredictor() *RegulatoryPredictorModel {
	return &RegulatoryPredictorModel{base: newBase(RegulatoryPredictor, false)}
}

// RecordsFromIDs expands bare regulation IDs into records carrying the
// default change signals.
func RecordsFromIDs(ids []string) []models.Record {
	out := make([]models.Record, len(ids))
	for i, id := range ids {
		out[i] = models.Record{
			"regulation_id":    id,
			"change_frequency": DefaultChangeFrequency,
			"severity":         DefaultSeverity,
		}
	}
	return out
}

func (m *RegulatoryPredictorModel) Train(X [][]float64, y []int) (map[string]float64, error) {
	booster := learner.NewGradientBoosting()
	scores, err := fitAndScore(booster, X, y)
	if err != nil {
		return nil, err
	}

	m.booster = booster
	m.metrics = map[string]float64{
		"accuracy":           scores["accuracy"],
		"f1":                 scores["f1"],
		"training_samples":   scores["training_samples"],
		"validation_samples": scores["validation_samples"],
	}
	m.loaded = true
	return m.Metrics(), nil
}

func (m *RegulatoryPredictorModel) Predict(_ context.Context, records []models.Record) ([]RegulatoryChange, error) {
	if m.booster == nil {
		return nil, learner.ErrNotFitted
	}
	proba, err := m.booster.PredictProba(features.ExtractRegulatoryFeatures(records))
	if err != nil {
		return nil, err
	}
	out := make([]RegulatoryChange, len(proba))
	for i, p := range proba {
		out[i] = shapeChange(regulationID(records[i], i), p[1], p[1] > p[0])
	}
	return out, nil
}

// Fallback estimates likelihood as min(1, 0.15*frequency + 0.1*severity).
func (m *RegulatoryPredictorModel) Fallback(records []models.Record) []RegulatoryChange {
	out := make([]RegulatoryChange, len(records))
	for i, r := range records {
		likelihood := min(1.0, r.Float("change_frequency", 0)*0.15+r.Float("severity", 0)*0.1)
		out[i] = shapeChange(regulationID(r, i), likelihood, likelihood >= 0.5)
	}
	return out
}

func regulationID(r models.Record, i int) string {
	return r.String("regulation_id", fmt.Sprintf("reg-%d", i))
}

func shapeChange(id string, likelihood float64, expected bool) RegulatoryChange {
	change := "stable"
	if expected {
		change = "change_expected"
	}
	return RegulatoryChange{
		RegulationID:    id,
		PredictedChange: change,
		Likelihood:      round(likelihood, 4),
		Timeframe:       timeframe(likelihood),
		Impact:          impact(likelihood, expected),
	}
}

func timeframe(likelihood float64) string {
	switch {
	case likelihood >= 0.8:
		return "1-3 months"
	case likelihood >= 0.5:
		return "3-6 months"
	case likelihood >= 0.3:
		return "6-12 months"
	}
	return "12+ months"
}

func impact(likelihood float64, expected bool) string {
	switch {
	case !expected:
		return "low"
	case likelihood >= 0.8:
		return "high"
	case likelihood >= 0.5:
		return "medium"
	}
	return "low"
}

type boosterState struct {
	Kind    Kind                      `json:"kind"`
	Metrics map[string]float64        `json:"metrics"`
	Booster *learner.GradientBoosting `json:"booster"`
}

func (m *RegulatoryPredictorModel) Save(dir string) error {
	if m.booster == nil {
		return m.saveStateless(dir)
	}
	return writeState(dir, StateFile, boosterState{Kind: m.kind, Metrics: m.metrics, Booster: m.booster})
}

func (m *RegulatoryPredictorModel) Load(dir string) error {
	var st boosterState
	ok, err := readState(dir, StateFile, &st)
	if err != nil || !ok {
		return err
	}
	if st.Kind != m.kind {
		return fmt.Errorf("state belongs to %q, not %q", st.Kind, m.kind)
	}
	if st.Metrics != nil {
		m.metrics = st.Metrics
	}
	if st.Booster == nil {
		return nil
	}
	if len(st.Booster.Stage) == 0 {
		return errors.New("state has an empty booster")
	}
	m.booster = st.Booster
	m.loaded = true
	return nil
}
