package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/modelserver/internal/features"
	"github.com/Aidin1998/modelserver/internal/learner"
	"github.com/Aidin1998/modelserver/pkg/models"
)

// Recommendation is one detected (or ruled out) compliance gap.
type Recommendation struct {
	Category    string  `json:"category,omitempty"`
	GapType     string  `json:"gap_type"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// ComplianceGapModel classifies compliance records with a random forest
// and falls back to threshold rules.
type ComplianceGapModel struct {
	base
	forest *learner.RandomForest
	now    func() time.Time
}

var _ Predictor[[]models.Record, []Recommendation] = (*ComplianceGapModel)(nil)
var _ Trainable = (*ComplianceGapModel)(nil)

func NewComplianceGap() *ComplianceGapModel {
	return &ComplianceGapModel{base: newBase(ComplianceGap, false), now: time.Now}
}

// WithClock sets the clock used to age last_check_date.
func (m *ComplianceGapModel) WithClock(now func() time.Time) *ComplianceGapModel {
	m.now = now
	return m
}

func (m *ComplianceGapModel) Train(X [][]float64, y []int) (map[string]float64, error) {
	forest := learner.NewRandomForest()
	metrics, err := fitAndScore(forest, X, y)
	if err != nil {
		return nil, err
	}

	m.forest = forest
	m.metrics = metrics
	m.loaded = true
	return m.Metrics(), nil
}

func (m *ComplianceGapModel) Predict(_ context.Context, records []models.Record) ([]Recommendation, error) {
	if m.forest == nil {
		return nil, learner.ErrNotFitted
	}
	proba, err := m.forest.PredictProba(features.ExtractComplianceFeatures(records))
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(proba))
	for i, p := range proba {
		isGap := p[1] > p[0]
		confidence := max(p[0], p[1])
		rec := Recommendation{
			Category:    records[i].String("category", "general"),
			GapType:     "no_gap",
			Severity:    severityFromConfidence(confidence, isGap),
			Confidence:  round(confidence, 4),
			Title:       "No gap detected",
			Description: fmt.Sprintf("Model predicts no gap with %.1f%% confidence.", confidence*100),
		}
		if isGap {
			rec.GapType = "compliance_gap"
			rec.Title = "Compliance gap detected"
			rec.Description = fmt.Sprintf("Model predicts a gap with %.1f%% confidence.", confidence*100)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Fallback flags low compliance rates, non-compliant status and stale
// checks. A record may raise several flags.
func (m *ComplianceGapModel) Fallback(records []models.Record) []Recommendation {
	now := m.now()
	out := []Recommendation{}
	for _, r := range records {
		rate := r.Float("compliance_rate", 1.0)
		status := r.String("status", "compliant")
		category := r.String("category", "general")
		pct := rate * 100

		switch {
		case rate < 0.5:
			severity := "high"
			if rate < 0.3 {
				severity = "critical"
			}
			out = append(out, Recommendation{
				Category:    category,
				GapType:     "low_compliance_rate",
				Severity:    severity,
				Confidence:  round(1-rate, 4),
				Title:       fmt.Sprintf("Low compliance rate (%.0f%%)", pct),
				Description: fmt.Sprintf("Compliance rate of %.0f%% in '%s' is below acceptable threshold.", pct, category),
			})
		case rate < 0.7:
			out = append(out, Recommendation{
				Category:    category,
				GapType:     "moderate_compliance_rate",
				Severity:    "medium",
				Confidence:  round(1-rate, 4),
				Title:       fmt.Sprintf("Moderate compliance rate (%.0f%%)", pct),
				Description: fmt.Sprintf("Compliance rate of %.0f%% in '%s' may need attention.", pct, category),
			})
		}

		if status == "non_compliant" {
			out = append(out, Recommendation{
				Category:    category,
				GapType:     "non_compliant_status",
				Severity:    "high",
				Confidence:  0.95,
				Title:       fmt.Sprintf("Non-compliant status in %s", category),
				Description: fmt.Sprintf("Record is marked as non-compliant in '%s'.", category),
			})
		}

		if checked, ok := r.Time("last_check_date"); ok {
			days := int(now.Sub(checked).Hours() / 24)
			if days > 180 {
				severity := "medium"
				if days > 365 {
					severity = "high"
				}
				out = append(out, Recommendation{
					Category:    category,
					GapType:     "stale_compliance_check",
					Severity:    severity,
					Confidence:  min(0.99, float64(days)/730),
					Title:       fmt.Sprintf("Stale compliance check (%d days)", days),
					Description: fmt.Sprintf("Last compliance check was %d days ago.", days),
				})
			}
		}
	}
	return out
}

type forestState struct {
	Kind    Kind                  `json:"kind"`
	Metrics map[string]float64    `json:"metrics"`
	Forest  *learner.RandomForest `json:"forest"`
}

func (m *ComplianceGapModel) Save(dir string) error {
	if m.forest == nil {
		return m.saveStateless(dir)
	}
	return writeState(dir, StateFile, forestState{Kind: m.kind, Metrics: m.metrics, Forest: m.forest})
}

func (m *ComplianceGapModel) Load(dir string) error {
	var st forestState
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
	if st.Forest == nil {
		return nil
	}
	if len(st.Forest.Forest) == 0 {
		return errors.New("state has an empty forest")
	}
	m.forest = st.Forest
	m.loaded = true
	return nil
}

func severityFromConfidence(confidence float64, isGap bool) string {
	switch {
	case !isGap:
		return "none"
	case confidence >= 0.9:
		return "critical"
	case confidence >= 0.75:
		return "high"
	case confidence >= 0.6:
		return "medium"
	}
	return "low"
}
