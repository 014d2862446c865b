package etl

import (
	"maps"

	"github.com/Aidin1998/modelserver/internal/features"
	"github.com/Aidin1998/modelserver/pkg/models"
)

// Thresholds used to label records that carry no explicit label.
const (
	GapRateThreshold      = 0.5
	ChangeFrequencyCutoff = 4
)

// TransformForGapAnalysis returns compliance features and has_gap
// labels. Records without has_gap are labelled from their compliance
// rate and status.
func TransformForGapAnalysis(records []models.Record) ([][]float64, []int) {
	if len(records) == 0 {
		return [][]float64{}, []int{}
	}
	labelled := make([]models.Record, len(records))
	for i, r := range records {
		labelled[i] = r
		if r.Has("has_gap") {
			continue
		}
		derived := r.Float("compliance_rate", 1.0) < GapRateThreshold || r.String("status", "") == "non_compliant"
		labelled[i] = withLabel(r, "has_gap", derived)
	}
	return features.ExtractComplianceFeatures(labelled), features.ComplianceLabels(labelled)
}

// TransformForPredictions returns regulatory features and changed
// labels. Records without changed are labelled from their change
// frequency.
func TransformForPredictions(records []models.Record) ([][]float64, []int) {
	if len(records) == 0 {
		return [][]float64{}, []int{}
	}
	labelled := make([]models.Record, len(records))
	for i, r := range records {
		labelled[i] = r
		if !r.Has("changed") {
			labelled[i] = withLabel(r, "changed", r.Float("change_frequency", 0) > ChangeFrequencyCutoff)
		}
	}
	return features.ExtractRegulatoryFeatures(labelled), features.RegulatoryLabels(labelled)
}

// TransformForDrift returns drift vectors. Drift training is
// unsupervised.
func TransformForDrift(records []models.Record) ([][]float64, []int) {
	return features.DriftRows(records), nil
}

// withLabel copies r with key set, leaving the caller's record intact.
func withLabel(r models.Record, key string, v bool) models.Record {
	out := maps.Clone(r)
	if out == nil {
		out = models.Record{}
	}
	out[key] = v
	return out
}
