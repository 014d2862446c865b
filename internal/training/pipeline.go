package training

import (
	"context"

	"github.com/Aidin1998/modelserver/internal/capability"
	"github.com/Aidin1998/modelserver/internal/etl"
	"github.com/Aidin1998/modelserver/pkg/models"
)

// Pipeline describes how one trainable kind gets its data and model.
type Pipeline struct {
	Kind capability.Kind
	// Extract reads real records. Nil means the kind always trains on
	// synthetic data.
	Extract func(ctx context.Context) []models.Record
	// Synthesize generates n bootstrap records.
	Synthesize func(n int) []models.Record
	// Transform maps records to features and labels.
	Transform func(records []models.Record) ([][]float64, []int)
	// New returns a fresh, untrained capability.
	New func() capability.Trainable
}

// DefaultPipelines wires the three trainable kinds to e.
func DefaultPipelines(e etl.Extractor) []Pipeline {
	return []Pipeline{
		{
			Kind:       capability.ComplianceGap,
			Extract:    e.ExtractComplianceData,
			Synthesize: SyntheticComplianceData,
			Transform:  etl.TransformForGapAnalysis,
			New:        func() capability.Trainable { return capability.NewComplianceGap() },
		},
		{
			Kind:       capability.RegulatoryPredictor,
			Extract:    e.ExtractRegulatoryData,
			Synthesize: SyntheticRegulatoryData,
			Transform:  etl.TransformForPredictions,
			New:        func() capability.Trainable { return capability.NewRegulatoryPredictor() },
		},
		{
			Kind:       capability.DriftDetector,
			Synthesize: SyntheticDriftData,
			Transform:  etl.TransformForDrift,
			New:        func() capability.Trainable { return capability.NewDriftDetector() },
		},
	}
}
