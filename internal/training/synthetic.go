package training

import (
	"fmt"
	"math/rand/v2"

	"github.com/Aidin1998/modelserver/internal/features"
	"github.com/Aidin1998/modelserver/pkg/models"
)

// Synthetic bootstrap data. Generators are seeded so a run without a
// database reproduces the same model every time.
const (
	SyntheticRows = 200
	SyntheticSeed = 42
)

func syntheticRand() *rand.Rand {
	return rand.New(rand.NewPCG(SyntheticSeed, SyntheticSeed))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// intRange draws from [lo, hi).
func intRange(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo)
}

// SyntheticComplianceData generates compliance records labelled with
// has_gap = compliance_rate < 0.5.
func SyntheticComplianceData(n int) []models.Record {
	rng := syntheticRand()
	out := make([]models.Record, n)
	for i := range out {
		rate := uniform(rng, 0.1, 1.0)
		out[i] = models.Record{
			"compliance_rate":     rate,
			"days_since_check":    intRange(rng, 1, 400),
			"regulation_count":    intRange(rng, 1, 20),
			"non_compliant_count": intRange(rng, 0, 10),
			"total_count":         10,
			"pending_count":       intRange(rng, 0, 5),
			"alert_count":         intRange(rng, 0, 15),
			"has_gap":             rate < 0.5,
		}
	}
	return out
}

// SyntheticRegulatoryData generates regulation histories labelled with
// changed = change_frequency > 4.
func SyntheticRegulatoryData(n int) []models.Record {
	rng := syntheticRand()
	out := make([]models.Record, n)
	for i := range out {
		freq := intRange(rng, 0, 10)
		out[i] = models.Record{
			"regulation_id":        fmt.Sprintf("reg-%d", i),
			"change_frequency":     freq,
			"severity":             intRange(rng, 1, 6),
			"days_between_changes": intRange(rng, 30, 730),
			"regulation_type":      features.RegulationTypes[rng.IntN(len(features.RegulationTypes))],
			"changed":              freq > 4,
		}
	}
	return out
}

// SyntheticDriftData generates normal agent behaviour.
func SyntheticDriftData(n int) []models.Record {
	rng := syntheticRand()
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Record{
			"compliance_score": uniform(rng, 0.7, 1.0),
			"response_time":    uniform(rng, 100, 300),
			"error_rate":       uniform(rng, 0, 0.05),
			"throughput":       uniform(rng, 50, 150),
			"latency_p99":      uniform(rng, 300, 700),
		}
	}
	return out
}
