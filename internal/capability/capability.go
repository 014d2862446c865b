// Package capability defines the uniform contract every model type
// implements and the six concrete variants served by the runtime.
package capability

import (
	"context"
	"maps"
	"strings"
)

// Kind names a capability. It doubles as the artifact name and as the
// discriminator stored in artifact metadata.
type Kind string

const (
	ComplianceGap         Kind = "compliance-gap"
	RegulatoryPredictor   Kind = "regulatory-predictor"
	DriftDetector         Kind = "drift-detector"
	DeploymentOptimizer   Kind = "deployment-optimizer"
	MarketSignalPredictor Kind = "market-signal-predictor"
	TaxonomyClassifier    Kind = "taxonomy-classifier"
)

// DefaultVersion is reported until a capability is trained or loaded.
const DefaultVersion = "1.0.0"

// Kinds lists every capability in reporting order.
var Kinds = []Kind{
	ComplianceGap,
	RegulatoryPredictor,
	DriftDetector,
	DeploymentOptimizer,
	MarketSignalPredictor,
	TaxonomyClassifier,
}

// TrainableKinds are the kinds backed by a learned model.
var TrainableKinds = []Kind{ComplianceGap, RegulatoryPredictor, DriftDetector}

var aliases = map[string]Kind{
	"optimizer":      DeploymentOptimizer,
	"market-signals": MarketSignalPredictor,
	"taxonomy":       TaxonomyClassifier,
}

// ParseKind resolves a user supplied model name. Hyphen and underscore
// spellings are equivalent.
func ParseKind(s string) (Kind, bool) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for _, k := range Kinds {
		if string(k) == name {
			return k, true
		}
	}
	k, ok := aliases[name]
	return k, ok
}

// Key is the underscore spelling used in health payloads.
func (k Kind) Key() string {
	return strings.ReplaceAll(string(k), "-", "_")
}

// Trainable reports whether the kind is backed by a learned model.
func (k Kind) Trainable() bool {
	for _, t := range TrainableKinds {
		if t == k {
			return true
		}
	}
	return false
}

// Capability is the status and persistence contract shared by all
// model types.
type Capability interface {
	Kind() Kind
	IsLoaded() bool
	Version() string
	SetVersion(version string)
	Metrics() map[string]float64
	Save(dir string) error
	Load(dir string) error
}

// Trainable capabilities fit a learner on a feature matrix. Unsupervised
// capabilities ignore y.
type Trainable interface {
	Capability
	Train(X [][]float64, y []int) (map[string]float64, error)
}

// Predictor is a capability serving requests of type I. Predict is the
// trained path including feature extraction; Fallback is the
// deterministic path over raw input and never fails.
type Predictor[I, O any] interface {
	Capability
	Predict(ctx context.Context, in I) (O, error)
	Fallback(in I) O
}

// base carries the status fields every variant shares.
type base struct {
	kind    Kind
	version string
	loaded  bool
	metrics map[string]float64
}

func newBase(kind Kind, loaded bool) base {
	return base{kind: kind, version: DefaultVersion, loaded: loaded, metrics: map[string]float64{}}
}

func (b *base) Kind() Kind      { return b.kind }
func (b *base) IsLoaded() bool  { return b.loaded }
func (b *base) Version() string { return b.version }

func (b *base) SetVersion(version string) {
	if version != "" {
		b.version = version
	}
}

func (b *base) Metrics() map[string]float64 {
	return maps.Clone(b.metrics)
}
