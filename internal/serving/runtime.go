// Package serving holds the live capabilities, answers predictions with
// the trained-or-fallback policy and swaps in newly trained versions.
package serving

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Aidin1998/modelserver/internal/artifacts"
	"github.com/Aidin1998/modelserver/internal/capability"
	"github.com/Aidin1998/modelserver/internal/optimizer"
	"github.com/Aidin1998/modelserver/internal/training"
	apperrors "github.com/Aidin1998/modelserver/pkg/errors"
	"github.com/Aidin1998/modelserver/pkg/metrics"
	"github.com/Aidin1998/modelserver/pkg/models"
)

var tracer = otel.Tracer("serving")

// Trainer runs training for a kind.
type Trainer interface {
	Train(ctx context.Context, kind capability.Kind) (*training.Result, error)
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithCache caches trained-path predictions.
func WithCache(c Cache) Option { return func(r *Runtime) { r.cache = c } }

// WithTaxonomyKeywords replaces the keyword table of the taxonomy
// classifier.
func WithTaxonomyKeywords(table []capability.KeywordCategory) Option {
	return func(r *Runtime) { r.taxonomy.Store(capability.NewTaxonomyClassifier(table)) }
}

// Runtime holds one live capability per kind. Readers load the current
// pointer without locking; a capability is never mutated once published.
type Runtime struct {
	store   *artifacts.Store
	logger  *zap.Logger
	cache   Cache
	trainer Trainer

	compliance atomic.Pointer[capability.ComplianceGapModel]
	regulatory atomic.Pointer[capability.RegulatoryPredictorModel]
	drift      atomic.Pointer[capability.DriftDetectorModel]
	optimizer  atomic.Pointer[capability.DeploymentOptimizerModel]
	market     atomic.Pointer[capability.MarketSignalPredictorModel]
	taxonomy   atomic.Pointer[capability.TaxonomyClassifierModel]

	// publishMu orders publications so the version check and the swap
	// happen together.
	publishMu sync.Mutex
}

// NewRuntime starts every kind with its default, unloaded capability.
func NewRuntime(store *artifacts.Store, logger *zap.Logger, opts ...Option) *Runtime {
	r := &Runtime{store: store, logger: logger.Named("serving"), cache: NopCache{}}
	r.compliance.Store(capability.NewComplianceGap())
	r.regulatory.Store(capability.NewRegulatoryPredictor())
	r.drift.Store(capability.NewDriftDetector())
	r.optimizer.Store(capability.NewDeploymentOptimizer())
	r.market.Store(capability.NewMarketSignalPredictor())
	r.taxonomy.Store(capability.NewTaxonomyClassifier(nil))
	for _, opt := range opts {
		opt(r)
	}
	for _, kind := range capability.Kinds {
		metrics.SetLiveVersion(string(kind), "", r.live(kind).Version())
	}
	return r
}

// SetTrainer installs the training backend.
func (r *Runtime) SetTrainer(t Trainer) {
	r.trainer = t
}

// Hydrate loads the latest artifact of every trainable kind. Kinds
// without a usable artifact keep serving the fallback.
func (r *Runtime) Hydrate(ctx context.Context) {
	for _, kind := range capability.TrainableKinds {
		c, ok := r.store.LoadModel(ctx, string(kind), artifacts.Latest)
		if !ok {
			r.logger.Info("No artifact found, serving fallback", zap.String("model", string(kind)))
			continue
		}
		if _, err := r.Publish(ctx, kind, c); err != nil {
			r.logger.Warn("Failed to publish artifact", zap.String("model", string(kind)), zap.Error(err))
			continue
		}
		r.logger.Info("Model loaded", zap.String("model", string(kind)), zap.String("version", c.Version()))
	}
}

// Publish makes c the live capability of kind unless the live one is a
// loaded, newer version. It reports whether c went live.
func (r *Runtime) Publish(ctx context.Context, kind capability.Kind, c capability.Capability) (bool, error) {
	_, span := tracer.Start(ctx, "serving.hotswap")
	span.SetAttributes(attribute.String("model", string(kind)), attribute.String("version", c.Version()))
	defer span.End()

	if c.Kind() != kind {
		return false, apperrors.ErrInvalidInput.Explain("cannot publish %s as %s", c.Kind(), kind)
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	live := r.live(kind)
	if live.IsLoaded() && artifacts.CompareVersions(c.Version(), live.Version()) < 0 {
		r.logger.Info("Ignoring older version",
			zap.String("model", string(kind)), zap.String("live", live.Version()), zap.String("candidate", c.Version()))
		return false, nil
	}

	var ok bool
	switch kind {
	case capability.ComplianceGap:
		ok = swap(&r.compliance, c)
	case capability.RegulatoryPredictor:
		ok = swap(&r.regulatory, c)
	case capability.DriftDetector:
		ok = swap(&r.drift, c)
	case capability.DeploymentOptimizer:
		ok = swap(&r.optimizer, c)
	case capability.MarketSignalPredictor:
		ok = swap(&r.market, c)
	case capability.TaxonomyClassifier:
		ok = swap(&r.taxonomy, c)
	}
	if !ok {
		return false, apperrors.ErrInvalidInput.Explain("unexpected capability type %T for %s", c, kind)
	}

	metrics.SetLiveVersion(string(kind), live.Version(), c.Version())
	r.logger.Info("Model published", zap.String("model", string(kind)), zap.String("version", c.Version()))
	return true, nil
}

func swap[T any](p *atomic.Pointer[T], c capability.Capability) bool {
	typed, ok := any(c).(*T)
	if !ok {
		return false
	}
	p.Store(typed)
	return true
}

// Reload publishes name@version from the artifact store.
func (r *Runtime) Reload(ctx context.Context, kind capability.Kind, version string) error {
	c, ok := r.store.LoadModel(ctx, string(kind), version)
	if !ok {
		return apperrors.ErrArtifactNotFound.Explain("no loadable artifact for %s@%s", kind, version)
	}
	_, err := r.Publish(ctx, kind, c)
	return err
}

// HandleCommit reacts to a version committed to the artifact store.
func (r *Runtime) HandleCommit(name, version string) {
	kind, ok := capability.ParseKind(name)
	if !ok || !kind.Trainable() {
		return
	}
	if err := r.Reload(context.Background(), kind, version); err != nil {
		r.logger.Warn("Failed to reload committed artifact",
			zap.String("model", name), zap.String("version", version), zap.Error(err))
	}
}

// live returns the current capability of kind.
func (r *Runtime) live(kind capability.Kind) capability.Capability {
	switch kind {
	case capability.ComplianceGap:
		return r.compliance.Load()
	case capability.RegulatoryPredictor:
		return r.regulatory.Load()
	case capability.DriftDetector:
		return r.drift.Load()
	case capability.DeploymentOptimizer:
		return r.optimizer.Load()
	case capability.MarketSignalPredictor:
		return r.market.Load()
	case capability.TaxonomyClassifier:
		return r.taxonomy.Load()
	}
	return nil
}

// PredictComplianceGaps returns gap recommendations for records.
func (r *Runtime) PredictComplianceGaps(ctx context.Context, records []models.Record) Prediction[[]capability.Recommendation] {
	c := r.compliance.Load()
	if len(records) == 0 {
		return Prediction[[]capability.Recommendation]{Result: []capability.Recommendation{}, ModelVersion: c.Version()}
	}
	return dispatch[[]models.Record, []capability.Recommendation](ctx, r, c, records)
}

// PredictRegulatoryChanges returns one change prediction per record.
func (r *Runtime) PredictRegulatoryChanges(ctx context.Context, records []models.Record) Prediction[[]capability.RegulatoryChange] {
	c := r.regulatory.Load()
	if len(records) == 0 {
		return Prediction[[]capability.RegulatoryChange]{Result: []capability.RegulatoryChange{}, ModelVersion: c.Version()}
	}
	return dispatch[[]models.Record, []capability.RegulatoryChange](ctx, r, c, records)
}

// AnalyzeDrift scores one agent's metrics for drift.
func (r *Runtime) AnalyzeDrift(ctx context.Context, in capability.DriftInput) Prediction[capability.DriftResult] {
	return dispatch[capability.DriftInput, capability.DriftResult](ctx, r, r.drift.Load(), in)
}

// OptimizeDeployment searches for a deployment configuration within c.
func (r *Runtime) OptimizeDeployment(ctx context.Context, c optimizer.Constraints) Prediction[*optimizer.Result] {
	return dispatch[optimizer.Constraints, *optimizer.Result](ctx, r, r.optimizer.Load(), c)
}

// PredictMarketSignals forecasts the next periods of a market series.
func (r *Runtime) PredictMarketSignals(ctx context.Context, in capability.MarketInput) Prediction[capability.MarketResult] {
	return dispatch[capability.MarketInput, capability.MarketResult](ctx, r, r.market.Load(), in)
}

// ClassifyRegulations groups regs into taxonomy clusters.
func (r *Runtime) ClassifyRegulations(ctx context.Context, regs []capability.Regulation) Prediction[capability.TaxonomyResult] {
	return dispatch[[]capability.Regulation, capability.TaxonomyResult](ctx, r, r.taxonomy.Load(), regs)
}
