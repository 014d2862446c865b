// Package training runs the extract, bootstrap, transform, train,
// version and persist pipeline of the trainable capabilities.
package training

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Aidin1998/modelserver/internal/artifacts"
	"github.com/Aidin1998/modelserver/internal/capability"
	apperrors "github.com/Aidin1998/modelserver/pkg/errors"
	"github.com/Aidin1998/modelserver/pkg/metrics"
	"github.com/Aidin1998/modelserver/pkg/models"
)

var tracer = otel.Tracer("training")

// Result describes a completed training run.
type Result struct {
	ModelName           string             `json:"model_name"`
	Version             string             `json:"version"`
	Metrics             map[string]float64 `json:"metrics"`
	ArtifactPath        string             `json:"artifact_path"`
	TrainingTimeSeconds float64            `json:"training_time_seconds"`
	RunID               string             `json:"run_id"`
}

// Swapper makes a freshly persisted version live.
type Swapper interface {
	Reload(ctx context.Context, kind capability.Kind, version string) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records every run in j.
func WithJournal(j Journal) Option { return func(o *Orchestrator) { o.journal = j } }

// WithPublisher announces each persisted version through p.
func WithPublisher(p Publisher) Option { return func(o *Orchestrator) { o.publisher = p } }

// WithSwapper makes each persisted version live through s.
func WithSwapper(s Swapper) Option { return func(o *Orchestrator) { o.swapper = s } }

// WithPipelines registers ps, replacing any pipeline of the same kind.
func WithPipelines(ps ...Pipeline) Option {
	return func(o *Orchestrator) {
		for _, p := range ps {
			o.pipelines[p.Kind] = p
		}
	}
}

// Orchestrator trains capabilities. Concurrent requests for the same
// kind share one run; different kinds train in parallel.
type Orchestrator struct {
	store     *artifacts.Store
	logger    *zap.Logger
	pipelines map[capability.Kind]Pipeline
	journal   Journal
	publisher Publisher
	swapper   Swapper
	group     singleflight.Group
	now       func() time.Time
}

// NewOrchestrator returns an Orchestrator persisting to store. Without
// options it has no pipelines and discards journal entries and events.
func NewOrchestrator(store *artifacts.Store, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		logger:    logger.Named("training"),
		pipelines: map[capability.Kind]Pipeline{},
		journal:   NopJournal{},
		publisher: NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds or replaces the pipeline of p.Kind.
func (o *Orchestrator) Register(p Pipeline) {
	o.pipelines[p.Kind] = p
}

// SetSwapper installs the component that publishes trained versions.
// It must be called before the first Train.
func (o *Orchestrator) SetSwapper(s Swapper) {
	o.swapper = s
}

// Journal returns the run journal.
func (o *Orchestrator) Journal() Journal {
	return o.journal
}

// Train runs the pipeline of kind. The run is detached from ctx
// cancellation: once started it completes and persists even if the
// caller goes away.
func (o *Orchestrator) Train(ctx context.Context, kind capability.Kind) (*Result, error) {
	p, ok := o.pipelines[kind]
	if !ok {
		return nil, apperrors.ErrNotTrainable.Explain("%s cannot be trained", kind)
	}

	runCtx := context.WithoutCancel(ctx)
	v, err, shared := o.group.Do(string(kind), func() (any, error) {
		return o.run(runCtx, p)
	})
	if shared {
		o.logger.Debug("Joined in-flight training run", zap.String("model", string(kind)))
	}
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (o *Orchestrator) run(ctx context.Context, p Pipeline) (res *Result, err error) {
	name := string(p.Kind)
	run := TrainingRun{ID: uuid.NewString(), Model: name, StartedAt: o.now().UTC()}

	ctx, span := tracer.Start(ctx, "training.run")
	span.SetAttributes(attribute.String("model", name), attribute.String("run_id", run.ID))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		run.FinishedAt = o.now().UTC()
		run.DurationSeconds = run.FinishedAt.Sub(run.StartedAt).Seconds()
		metrics.TrainingDuration.WithLabelValues(name).Observe(run.DurationSeconds)

		if err != nil {
			run.Status = StatusFailed
			run.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.Error("Training failed", zap.String("model", name), zap.String("run_id", run.ID), zap.Error(err))
			err = apperrors.ErrTrainingFailed.Explain("training %s failed: %v", name, err)
			res = nil
		} else {
			run.Status = StatusSuccess
			res.TrainingTimeSeconds = math.Round(run.DurationSeconds*100) / 100
		}
		metrics.TrainingRunsTotal.WithLabelValues(name, run.Status).Inc()

		if jerr := o.journal.Record(ctx, run); jerr != nil {
			o.logger.Warn("Failed to journal training run", zap.String("run_id", run.ID), zap.Error(jerr))
		}
		span.End()
	}()

	o.logger.Info("Starting training", zap.String("model", name), zap.String("run_id", run.ID))

	records := p.extract(ctx)
	run.DataSource = SourceDatabase
	if len(records) == 0 {
		o.logger.Warn("No training data available, generating synthetic data for bootstrap",
			zap.String("model", name), zap.Int("rows", SyntheticRows))
		records = p.Synthesize(SyntheticRows)
		run.DataSource = SourceSynthetic
	}
	run.Rows = len(records)

	X, y := p.Transform(records)
	if len(X) == 0 {
		return nil, fmt.Errorf("no feature rows produced from %d records", len(records))
	}

	c := p.New()
	scores, err := c.Train(X, y)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	version, path, err := o.persist(ctx, c, name, scores)
	if err != nil {
		return nil, err
	}
	run.Version, run.Metrics, run.ArtifactPath = version, scores, path
	span.SetAttributes(attribute.String("version", version))

	if o.swapper != nil {
		if err := o.swapper.Reload(ctx, p.Kind, version); err != nil {
			return nil, fmt.Errorf("publish %s@%s: %w", name, version, err)
		}
	}

	event := ModelPublished{
		Model:        name,
		Version:      version,
		Metrics:      scores,
		ArtifactPath: path,
		PublishedAt:  o.now().UTC(),
		RunID:        run.ID,
	}
	if perr := o.publisher.Publish(ctx, event); perr != nil {
		o.logger.Warn("Failed to publish model event", zap.String("model", name), zap.String("version", version), zap.Error(perr))
	}

	o.logger.Info("Training finished",
		zap.String("model", name),
		zap.String("version", version),
		zap.Float64("accuracy", scores["accuracy"]),
		zap.String("source", run.DataSource))

	return &Result{
		ModelName:    name,
		Version:      version,
		Metrics:      scores,
		ArtifactPath: path,
		RunID:        run.ID,
	}, nil
}

// persist saves c under the next free version. Another writer may take
// a version between the lookup and the save; the lookup is then retried.
func (o *Orchestrator) persist(ctx context.Context, c capability.Capability, name string, scores map[string]float64) (string, string, error) {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		latest, ok := o.store.GetLatestVersion(name)
		version := artifacts.NextVersion(latest, ok)

		var path string
		path, err = o.store.SaveModel(ctx, c, name, version, scores)
		if err == nil {
			return version, path, nil
		}
		if !apperrors.Is(err, apperrors.ErrVersionExists) {
			break
		}
	}
	return "", "", fmt.Errorf("persist: %w", err)
}

func (p Pipeline) extract(ctx context.Context) []models.Record {
	if p.Extract == nil {
		return nil
	}
	return p.Extract(ctx)
}
