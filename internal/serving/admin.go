package serving

import (
	"context"
	"fmt"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/Aidin1998/modelserver/internal/artifacts"
	"github.com/Aidin1998/modelserver/internal/capability"
	"github.com/Aidin1998/modelserver/internal/training"
	apperrors "github.com/Aidin1998/modelserver/pkg/errors"
)

// ServiceVersion is reported by Health.
const ServiceVersion = "1.0.0"

// ModelStatus is the live state of one kind.
type ModelStatus struct {
	IsLoaded bool   `json:"is_loaded"`
	Version  string `json:"version"`
}

// Health summarises the service and every live capability.
type Health struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Models  map[string]ModelStatus `json:"models"`
}

// ModelMetrics are the recorded metrics of the live capability of a kind.
type ModelMetrics struct {
	ModelName string             `json:"model_name"`
	Version   string             `json:"version"`
	IsLoaded  bool               `json:"is_loaded"`
	Metrics   map[string]float64 `json:"metrics"`
}

// RetrainResult is the outcome of one kind in RetrainAll.
type RetrainResult struct {
	ModelName string             `json:"model_name"`
	Status    string             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// RetrainSummary collects the outcome of every trainable kind.
type RetrainSummary struct {
	Results     []RetrainResult `json:"results"`
	TotalModels int             `json:"total_models"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
}

// Health reports the live version and load state of every capability.
func (r *Runtime) Health() Health {
	h := Health{Status: "healthy", Version: ServiceVersion, Models: map[string]ModelStatus{}}
	for _, kind := range capability.Kinds {
		c := r.live(kind)
		h.Models[kind.Key()] = ModelStatus{IsLoaded: c.IsLoaded(), Version: c.Version()}
	}
	return h
}

// ListModels lists the artifacts on disk.
func (r *Runtime) ListModels() ([]artifacts.ModelSummary, error) {
	return r.store.ListModels()
}

// GetMetrics reports the live capability named name.
func (r *Runtime) GetMetrics(name string) (*ModelMetrics, error) {
	kind, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	c := r.live(kind)
	return &ModelMetrics{
		ModelName: string(kind),
		Version:   c.Version(),
		IsLoaded:  c.IsLoaded(),
		Metrics:   c.Metrics(),
	}, nil
}

// Status reports the live state of the capability named name.
func (r *Runtime) Status(name string) (capability.Kind, ModelStatus, error) {
	kind, err := r.resolve(name)
	if err != nil {
		return "", ModelStatus{}, err
	}
	c := r.live(kind)
	return kind, ModelStatus{IsLoaded: c.IsLoaded(), Version: c.Version()}, nil
}

// ReloadModel publishes an explicit version (or the latest) of name.
func (r *Runtime) ReloadModel(ctx context.Context, name, version string) (capability.Kind, ModelStatus, error) {
	kind, err := r.resolve(name)
	if err != nil {
		return "", ModelStatus{}, err
	}
	if version == "" {
		version = artifacts.Latest
	}
	if err := r.Reload(ctx, kind, version); err != nil {
		return kind, ModelStatus{}, err
	}
	return r.Status(name)
}

// Train trains the kind named name and makes the new version live.
func (r *Runtime) Train(ctx context.Context, name string) (*training.Result, error) {
	kind, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	if !kind.Trainable() {
		return nil, apperrors.ErrNotTrainable.Explain("%s does not support training", kind)
	}
	if r.trainer == nil {
		return nil, apperrors.Unavailable.Explain("training is not configured")
	}
	return r.trainer.Train(ctx, kind)
}

// RetrainAll trains every trainable kind in turn. A failing kind is
// reported in its result and never stops the others.
func (r *Runtime) RetrainAll(ctx context.Context) RetrainSummary {
	summary := RetrainSummary{Results: []RetrainResult{}, TotalModels: len(capability.TrainableKinds)}
	for _, kind := range capability.TrainableKinds {
		res := r.retrainOne(ctx, kind)
		if res.Status == training.StatusSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)
	}
	return summary
}

func (r *Runtime) retrainOne(ctx context.Context, kind capability.Kind) (out RetrainResult) {
	out = RetrainResult{ModelName: string(kind), Status: training.StatusFailed}
	defer func() {
		if rec := recover(); rec != nil {
			out.Status = training.StatusFailed
			out.Error = fmt.Sprintf("panic: %v", rec)
			r.logger.Error("Retraining panicked", zap.String("model", string(kind)), zap.Any("panic", rec))
		}
	}()

	res, err := r.Train(ctx, string(kind))
	if err != nil {
		out.Error = err.Error()
		r.logger.Error("Retraining failed", zap.String("model", string(kind)), zap.Error(err))
		return out
	}
	out.Status = training.StatusSuccess
	out.Version = res.Version
	out.Metrics = res.Metrics
	return out
}

func (r *Runtime) resolve(name string) (capability.Kind, error) {
	kind, ok := capability.ParseKind(name)
	if ok {
		return kind, nil
	}
	err := apperrors.ErrUnknownModel.Explain("model %q not found", name)
	if s := Suggest(name); s != "" {
		err = err.WithField(apperrors.KindSuggestion, "model", s)
	}
	return "", err
}

// Suggest returns the known model name closest to name, or "" when
// nothing is within three edits.
func Suggest(name string) string {
	best, bestDist := "", 4
	for _, kind := range capability.Kinds {
		if d := levenshtein.ComputeDistance(name, string(kind)); d < bestDist {
			best, bestDist = string(kind), d
		}
	}
	return best
}
