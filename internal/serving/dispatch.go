package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/modelserver/internal/capability"
	"github.com/Aidin1998/modelserver/pkg/metrics"
)

// Prediction wraps a result with the version that produced it.
type Prediction[O any] struct {
	Result       O
	ModelVersion string
	ElapsedMs    float64
	Path         string
}

// dispatch answers one request with p. A loaded capability serves the
// trained path; any error (or panic) there degrades this request to the
// fallback. Unloaded capabilities go straight to the fallback. Trained
// results are cached per version.
func dispatch[I, O any](ctx context.Context, r *Runtime, p capability.Predictor[I, O], in I) Prediction[O] {
	start := time.Now()
	kind := p.Kind()
	version := p.Version()

	var (
		out  O
		path = metrics.PathFallback
	)
	if p.IsLoaded() {
		key, hit := r.cached(ctx, kind, version, in, &out)
		if hit {
			path = metrics.PathTrained
		} else {
			res, err := predictSafely(ctx, p, in)
			if err == nil {
				out, path = res, metrics.PathTrained
				r.storeResult(ctx, key, out)
			} else {
				r.logger.Warn("Trained prediction failed, serving fallback",
					zap.String("model", string(kind)), zap.String("version", version), zap.Error(err))
				path = metrics.PathDegraded
			}
		}
	}
	if path != metrics.PathTrained {
		out = p.Fallback(in)
	}

	elapsed := time.Since(start)
	metrics.PredictionsTotal.WithLabelValues(string(kind), path).Inc()
	metrics.PredictionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())

	return Prediction[O]{
		Result:       out,
		ModelVersion: version,
		ElapsedMs:    math.Round(float64(elapsed.Microseconds())/10) / 100,
		Path:         path,
	}
}

func predictSafely[I, O any](ctx context.Context, p capability.Predictor[I, O], in I) (out O, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Predict(ctx, in)
}

// cached looks up a trained result. It returns the key to store under
// on a miss; an empty key disables storing.
func (r *Runtime) cached(ctx context.Context, kind capability.Kind, version string, in any, out any) (string, bool) {
	if _, nop := r.cache.(NopCache); nop {
		return "", false
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", false
	}
	key := cacheKey(kind, version, raw)

	val, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.PredictionCache.WithLabelValues("error").Inc()
		r.logger.Debug("Prediction cache unavailable", zap.Error(err))
		return "", false
	case !ok:
		metrics.PredictionCache.WithLabelValues("miss").Inc()
		return key, false
	}
	if err := json.Unmarshal(val, out); err != nil {
		metrics.PredictionCache.WithLabelValues("error").Inc()
		return key, false
	}
	metrics.PredictionCache.WithLabelValues("hit").Inc()
	return key, true
}

func (r *Runtime) storeResult(ctx context.Context, key string, out any) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw); err != nil {
		r.logger.Debug("Failed to cache prediction", zap.Error(err))
	}
}
