package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/modelserver/api"
	"github.com/Aidin1998/modelserver/internal/artifacts"
	"github.com/Aidin1998/modelserver/internal/etl"
	"github.com/Aidin1998/modelserver/internal/serving"
	"github.com/Aidin1998/modelserver/internal/training"
)

// helper to set up router
func setupRouter(t *testing.T, maxItems int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	store, err := artifacts.NewStore(t.TempDir(), logger)
	require.NoError(t, err)
	journal, err := training.NewBadgerJournal("")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	runtime := serving.NewRuntime(store, logger)
	orch := training.NewOrchestrator(store, logger,
		training.WithPipelines(training.DefaultPipelines(etl.NopExtractor{})...),
		training.WithJournal(journal),
		training.WithSwapper(runtime))
	runtime.SetTrainer(orch)

	srv := api.NewServer(logger, runtime, journal, api.Options{MaxItems: maxItems, CORSOrigins: []string{"*"}})
	return srv.Router()
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if strings.Contains(w.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestHealthCheck(t *testing.T) {
	router := setupRouter(t, 3200)
	w, resp := do(t, router, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "1.0.0", resp["version"])
	models := resp["models"].(map[string]any)
	assert.Len(t, models, 6)
	gap := models["compliance_gap"].(map[string]any)
	assert.Equal(t, false, gap["is_loaded"])
	assert.Equal(t, "1.0.0", gap["version"])
	assert.Equal(t, true, models["deployment_optimizer"].(map[string]any)["is_loaded"])
}

func TestPredictComplianceGaps(t *testing.T) {
	router := setupRouter(t, 2)

	t.Run("fallback", func(t *testing.T) {
		w, resp := do(t, router, http.MethodPost, "/predict/compliance-gaps",
			`{"organization_id":"org-1","compliance_data":[{"compliance_rate":0.2,"status":"non_compliant","category":"privacy"}]}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1.0.0", resp["model_version"])
		recs := resp["recommendations"].([]any)
		require.NotEmpty(t, recs)
		for _, r := range recs {
			assert.Contains(t, []string{"high", "critical"}, r.(map[string]any)["severity"])
		}
	})

	t.Run("empty data", func(t *testing.T) {
		w, resp := do(t, router, http.MethodPost, "/predict/compliance-gaps", `{"organization_id":"org-1","compliance_data":[]}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []any{}, resp["recommendations"])
		assert.Equal(t, float64(0), resp["inference_time_ms"])
	})

	t.Run("batch limit", func(t *testing.T) {
		w, resp := do(t, router, http.MethodPost, "/predict/compliance-gaps", `{"compliance_data":[{},{},{}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		assert.Contains(t, resp["detail"], "exceeds the limit of 2")
	})

	t.Run("malformed body", func(t *testing.T) {
		w, resp := do(t, router, http.MethodPost, "/predict/compliance-gaps", `{"compliance_data":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, float64(http.StatusBadRequest), resp["status"])
	})
}

func TestPredictRegulatoryChanges(t *testing.T) {
	router := setupRouter(t, 3200)

	w, resp := do(t, router, http.MethodPost, "/predict/regulatory-changes", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp["detail"], "regulation_ids")

	w, resp = do(t, router, http.MethodPost, "/predict/regulatory-changes",
		`{"regulation_ids":["gdpr-1","sox-2"],"regulations":[{"regulation_id":"r-9","change_frequency":9,"severity":5}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	preds := resp["predictions"].([]any)
	require.Len(t, preds, 3)
	assert.Equal(t, "r-9", preds[0].(map[string]any)["regulation_id"])
	assert.Equal(t, "gdpr-1", preds[1].(map[string]any)["regulation_id"])
}

func TestPredictNonFiniteInputsUseDefaults(t *testing.T) {
	router := setupRouter(t, 3200)

	w, resp := do(t, router, http.MethodPost, "/predict/compliance-gaps",
		`{"compliance_data":[{"compliance_rate":"-Infinity","status":"non_compliant"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp, w.Body.String())
	for _, r := range resp["recommendations"].([]any) {
		confidence := r.(map[string]any)["confidence"].(float64)
		assert.GreaterOrEqual(t, confidence, 0.0)
		assert.LessOrEqual(t, confidence, 1.0)
	}

	w, resp = do(t, router, http.MethodPost, "/predict/regulatory-changes",
		`{"regulations":[{"regulation_id":"r1","change_frequency":"NaN","severity":2}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp, w.Body.String())
	preds := resp["predictions"].([]any)
	require.Len(t, preds, 1)
	likelihood := preds[0].(map[string]any)["likelihood"].(float64)
	assert.GreaterOrEqual(t, likelihood, 0.0)
	assert.LessOrEqual(t, likelihood, 1.0)
}

func TestAnalyzeDrift(t *testing.T) {
	router := setupRouter(t, 3200)

	w, resp := do(t, router, http.MethodPost, "/predict/drift-analysis", `{"metrics":{}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errs := resp["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "agent_id", errs[0].(map[string]any)["field"])
	assert.Equal(t, "required", errs[0].(map[string]any)["code"])

	w, resp = do(t, router, http.MethodPost, "/predict/drift-analysis",
		`{"agent_id":"agent-7","metrics":{"compliance_score":0.2,"response_time":900,"error_rate":0.3,"throughput":5,"latency_p99":2500}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "agent-7", resp["agent_id"])
	assert.Equal(t, true, resp["is_drifting"])
	assert.NotEmpty(t, resp["deviating_metrics"])
	assert.Contains(t, resp, "model_version")
	assert.Contains(t, resp, "inference_time_ms")
}

func TestOptimizeDeployment(t *testing.T) {
	router := setupRouter(t, 3200)

	w, resp := do(t, router, http.MethodPost, "/predict/optimize-deployment", `{"constraints":{"max_cpu":-1}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errs := resp["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "constraints.max_cpu", errs[0].(map[string]any)["field"])

	w, resp = do(t, router, http.MethodPost, "/predict/optimize-deployment",
		`{"constraints":{"max_cpu":4,"max_memory":4096,"target_latency":200,"agent_count":2}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(100), resp["generations"])
	assert.Contains(t, resp, "recommended_config")
	assert.Contains(t, resp, "fitness_score")
	assert.Len(t, resp["alternatives"], 3)
	assert.NotContains(t, resp, "BestHistory")
}

func TestPredictMarketSignals(t *testing.T) {
	router := setupRouter(t, 3200)

	w, _ := do(t, router, http.MethodPost, "/predict/market-signals", `{"history":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := do(t, router, http.MethodPost, "/predict/market-signals",
		`{"industry":"fintech","history":[{"period":"2025-Q1","activity_count":4},{"period":"2025-Q2","activity_count":6}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fintech", resp["industry"])
	assert.Len(t, resp["predictions"], 4)
	assert.Contains(t, resp, "model_type")
}

func TestClassifyRegulations(t *testing.T) {
	router := setupRouter(t, 3200)

	w, resp := do(t, router, http.MethodPost, "/predict/classify-regulations",
		`{"regulations":[{"id":"1","title":"GDPR consent rules"},{"id":"2","title":"Anti-money laundering checks for banking"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp["clusters"])
	assert.Equal(t, float64(len(resp["clusters"].([]any))), resp["total_clusters"])
	assert.Contains(t, []any{"hierarchical_clustering", "keyword_fallback"}, resp["method"])

	w, _ = do(t, router, http.MethodPost, "/predict/classify-regulations", `{"regulations":[{"title":"no id"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrainingLifecycle(t *testing.T) {
	router := setupRouter(t, 3200)

	w, resp := do(t, router, http.MethodPost, "/train/compliance-gaps", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "compliance-gap", resp["suggestion"])

	w, _ = do(t, router, http.MethodPost, "/train/taxonomy-classifier", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, router, http.MethodPost, "/train/compliance-gap", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "compliance-gap", resp["model_name"])
	assert.Equal(t, "1.0.0", resp["version"])
	assert.NotEmpty(t, resp["run_id"])
	assert.Contains(t, resp["metrics"], "accuracy")

	w, resp = do(t, router, http.MethodGet, "/models/compliance_gap/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["is_loaded"])
	assert.Equal(t, "1.0.0", resp["version"])

	w, resp = do(t, router, http.MethodGet, "/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["models"], 1)
	assert.Equal(t, "1.0.0", resp["models"].([]any)[0].(map[string]any)["latest_version"])

	w, resp = do(t, router, http.MethodGet, "/training/runs?model=compliance-gap", "")
	require.Equal(t, http.StatusOK, w.Code)
	runs := resp["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, "success", runs[0].(map[string]any)["status"])

	w, _ = do(t, router, http.MethodGet, "/training/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, router, http.MethodPost, "/models/compliance-gap/reload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "compliance-gap", resp["model_name"])

	w, _ = do(t, router, http.MethodPost, "/models/compliance-gap/reload?version=4.0.0", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = do(t, router, http.MethodGet, "/models/sentiment/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, resp, "suggestion")
}

func TestRetrainAll(t *testing.T) {
	router := setupRouter(t, 3200)

	w, resp := do(t, router, http.MethodPost, "/retrain/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), resp["total_models"])
	assert.Equal(t, float64(3), resp["succeeded"])
	assert.Equal(t, float64(0), resp["failed"])

	_, health := do(t, router, http.MethodGet, "/health", "")
	models := health["models"].(map[string]any)
	for _, key := range []string{"compliance_gap", "regulatory_predictor", "drift_detector"} {
		assert.Equal(t, true, models[key].(map[string]any)["is_loaded"], key)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupRouter(t, 3200)
	do(t, router, http.MethodPost, "/predict/drift-analysis", `{"agent_id":"a","metrics":{}}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "modelserver_predictions_total")
}
