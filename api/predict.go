package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Aidin1998/modelserver/api/responses"
	"github.com/Aidin1998/modelserver/internal/capability"
	"github.com/Aidin1998/modelserver/internal/optimizer"
	"github.com/Aidin1998/modelserver/pkg/models"
)

type complianceGapResponse struct {
	Recommendations []capability.Recommendation `json:"recommendations"`
	ModelVersion    string                      `json:"model_version"`
	InferenceTimeMs float64                     `json:"inference_time_ms"`
}

type regulatoryChangeResponse struct {
	Predictions     []capability.RegulatoryChange `json:"predictions"`
	ModelVersion    string                        `json:"model_version"`
	InferenceTimeMs float64                       `json:"inference_time_ms"`
}

type driftResponse struct {
	capability.DriftResult
	ModelVersion    string  `json:"model_version"`
	InferenceTimeMs float64 `json:"inference_time_ms"`
}

type optimizeResponse struct {
	*optimizer.Result
	InferenceTimeMs float64 `json:"inference_time_ms"`
}

type marketSignalResponse struct {
	capability.MarketResult
	InferenceTimeMs float64 `json:"inference_time_ms"`
}

type classifyResponse struct {
	capability.TaxonomyResult
	InferenceTimeMs float64 `json:"inference_time_ms"`
}

func (s *Server) predictComplianceGaps(c *gin.Context) {
	var req complianceGapRequest
	if !bindJSON(c, &req) || !s.withinBatchLimit(c, "compliance_data", len(req.ComplianceData)) {
		return
	}

	pred := s.runtime.PredictComplianceGaps(c.Request.Context(), req.ComplianceData)
	c.JSON(http.StatusOK, complianceGapResponse{
		Recommendations: pred.Result,
		ModelVersion:    pred.ModelVersion,
		InferenceTimeMs: pred.ElapsedMs,
	})
}

func (s *Server) predictRegulatoryChanges(c *gin.Context) {
	var req regulatoryChangeRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.RegulationIDs) == 0 && len(req.Regulations) == 0 {
		responses.BadRequest(c, "one of regulation_ids or regulations is required")
		return
	}
	total := len(req.RegulationIDs) + len(req.Regulations)
	if !s.withinBatchLimit(c, "regulations", total) {
		return
	}

	records := make([]models.Record, 0, total)
	records = append(records, req.Regulations...)
	records = append(records, capability.RecordsFromIDs(req.RegulationIDs)...)

	pred := s.runtime.PredictRegulatoryChanges(c.Request.Context(), records)
	c.JSON(http.StatusOK, regulatoryChangeResponse{
		Predictions:     pred.Result,
		ModelVersion:    pred.ModelVersion,
		InferenceTimeMs: pred.ElapsedMs,
	})
}

func (s *Server) analyzeDrift(c *gin.Context) {
	var req driftRequest
	if !bindJSON(c, &req) {
		return
	}

	pred := s.runtime.AnalyzeDrift(c.Request.Context(), capability.DriftInput{AgentID: req.AgentID, Metrics: req.Metrics})
	c.JSON(http.StatusOK, driftResponse{
		DriftResult:     pred.Result,
		ModelVersion:    pred.ModelVersion,
		InferenceTimeMs: pred.ElapsedMs,
	})
}

func (s *Server) optimizeDeployment(c *gin.Context) {
	var req optimizeRequest
	if !bindJSON(c, &req) {
		return
	}

	pred := s.runtime.OptimizeDeployment(c.Request.Context(), req.Constraints.toConstraints())
	c.JSON(http.StatusOK, optimizeResponse{Result: pred.Result, InferenceTimeMs: pred.ElapsedMs})
}

func (s *Server) predictMarketSignals(c *gin.Context) {
	var req marketSignalRequest
	if !bindJSON(c, &req) {
		return
	}

	pred := s.runtime.PredictMarketSignals(c.Request.Context(), req.toInput())
	c.JSON(http.StatusOK, marketSignalResponse{MarketResult: pred.Result, InferenceTimeMs: pred.ElapsedMs})
}

func (s *Server) classifyRegulations(c *gin.Context) {
	var req classifyRequest
	if !bindJSON(c, &req) || !s.withinBatchLimit(c, "regulations", len(req.Regulations)) {
		return
	}

	pred := s.runtime.ClassifyRegulations(c.Request.Context(), req.toRegulations())
	c.JSON(http.StatusOK, classifyResponse{TaxonomyResult: pred.Result, InferenceTimeMs: pred.ElapsedMs})
}
