package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Aidin1998/modelserver/api/responses"
	"github.com/Aidin1998/modelserver/internal/artifacts"
	"github.com/Aidin1998/modelserver/internal/training"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 1000
)

type reloadResponse struct {
	ModelName string `json:"model_name"`
	Version   string `json:"version"`
	IsLoaded  bool   `json:"is_loaded"`
}

func (s *Server) trainModel(c *gin.Context) {
	name := c.Param("model")
	res, err := s.runtime.Train(c.Request.Context(), name)
	if err != nil {
		s.logger.Warn("Training request failed", zap.String("model", name), zap.Error(err))
		responses.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) retrainAll(c *gin.Context) {
	c.JSON(http.StatusOK, s.runtime.RetrainAll(c.Request.Context()))
}

func (s *Server) listModels(c *gin.Context) {
	list, err := s.runtime.ListModels()
	if err != nil {
		responses.FromError(c, err)
		return
	}
	if list == nil {
		list = []artifacts.ModelSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"models": list})
}

func (s *Server) getModelMetrics(c *gin.Context) {
	m, err := s.runtime.GetMetrics(c.Param("name"))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) reloadModel(c *gin.Context) {
	kind, status, err := s.runtime.ReloadModel(c.Request.Context(), c.Param("name"), c.Query("version"))
	if err != nil {
		responses.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, reloadResponse{ModelName: string(kind), Version: status.Version, IsLoaded: status.IsLoaded})
}

func (s *Server) listTrainingRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			responses.BadRequest(c, "limit must be an integer between 1 and "+strconv.Itoa(maxRunsLimit))
			return
		}
		limit = n
	}

	model := ""
	if name := c.Query("model"); name != "" {
		kind, _, err := s.runtime.Status(name)
		if err != nil {
			responses.FromError(c, err)
			return
		}
		model = string(kind)
	}

	runs, err := s.journal.List(c.Request.Context(), model, limit)
	if err != nil {
		s.logger.Error("Failed to list training runs", zap.Error(err))
		responses.InternalError(c, "failed to read the training journal")
		return
	}
	if runs == nil {
		runs = []training.TrainingRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
