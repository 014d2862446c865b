package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Aidin1998/modelserver/api/responses"
	"github.com/Aidin1998/modelserver/internal/capability"
	"github.com/Aidin1998/modelserver/internal/optimizer"
	apperrors "github.com/Aidin1998/modelserver/pkg/errors"
	"github.com/Aidin1998/modelserver/pkg/models"
)

type complianceGapRequest struct {
	OrganizationID string          `json:"organization_id"`
	ComplianceData []models.Record `json:"compliance_data"`
}

type regulatoryChangeRequest struct {
	RegulationIDs []string        `json:"regulation_ids" binding:"dive,required"`
	Regulations   []models.Record `json:"regulations"`
}

type driftRequest struct {
	AgentID string             `json:"agent_id" binding:"required"`
	Metrics map[string]float64 `json:"metrics"`
}

type constraintsRequest struct {
	MaxCPU        float64 `json:"max_cpu" binding:"gte=0"`
	MaxMemory     float64 `json:"max_memory" binding:"gte=0"`
	TargetLatency float64 `json:"target_latency" binding:"gte=0"`
	AgentCount    int     `json:"agent_count" binding:"gte=0,lte=10000"`
}

type optimizeRequest struct {
	Constraints constraintsRequest `json:"constraints"`
}

func (r constraintsRequest) toConstraints() optimizer.Constraints {
	return optimizer.Constraints{
		MaxCPU:        r.MaxCPU,
		MaxMemory:     r.MaxMemory,
		TargetLatency: r.TargetLatency,
		AgentCount:    r.AgentCount,
	}
}

type observationRequest struct {
	Period        string  `json:"period" binding:"required"`
	ActivityCount float64 `json:"activity_count" binding:"gte=0"`
}

type marketSignalRequest struct {
	Industry        string               `json:"industry" binding:"required"`
	History         []observationRequest `json:"history" binding:"dive"`
	ForecastPeriods int                  `json:"forecast_periods" binding:"gte=0,lte=24"`
}

func (r marketSignalRequest) toInput() capability.MarketInput {
	in := capability.MarketInput{Industry: r.Industry, ForecastPeriods: r.ForecastPeriods}
	for _, o := range r.History {
		in.History = append(in.History, capability.Observation{Period: o.Period, ActivityCount: o.ActivityCount})
	}
	return in
}

type regulationRequest struct {
	ID          string `json:"id" binding:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type classifyRequest struct {
	Regulations []regulationRequest `json:"regulations" binding:"dive"`
}

func (r classifyRequest) toRegulations() []capability.Regulation {
	out := make([]capability.Regulation, len(r.Regulations))
	for i, reg := range r.Regulations {
		out[i] = capability.Regulation(reg)
	}
	return out
}

// bindJSON decodes the body into req. Failures are answered with a 400
// problem listing the offending fields.
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperrors.ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperrors.ValidationError{
				Field:   jsonPath(fe),
				Value:   fe.Value(),
				Message: validationMessage(fe),
				Code:    fe.Tag(),
			})
		}
		responses.BadRequest(c, "request validation failed", fields...)
		return false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		responses.BadRequest(c, fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
	case errors.As(err, &typeErr):
		responses.BadRequest(c, "invalid field type", apperrors.ValidationError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("expected %s", typeErr.Type),
			Code:    "type",
		})
	default:
		responses.BadRequest(c, err.Error())
	}
	return false
}

// jsonPath strips the root type from the namespace, which is built
// from json tag names.
func jsonPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

var registerTagNames sync.Once

// useJSONFieldNames makes gin's validator report fields by their json
// names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}

// withinBatchLimit rejects requests carrying more than MaxItems records.
func (s *Server) withinBatchLimit(c *gin.Context, field string, n int) bool {
	if s.maxItems <= 0 || n <= s.maxItems {
		return true
	}
	responses.BadRequest(c, fmt.Sprintf("too many items: %d exceeds the limit of %d", n, s.maxItems),
		apperrors.ValidationError{Field: field, Value: n, Message: fmt.Sprintf("must contain at most %d items", s.maxItems), Code: "max"})
	return false
}
