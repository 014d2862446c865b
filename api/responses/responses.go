// Package responses renders API errors as RFC 7807 problem details.
package responses

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Aidin1998/modelserver/pkg/errors"
)

// ContentTypeProblem is the media type of every error body.
const ContentTypeProblem = "application/problem+json"

// Error sends problemDetails and aborts the handler chain.
func Error(c *gin.Context, problemDetails *apperrors.ProblemDetails) {
	if problemDetails.TraceID == "" {
		if traceID := getTraceID(c); traceID != "" {
			problemDetails.WithTraceID(traceID)
		}
	}
	c.Header("Content-Type", ContentTypeProblem)
	c.AbortWithStatusJSON(problemDetails.Status, problemDetails)
}

// FromError sends err with the status its type carries.
func FromError(c *gin.Context, err error) {
	Error(c, apperrors.FromError(err, c.Request.URL.Path))
}

// BadRequest sends a 400 validation problem.
func BadRequest(c *gin.Context, detail string, validationErrors ...apperrors.ValidationError) {
	problemDetails := apperrors.NewValidationError(detail, c.Request.URL.Path)
	if len(validationErrors) > 0 {
		problemDetails.WithValidationErrors(validationErrors)
	}
	Error(c, problemDetails)
}

// NotFound sends a 404 problem.
func NotFound(c *gin.Context, detail string) {
	Error(c, apperrors.NewNotFoundError(detail, c.Request.URL.Path))
}

// InternalError sends a 500 problem.
func InternalError(c *gin.Context, detail string) {
	Error(c, apperrors.NewProblemDetails(apperrors.TypeInternalError, apperrors.TitleInternalError,
		http.StatusInternalServerError, detail, c.Request.URL.Path))
}

// getTraceID prefers the active span and falls back to the X-Trace-ID
// header.
func getTraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return c.GetHeader("X-Trace-ID")
}
