package errors

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs
const (
	TypeValidationError = "https://api.modelserver.io/problems/validation-error"
	TypeNotFound        = "https://api.modelserver.io/problems/not-found"
	TypeUnknownModel    = "https://api.modelserver.io/problems/unknown-model"
	TypeNotTrainable    = "https://api.modelserver.io/problems/not-trainable"
	TypeTrainingFailed  = "https://api.modelserver.io/problems/training-failed"
	TypeConflict        = "https://api.modelserver.io/problems/conflict"
	TypeUnavailable     = "https://api.modelserver.io/problems/service-unavailable"
	TypeInternalError   = "https://api.modelserver.io/problems/internal-error"
)

// Problem titles
const (
	TitleValidationError = "Validation Error"
	TitleNotFound        = "Not Found"
	TitleUnknownModel    = "Unknown Model"
	TitleNotTrainable    = "Model Not Trainable"
	TitleTrainingFailed  = "Training Failed"
	TitleConflict        = "Conflict"
	TitleUnavailable     = "Service Unavailable"
	TitleInternalError   = "Internal Server Error"
)

// KindSuggestion marks a field carrying a "did you mean" hint. It is
// rendered as a top level "suggestion" member.
const KindSuggestion = "suggestion"

// ValidationError represents a validation error for RFC 7807
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Errors   []ValidationError      `json:"errors,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithValidationErrors adds validation errors to the problem details
func (p *ProblemDetails) WithValidationErrors(errors []ValidationError) *ProblemDetails {
	p.Errors = errors
	return p
}

// WithExtra adds extra fields to the problem details (they will be serialized at the top level)
func (p *ProblemDetails) WithExtra(key string, value interface{}) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]interface{})
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON includes extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{}, 7+len(p.Extra))
	for k, v := range p.Extra {
		result[k] = v
	}
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if p.TraceID != "" {
		result["trace_id"] = p.TraceID
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}
	return json.Marshal(result)
}

// NewProblemDetails creates a generic problem details with all fields
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// NewValidationError creates a validation error problem
func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

// NewNotFoundError creates a not found error problem
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

// NewInternalError creates an internal server error problem
func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// FromError converts any error into problem details. Typed errors keep
// their status and get a specific problem type; anything else is an
// internal error.
func FromError(err error, instance string) *ProblemDetails {
	var e *Error
	if !As(err, &e) {
		return NewInternalError(err.Error(), instance)
	}

	detail := e.Message
	if detail == "" {
		detail = err.Error()
	}

	var p *ProblemDetails
	switch {
	case Is(e, ErrUnknownModel):
		p = NewProblemDetails(TypeUnknownModel, TitleUnknownModel, e.StatusCode(), detail, instance)
	case Is(e, ErrNotTrainable):
		p = NewProblemDetails(TypeNotTrainable, TitleNotTrainable, e.StatusCode(), detail, instance)
	case Is(e, ErrTrainingFailed):
		p = NewProblemDetails(TypeTrainingFailed, TitleTrainingFailed, e.StatusCode(), detail, instance)
	default:
		switch e.StatusCode() {
		case http.StatusBadRequest:
			p = NewValidationError(detail, instance)
		case http.StatusNotFound:
			p = NewNotFoundError(detail, instance)
		case http.StatusConflict:
			p = NewProblemDetails(TypeConflict, TitleConflict, http.StatusConflict, detail, instance)
		case http.StatusServiceUnavailable:
			p = NewProblemDetails(TypeUnavailable, TitleUnavailable, http.StatusServiceUnavailable, detail, instance)
		default:
			p = NewProblemDetails(TypeInternalError, TitleInternalError, e.StatusCode(), detail, instance)
		}
	}

	for _, f := range e.Fields {
		if f.Kind == KindSuggestion {
			p.WithExtra("suggestion", f.Message)
			continue
		}
		p.Errors = append(p.Errors, ValidationError{Field: f.Field, Message: f.Message, Code: f.Kind})
	}
	return p
}
