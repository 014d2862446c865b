package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsComparesKind(t *testing.T) {
	err := ErrUnknownModel.Explain("model %q not found", "nope")
	wrapped := fmt.Errorf("metrics: %w", err)

	assert.True(t, Is(wrapped, ErrUnknownModel))
	assert.False(t, Is(wrapped, ErrNotTrainable))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
}

func TestWrapKeepsStatusAndCause(t *testing.T) {
	err := ErrTrainingFailed.Wrap(io.ErrUnexpectedEOF)

	assert.True(t, Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode())
	// the sentinel is not mutated
	assert.Nil(t, ErrTrainingFailed.Unwrap())
}

func TestHTTPStatusDefaults(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(io.EOF))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(StatusCode(http.StatusBadGateway)))
}

func TestFromError(t *testing.T) {
	t.Run("unknown model", func(t *testing.T) {
		p := FromError(ErrUnknownModel.Explain("no such model"), "/models/x/metrics")
		assert.Equal(t, TypeUnknownModel, p.Type)
		assert.Equal(t, http.StatusNotFound, p.Status)
		assert.Equal(t, "no such model", p.Detail)
	})

	t.Run("validation fields", func(t *testing.T) {
		err := ErrInvalidInput.Explain("bad constraints").WithField("gt", "max_cpu", "must be positive")
		p := FromError(err, "/predict/optimize-deployment")
		assert.Equal(t, TypeValidationError, p.Type)
		require.Len(t, p.Errors, 1)
		assert.Equal(t, "max_cpu", p.Errors[0].Field)
	})

	t.Run("suggestion", func(t *testing.T) {
		err := ErrUnknownModel.Explain("model not found").WithField(KindSuggestion, "model", "drift-detector")
		p := FromError(err, "/train/drift")
		assert.Empty(t, p.Errors)
		assert.Equal(t, "drift-detector", p.Extra["suggestion"])
	})

	t.Run("plain error", func(t *testing.T) {
		p := FromError(io.EOF, "/")
		assert.Equal(t, http.StatusInternalServerError, p.Status)
	})
}

func TestProblemDetailsMarshalExtra(t *testing.T) {
	p := NewNotFoundError("missing", "/x").WithExtra("suggestion", "compliance-gap")
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "compliance-gap", body["suggestion"])
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
	assert.NotContains(t, body, "errors")
}
