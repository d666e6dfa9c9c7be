package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/utils"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "validation error",
			err:            services.ErrEmptyPrompt,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
		},
		{
			name:           "unauthorized error",
			err:            services.ErrInvalidAPIKey,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "unauthorized",
		},
		{
			name:           "configuration error",
			err:            services.NewConfigurationError("no routing entry for scenario code", nil),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
		{
			name:           "backend error",
			err:            services.NewBackendError("sonnet", services.BackendErrorTimeout, "deadline exceeded", nil),
			expectedStatus: http.StatusBadGateway,
			expectedError:  "bad_gateway",
		},
		{
			name: "all backends failed",
			err: &services.AllBackendsFailedError{Attempts: []models.ExecutionAttempt{
				{Model: "sonnet", Outcome: models.AttemptFailed, Err: errors.New("boom")},
			}},
			expectedStatus: http.StatusBadGateway,
			expectedError:  "bad_gateway",
		},
		{
			name:           "internal error",
			err:            services.NewDomainError(services.ErrorTypeInternal, "state corrupted", nil),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
		{
			name:           "unknown error",
			err:            errors.New("some unknown error"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			err := json.NewDecoder(w.Body).Decode(&response)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedError, response.Error)
			assert.NotEmpty(t, response.Message)
		})
	}
}

func TestHandleServiceErrorWithDetails(t *testing.T) {
	logger := zap.NewNop()

	err := services.NewValidationError("bad message").WithDetail("field", "messages[0].role")

	w := httptest.NewRecorder()
	HandleServiceError(w, err, logger)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response utils.ErrorResponse
	err2 := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err2)

	assert.Equal(t, "bad_request", response.Error)
	assert.Equal(t, "messages[0].role", response.Details["field"])
}

func TestHandleServiceErrorAttempts(t *testing.T) {
	logger := zap.NewNop()

	err := &services.AllBackendsFailedError{Attempts: []models.ExecutionAttempt{
		{Index: 0, Model: "sonnet", Outcome: models.AttemptFailed, Err: errors.New("timed out"), Duration: 1500 * time.Millisecond},
		{Index: 1, Model: "haiku", Outcome: models.AttemptFailed, Err: errors.New("exit status 1")},
	}}

	w := httptest.NewRecorder()
	HandleServiceError(w, err, logger)

	assert.Equal(t, http.StatusBadGateway, w.Code)

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	attempts, ok := response.Details["attempts"].([]interface{})
	require.True(t, ok)
	require.Len(t, attempts, 2)

	first := attempts[0].(map[string]interface{})
	assert.Equal(t, "sonnet", first["model"])
	assert.Equal(t, "failed", first["outcome"])
	assert.Equal(t, "timed out", first["error"])
	assert.Equal(t, float64(1500), first["duration_ms"])
}

func TestHandleServiceErrorCanceled(t *testing.T) {
	w := httptest.NewRecorder()

	HandleServiceError(w, context.Canceled, zap.NewNop())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleServiceErrorNil(t *testing.T) {
	logger := zap.NewNop()
	w := httptest.NewRecorder()

	HandleServiceError(w, nil, logger)

	// Should not write anything
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("custom validation error", func(t *testing.T) {
		fields := map[string]string{
			"email": "email is required",
			"name":  "name must be at least 3 characters",
		}
		err := &utils.ValidationError{
			Message: "Validation failed",
			Fields:  fields,
		}

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		err2 := json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err2)

		assert.Equal(t, "bad_request", response.Error)
		assert.Equal(t, "Validation failed", response.Message)
		assert.NotNil(t, response.Details)
		assert.Equal(t, "email is required", response.Details["email"])
		assert.Equal(t, "name must be at least 3 characters", response.Details["name"])
	})

	t.Run("generic error", func(t *testing.T) {
		err := errors.New("generic validation error")

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		err2 := json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err2)

		assert.Equal(t, "bad_request", response.Error)
		assert.Equal(t, "generic validation error", response.Message)
	})
}
