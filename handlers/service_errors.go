package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/utils"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case services.IsAllBackendsFailedError(err), services.IsBackendError(err):
		// Backend failures are mapped to 502 Bad Gateway
		if err := utils.WriteBadGateway(w, err.Error(), attemptDetails(err)); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, err.Error()); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsConfigurationError(err):
		logger.Error("routing configuration error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, err.Error()); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	case errors.Is(err, context.Canceled):
		// The client is gone; nothing can be delivered
		logger.Debug("request cancelled by client", zap.Error(err))

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// attemptDetails lists the failed attempts of an exhausted fallback chain
func attemptDetails(err error) map[string]interface{} {
	var exhausted *services.AllBackendsFailedError
	if !errors.As(err, &exhausted) {
		return nil
	}
	attempts := make([]map[string]interface{}, 0, len(exhausted.Attempts))
	for _, a := range exhausted.Attempts {
		attempts = append(attempts, map[string]interface{}{
			"model":       a.Model,
			"outcome":     a.Outcome,
			"error":       a.ErrorMessage(),
			"duration_ms": a.Duration.Milliseconds(),
		})
	}
	return map[string]interface{}{"attempts": attempts}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
