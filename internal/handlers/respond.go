package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/surajweb2603/ai-course-sub000/internal/middleware"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/repository"
	"github.com/surajweb2603/ai-course-sub000/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(r),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	resp := errorResp(code, message, r)
	resp.Error.Fields = fields
	return resp
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	var gerr *services.GenerationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{verr.Field: verr.Reason}, r))
	case errors.As(err, &gerr):
		writeJSON(w, http.StatusBadGateway, errorResp("GENERATION_FAILED", gerr.Error(), r))
	case errors.Is(err, services.ErrProviderUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("PROVIDER_UNAVAILABLE", "No content provider is configured", r))
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Resource not found", r))
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResp("TIMEOUT", "The request timed out", r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
