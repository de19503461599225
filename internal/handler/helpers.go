package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/refresh"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, analytics.ErrInvalidRange), errors.Is(err, analytics.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, analytics.ErrUnknownRelation):
		return http.StatusNotFound
	case errors.Is(err, analytics.ErrSnapshotNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, refresh.ErrRefreshInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError hides internal failures behind fallback and passes client errors through.
func respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		respondWithError(w, code, fallback)
		return
	}
	respondWithError(w, code, err.Error())
}

// newValidator reports fields by their query parameter name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("query"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// validateRequest writes a 400 and returns false when req is invalid.
func validateRequest(w http.ResponseWriter, v *validator.Validate, req any) bool {
	err := v.Struct(req)
	if err == nil {
		return true
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return false
	}

	log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
	return false
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "datetime":
			details[fe.Field()] = fmt.Sprintf("must match layout %s", fe.Param())
		case "number":
			details[fe.Field()] = "must be a number"
		default:
			details[fe.Field()] = fmt.Sprintf("failed on %s", fe.Tag())
		}
	}
	return details
}
