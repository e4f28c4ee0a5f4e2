package httpapi

import (
	"errors"
	"net/http"

	"photobox/internal/boothtoken"
	"photobox/internal/docpath"
	"photobox/internal/identity"
	"photobox/internal/logging"
	"photobox/internal/recaptcha"
	"photobox/internal/resource"
	"photobox/internal/revenue"
	"photobox/internal/storage"
	"photobox/internal/store"
	"photobox/internal/validation"
	"photobox/internal/xendit"

	"github.com/goccy/go-json"
)

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const maxJSONBody = 1 << 20

func decodeRequest(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

// decodeFields reads a free-form JSON object for the resource routes.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var fields map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return nil, false
	}
	return fields, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

// writeServiceError classifies err and writes the matching envelope.
// Unclassified errors are logged and reported as internal_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: responseError{
			Code:    "validation_error",
			Message: verr.Error(),
			Fields:  verr.Fields,
		}})
		return
	}
	var xerr *xendit.ExternalServiceError
	if errors.As(err, &xerr) {
		logging.Warn().Err(err).Str("path", r.URL.Path).Msg("payment gateway call failed")
		writeError(w, http.StatusBadGateway, "external_service_error", "payment gateway request failed")
		return
	}
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logging.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, code, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, boothtoken.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid-argument"
	case errors.Is(err, boothtoken.ErrBoothNotFound):
		return http.StatusNotFound, "not-found"
	case errors.Is(err, docpath.ErrAuthenticationRequired),
		errors.Is(err, identity.ErrSessionNotFound),
		errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, boothtoken.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, recaptcha.ErrMissingToken), errors.Is(err, recaptcha.ErrRejected):
		return http.StatusForbidden, "recaptcha_failed"
	case errors.Is(err, recaptcha.ErrUnavailable):
		return http.StatusBadGateway, "external_service_error"
	case errors.Is(err, recaptcha.ErrSecretMissing), errors.Is(err, revenue.ErrConfigurationMissing):
		return http.StatusPreconditionFailed, "configuration_missing"
	case errors.Is(err, resource.ErrInvalidSlot),
		errors.Is(err, resource.ErrNoBoothSelected),
		errors.Is(err, resource.ErrMissingID),
		errors.Is(err, storage.ErrUnsupportedImage),
		errors.Is(err, storage.ErrInvalidKey),
		errors.Is(err, store.ErrInvalidField):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, docpath.ErrInvalidPath):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrConflict), errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
