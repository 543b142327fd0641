package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/denusbtw/projecthub-sub000/membership"
	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/store"
	"go.uber.org/zap"
)

// envelope is a standard JSON response wrapper.
type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Field string `json:"field,omitempty"`
}

// paginatedEnvelope wraps a list response with pagination metadata.
type paginatedEnvelope struct {
	Data     any `json:"data"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: message})
}

// WriteValidationError writes a 400 response naming the offending field.
func WriteValidationError(w http.ResponseWriter, field, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(envelope{Error: message, Field: field})
}

// WritePaginated writes a paginated JSON response.
func WritePaginated(w http.ResponseWriter, items any, page, pageSize int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(paginatedEnvelope{
		Data:     items,
		Page:     page,
		PageSize: pageSize,
	})
}

// writeServiceError maps authorization, validation and store errors to
// responses. Unclassified errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var ve *membership.ValidationError
	var ce *membership.ConflictError
	switch {
	case errors.Is(err, policy.ErrAuthenticationRequired):
		WriteError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, policy.ErrNotFound), errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, policy.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden")
	case errors.As(err, &ve):
		WriteValidationError(w, ve.Field, ve.Message)
	case errors.Is(err, store.ErrInvalidDateRange):
		WriteValidationError(w, "end_date", err.Error())
	case errors.As(err, &ce):
		WriteError(w, http.StatusConflict, ce.Error())
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		WriteError(w, http.StatusConflict, "conflict")
	default:
		logger.Error("request failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 50
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}
	return
}

func pagination(page, pageSize int) store.Pagination {
	return store.Pagination{Offset: (page - 1) * pageSize, Limit: pageSize}
}
