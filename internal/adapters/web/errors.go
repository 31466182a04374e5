package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"stockroom/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeDomainError maps the typed domain errors onto HTTP statuses. Anything
// untyped is an infrastructure failure and surfaces as a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *core.ValidationError
		insufficientErr *core.InsufficientStockError
		terminalErr     *core.AlreadyTerminalError
		mismatchErr     *core.InventoryMismatchError
	)
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.As(err, &validationErr):
		writeError(w, r, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
	case errors.As(err, &insufficientErr):
		writeError(w, r, err.Error(), "INSUFFICIENT_STOCK", http.StatusConflict)
	case errors.As(err, &terminalErr):
		writeError(w, r, err.Error(), "ALREADY_TERMINAL", http.StatusConflict)
	case errors.As(err, &mismatchErr):
		writeError(w, r, err.Error(), "INVENTORY_MISMATCH", http.StatusConflict)
	case errors.Is(err, core.ErrConcurrencyConflict):
		writeError(w, r, err.Error(), "CONCURRENCY_CONFLICT", http.StatusConflict)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
