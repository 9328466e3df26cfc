package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nspmotors/loyalty-backend/internal/loyalty"
)

// WriteEngineError maps a typed engine outcome onto the HTTP boundary.
// The outcome is surfaced verbatim; nothing here retries anything.
func WriteEngineError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	var alreadyUsed *loyalty.AlreadyUsedError
	var transient *loyalty.TransientError
	var invariant *loyalty.InvariantError

	switch {
	case errors.Is(err, loyalty.ErrInvalidFormat):
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "Invalid code format", "valid": false})

	case errors.Is(err, loyalty.ErrUnauthenticated):
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"error": "Authentication required"})

	case errors.Is(err, loyalty.ErrForbidden):
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"error": "Insufficient role"})

	case errors.Is(err, loyalty.ErrCodeNotFound):
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "Code not found", "valid": false})

	case errors.Is(err, loyalty.ErrCodeExists):
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"error": "Code identifier already exists"})

	case errors.Is(err, loyalty.ErrPointsRange):
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "Point value out of range [1, 1000]"})

	case errors.As(err, &alreadyUsed):
		var usedAt *string
		if alreadyUsed.UsedAt != nil {
			s := alreadyUsed.UsedAt.Format(time.RFC3339)
			usedAt = &s
		}
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":       "Code already used",
			"valid":       false,
			"productName": alreadyUsed.ProductName,
			"usedAt":      usedAt,
		})

	case errors.As(err, &transient):
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"error": "Temporary failure, retry later"})

	case errors.As(err, &invariant):
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": "Ledger inconsistency detected"})

	default:
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": "Internal error"})
	}
}
