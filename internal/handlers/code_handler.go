package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nspmotors/loyalty-backend/internal/loyalty"
	"github.com/nspmotors/loyalty-backend/internal/middleware"
	"github.com/nspmotors/loyalty-backend/internal/services"
)

// CodeHandler exposes the operator-facing registry surface: minting,
// lookup and the platform aggregates.
type CodeHandler struct {
	registry  *services.RegistryService
	stats     *services.StatsService
	validator *services.ValidationHelper
}

func NewCodeHandler(registry *services.RegistryService, stats *services.StatsService) *CodeHandler {
	return &CodeHandler{
		registry:  registry,
		stats:     stats,
		validator: services.NewValidationHelper(),
	}
}

// Mint creates a new code. Operator or admin role required.
func (h *CodeHandler) Mint(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromContext(r.Context())
	if actor == nil {
		WriteEngineError(w, loyalty.ErrUnauthenticated)
		return
	}

	var req services.MintSpec

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	minted, err := h.registry.Mint(r.Context(), actor, req)
	if err != nil {
		WriteEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(minted)
}

// GetCode returns a code's registry record by business identifier.
func (h *CodeHandler) GetCode(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromContext(r.Context())
	if actor == nil {
		WriteEngineError(w, loyalty.ErrUnauthenticated)
		return
	}
	if !actor.CanMint() {
		WriteEngineError(w, loyalty.ErrForbidden)
		return
	}

	code, err := h.registry.Lookup(r.Context(), chi.URLParam(r, "codeID"))
	if err != nil {
		WriteEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(code)
}

// Stats returns the platform-wide aggregates.
func (h *CodeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor := middleware.AccountFromContext(r.Context())
	if actor == nil {
		WriteEngineError(w, loyalty.ErrUnauthenticated)
		return
	}
	if !actor.CanMint() {
		WriteEngineError(w, loyalty.ErrForbidden)
		return
	}

	stats, err := h.stats.Overview(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Failed to compute statistics", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
