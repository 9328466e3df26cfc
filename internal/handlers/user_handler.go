package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/nspmotors/loyalty-backend/internal/loyalty"
	"github.com/nspmotors/loyalty-backend/internal/middleware"
	"github.com/nspmotors/loyalty-backend/internal/services"
)

// UserHandler serves the authenticated account's own data: profile, scan
// history and ledger history.
type UserHandler struct {
	ledger     *services.LedgerService
	redemption *services.RedemptionService
}

func NewUserHandler(ledger *services.LedgerService, redemption *services.RedemptionService) *UserHandler {
	return &UserHandler{
		ledger:     ledger,
		redemption: redemption,
	}
}

// GetProfile returns the account plus its ledger-derived balance. A
// divergence between the two is reported, never patched over.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	account := middleware.AccountFromContext(r.Context())
	if account == nil {
		WriteEngineError(w, loyalty.ErrUnauthenticated)
		return
	}

	if err := h.ledger.Reconcile(r.Context(), account.ID); err != nil {
		log.Printf("[USER] Profile reconciliation failed for %s: %v", account.AccountID, err)
		WriteEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "user": account})
}

// GetScans returns the account's redemption history.
func (h *UserHandler) GetScans(w http.ResponseWriter, r *http.Request) {
	account := middleware.AccountFromContext(r.Context())
	if account == nil {
		WriteEngineError(w, loyalty.ErrUnauthenticated)
		return
	}

	limit, offset := pagination(r)
	scans, totalScans, totalPoints, err := h.redemption.ScansOf(r.Context(), account.ID, limit, offset)
	if err != nil {
		services.SendErrorResponse(w, "Failed to get scan history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"userId":      account.AccountID,
		"totalScans":  totalScans,
		"totalPoints": totalPoints,
		"scans":       scans,
		"pagination": map[string]any{
			"limit":   limit,
			"offset":  offset,
			"hasMore": offset+len(scans) < totalScans,
		},
	})
}

// GetTransactions returns the account's ledger history, newest first.
func (h *UserHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	account := middleware.AccountFromContext(r.Context())
	if account == nil {
		WriteEngineError(w, loyalty.ErrUnauthenticated)
		return
	}

	limit, offset := pagination(r)
	entries, total, err := h.ledger.HistoryOf(r.Context(), account.ID, limit, offset)
	if err != nil {
		services.SendErrorResponse(w, "Failed to get transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"userId":       account.AccountID,
		"transactions": entries,
		"pagination": map[string]any{
			"limit":   limit,
			"offset":  offset,
			"hasMore": offset+len(entries) < total,
		},
	})
}

// GetBalance returns the ledger-sum balance, the ground truth read.
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := middleware.AccountFromContext(r.Context())
	if account == nil {
		WriteEngineError(w, loyalty.ErrUnauthenticated)
		return
	}

	balance, err := h.ledger.BalanceOf(r.Context(), account.ID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to compute balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"userId": account.AccountID, "balance": balance})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
