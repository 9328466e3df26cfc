package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/nspmotors/loyalty-backend/internal/services"
)

// RedeemHandler is the HTTP entry point into the redemption engine. The
// bearer token is handed to the engine unparsed; resolution happens inside
// the engine call, not in middleware.
type RedeemHandler struct {
	service   *services.RedemptionService
	validator *services.ValidationHelper
}

func NewRedeemHandler(service *services.RedemptionService) *RedeemHandler {
	return &RedeemHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Redeem consumes a single-use code for the calling account.
func (h *RedeemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code" validate:"required"`
		Location string `json:"location" validate:"max=256"`
	}

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

	if req.Location == "" {
		req.Location = "Unknown"
	}

	result, err := h.service.Redeem(r.Context(), bearerToken(r), req.Code, req.Location)
	if err != nil {
		WriteEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"valid":           true,
		"scanId":          result.ScanID,
		"productName":     result.ProductName,
		"productCategory": result.ProductCategory,
		"pointsEarned":    result.PointsEarned,
		"description":     result.Description,
		"newBalance":      result.NewBalance,
		"timestamp":       result.Timestamp,
	})
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
