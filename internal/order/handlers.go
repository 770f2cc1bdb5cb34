package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-smartprice/internal/common"
)

// Handler exposes order endpoints.
type Handler struct {
	Svc *Service
}

type placePayload struct {
	Address       map[string]any `json:"address"`
	PaymentMethod string         `json:"paymentMethod"`
}

type patchStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Place handles POST /api/v1/orders.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload placePayload
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Place(r.Context(), userID, PlaceInput(payload))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orders, err := h.Svc.List(r.Context(), userID, common.IsAdmin(r.Context()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page, limit := common.ParsePagination(r.URL.Query(), 20, 100)
	start, end := common.Window(page, limit, len(orders))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders[start:end],
		"pagination": common.NewPagination(page, limit, int64(len(orders))),
	})
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	o, err := h.Svc.Get(r.Context(), userID, common.IsAdmin(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// PatchStatus handles PATCH /api/v1/admin/orders/{id}/status.
func (h *Handler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	var req patchStatusRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), OrderStatus(req.Status))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}
