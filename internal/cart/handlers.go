package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/solar-symphony/internal/common"
)

// MeOwner is the path alias for the authenticated user's own cart.
const MeOwner = "me"

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

// Create issues a new guest cart identifier.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload struct {
		AnonID string `json:"anonId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	guestID, ok := ParseGuestID(payload.AnonID)
	if !ok {
		guestID = uuid.NewString()
	}
	summary, err := h.Svc.Summary(r.Context(), GuestOwner(guestID), "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary.Owner = guestID
	common.JSON(w, http.StatusCreated, map[string]any{"data": summary})
}

// Get returns cart contents, badge count and pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	summary, err := h.Svc.Summary(r.Context(), owner, r.URL.Query().Get("shipping"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary.Owner = chi.URLParam(r, "owner")
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

// Summary returns only the computed totals.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	summary, err := h.Svc.Summary(r.Context(), owner, r.URL.Query().Get("shipping"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"totals":                summary.Totals,
			"promoCode":             summary.PromoCode,
			"freeShippingRemaining": summary.FreeShippingRemaining,
		},
	})
}

// Count returns the badge count.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	n, err := h.Svc.Count(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"count": n}})
}

// AddItem adds a product or increments an existing line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var payload struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Image    string          `json:"image"`
		Price    json.RawMessage `json:"price"`
		Quantity int             `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	items, err := h.Svc.Add(r.Context(), owner, AddInput{
		ID:       payload.ID,
		Name:     payload.Name,
		Image:    payload.Image,
		Price:    RawPrice(payload.Price),
		Quantity: payload.Quantity,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"items": items}})
}

// UpdateItem sets the quantity of a cart line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	items, err := h.Svc.UpdateQuantity(r.Context(), owner, chi.URLParam(r, "itemId"), payload.Quantity)
	h.respondItems(w, items, err)
}

// IncreaseItem adds one unit to a cart line.
func (h *Handler) IncreaseItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	items, err := h.Svc.Increase(r.Context(), owner, chi.URLParam(r, "itemId"))
	h.respondItems(w, items, err)
}

// DecreaseItem removes one unit from a cart line.
func (h *Handler) DecreaseItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	items, err := h.Svc.Decrease(r.Context(), owner, chi.URLParam(r, "itemId"))
	h.respondItems(w, items, err)
}

// RemoveItem deletes a cart line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	items, err := h.Svc.Remove(r.Context(), owner, chi.URLParam(r, "itemId"))
	h.respondItems(w, items, err)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), owner); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyPromo validates and stores a promo code.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var payload struct {
		Code     string `json:"code"`
		Shipping string `json:"shipping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	res, err := h.Svc.ApplyPromo(r.Context(), owner, payload.Code, payload.Shipping)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !res.Applied && strings.TrimSpace(payload.Code) != "" {
		common.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": common.ErrorBody{Code: "PROMO_INVALID", Message: res.Message},
			"data":  res,
		})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// RemovePromo forgets the applied promo code.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemovePromo(r.Context(), owner); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Merge folds a guest cart into the authenticated user's cart.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload struct {
		GuestCartID string `json:"guestCartId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	guestID, ok := ParseGuestID(payload.GuestCartID)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "guestCartId must be a guest cart id", nil)
		return
	}
	items, err := h.Svc.Merge(r.Context(), GuestOwner(guestID), UserOwner(userID))
	h.respondItems(w, items, err)
}

// owner resolves the {owner} path parameter to a cart key. "me" maps to the
// authenticated user's cart and requires a valid token; anything else must be
// a guest cart id issued by Create.
func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	owner := chi.URLParam(r, "owner")
	if owner == MeOwner {
		userID, ok := common.UserID(r.Context())
		if !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return "", false
		}
		return UserOwner(userID), true
	}
	guestID, ok := ParseGuestID(owner)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
		return "", false
	}
	return GuestOwner(guestID), true
}

func (h *Handler) respondItems(w http.ResponseWriter, items []Item, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"items": items}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
