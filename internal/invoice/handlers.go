package invoice

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/solar-symphony/internal/common"
)

// Handler exposes the authenticated user's invoice history.
type Handler struct {
	Store Store
}

// List handles GET /invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	invoices, err := h.Store.List(r.Context(), owner)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page, limit := common.ParsePagination(r, 20)
	start, end := common.Bounds(page, limit, len(invoices))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       invoices[start:end],
		"pagination": common.Pagination{Page: page, PerPage: limit, TotalItems: len(invoices)},
	})
}

// Latest handles GET /invoices/latest.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	inv, err := h.Store.Latest(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

// Get handles GET /invoices/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	inv, err := h.Store.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

// Receipt handles GET /invoices/{id}/receipt as a text download.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	inv, err := h.Store.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ReceiptFilename(inv)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RenderReceipt(inv)))
}

// Clear handles DELETE /invoices.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.Store.Clear(r.Context(), owner); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice store not configured", nil)
		return "", false
	}
	owner, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return owner, true
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "invoice not found", nil)
		return
	}
	common.WriteError(w, err)
}
