package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/craftline/orderdesk/internal/inventory"
)

type InventoryHandler struct {
	Svc *inventory.Service
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Route("/inventory", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/low-stock", h.lowStock)
		r.Get("/report", h.report)
		r.Get("/{productCustomId}", h.get)
		r.Post("/{productCustomId}/adjust", h.adjust)
		r.Post("/{productCustomId}/reserve", h.reserve)
		r.Post("/{productCustomId}/release", h.release)
	})
}

func (h *InventoryHandler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductCustomID string `json:"productCustomId"`
		CurrentStock    int    `json:"currentStock"`
		MinStockAlert   int    `json:"minStockAlert"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProductCustomID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "productCustomId is required"})
		return
	}
	it, err := h.Svc.CreateItem(r.Context(), body.ProductCustomID, body.CurrentStock, body.MinStockAlert)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusCreated, "inventory item created", it)
}

func (h *InventoryHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.List(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", items)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	it, err := h.Svc.Item(r.Context(), chi.URLParam(r, "productCustomId"))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", it)
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.LowStock(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", items)
}

func (h *InventoryHandler) report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Svc.Report(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", rep)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "stock adjusted", h.Svc.AdjustStock)
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "stock reserved", h.Svc.ReserveStock)
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "reservation released", h.Svc.ReleaseReservedStock)
}

func (h *InventoryHandler) mutate(w http.ResponseWriter, r *http.Request, msg string,
	op func(ctx context.Context, id string, qty int) (inventory.Item, error)) {

	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid json"})
		return
	}
	it, err := op(r.Context(), chi.URLParam(r, "productCustomId"), body.Quantity)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, msg, it)
}
