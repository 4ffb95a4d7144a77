package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/craftline/orderdesk/internal/orders"
)

type OrdersHandler struct {
	Svc *orders.Service
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/", h.create)
		r.Post("/batch", h.createBatch)
		r.Get("/", h.list)
		r.Get("/search", h.search)
		r.Get("/user/{userId}", h.byUser)
		r.Get("/assigned/{userId}", h.assigned)
		r.Get("/{id}", h.get)
		r.Patch("/{id}/status", h.updateStatus)
		r.Post("/{id}/assign", h.assign)
		r.Post("/{id}/unassign", h.unassign)
		r.Post("/{id}/transfer", h.transfer)
		r.Delete("/{id}", h.remove)
	})
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid json"})
		return
	}
	res, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusCreated, "order created", res)
}

func (h *OrdersHandler) createBatch(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateBatchOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid json"})
		return
	}
	res, err := h.Svc.CreateBatch(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusCreated, "batch order created", res)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", o)
}

type pageData struct {
	Orders []orders.Order `json:"orders"`
	Total  int            `json:"total"`
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	os, total, err := h.Svc.FindAll(r.Context(), filterFromQuery(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", pageData{Orders: os, Total: total})
}

func (h *OrdersHandler) search(w http.ResponseWriter, r *http.Request) {
	os, total, err := h.Svc.Search(r.Context(), filterFromQuery(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", pageData{Orders: os, Total: total})
}

func (h *OrdersHandler) byUser(w http.ResponseWriter, r *http.Request) {
	os, total, err := h.Svc.FindByUser(r.Context(), chi.URLParam(r, "userId"), filterFromQuery(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", pageData{Orders: os, Total: total})
}

func (h *OrdersHandler) assigned(w http.ResponseWriter, r *http.Request) {
	os, total, err := h.Svc.AssignedOrders(r.Context(), chi.URLParam(r, "userId"), filterFromQuery(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "", pageData{Orders: os, Total: total})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status orders.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid json"})
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "status updated", o)
}

func (h *OrdersHandler) assign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "userId is required"})
		return
	}
	o, err := h.Svc.Assign(r.Context(), chi.URLParam(r, "id"), body.UserID)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "order assigned", o)
}

func (h *OrdersHandler) unassign(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Unassign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "order unassigned", o)
}

func (h *OrdersHandler) transfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FromUserID string `json:"fromUserId"`
		ToEmail    string `json:"toEmail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FromUserID == "" || body.ToEmail == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "fromUserId and toEmail are required"})
		return
	}
	o, err := h.Svc.Transfer(r.Context(), chi.URLParam(r, "id"), body.FromUserID, body.ToEmail)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "order transferred", o)
}

func (h *OrdersHandler) remove(w http.ResponseWriter, r *http.Request) {
	results, err := h.Svc.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, http.StatusOK, "order deleted", map[string]any{"restored": results})
}

func filterFromQuery(r *http.Request) orders.ListFilter {
	q := r.URL.Query()
	f := orders.ListFilter{
		OrderCode: q.Get("orderCode"),
		Customer:  q.Get("customer"),
	}
	if v := q.Get("status"); v != "" {
		st := orders.Status(v)
		f.Status = &st
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		f.From = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		f.To = &t
	}
	if v, err := strconv.ParseFloat(q.Get("priceMin"), 64); err == nil {
		f.PriceMin = &v
	}
	if v, err := strconv.ParseFloat(q.Get("priceMax"), 64); err == nil {
		f.PriceMax = &v
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("perPage"))
	return f
}
