package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/craftline/orderdesk/internal/inventory"
	"github.com/craftline/orderdesk/internal/notify"
	"github.com/craftline/orderdesk/internal/orders"
	"github.com/craftline/orderdesk/internal/users"
)

// envelope is the uniform service response shape.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, envelope{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), envelope{Success: false, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, notify.ErrNotFound),
		errors.Is(err, inventory.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrAlreadyAssigned),
		errors.Is(err, orders.ErrNotAssigned),
		errors.Is(err, orders.ErrNotAssignee),
		errors.Is(err, orders.ErrSelfTransfer):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrStaleOrder):
		return http.StatusConflict
	case errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, orders.ErrEmptyBatch),
		errors.Is(err, inventory.ErrNegativeStock),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrReleaseExceeds),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
