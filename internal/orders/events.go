package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusUpdated = "OrderStatusUpdated"
	EventOrderAssigned      = "OrderAssigned"
	EventOrderDeleted       = "OrderDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ComponentQty struct {
	ProductCustomID string `json:"product_custom_id"`
	Qty             int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID       string         `json:"order_id"`
	OrderCode     string         `json:"order_code"`
	IsBatchOrder  bool           `json:"is_batch_order,omitempty"`
	ItemCount     int            `json:"item_count,omitempty"`
	CustomerName  string         `json:"customer_name,omitempty"`
	CustomerPhone string         `json:"customer_phone,omitempty"`
	Total         float64        `json:"total"`
	Components    []ComponentQty `json:"components,omitempty"`
}

type OrderStatusUpdatedPayload struct {
	OrderID   string `json:"order_id"`
	OrderCode string `json:"order_code"`
	From      Status `json:"from"`
	To        Status `json:"to"`
}

type OrderAssignedPayload struct {
	OrderID   string `json:"order_id"`
	OrderCode string `json:"order_code"`
	Action    string `json:"action"` // assigned | unassigned | transferred
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

type OrderDeletedPayload struct {
	OrderID   string `json:"order_id"`
	OrderCode string `json:"order_code"`
}
