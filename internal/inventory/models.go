package inventory

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Item is the stock row of one custom sub-component.
type Item struct {
	ID              string    `json:"id"`
	ProductCustomID string    `json:"productCustomId"`
	CurrentStock    int       `json:"currentStock"`
	ReservedStock   int       `json:"reservedStock"`
	MinStockAlert   int       `json:"minStockAlert"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ComponentResult reports the outcome of one component's deduction or
// restoration. Err is set when that component failed; the rest of the order
// is still processed.
type ComponentResult struct {
	ProductCustomID string `json:"productCustomId"`
	Quantity        int    `json:"quantity"`
	Stock           int    `json:"stock,omitempty"`
	Err             error  `json:"-"`
}

type Report struct {
	ActiveItems     int     `json:"activeItems"`
	LowStockItems   int     `json:"lowStockItems"`
	OutOfStockItems int     `json:"outOfStockItems"`
	TotalStockValue float64 `json:"totalStockValue"`
}
