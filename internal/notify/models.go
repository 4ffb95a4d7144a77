package notify

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

type Type string

const (
	TypeNewOrder          Type = "new-order"
	TypeOrderStatusUpdate Type = "order-status-update"
	TypeNewConsultation   Type = "new-consultation"
	TypeOther             Type = "other"
)

// MaxRetained bounds the store: only the most recent notifications are kept.
const MaxRetained = 100

// DedupWindow collapses repeated events with the same fingerprint, guarding
// against double submits and duplicate event emission.
const DedupWindow = 30 * time.Second

type Assignee struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type Notification struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data"`
	Timestamp   time.Time      `json:"timestamp"`
	Read        bool           `json:"read"`
	AssignedTo  *Assignee      `json:"assignedTo,omitempty"`
	Fingerprint string         `json:"-"`
}

// Fingerprint derives the dedup key from (type, stable id, phone, message).
// The stable id prefers consultationId, then orderId, then orderCode, then id.
func Fingerprint(t Type, data map[string]any, message string) string {
	stable := firstString(data, "consultationId", "orderId", "orderCode", "id")
	phone := firstString(data, "phone", "customerPhone")

	h := xxhash.New()
	for _, part := range []string{string(t), stable, phone, message} {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0x1f})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
