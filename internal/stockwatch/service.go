package stockwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/craftline/orderdesk/internal/inventory"
	kafkax "github.com/craftline/orderdesk/internal/kafka"
	"github.com/craftline/orderdesk/internal/notify"
	"github.com/craftline/orderdesk/internal/orders"
	"github.com/craftline/orderdesk/internal/redisx"
)

// Items looks up component stock rows.
type Items interface {
	Item(ctx context.Context, productCustomID string) (inventory.Item, error)
}

// Notifier raises the low-stock alert through the fan-out.
type Notifier interface {
	Create(ctx context.Context, typ notify.Type, title, message string, data map[string]any) (notify.Notification, error)
}

// Service watches order.created events and alerts staff when a deduction left
// a component at or under its alert threshold.
type Service struct {
	Items    Items
	Notifier Notifier
	Redis    *redis.Client // optional event dedup; nil skips it
	Log      *zap.Logger
}

// HandleOrderCreated is installed as the consumer handler.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "stockwatch", env.EventID)
		exists, err := redisx.Exists(ctx, s.Redis, dkey)
		switch {
		case err != nil:
			// keep handling the event, but an outage here means duplicates
			// get through, so say so
			s.Log.Warn("event dedup unavailable",
				zap.String("event_id", env.EventID), zap.Error(err))
		case exists:
			return nil
		default:
			_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
		}
	}

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}

	for _, c := range p.Components {
		it, err := s.Items.Item(ctx, c.ProductCustomID)
		if err != nil {
			if errors.Is(err, inventory.ErrItemNotFound) {
				continue // component without a stock row
			}
			return err
		}
		if it.Status != inventory.StatusActive || it.CurrentStock > it.MinStockAlert {
			continue
		}

		msg := fmt.Sprintf("%s is down to %d (alert at %d)",
			it.ProductCustomID, it.CurrentStock, it.MinStockAlert)
		if _, err := s.Notifier.Create(ctx, notify.TypeOther, "Low stock", msg, map[string]any{
			"id":              "low-stock:" + it.ProductCustomID,
			"productCustomId": it.ProductCustomID,
			"currentStock":    it.CurrentStock,
			"minStockAlert":   it.MinStockAlert,
		}); err != nil {
			s.Log.Warn("low-stock alert failed",
				zap.String("product_custom_id", it.ProductCustomID), zap.Error(err))
		}
	}
	return nil
}
