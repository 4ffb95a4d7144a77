package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence contract the ledger runs on. Every mutating call
// is a single conditional update on the store side.
type Store interface {
	Create(ctx context.Context, it *Item) error
	Item(ctx context.Context, productCustomID string) (Item, error)
	List(ctx context.Context) ([]Item, error)
	Adjust(ctx context.Context, productCustomID string, delta int) (Item, error)
	Reserve(ctx context.Context, productCustomID string, qty int) (Item, error)
	Release(ctx context.Context, productCustomID string, qty int) (Item, error)
	DeductFloor(ctx context.Context, productCustomID string, qty int) (Item, error)
	Restore(ctx context.Context, productCustomID string, qty int) (Item, error)
	LowStock(ctx context.Context) ([]Item, error)
	Report(ctx context.Context) (Report, error)
}

var ErrInvalidQuantity = errors.New("quantity must be positive")

type Service struct {
	store Store
	log   *zap.Logger
	clock func() time.Time
}

func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log, clock: time.Now}
}

func (s *Service) CreateItem(ctx context.Context, productCustomID string, stock, minAlert int) (Item, error) {
	now := s.clock().UTC()
	it := Item{
		ID:              uuid.NewString(),
		ProductCustomID: productCustomID,
		CurrentStock:    stock,
		MinStockAlert:   minAlert,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, &it); err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *Service) Item(ctx context.Context, productCustomID string) (Item, error) {
	return s.store.Item(ctx, productCustomID)
}

func (s *Service) List(ctx context.Context) ([]Item, error) { return s.store.List(ctx) }

func (s *Service) AdjustStock(ctx context.Context, productCustomID string, delta int) (Item, error) {
	return s.store.Adjust(ctx, productCustomID, delta)
}

func (s *Service) ReserveStock(ctx context.Context, productCustomID string, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	return s.store.Reserve(ctx, productCustomID, qty)
}

func (s *Service) ReleaseReservedStock(ctx context.Context, productCustomID string, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	return s.store.Release(ctx, productCustomID, qty)
}

// Deduct applies one floor-at-zero deduction per component. Failures are
// logged and reported per component, never fatal to the order: partial stock
// bookkeeping beats blocking a sale.
func (s *Service) Deduct(ctx context.Context, components map[string]int) []ComponentResult {
	return s.each(ctx, components, "deduct", s.store.DeductFloor)
}

// Restore adds order quantities back, unconditionally, on order deletion.
func (s *Service) Restore(ctx context.Context, components map[string]int) []ComponentResult {
	return s.each(ctx, components, "restore", s.store.Restore)
}

func (s *Service) each(ctx context.Context, components map[string]int, op string,
	apply func(context.Context, string, int) (Item, error)) []ComponentResult {

	ids := make([]string, 0, len(components))
	for id := range components {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ComponentResult, 0, len(ids))
	for _, id := range ids {
		qty := components[id]
		if qty <= 0 {
			continue
		}
		res := ComponentResult{ProductCustomID: id, Quantity: qty}
		it, err := apply(ctx, id, qty)
		if err != nil {
			res.Err = err
			s.log.Warn("inventory "+op+" skipped",
				zap.String("product_custom_id", id),
				zap.Int("qty", qty),
				zap.Error(err))
		} else {
			res.Stock = it.CurrentStock
		}
		out = append(out, res)
	}
	return out
}

func (s *Service) LowStock(ctx context.Context) ([]Item, error) { return s.store.LowStock(ctx) }

func (s *Service) Report(ctx context.Context) (Report, error) { return s.store.Report(ctx) }
