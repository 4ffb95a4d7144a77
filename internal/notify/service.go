package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the durable notification record store.
type Store interface {
	Insert(ctx context.Context, n Notification, keep int) error
	RecentByFingerprint(ctx context.Context, fp string, since time.Time) (Notification, error)
	Get(ctx context.Context, id string) (Notification, error)
	List(ctx context.Context, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteForOrder(ctx context.Context, orderID, orderCode string) error
	SetAssigneeForOrder(ctx context.Context, orderID, orderCode string, a *Assignee) error
}

// Pusher delivers a payload to every session on the admin channel. Delivery
// is best effort; a session that missed events gets the backlog on rejoin.
type Pusher interface {
	Push(ctx context.Context, payload []byte) error
}

// Event is the wire shape pushed to staff sessions.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Service struct {
	store  Store
	pusher Pusher
	log    *zap.Logger
	clock  func() time.Time
}

func NewService(store Store, pusher Pusher, log *zap.Logger) *Service {
	return &Service{store: store, pusher: pusher, log: log, clock: time.Now}
}

// WithClock swaps the time source; tests use it to step through the dedup
// window.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Create records and pushes a notification. A second call with the same
// fingerprint inside the dedup window returns the existing record unchanged.
func (s *Service) Create(ctx context.Context, typ Type, title, message string, data map[string]any) (Notification, error) {
	if data == nil {
		data = map[string]any{}
	}
	now := s.clock().UTC()
	fp := Fingerprint(typ, data, message)

	if existing, err := s.store.RecentByFingerprint(ctx, fp, now.Add(-DedupWindow)); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Notification{}, err
	}

	n := Notification{
		ID:          uuid.NewString(),
		Type:        typ,
		Title:       title,
		Message:     message,
		Data:        data,
		Timestamp:   now,
		Fingerprint: fp,
	}
	if err := s.store.Insert(ctx, n, MaxRetained); err != nil {
		return Notification{}, err
	}

	s.push(ctx, Event{Event: "notification", Data: n})
	return n, nil
}

// Broadcast pushes a transient event to the admin channel without creating a
// durable record.
func (s *Service) Broadcast(ctx context.Context, event string, data any) {
	s.push(ctx, Event{Event: event, Data: data})
}

func (s *Service) push(ctx context.Context, ev Event) {
	if s.pusher == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("marshal push event", zap.Error(err))
		return
	}
	if err := s.pusher.Push(ctx, b); err != nil {
		s.log.Warn("push delivery failed", zap.String("event", ev.Event), zap.Error(err))
	}
}

func (s *Service) List(ctx context.Context) ([]Notification, error) {
	return s.store.List(ctx, MaxRetained)
}

func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	return s.store.UnreadCount(ctx)
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.store.MarkRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context) error {
	return s.store.MarkAllRead(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) DeleteAll(ctx context.Context) error {
	return s.store.DeleteAll(ctx)
}

func (s *Service) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return s.store.DeleteOlderThan(ctx, s.clock().UTC().Add(-age))
}

// DeleteForOrder cascades an order deletion into the notification store.
func (s *Service) DeleteForOrder(ctx context.Context, orderID, orderCode string) error {
	return s.store.DeleteForOrder(ctx, orderID, orderCode)
}

// SetAssignee mirrors order assignment changes onto matching notifications.
func (s *Service) SetAssignee(ctx context.Context, orderID, orderCode string, a *Assignee) error {
	return s.store.SetAssigneeForOrder(ctx, orderID, orderCode, a)
}
