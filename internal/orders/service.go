package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/craftline/orderdesk/internal/inventory"
	"github.com/craftline/orderdesk/internal/notify"
	"github.com/craftline/orderdesk/internal/users"
)

var (
	ErrInvalidStatus   = errors.New("invalid order status")
	ErrEmptyBatch      = errors.New("batch order needs at least one item")
	ErrAlreadyAssigned = errors.New("order already assigned")
	ErrNotAssigned     = errors.New("order is not assigned")
	ErrNotAssignee     = errors.New("caller is not the current assignee")
	ErrSelfTransfer    = errors.New("cannot transfer an order to yourself")
)

// Store is the order persistence contract. The guarded updates fail with
// ErrStaleOrder when the row no longer matches the expected current value.
type Store interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (Order, error)
	UpdateInformation(ctx context.Context, id string, prev, next Status, inf Information) error
	UpdateAssignment(ctx context.Context, id string, expect, next *string) error
	Delete(ctx context.Context, id string) error
	NextCodeSeq(ctx context.Context, dayKey string) (int, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
}

// Directory resolves staff users; reference data owned elsewhere.
type Directory interface {
	Get(ctx context.Context, id string) (users.User, error)
	GetByEmail(ctx context.Context, email string) (users.User, error)
}

// Ledger deducts and restores component stock for an order. Both calls are
// best effort per component and report failures instead of aborting.
type Ledger interface {
	Deduct(ctx context.Context, components map[string]int) []inventory.ComponentResult
	Restore(ctx context.Context, components map[string]int) []inventory.ComponentResult
}

// Notifier is the fan-out the lifecycle drives on every state change.
type Notifier interface {
	Create(ctx context.Context, typ notify.Type, title, message string, data map[string]any) (notify.Notification, error)
	Broadcast(ctx context.Context, event string, data any)
	SetAssignee(ctx context.Context, orderID, orderCode string, a *notify.Assignee) error
	DeleteForOrder(ctx context.Context, orderID, orderCode string) error
}

// EventSink publishes integration events; failures are the caller's to log.
type EventSink interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

// ServiceDeps bundles the collaborators of the lifecycle service.
type ServiceDeps struct {
	Store      Store
	Users      Directory
	Ledger     Ledger
	Notifier   Notifier
	Sink       EventSink
	Logger     *zap.Logger
	CodePrefix string
	Producer   string // service name stamped on events
	Clock      func() time.Time
}

type Service struct {
	store    Store
	users    Directory
	ledger   Ledger
	notifier Notifier
	sink     EventSink
	log      *zap.Logger
	prefix   string
	producer string
	clock    func() time.Time
}

func NewService(d ServiceDeps) *Service {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	prefix := d.CodePrefix
	if prefix == "" {
		prefix = "ORD"
	}
	return &Service{
		store:    d.Store,
		users:    d.Users,
		ledger:   d.Ledger,
		notifier: d.Notifier,
		sink:     d.Sink,
		log:      d.Logger,
		prefix:   prefix,
		producer: d.Producer,
		clock:    clock,
	}
}

type CreateOrderInput struct {
	UserID                   *string // validated when present; orders always start unassigned
	Product                  json.RawMessage
	Variant                  json.RawMessage
	SelectedOptions          json.RawMessage
	CustomQuantities         map[string]int
	SelectedCategoryProducts map[string][]ComponentSelection
	MultiItemCustomizations  map[string][]ComponentSelection
	Background               []FormValue
	Shipping                 json.RawMessage
	Promotion                json.RawMessage
	Pricing                  Pricing
}

type BatchItemInput struct {
	Product                  json.RawMessage
	Variant                  json.RawMessage
	SelectedOptions          json.RawMessage
	CustomQuantities         map[string]int
	SelectedCategoryProducts map[string][]ComponentSelection
	MultiItemCustomizations  map[string][]ComponentSelection
	Background               []FormValue
	Pricing                  ItemPricing
}

type CreateBatchOrderInput struct {
	UserID       *string
	CustomerInfo ContactInfo
	Items        []BatchItemInput
	Shipping     json.RawMessage
	Promotion    json.RawMessage
	Pricing      Pricing
}

// CreateResult carries the persisted order plus the per-component ledger
// outcome, so partial stock failures stay observable.
type CreateResult struct {
	Order      Order                       `json:"order"`
	Components []inventory.ComponentResult `json:"components,omitempty"`
}

// nextCode issues PREFIX-YYYYMMDD-NNNN, unique and increasing within the day.
func (s *Service) nextCode(ctx context.Context) (string, error) {
	day := s.clock().UTC().Format("20060102")
	seq, err := s.store.NextCodeSeq(ctx, day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", s.prefix, day, seq), nil
}

func (s *Service) Create(ctx context.Context, in CreateOrderInput) (CreateResult, error) {
	if in.UserID != nil {
		if _, err := s.users.Get(ctx, *in.UserID); err != nil {
			return CreateResult{}, fmt.Errorf("create order: %w", err)
		}
	}

	code, err := s.nextCode(ctx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create order: %w", err)
	}

	contact := ExtractContact(in.Background)
	now := s.clock().UTC()
	inf := Information{
		OrderCode:                code,
		Product:                  in.Product,
		Variant:                  in.Variant,
		SelectedOptions:          in.SelectedOptions,
		CustomQuantities:         in.CustomQuantities,
		SelectedCategoryProducts: in.SelectedCategoryProducts,
		MultiItemCustomizations:  in.MultiItemCustomizations,
		Background:               in.Background,
		ContactInfo:              &contact,
		Shipping:                 in.Shipping,
		Promotion:                in.Promotion,
		Pricing:                  in.Pricing,
	}

	o := Order{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Information: inf,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, &o); err != nil {
		return CreateResult{}, fmt.Errorf("create order: %w", err)
	}

	return s.finishCreate(ctx, o), nil
}

func (s *Service) CreateBatch(ctx context.Context, in CreateBatchOrderInput) (CreateResult, error) {
	if len(in.Items) == 0 {
		return CreateResult{}, ErrEmptyBatch
	}
	if in.UserID != nil {
		if _, err := s.users.Get(ctx, *in.UserID); err != nil {
			return CreateResult{}, fmt.Errorf("create batch order: %w", err)
		}
	}

	code, err := s.nextCode(ctx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create batch order: %w", err)
	}

	items := make([]BatchItem, len(in.Items))
	subtotal := 0.0
	for i, it := range in.Items {
		items[i] = BatchItem{
			ItemIndex:                i,
			Product:                  it.Product,
			Variant:                  it.Variant,
			SelectedOptions:          it.SelectedOptions,
			CustomQuantities:         it.CustomQuantities,
			SelectedCategoryProducts: it.SelectedCategoryProducts,
			MultiItemCustomizations:  it.MultiItemCustomizations,
			Background:               it.Background,
			Pricing:                  it.Pricing,
		}
		subtotal += it.Pricing.ItemSubtotal
	}

	pricing := in.Pricing
	pricing.Subtotal = subtotal
	if pricing.Total == 0 {
		pricing.Total = subtotal + pricing.Shipping - pricing.Discount
	}

	customer := in.CustomerInfo
	now := s.clock().UTC()
	inf := Information{
		OrderCode:    code,
		IsBatchOrder: true,
		ItemCount:    len(items),
		Items:        items,
		CustomerInfo: &customer,
		Shipping:     in.Shipping,
		Promotion:    in.Promotion,
		Pricing:      pricing,
	}

	o := Order{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Information: inf,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, &o); err != nil {
		return CreateResult{}, fmt.Errorf("create batch order: %w", err)
	}

	return s.finishCreate(ctx, o), nil
}

// finishCreate runs the post-persist steps shared by both create paths:
// deduct stock, announce the order, publish the integration event. Ledger
// failures are reported, not fatal; the order is already committed.
func (s *Service) finishCreate(ctx context.Context, o Order) CreateResult {
	components := o.Information.ComponentQuantities()
	results := s.ledger.Deduct(ctx, components)

	contact := o.Information.Contact()
	title := "New order"
	if o.Information.IsBatchOrder {
		title = fmt.Sprintf("New batch order (%d items)", o.Information.ItemCount)
	}
	msg := fmt.Sprintf("%s from %s — total %.2f", o.Information.OrderCode, orDash(contact.Name), o.Information.Pricing.Total)
	if _, err := s.notifier.Create(ctx, notify.TypeNewOrder, title, msg, map[string]any{
		"orderId":      o.ID,
		"orderCode":    o.Information.OrderCode,
		"customerName": contact.Name,
		"phone":        contact.Phone,
		"total":        o.Information.Pricing.Total,
	}); err != nil {
		s.log.Warn("new-order notification failed", zap.String("order_id", o.ID), zap.Error(err))
	}

	s.emit(TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:       o.ID,
		OrderCode:     o.Information.OrderCode,
		IsBatchOrder:  o.Information.IsBatchOrder,
		ItemCount:     o.Information.ItemCount,
		CustomerName:  contact.Name,
		CustomerPhone: contact.Phone,
		Total:         o.Information.Pricing.Total,
		Components:    toComponentQtys(components),
	})

	return CreateResult{Order: o, Components: results}
}

// UpdateStatus validates the next status, unshifts the transition onto the
// history and announces the change. The write is guarded on the status it
// read; a concurrent transition forces a re-read so no history entry is ever
// overwritten.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) (Order, error) {
	if !next.Valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}

	var o Order
	var prev Status
	for attempt := 0; ; attempt++ {
		var err error
		o, err = s.store.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}

		prev = o.Status
		o.Information.Metadata.StatusHistory = append(
			[]StatusChange{{From: prev, To: next, At: s.clock().UTC()}},
			o.Information.Metadata.StatusHistory...)
		o.Status = next

		err = s.store.UpdateInformation(ctx, id, prev, next, o.Information)
		if err == nil {
			break
		}
		if errors.Is(err, ErrStaleOrder) && attempt < 2 {
			continue
		}
		return Order{}, fmt.Errorf("update status: %w", err)
	}

	code := o.Information.OrderCode
	if _, err := s.notifier.Create(ctx, notify.TypeOrderStatusUpdate, "Order status updated",
		fmt.Sprintf("%s: %s → %s", code, prev, next), map[string]any{
			"orderId":   o.ID,
			"orderCode": code,
			"from":      string(prev),
			"to":        string(next),
		}); err != nil {
		s.log.Warn("status notification failed", zap.String("order_id", o.ID), zap.Error(err))
	}

	s.emit(TopicOrderStatusUpdated, EventOrderStatusUpdated, o.ID, OrderStatusUpdatedPayload{
		OrderID: o.ID, OrderCode: code, From: prev, To: next,
	})
	return o, nil
}

// Assign claims an unassigned order for a staff member. Claiming an already
// claimed order is forbidden and names the current assignee.
func (s *Service) Assign(ctx context.Context, id, userID string) (Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != nil {
		holder := *o.UserID
		if u, err := s.users.Get(ctx, holder); err == nil {
			holder = u.Name
		}
		return Order{}, fmt.Errorf("%w to %s", ErrAlreadyAssigned, holder)
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return Order{}, fmt.Errorf("assign order: %w", err)
	}
	if err := s.store.UpdateAssignment(ctx, id, nil, &u.ID); err != nil {
		if errors.Is(err, ErrStaleOrder) {
			// lost the claim between read and write
			return Order{}, fmt.Errorf("%w to %s", ErrAlreadyAssigned, s.holderName(ctx, id))
		}
		return Order{}, fmt.Errorf("assign order: %w", err)
	}
	o.UserID = &u.ID

	s.mirrorAssignee(ctx, o, &notify.Assignee{UserID: u.ID, UserName: u.Name})
	s.announceAssignment(ctx, o, "assigned", u.ID, u.Name)
	return o, nil
}

func (s *Service) Unassign(ctx context.Context, id string) (Order, error) {
	var o Order
	for attempt := 0; ; attempt++ {
		var err error
		o, err = s.store.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}
		if o.UserID == nil {
			return Order{}, ErrNotAssigned
		}
		err = s.store.UpdateAssignment(ctx, id, o.UserID, nil)
		if err == nil {
			break
		}
		if errors.Is(err, ErrStaleOrder) && attempt < 2 {
			continue // assignee changed underneath, re-read and clear again
		}
		return Order{}, fmt.Errorf("unassign order: %w", err)
	}
	o.UserID = nil

	s.mirrorAssignee(ctx, o, nil)
	s.announceAssignment(ctx, o, "unassigned", "", "")
	return o, nil
}

// Transfer hands an order from its current assignee to the user resolved by
// email. Only the current assignee may transfer, and never to themselves.
func (s *Service) Transfer(ctx context.Context, id, fromUserID, toEmail string) (Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID == nil || *o.UserID != fromUserID {
		return Order{}, ErrNotAssignee
	}

	target, err := s.users.GetByEmail(ctx, toEmail)
	if err != nil {
		return Order{}, fmt.Errorf("transfer order: %w", err)
	}
	if target.ID == fromUserID {
		return Order{}, ErrSelfTransfer
	}

	if err := s.store.UpdateAssignment(ctx, id, &fromUserID, &target.ID); err != nil {
		if errors.Is(err, ErrStaleOrder) {
			// the caller stopped being the assignee mid-flight
			return Order{}, ErrNotAssignee
		}
		return Order{}, fmt.Errorf("transfer order: %w", err)
	}
	o.UserID = &target.ID

	s.mirrorAssignee(ctx, o, &notify.Assignee{UserID: target.ID, UserName: target.Name})
	s.announceAssignment(ctx, o, "transferred", target.ID, target.Name)
	return o, nil
}

// Remove restores inventory first, then purges notifications, then deletes
// the order. A restore failure leaves the order intact instead of losing
// both the order and its stock.
func (s *Service) Remove(ctx context.Context, id string) ([]inventory.ComponentResult, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	results := s.ledger.Restore(ctx, o.Information.ComponentQuantities())

	code := o.Information.OrderCode
	if err := s.notifier.DeleteForOrder(ctx, o.ID, code); err != nil {
		s.log.Warn("notification cascade failed", zap.String("order_id", o.ID), zap.Error(err))
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return results, fmt.Errorf("delete order: %w", err)
	}

	s.emit(TopicOrderDeleted, EventOrderDeleted, o.ID, OrderDeletedPayload{OrderID: o.ID, OrderCode: code})
	return results, nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) FindAll(ctx context.Context, f ListFilter) ([]Order, int, error) {
	return s.store.List(ctx, f)
}

func (s *Service) FindByUser(ctx context.Context, userID string, f ListFilter) ([]Order, int, error) {
	f.UserID = &userID
	return s.store.List(ctx, f)
}

func (s *Service) AssignedOrders(ctx context.Context, userID string, f ListFilter) ([]Order, int, error) {
	f.UserID = &userID
	f.Assigned = true
	return s.store.List(ctx, f)
}

func (s *Service) Search(ctx context.Context, f ListFilter) ([]Order, int, error) {
	return s.store.List(ctx, f)
}

func (s *Service) mirrorAssignee(ctx context.Context, o Order, a *notify.Assignee) {
	if err := s.notifier.SetAssignee(ctx, o.ID, o.Information.OrderCode, a); err != nil {
		s.log.Warn("assignee mirror failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) announceAssignment(ctx context.Context, o Order, action, userID, userName string) {
	payload := OrderAssignedPayload{
		OrderID:   o.ID,
		OrderCode: o.Information.OrderCode,
		Action:    action,
		UserID:    userID,
		UserName:  userName,
	}
	s.notifier.Broadcast(ctx, "order-"+action, payload)
	s.emit(TopicOrderAssigned, EventOrderAssigned, o.ID, payload)
}

func (s *Service) emit(topic, eventType, orderID string, payload any) {
	if s.sink == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal event payload", zap.String("event", eventType), zap.Error(err))
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.clock().UTC(),
		Producer:      s.producer,
		CorrelationID: orderID,
		Payload:       b,
	}
	eb, err := json.Marshal(env)
	if err != nil {
		s.log.Error("marshal event envelope", zap.String("event", eventType), zap.Error(err))
		return
	}
	if err := s.sink.Publish(topic, PartitionKey(orderID), eb,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	); err != nil {
		s.log.Warn("event publish dropped",
			zap.String("event", eventType), zap.String("order_id", orderID), zap.Error(err))
	}
}

// holderName resolves the current assignee's display name for error messages.
func (s *Service) holderName(ctx context.Context, id string) string {
	o, err := s.store.Get(ctx, id)
	if err != nil || o.UserID == nil {
		return "another user"
	}
	if u, err := s.users.Get(ctx, *o.UserID); err == nil {
		return u.Name
	}
	return *o.UserID
}

func toComponentQtys(m map[string]int) []ComponentQty {
	out := make([]ComponentQty, 0, len(m))
	for id, qty := range m {
		out = append(out, ComponentQty{ProductCustomID: id, Qty: qty})
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
