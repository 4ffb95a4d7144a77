package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/craftline/orderdesk/internal/inventory"
	"github.com/craftline/orderdesk/internal/notify"
	"github.com/craftline/orderdesk/internal/users"
)

// The fakes share one journal so tests can assert cross-collaborator ordering.

type fakeStore struct {
	journal *[]string
	orders  map[string]Order
	seqs    map[string]int
	getHook func(Order) Order // applied to the next Get only; simulates a stale read
}

func (f *fakeStore) note(s string) { *f.journal = append(*f.journal, s) }

func (f *fakeStore) Insert(_ context.Context, o *Order) error {
	f.note("store.insert")
	f.orders[o.ID] = *o
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if f.getHook != nil {
		h := f.getHook
		f.getHook = nil
		return h(o), nil
	}
	return o, nil
}

func (f *fakeStore) UpdateInformation(_ context.Context, id string, prev, next Status, inf Information) error {
	o, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != prev {
		return ErrStaleOrder
	}
	o.Status = next
	o.Information = inf
	f.orders[id] = o
	return nil
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (f *fakeStore) UpdateAssignment(_ context.Context, id string, expect, next *string) error {
	o, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	if !ptrEq(o.UserID, expect) {
		return ErrStaleOrder
	}
	o.UserID = next
	f.orders[id] = o
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.note("store.delete")
	if _, ok := f.orders[id]; !ok {
		return ErrNotFound
	}
	delete(f.orders, id)
	return nil
}

func (f *fakeStore) NextCodeSeq(_ context.Context, dayKey string) (int, error) {
	f.seqs[dayKey]++
	return f.seqs[dayKey], nil
}

func (f *fakeStore) List(_ context.Context, _ ListFilter) ([]Order, int, error) {
	out := make([]Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, len(out), nil
}

type fakeLedger struct {
	journal *[]string
	stock   map[string]int
}

func (f *fakeLedger) apply(op string, components map[string]int, deduct bool) []inventory.ComponentResult {
	var out []inventory.ComponentResult
	for id, qty := range components {
		*f.journal = append(*f.journal, fmt.Sprintf("ledger.%s:%s:%d", op, id, qty))
		if deduct {
			f.stock[id] -= qty
			if f.stock[id] < 0 {
				f.stock[id] = 0
			}
		} else {
			f.stock[id] += qty
		}
		out = append(out, inventory.ComponentResult{ProductCustomID: id, Quantity: qty, Stock: f.stock[id]})
	}
	return out
}

func (f *fakeLedger) Deduct(_ context.Context, components map[string]int) []inventory.ComponentResult {
	return f.apply("deduct", components, true)
}

func (f *fakeLedger) Restore(_ context.Context, components map[string]int) []inventory.ComponentResult {
	return f.apply("restore", components, false)
}

type assigneeCall struct {
	orderID, orderCode string
	assignee           *notify.Assignee
}

type fakeNotifier struct {
	journal    *[]string
	created    []notify.Notification
	assignees  []assigneeCall
	broadcasts []string
}

func (f *fakeNotifier) Create(_ context.Context, typ notify.Type, title, message string, data map[string]any) (notify.Notification, error) {
	*f.journal = append(*f.journal, "notify.create:"+string(typ))
	n := notify.Notification{Type: typ, Title: title, Message: message, Data: data}
	f.created = append(f.created, n)
	return n, nil
}

func (f *fakeNotifier) Broadcast(_ context.Context, event string, _ any) {
	f.broadcasts = append(f.broadcasts, event)
}

func (f *fakeNotifier) SetAssignee(_ context.Context, orderID, orderCode string, a *notify.Assignee) error {
	f.assignees = append(f.assignees, assigneeCall{orderID, orderCode, a})
	return nil
}

func (f *fakeNotifier) DeleteForOrder(_ context.Context, _, _ string) error {
	*f.journal = append(*f.journal, "notify.deleteForOrder")
	return nil
}

type fakeUsers struct{ byID map[string]users.User }

func (f *fakeUsers) Get(_ context.Context, id string) (users.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (users.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

type fakeSink struct{ topics []string }

func (f *fakeSink) Publish(topic string, _, _ []byte, _ ...kafkago.Header) error {
	f.topics = append(f.topics, topic)
	return nil
}

type env struct {
	svc      *Service
	store    *fakeStore
	ledger   *fakeLedger
	notifier *fakeNotifier
	sink     *fakeSink
	journal  []string
	now      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{now: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)}
	e.store = &fakeStore{journal: &e.journal, orders: map[string]Order{}, seqs: map[string]int{}}
	e.ledger = &fakeLedger{journal: &e.journal, stock: map[string]int{}}
	e.notifier = &fakeNotifier{journal: &e.journal}
	e.sink = &fakeSink{}
	e.svc = NewService(ServiceDeps{
		Store: e.store,
		Users: &fakeUsers{byID: map[string]users.User{
			"u1": {ID: "u1", Name: "Anh", Email: "anh@example.com"},
			"u2": {ID: "u2", Name: "Binh", Email: "binh@example.com"},
		}},
		Ledger:     e.ledger,
		Notifier:   e.notifier,
		Sink:       e.sink,
		Logger:     zap.NewNop(),
		CodePrefix: "ORD",
		Producer:   "test",
		Clock:      func() time.Time { return e.now },
	})
	return e
}

func singleInput(componentID string, qty int) CreateOrderInput {
	return CreateOrderInput{
		SelectedCategoryProducts: map[string][]ComponentSelection{
			"charms": {{ProductCustomID: componentID, Quantity: qty}},
		},
		Background: []FormValue{
			{Title: "Name", Value: "Linh"},
			{Title: "Phone", Value: "555-0101"},
		},
		Pricing: Pricing{Total: 42.5},
	}
}

func TestCreateIssuesSequentialDailyCodes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 1; i <= 3; i++ {
		res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
		require.NoError(t, err)

		code := res.Order.Information.OrderCode
		assert.Equal(t, fmt.Sprintf("ORD-20260831-%04d", i), code)
		assert.False(t, seen[code], "codes must be pairwise distinct")
		seen[code] = true
	}

	// next day restarts the sequence
	e.now = e.now.Add(24 * time.Hour)
	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260901-0001", res.Order.Information.OrderCode)
}

func TestCreatePersistsPendingUnassigned(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.Create(context.Background(), singleInput("comp-a", 2))
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, StatusPending, o.Status)
	assert.Nil(t, o.UserID)
	require.NotNil(t, o.Information.ContactInfo)
	assert.Equal(t, "Linh", o.Information.ContactInfo.Name)
	assert.Equal(t, "555-0101", o.Information.ContactInfo.Phone)

	require.Len(t, e.notifier.created, 1)
	n := e.notifier.created[0]
	assert.Equal(t, notify.TypeNewOrder, n.Type)
	assert.Equal(t, o.ID, n.Data["orderId"])
	assert.Equal(t, o.Information.OrderCode, n.Data["orderCode"])
	assert.Equal(t, "Linh", n.Data["customerName"])

	assert.Equal(t, []string{TopicOrderCreated}, e.sink.topics)
}

func TestCreateValidatesReferencedUser(t *testing.T) {
	e := newEnv(t)

	in := singleInput("comp-a", 1)
	ghost := "nobody"
	in.UserID = &ghost

	_, err := e.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, users.ErrNotFound)
	assert.Empty(t, e.store.orders, "nothing may be persisted")
}

// Inventory conservation: create then remove returns stock to its exact
// pre-create value.
func TestCreateThenRemoveConservesInventory(t *testing.T) {
	e := newEnv(t)
	e.ledger.stock["comp-c"] = 10
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-c", 3))
	require.NoError(t, err)
	assert.Equal(t, 7, e.ledger.stock["comp-c"])

	_, err = e.svc.Remove(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, e.ledger.stock["comp-c"])

	_, err = e.svc.Get(ctx, res.Order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveRestoresAndPurgesBeforeDelete(t *testing.T) {
	e := newEnv(t)
	e.ledger.stock["comp-c"] = 5
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-c", 2))
	require.NoError(t, err)

	e.journal = e.journal[:0]
	_, err = e.svc.Remove(ctx, res.Order.ID)
	require.NoError(t, err)

	require.Equal(t, []string{
		"ledger.restore:comp-c:2",
		"notify.deleteForOrder",
		"store.delete",
	}, e.journal)
	assert.Contains(t, e.sink.topics, TopicOrderDeleted)
}

func TestCreateBatchAggregatesDeductionPerComponent(t *testing.T) {
	e := newEnv(t)
	e.ledger.stock["comp-c"] = 10

	item := func() BatchItemInput {
		return BatchItemInput{
			SelectedCategoryProducts: map[string][]ComponentSelection{
				"charms": {{ProductCustomID: "comp-c", Quantity: 2}},
			},
			Pricing: ItemPricing{ItemSubtotal: 10},
		}
	}
	res, err := e.svc.CreateBatch(context.Background(), CreateBatchOrderInput{
		CustomerInfo: ContactInfo{Name: "Mai", Phone: "555-0202"},
		Items:        []BatchItemInput{item(), item()},
	})
	require.NoError(t, err)

	// one aggregated deduction of 4, not two independent ops
	assert.Equal(t, 6, e.ledger.stock["comp-c"])
	assert.Equal(t, []string{"ledger.deduct:comp-c:4"}, e.journal[1:2])

	inf := res.Order.Information
	assert.True(t, inf.IsBatchOrder)
	assert.Equal(t, 2, inf.ItemCount)
	require.Len(t, inf.Items, 2)
	assert.Equal(t, 0, inf.Items[0].ItemIndex)
	assert.Equal(t, 1, inf.Items[1].ItemIndex)
	assert.Equal(t, 20.0, inf.Pricing.Subtotal)
	assert.Equal(t, 20.0, inf.Pricing.Total)
}

func TestCreateBatchPricingKeepsExplicitTotal(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.CreateBatch(context.Background(), CreateBatchOrderInput{
		CustomerInfo: ContactInfo{Name: "Mai"},
		Items: []BatchItemInput{
			{Pricing: ItemPricing{ItemSubtotal: 10}},
			{Pricing: ItemPricing{ItemSubtotal: 15}},
		},
		Pricing: Pricing{Shipping: 5, Total: 27.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0, res.Order.Information.Pricing.Subtotal)
	assert.Equal(t, 27.5, res.Order.Information.Pricing.Total)
}

func TestCreateBatchRejectsEmpty(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.CreateBatch(context.Background(), CreateBatchOrderInput{})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestUpdateStatusHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = e.svc.UpdateStatus(ctx, id, StatusPending) // self transition is allowed
	require.NoError(t, err)
	o, err := e.svc.UpdateStatus(ctx, id, StatusPaid)
	require.NoError(t, err)

	hist := o.Information.Metadata.StatusHistory
	require.Len(t, hist, 2)
	// newest first
	assert.Equal(t, StatusPending, hist[0].From)
	assert.Equal(t, StatusPaid, hist[0].To)
	assert.Equal(t, StatusPending, hist[1].From)
	assert.Equal(t, StatusPending, hist[1].To)

	// rejected status leaves everything untouched
	_, err = e.svc.UpdateStatus(ctx, id, "bogus_status")
	require.ErrorIs(t, err, ErrInvalidStatus)

	o, err = e.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Len(t, o.Information.Metadata.StatusHistory, 2)
}

func TestUpdateStatusEmitsNotification(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)

	_, err = e.svc.UpdateStatus(ctx, res.Order.ID, StatusAcknowledged)
	require.NoError(t, err)

	require.Len(t, e.notifier.created, 2)
	n := e.notifier.created[1]
	assert.Equal(t, notify.TypeOrderStatusUpdate, n.Type)
	assert.Equal(t, res.Order.Information.OrderCode, n.Data["orderCode"])
	assert.Contains(t, e.sink.topics, TopicOrderStatusUpdated)
}

func TestAssignIsExclusive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	id := res.Order.ID

	o, err := e.svc.Assign(ctx, id, "u1")
	require.NoError(t, err)
	require.NotNil(t, o.UserID)
	assert.Equal(t, "u1", *o.UserID)

	// assignee mirrored onto notifications
	require.NotEmpty(t, e.notifier.assignees)
	last := e.notifier.assignees[len(e.notifier.assignees)-1]
	require.NotNil(t, last.assignee)
	assert.Equal(t, "Anh", last.assignee.UserName)
	assert.Contains(t, e.notifier.broadcasts, "order-assigned")

	_, err = e.svc.Assign(ctx, id, "u2")
	require.ErrorIs(t, err, ErrAlreadyAssigned)
	assert.Contains(t, err.Error(), "Anh")
}

func TestAssignUnknownUser(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Create(context.Background(), singleInput("comp-a", 1))
	require.NoError(t, err)

	_, err = e.svc.Assign(context.Background(), res.Order.ID, "ghost")
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestUnassign(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = e.svc.Unassign(ctx, id)
	assert.ErrorIs(t, err, ErrNotAssigned)

	_, err = e.svc.Assign(ctx, id, "u1")
	require.NoError(t, err)

	o, err := e.svc.Unassign(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, o.UserID)

	last := e.notifier.assignees[len(e.notifier.assignees)-1]
	assert.Nil(t, last.assignee)
}

func TestTransferGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = e.svc.Transfer(ctx, id, "u1", "binh@example.com")
	assert.ErrorIs(t, err, ErrNotAssignee, "unassigned order cannot be transferred")

	_, err = e.svc.Assign(ctx, id, "u1")
	require.NoError(t, err)

	_, err = e.svc.Transfer(ctx, id, "u2", "anh@example.com")
	assert.ErrorIs(t, err, ErrNotAssignee)

	_, err = e.svc.Transfer(ctx, id, "u1", "anh@example.com")
	assert.ErrorIs(t, err, ErrSelfTransfer)

	_, err = e.svc.Transfer(ctx, id, "u1", "nobody@example.com")
	assert.ErrorIs(t, err, users.ErrNotFound)

	o, err := e.svc.Transfer(ctx, id, "u1", "binh@example.com")
	require.NoError(t, err)
	require.NotNil(t, o.UserID)
	assert.Equal(t, "u2", *o.UserID)
	assert.Contains(t, e.notifier.broadcasts, "order-transferred")
}

// Exclusivity when two claims interleave: the stale reader must lose at the
// guarded update, not overwrite the winner.
func TestAssignLosesInterleavedClaim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	id := res.Order.ID

	// another request claimed the order after our read
	u2 := "u2"
	o := e.store.orders[id]
	o.UserID = &u2
	e.store.orders[id] = o
	e.store.getHook = func(o Order) Order { o.UserID = nil; return o }

	_, err = e.svc.Assign(ctx, id, "u1")
	require.ErrorIs(t, err, ErrAlreadyAssigned)
	assert.Contains(t, err.Error(), "Binh")
	assert.Equal(t, "u2", *e.store.orders[id].UserID, "the winner keeps the order")
}

func TestTransferLosesWhenAssigneeChangedMidFlight(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	id := res.Order.ID

	// the order moved to u2 after our read claimed to see u1
	u1, u2 := "u1", "u2"
	o := e.store.orders[id]
	o.UserID = &u2
	e.store.orders[id] = o
	e.store.getHook = func(o Order) Order { o.UserID = &u1; return o }

	_, err = e.svc.Transfer(ctx, id, "u1", "binh@example.com")
	assert.ErrorIs(t, err, ErrNotAssignee)
	assert.Equal(t, "u2", *e.store.orders[id].UserID)
}

func TestUnassignRetriesAfterConcurrentTransfer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	id := res.Order.ID
	_, err = e.svc.Assign(ctx, id, "u2")
	require.NoError(t, err)

	// stale read still shows u1; the guarded clear fails once, then re-reads
	u1 := "u1"
	e.store.getHook = func(o Order) Order { o.UserID = &u1; return o }

	o, err := e.svc.Unassign(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, o.UserID)
	assert.Nil(t, e.store.orders[id].UserID)
}

func TestUpdateStatusRetriesAfterConcurrentTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.Create(ctx, singleInput("comp-a", 1))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = e.svc.UpdateStatus(ctx, id, StatusAcknowledged)
	require.NoError(t, err)

	// stale read predates the acknowledged transition
	e.store.getHook = func(o Order) Order {
		o.Status = StatusPending
		o.Information.Metadata.StatusHistory = nil
		return o
	}

	o, err := e.svc.UpdateStatus(ctx, id, StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)

	hist := o.Information.Metadata.StatusHistory
	require.Len(t, hist, 2, "the concurrent transition's entry survives")
	assert.Equal(t, StatusAcknowledged, hist[0].From)
	assert.Equal(t, StatusPaid, hist[0].To)
	assert.Equal(t, StatusPending, hist[1].From)
	assert.Equal(t, StatusAcknowledged, hist[1].To)
}
