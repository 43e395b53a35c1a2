package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/models"
)

type result struct {
	orders []models.Order
	order  models.Order
	err    error
}

type call struct {
	op    string
	id    string
	value string
	reply chan result
}

// scriptedStore hands every request to the test, which answers it.
type scriptedStore struct {
	calls chan call
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{calls: make(chan call)}
}

func (s *scriptedStore) do(ctx context.Context, op, id, value string) result {
	c := call{op: op, id: id, value: value, reply: make(chan result, 1)}
	select {
	case s.calls <- c:
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
	return <-c.reply
}

func (s *scriptedStore) List(ctx context.Context) ([]models.Order, error) {
	r := s.do(ctx, "list", "", "")
	return r.orders, r.err
}

func (s *scriptedStore) Get(ctx context.Context, id string) (models.Order, error) {
	r := s.do(ctx, "get", id, "")
	return r.order, r.err
}

func (s *scriptedStore) SetStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	r := s.do(ctx, "status", id, string(status))
	return r.order, r.err
}

func (s *scriptedStore) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (models.Order, error) {
	r := s.do(ctx, "payment", id, string(status))
	return r.order, r.err
}

func (s *scriptedStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, "delete", id, "").err
}

func (s *scriptedStore) next(t *testing.T, op string) call {
	t.Helper()
	select {
	case c := <-s.calls:
		require.Equal(t, op, c.op)
		return c
	case <-time.After(time.Second):
		t.Fatalf("no %s call reached the store", op)
		return call{}
	}
}

func async(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("operation did not finish")
		return nil
	}
}

func order(id string, status models.OrderStatus, payment models.PaymentStatus) models.Order {
	return models.Order{
		ID:            id,
		User:          models.UserRef{ID: "u-" + id},
		Items:         []models.OrderItem{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(100)}},
		Status:        status,
		PaymentStatus: payment,
		Total:         decimal.NewFromInt(100),
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// loaded returns a gateway whose working set holds orders.
func loaded(t *testing.T, orders ...models.Order) (*Gateway, *scriptedStore) {
	t.Helper()
	store := newScriptedStore()
	g := New(store)

	done := async(func() error { return g.FetchAll(context.Background()) })
	store.next(t, "list").reply <- result{orders: orders}
	require.NoError(t, wait(t, done))
	return g, store
}

func statusOf(t *testing.T, g *Gateway, id string) models.OrderStatus {
	t.Helper()
	v, ok := g.Order(id)
	require.True(t, ok, "order %s missing from working set", id)
	return v.Status
}

func ids(views []models.OrderView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func TestFetchAllReplacesWorkingSet(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentUnpaid), order("o2", models.OrderShipped, models.PaymentPaid))
	assert.Equal(t, []string{"o1", "o2"}, ids(g.Orders()))

	done := async(func() error { return g.FetchAll(context.Background()) })
	store.next(t, "list").reply <- result{orders: []models.Order{order("o3", models.OrderPending, models.PaymentUnpaid)}}
	require.NoError(t, wait(t, done))

	assert.Equal(t, []string{"o3"}, ids(g.Orders()))
	_, ok := g.Order("o1")
	assert.False(t, ok)
}

func TestFailedFetchKeepsPreviousSet(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentUnpaid), order("o2", models.OrderShipped, models.PaymentPaid))
	before := g.Orders()

	done := async(func() error { return g.FetchAll(context.Background()) })
	store.next(t, "list").reply <- result{err: apperr.New(apperr.KindNetwork, "connection refused")}
	err := wait(t, done)

	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, before, g.Orders())
	assert.ErrorIs(t, g.Err(), apperr.ErrNetwork)
	assert.Contains(t, apperr.Message(g.Err()), "Could not reach")

	done = async(func() error { return g.FetchAll(context.Background()) })
	store.next(t, "list").reply <- result{orders: []models.Order{}}
	require.NoError(t, wait(t, done))
	assert.NoError(t, g.Err())
	assert.Empty(t, g.Orders())
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	g, store := loaded(t)

	first := async(func() error { return g.FetchAll(context.Background()) })
	c1 := store.next(t, "list")
	second := async(func() error { return g.FetchAll(context.Background()) })
	c2 := store.next(t, "list")

	c2.reply <- result{orders: []models.Order{order("new", models.OrderPending, models.PaymentUnpaid)}}
	require.NoError(t, wait(t, second))
	c1.reply <- result{orders: []models.Order{order("old", models.OrderPending, models.PaymentUnpaid)}}
	require.NoError(t, wait(t, first))

	assert.Equal(t, []string{"new"}, ids(g.Orders()))
}

func TestChangeStatusIsVisibleBeforeStoreResolves(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentPaid))

	done := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderProcessing) })
	c := store.next(t, "status")

	assert.Equal(t, models.OrderProcessing, statusOf(t, g, "o1"))
	v, _ := g.Order("o1")
	assert.Equal(t, models.DisplayProcessing, v.Display.Kind)
	assert.True(t, g.Pending("o1"))

	c.reply <- result{}
	require.NoError(t, wait(t, done))
	assert.Equal(t, models.OrderProcessing, statusOf(t, g, "o1"))
	assert.False(t, g.Pending("o1"))
	assert.NoError(t, g.OperationError("o1"))
}

func TestChangeStatusRollsBackOnFailure(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderDelivered, models.PaymentPaid))

	done := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderPending) })
	c := store.next(t, "status")
	assert.Equal(t, models.OrderPending, statusOf(t, g, "o1"))

	c.reply <- result{err: apperr.New(apperr.KindInvalidTransition, "order cannot move from delivered to pending")}
	err := wait(t, done)

	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, models.OrderDelivered, statusOf(t, g, "o1"))
	assert.ErrorIs(t, g.OperationError("o1"), apperr.ErrInvalidTransition)
	assert.Contains(t, g.OperationErrors(), "o1")
}

func TestRollbackTargetsLastConfirmedValue(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentPaid))

	done := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderProcessing) })
	store.next(t, "status").reply <- result{}
	require.NoError(t, wait(t, done))

	done = async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderDelivered) })
	store.next(t, "status").reply <- result{err: apperr.New(apperr.KindInvalidTransition, "no")}
	require.Error(t, wait(t, done))

	assert.Equal(t, models.OrderProcessing, statusOf(t, g, "o1"))
}

func TestSupersededFailureNeverTouchesView(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentPaid))

	older := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderProcessing) })
	c1 := store.next(t, "status")
	newer := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderCancelled) })
	c2 := store.next(t, "status")

	c2.reply <- result{}
	require.NoError(t, wait(t, newer))
	c1.reply <- result{err: apperr.New(apperr.KindInvalidTransition, "stale")}
	require.Error(t, wait(t, older))

	assert.Equal(t, models.OrderCancelled, statusOf(t, g, "o1"))
	assert.NoError(t, g.OperationError("o1"))
}

func TestSupersededSuccessDoesNotOverrideNewerValue(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentPaid))

	older := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderProcessing) })
	c1 := store.next(t, "status")
	newer := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderCancelled) })
	c2 := store.next(t, "status")

	c2.reply <- result{}
	require.NoError(t, wait(t, newer))
	c1.reply <- result{}
	require.NoError(t, wait(t, older))

	assert.Equal(t, models.OrderCancelled, statusOf(t, g, "o1"))
}

func TestLateSuccessAfterNewestFailed(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentPaid))

	older := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderProcessing) })
	c1 := store.next(t, "status")
	newer := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderShipped) })
	c2 := store.next(t, "status")

	c2.reply <- result{err: apperr.New(apperr.KindInvalidTransition, "not yet")}
	require.Error(t, wait(t, newer))
	assert.Equal(t, models.OrderPending, statusOf(t, g, "o1"))

	c1.reply <- result{}
	require.NoError(t, wait(t, older))
	assert.Equal(t, models.OrderProcessing, statusOf(t, g, "o1"))
}

func TestNoRollbackAcrossFetch(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentPaid))

	mutation := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderProcessing) })
	c := store.next(t, "status")

	fetch := async(func() error { return g.FetchAll(context.Background()) })
	store.next(t, "list").reply <- result{orders: []models.Order{order("o1", models.OrderShipped, models.PaymentPaid)}}
	require.NoError(t, wait(t, fetch))

	c.reply <- result{err: apperr.New(apperr.KindNetwork, "timeout")}
	require.Error(t, wait(t, mutation))

	assert.Equal(t, models.OrderShipped, statusOf(t, g, "o1"))
	assert.ErrorIs(t, g.OperationError("o1"), apperr.ErrNetwork)
}

func TestFieldsRollBackIndependently(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentUnpaid))

	status := async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderProcessing) })
	cs := store.next(t, "status")
	payment := async(func() error { return g.ConfirmPayment(context.Background(), "o1", models.PaymentPaid) })
	cp := store.next(t, "payment")

	v, _ := g.Order("o1")
	assert.Equal(t, models.PaymentPaid, v.PaymentStatus)

	cp.reply <- result{err: apperr.New(apperr.KindUnknown, "boom")}
	require.Error(t, wait(t, payment))
	cs.reply <- result{}
	require.NoError(t, wait(t, status))

	v, _ = g.Order("o1")
	assert.Equal(t, models.OrderProcessing, v.Status)
	assert.Equal(t, models.PaymentUnpaid, v.PaymentStatus)
}

func TestChangeStatusUnknownOrder(t *testing.T) {
	g, _ := loaded(t, order("o1", models.OrderPending, models.PaymentPaid))

	err := g.ChangeStatus(context.Background(), "ghost", models.OrderCancelled)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = g.ChangeStatus(context.Background(), "o1", models.OrderStatus("lost"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, models.OrderPending, statusOf(t, g, "o1"))
}

func TestDeleteOrder(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentPaid), order("o2", models.OrderPending, models.PaymentPaid))

	done := async(func() error { return g.DeleteOrder(context.Background(), "o1") })
	c := store.next(t, "delete")
	_, present := g.Order("o1")
	assert.True(t, present, "entry must stay until the store confirms")

	c.reply <- result{err: errors.New("connection reset")}
	require.Error(t, wait(t, done))
	_, present = g.Order("o1")
	assert.True(t, present)
	assert.Error(t, g.OperationError("o1"))

	done = async(func() error { return g.DeleteOrder(context.Background(), "o1") })
	store.next(t, "delete").reply <- result{}
	require.NoError(t, wait(t, done))

	_, present = g.Order("o1")
	assert.False(t, present)
	assert.Equal(t, []string{"o2"}, ids(g.Orders()))
	assert.NoError(t, g.OperationError("o1"))
}

func TestRefresh(t *testing.T) {
	g, store := loaded(t, order("o1", models.OrderPending, models.PaymentPaid))

	done := async(func() error { return g.Refresh(context.Background(), "o1") })
	store.next(t, "get").reply <- result{order: order("o1", models.OrderShipped, models.PaymentPaid)}
	require.NoError(t, wait(t, done))
	assert.Equal(t, models.OrderShipped, statusOf(t, g, "o1"))

	done = async(func() error { return g.Refresh(context.Background(), "o1") })
	store.next(t, "get").reply <- result{err: apperr.New(apperr.KindNotFound, "gone")}
	require.Error(t, wait(t, done))
	_, present := g.Order("o1")
	assert.False(t, present)
}

func TestNotifyFiresOnOptimisticUpdate(t *testing.T) {
	store := newScriptedStore()
	var notified atomic.Int32
	g := New(store, WithNotify(func() { notified.Add(1) }))

	done := async(func() error { return g.FetchAll(context.Background()) })
	store.next(t, "list").reply <- result{orders: []models.Order{order("o1", models.OrderPending, models.PaymentPaid)}}
	require.NoError(t, wait(t, done))
	afterFetch := notified.Load()

	done = async(func() error { return g.ChangeStatus(context.Background(), "o1", models.OrderProcessing) })
	c := store.next(t, "status")
	assert.Greater(t, notified.Load(), afterFetch)

	c.reply <- result{}
	require.NoError(t, wait(t, done))
}
