package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/internal/view"
	"github.com/affordindia/affordindia-sub004/models"
)

// Store is the remote order authority the gateway mirrors.
type Store interface {
	List(ctx context.Context) ([]models.Order, error)
	Get(ctx context.Context, id string) (models.Order, error)
	SetStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error)
	SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (models.Order, error)
	Delete(ctx context.Context, id string) error
}

type field int

const (
	fieldStatus field = iota
	fieldPayment
)

func (f field) String() string {
	if f == fieldPayment {
		return "paymentStatus"
	}
	return "status"
}

type opKey struct {
	id    string
	field field
}

type Option func(*Gateway)

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithNotify registers fn to be called after every change to the working
// set, including optimistic ones. fn runs without the gateway lock held.
func WithNotify(fn func()) Option {
	return func(g *Gateway) {
		g.notify = fn
	}
}

// Gateway owns the client-side working set of orders. The set is replaced
// wholesale by FetchAll and patched only by the gateway's own mutations.
type Gateway struct {
	store  Store
	logger *zap.SugaredLogger
	notify func()

	mu    sync.Mutex
	ids   []string
	views map[string]models.OrderView
	// confirmed holds the last value known to be stored for each order.
	confirmed map[string]models.Order

	seq          map[opKey]uint64
	confirmedSeq map[opKey]uint64
	rolledBack   map[opKey]uint64 // newest failed request that was rolled back
	inflight     map[string]int
	generation   uint64
	fetchSeq     uint64

	banner   error
	opErrors map[string]error
}

func New(store Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:        store,
		logger:       zap.NewNop().Sugar(),
		notify:       func() {},
		views:        make(map[string]models.OrderView),
		confirmed:    make(map[string]models.Order),
		seq:          make(map[opKey]uint64),
		confirmedSeq: make(map[opKey]uint64),
		rolledBack:   make(map[opKey]uint64),
		inflight:     make(map[string]int),
		opErrors:     make(map[string]error),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FetchAll replaces the working set with the store's current list. On
// failure the previous set is kept and the error becomes the banner.
func (g *Gateway) FetchAll(ctx context.Context) error {
	g.mu.Lock()
	g.fetchSeq++
	mySeq := g.fetchSeq
	g.mu.Unlock()

	orders, err := g.store.List(ctx)

	g.mu.Lock()
	if mySeq != g.fetchSeq {
		g.mu.Unlock()
		g.logger.Debugw("discarding superseded fetch", "seq", mySeq)
		return err
	}
	if err != nil {
		g.banner = err
		g.mu.Unlock()
		g.logger.Warnw("failed to fetch orders", "error", err)
		g.notify()
		return err
	}

	ids := make([]string, 0, len(orders))
	views := make(map[string]models.OrderView, len(orders))
	confirmed := make(map[string]models.Order, len(orders))
	for _, v := range view.NormalizeAll(orders) {
		if _, dup := views[v.ID]; !dup {
			ids = append(ids, v.ID)
		}
		views[v.ID] = v
		confirmed[v.ID] = v.Raw
	}
	g.ids, g.views, g.confirmed = ids, views, confirmed
	g.confirmedSeq = make(map[opKey]uint64)
	g.rolledBack = make(map[opKey]uint64)
	g.opErrors = make(map[string]error)
	g.banner = nil
	g.generation++
	g.mu.Unlock()

	g.logger.Debugw("orders fetched", "count", len(ids))
	g.notify()
	return nil
}

// ChangeStatus shows status for id immediately, then asks the store. A
// failure rolls the field back to its last confirmed value.
func (g *Gateway) ChangeStatus(ctx context.Context, id string, status models.OrderStatus) error {
	if !status.Valid() {
		return g.reject(id, apperr.New(apperr.KindValidation, fmt.Sprintf("unknown order status %q", status)))
	}
	return g.mutate(ctx, id, fieldStatus,
		func(o *models.Order) { o.Status = status },
		func(o *models.Order, from models.Order) { o.Status = from.Status },
		func(ctx context.Context) error {
			_, err := g.store.SetStatus(ctx, id, status)
			return err
		},
	)
}

// ConfirmPayment is ChangeStatus for the payment axis.
func (g *Gateway) ConfirmPayment(ctx context.Context, id string, status models.PaymentStatus) error {
	if !status.Valid() {
		return g.reject(id, apperr.New(apperr.KindValidation, fmt.Sprintf("unknown payment status %q", status)))
	}
	return g.mutate(ctx, id, fieldPayment,
		func(o *models.Order) { o.PaymentStatus = status },
		func(o *models.Order, from models.Order) { o.PaymentStatus = from.PaymentStatus },
		func(ctx context.Context) error {
			_, err := g.store.SetPaymentStatus(ctx, id, status)
			return err
		},
	)
}

func (g *Gateway) mutate(
	ctx context.Context,
	id string,
	f field,
	apply func(*models.Order),
	restore func(o *models.Order, from models.Order),
	call func(context.Context) error,
) error {
	key := opKey{id: id, field: f}

	g.mu.Lock()
	current, ok := g.views[id]
	if !ok {
		g.mu.Unlock()
		return g.reject(id, apperr.New(apperr.KindNotFound, fmt.Sprintf("order %s is not loaded", id)))
	}
	raw := current.Raw
	apply(&raw)
	g.views[id] = view.Normalize(raw)
	g.seq[key]++
	mySeq := g.seq[key]
	gen := g.generation
	g.inflight[id]++
	delete(g.opErrors, id)
	g.mu.Unlock()
	g.notify()

	err := call(ctx)

	g.mu.Lock()
	g.inflight[id]--
	if g.inflight[id] <= 0 {
		delete(g.inflight, id)
	}
	sameGen := gen == g.generation
	latest := mySeq == g.seq[key]

	if err == nil {
		if sameGen && mySeq > g.confirmedSeq[key] {
			if base, ok := g.confirmed[id]; ok {
				apply(&base)
				g.confirmed[id] = base
				g.confirmedSeq[key] = mySeq
			}
			// The newest request already failed and restored an older
			// baseline; show the value this request just confirmed.
			if v, ok := g.views[id]; ok && g.rolledBack[key] == g.seq[key] {
				raw := v.Raw
				apply(&raw)
				g.views[id] = view.Normalize(raw)
			}
		}
		g.mu.Unlock()
		g.notify()
		return nil
	}

	if !latest {
		g.mu.Unlock()
		g.logger.Debugw("discarding superseded failure", "order_id", id, "field", f, "error", err)
		return err
	}

	if v, ok := g.views[id]; ok {
		if sameGen {
			if base, ok := g.confirmed[id]; ok {
				raw := v.Raw
				restore(&raw, base)
				g.views[id] = view.Normalize(raw)
				g.rolledBack[key] = mySeq
			}
		}
		g.opErrors[id] = err
	}
	g.mu.Unlock()

	g.logger.Warnw("order mutation failed", "order_id", id, "field", f, "rolled_back", sameGen, "error", err)
	g.notify()
	return err
}

// Refresh reloads a single order from the store and replaces its entry, or
// appends it when it is not in the working set yet.
func (g *Gateway) Refresh(ctx context.Context, id string) error {
	order, err := g.store.Get(ctx, id)

	g.mu.Lock()
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			g.remove(id)
		} else if _, ok := g.views[id]; ok {
			g.opErrors[id] = err
		}
		g.mu.Unlock()
		g.logger.Warnw("failed to refresh order", "order_id", id, "error", err)
		g.notify()
		return err
	}

	if _, ok := g.views[id]; !ok {
		g.ids = append(g.ids, id)
	}
	g.views[id] = view.Normalize(order)
	g.confirmed[id] = order
	delete(g.opErrors, id)
	g.mu.Unlock()
	g.notify()
	return nil
}

// DeleteOrder removes id from the working set once the store confirms.
func (g *Gateway) DeleteOrder(ctx context.Context, id string) error {
	g.mu.Lock()
	g.inflight[id]++
	delete(g.opErrors, id)
	g.mu.Unlock()
	g.notify()

	err := g.store.Delete(ctx, id)

	g.mu.Lock()
	g.inflight[id]--
	if g.inflight[id] <= 0 {
		delete(g.inflight, id)
	}
	if err != nil {
		if _, ok := g.views[id]; ok {
			g.opErrors[id] = err
		}
		g.mu.Unlock()
		g.logger.Warnw("failed to delete order", "order_id", id, "error", err)
		g.notify()
		return err
	}

	g.remove(id)
	g.mu.Unlock()
	g.logger.Infow("order deleted", "order_id", id)
	g.notify()
	return nil
}

// remove drops id from every index. Callers hold g.mu.
func (g *Gateway) remove(id string) {
	if _, ok := g.views[id]; !ok {
		return
	}
	delete(g.views, id)
	delete(g.confirmed, id)
	delete(g.opErrors, id)
	for _, f := range []field{fieldStatus, fieldPayment} {
		delete(g.seq, opKey{id: id, field: f})
		delete(g.confirmedSeq, opKey{id: id, field: f})
		delete(g.rolledBack, opKey{id: id, field: f})
	}
	for i, v := range g.ids {
		if v == id {
			g.ids = append(g.ids[:i:i], g.ids[i+1:]...)
			break
		}
	}
}

func (g *Gateway) reject(id string, err error) error {
	g.mu.Lock()
	if _, ok := g.views[id]; ok {
		g.opErrors[id] = err
	}
	g.mu.Unlock()
	g.logger.Warnw("order mutation rejected", "order_id", id, "error", err)
	g.notify()
	return err
}

// Orders returns the working set in store order.
func (g *Gateway) Orders() []models.OrderView {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]models.OrderView, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.views[id])
	}
	return out
}

func (g *Gateway) Order(id string) (models.OrderView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.views[id]
	return v, ok
}

// Err is the banner error of the last failed fetch, cleared by a successful one.
func (g *Gateway) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.banner
}

func (g *Gateway) OperationError(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opErrors[id]
}

func (g *Gateway) OperationErrors() map[string]error {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]error, len(g.opErrors))
	for id, err := range g.opErrors {
		out[id] = err
	}
	return out
}

// Pending reports whether a request for id is still outstanding.
func (g *Gateway) Pending(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight[id] > 0
}
