package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/models"
)

type Type string

const (
	StatusChanged   Type = "order.status_changed"
	PaymentChanged  Type = "order.payment_changed"
	ShipmentChanged Type = "order.shipment_attached"
	Deleted         Type = "order.deleted"
)

// Event describes a confirmed mutation of an order.
type Event struct {
	EventID       string               `json:"eventId"`
	Type          Type                 `json:"type"`
	OrderID       string               `json:"orderId"`
	Status        models.OrderStatus   `json:"status,omitempty"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus,omitempty"`
	Shipment      *models.Shipment     `json:"shipment,omitempty"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

func NewEvent(t Type, order models.Order) Event {
	return Event{
		EventID:       uuid.NewString(),
		Type:          t,
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Shipment:      order.Shipment,
		OccurredAt:    time.Now().UTC(),
	}
}

func NewDeletedEvent(orderID string) Event {
	return Event{
		EventID:    uuid.NewString(),
		Type:       Deleted,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Dispatcher hands events to a Publisher off the request path.
type Dispatcher struct {
	Publisher Publisher
	Events    chan Event
	Logger    *zap.SugaredLogger
	timeout   time.Duration
}

func NewDispatcher(publisher Publisher, buffer int, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		Publisher: publisher,
		Events:    make(chan Event, buffer),
		Logger:    logger,
		timeout:   5 * time.Second,
	}
}

// Dispatch queues the event. It never blocks; a full queue drops the event.
func (d *Dispatcher) Dispatch(event Event) {
	select {
	case d.Events <- event:
	default:
		d.Logger.Warnw("event queue full, dropping event", "type", event.Type, "order_id", event.OrderID)
	}
}

// Start publishes queued events until ctx is done or the channel is closed.
func (d *Dispatcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Logger.Info("context done")
			d.drain()
			return
		case event, ok := <-d.Events:
			if !ok {
				d.Logger.Info("event channel closed")
				return
			}
			d.publish(ctx, event)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event, ok := <-d.Events:
			if !ok {
				return
			}
			d.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.Publisher.Publish(ctx, event); err != nil {
		d.Logger.Warnw("failed to publish event", "type", event.Type, "order_id", event.OrderID, "error", err)
	}
}
