package db

import (
	"context"

	"github.com/affordindia/affordindia-sub004/models"
)

// Database is the Order Store: the sole writer of canonical order state.
// Operations are atomic per order only.
type Database interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
	GetOrder(ctx context.Context, id string) (models.Order, error)
	SetStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error)
	SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (models.Order, error)
	AttachShipment(ctx context.Context, id string, shipment models.Shipment) (models.Order, error)
	DeleteOrder(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}
