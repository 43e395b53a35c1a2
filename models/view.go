package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DisplayKind string

const (
	DisplayUnknown          DisplayKind = "unknown"
	DisplayAwaitingPayment  DisplayKind = "awaiting_payment"
	DisplayPaymentFailed    DisplayKind = "payment_failed"
	DisplayPending          DisplayKind = "pending"
	DisplayProcessing       DisplayKind = "processing"
	DisplayReadyForShipment DisplayKind = "ready_for_shipment"
	DisplayTracking         DisplayKind = "tracking"
	DisplayShipped          DisplayKind = "shipped"
	DisplayDelivered        DisplayKind = "delivered"
	DisplayRefunded         DisplayKind = "refunded"
	DisplayCancelled        DisplayKind = "cancelled"
)

// DisplayState is the single human-facing summary of an order.
type DisplayState struct {
	Kind         DisplayKind `json:"kind"`
	Label        string      `json:"label"`
	TrackingCode string      `json:"trackingCode,omitempty"`
	Courier      string      `json:"courier,omitempty"`
}

// OrderView is the flattened, client-side projection of an Order. It is never
// persisted and is rebuilt on every fetch.
type OrderView struct {
	ID            string
	CustomerName  string
	Email         string
	ItemsCount    int
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Total         decimal.Decimal
	CreatedAt     time.Time
	Display       DisplayState
	Raw           Order
}
