package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
)

type OrderStatus string

func (s OrderStatus) String() string {
	return string(s)
}

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled}

// next holds the single forward step of the common path.
var next = map[OrderStatus]OrderStatus{
	OrderPending:    OrderProcessing,
	OrderProcessing: OrderShipped,
	OrderShipped:    OrderDelivered,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// RequiresItems reports whether an order in this status must carry line items.
func (s OrderStatus) RequiresItems() bool {
	return s == OrderProcessing || s == OrderShipped || s == OrderDelivered
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	if !s.Valid() || !to.Valid() || s.IsTerminal() {
		return false
	}
	if to == OrderCancelled {
		return true
	}
	return next[s] == to
}

func ParseOrderStatus(v string) (OrderStatus, error) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", apperr.New(apperr.KindValidation, fmt.Sprintf("unknown order status %q", v))
	}
	return s, nil
}

// ValidateStatusTransition is the store-side check applied by every backend.
func ValidateStatusTransition(from, to OrderStatus, itemsCount int) error {
	if !from.CanTransitionTo(to) {
		return apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("order cannot move from %s to %s", from, to))
	}
	if to.RequiresItems() && itemsCount == 0 {
		return apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("order without items cannot be %s", to))
	}
	return nil
}

type PaymentStatus string

func (s PaymentStatus) String() string {
	return string(s)
}

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

var PaymentStatuses = []PaymentStatus{PaymentUnpaid, PaymentPaid, PaymentRefunded, PaymentFailed}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid: {PaymentPaid, PaymentFailed},
	PaymentFailed: {PaymentPaid, PaymentUnpaid},
	PaymentPaid:   {PaymentRefunded},
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentRefunded, PaymentFailed:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ParsePaymentStatus(v string) (PaymentStatus, error) {
	s := PaymentStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", apperr.New(apperr.KindValidation, fmt.Sprintf("unknown payment status %q", v))
	}
	return s, nil
}

func ValidatePaymentTransition(from, to PaymentStatus) error {
	if !to.Valid() {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("unknown payment status %q", to))
	}
	if !from.CanTransitionTo(to) {
		return apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("payment cannot move from %s to %s", from, to))
	}
	return nil
}

// UserRef is either a bare customer id or a customer resolved by the store.
// On the wire the former is a JSON string and the latter an object.
type UserRef struct {
	ID       string
	Name     string
	Email    string
	Resolved bool
}

type resolvedUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u UserRef) MarshalJSON() ([]byte, error) {
	if !u.Resolved {
		return json.Marshal(u.ID)
	}
	return json.Marshal(resolvedUser{ID: u.ID, Name: u.Name, Email: u.Email})
}

func (u *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = UserRef{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*u = UserRef{ID: id}
		return nil
	}
	var r resolvedUser
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*u = UserRef{ID: r.ID, Name: r.Name, Email: r.Email, Resolved: true}
	return nil
}

type OrderItem struct {
	ProductID string          `json:"product"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Shipment is upstream tracking metadata. AWBCode is the tracking code.
type Shipment struct {
	ShipmentID  string `json:"shipmentId"`
	AWBCode     string `json:"awbCode,omitempty"`
	CourierName string `json:"courierName,omitempty"`
}

// Merge applies update on top of s. Fields already set may be repeated but
// never cleared or changed.
func (s Shipment) Merge(update Shipment) (Shipment, error) {
	merged := s
	fields := []struct {
		name      string
		cur, next string
		dst       *string
	}{
		{"shipmentId", s.ShipmentID, update.ShipmentID, &merged.ShipmentID},
		{"awbCode", s.AWBCode, update.AWBCode, &merged.AWBCode},
		{"courierName", s.CourierName, update.CourierName, &merged.CourierName},
	}
	for _, f := range fields {
		switch {
		case f.next == "":
		case f.cur == "":
			*f.dst = f.next
		case f.cur != f.next:
			return s, apperr.New(apperr.KindValidation, fmt.Sprintf("shipment %s is already set to %q", f.name, f.cur))
		}
	}
	if merged.ShipmentID == "" {
		return s, apperr.New(apperr.KindValidation, "shipmentId is required")
	}
	return merged, nil
}

type Order struct {
	ID            string          `json:"_id"`
	User          UserRef         `json:"user"`
	Items         []OrderItem     `json:"items"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"`
	Shipment      *Shipment       `json:"shipment,omitempty"`
}

// Validate checks a raw document received from the store.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return apperr.New(apperr.KindValidation, "order without _id")
	}
	if !o.Status.Valid() {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("order %s has unknown status %q", o.ID, o.Status))
	}
	if !o.PaymentStatus.Valid() {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("order %s has unknown payment status %q", o.ID, o.PaymentStatus))
	}
	if o.Total.IsNegative() {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("order %s has negative total", o.ID))
	}
	for _, it := range o.Items {
		if it.Quantity < 0 {
			return apperr.New(apperr.KindValidation, fmt.Sprintf("order %s has negative quantity for %s", o.ID, it.ProductID))
		}
	}
	return nil
}
