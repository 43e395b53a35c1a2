package view

import (
	"strings"

	"github.com/affordindia/affordindia-sub004/models"
)

// MissingEmail stands in for the email of an unresolved customer.
const MissingEmail = "N/A"

func Normalize(o models.Order) models.OrderView {
	return models.OrderView{
		ID:            o.ID,
		CustomerName:  customerName(o.User),
		Email:         customerEmail(o.User),
		ItemsCount:    len(o.Items),
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
		Display:       Project(o.Status, o.PaymentStatus, o.Shipment),
		Raw:           o,
	}
}

func NormalizeAll(orders []models.Order) []models.OrderView {
	views := make([]models.OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, Normalize(o))
	}
	return views
}

func customerName(u models.UserRef) string {
	if u.Resolved && strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.ID
}

func customerEmail(u models.UserRef) string {
	if u.Resolved && strings.TrimSpace(u.Email) != "" {
		return u.Email
	}
	return MissingEmail
}
