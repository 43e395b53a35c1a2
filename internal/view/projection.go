// Package view derives display data from canonical orders.
package view

import (
	"fmt"

	"github.com/affordindia/affordindia-sub004/models"
)

// Project combines the two status axes and shipment metadata into one display
// state. It is defined for every input, including values outside the enums.
func Project(status models.OrderStatus, payment models.PaymentStatus, shipment *models.Shipment) models.DisplayState {
	if status == models.OrderCancelled {
		if payment == models.PaymentRefunded {
			return models.DisplayState{Kind: models.DisplayCancelled, Label: "Cancelled (refunded)"}
		}
		return models.DisplayState{Kind: models.DisplayCancelled, Label: "Cancelled"}
	}

	if shipment != nil && shipment.AWBCode != "" {
		return models.DisplayState{
			Kind:         models.DisplayTracking,
			Label:        fmt.Sprintf("Tracking %s", shipment.AWBCode),
			TrackingCode: shipment.AWBCode,
			Courier:      shipment.CourierName,
		}
	}

	if shipment != nil && status == models.OrderProcessing {
		return models.DisplayState{Kind: models.DisplayReadyForShipment, Label: "Ready for shipment", Courier: shipment.CourierName}
	}

	return fromStatus(status, payment)
}

func fromStatus(status models.OrderStatus, payment models.PaymentStatus) models.DisplayState {
	if !status.Valid() {
		return models.DisplayState{Kind: models.DisplayUnknown, Label: fmt.Sprintf("Unknown (%s)", status)}
	}
	if payment == models.PaymentFailed && !status.IsTerminal() {
		return models.DisplayState{Kind: models.DisplayPaymentFailed, Label: "Payment failed"}
	}

	switch status {
	case models.OrderPending:
		if payment == models.PaymentUnpaid {
			return models.DisplayState{Kind: models.DisplayAwaitingPayment, Label: "Awaiting payment"}
		}
		return models.DisplayState{Kind: models.DisplayPending, Label: "Pending"}
	case models.OrderProcessing:
		return models.DisplayState{Kind: models.DisplayProcessing, Label: "Processing"}
	case models.OrderShipped:
		return models.DisplayState{Kind: models.DisplayShipped, Label: "Shipped"}
	default:
		if payment == models.PaymentRefunded {
			return models.DisplayState{Kind: models.DisplayRefunded, Label: "Delivered (refunded)"}
		}
		return models.DisplayState{Kind: models.DisplayDelivered, Label: "Delivered"}
	}
}
