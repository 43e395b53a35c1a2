package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/internal/auth"
	"github.com/affordindia/affordindia-sub004/internal/db"
	"github.com/affordindia/affordindia-sub004/internal/events"
	"github.com/affordindia/affordindia-sub004/internal/metrics"
	"github.com/affordindia/affordindia-sub004/internal/middleware"
	"github.com/affordindia/affordindia-sub004/internal/respond"
	"github.com/affordindia/affordindia-sub004/models"
)

type Handler struct {
	Database db.Database
	Events   *events.Dispatcher
	Metrics  *metrics.ServerMetrics
	Issuer   *auth.Issuer
	Admin    auth.Admin
	Logger   *zap.SugaredLogger
}

type ordersResponse struct {
	Success bool           `json:"success"`
	Orders  []models.Order `json:"orders"`
}

type orderResponse struct {
	Success bool         `json:"success"`
	Order   models.Order `json:"order"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type paymentRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var credentials models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		respond.Error(w, apperr.Wrap(apperr.KindValidation, "error decoding credentials", err), h.Logger)
		return
	}

	if !h.Admin.Check(credentials.Email, credentials.Password) {
		h.Logger.Warnw("rejected admin login", "email", credentials.Email)
		respond.Error(w, apperr.New(apperr.KindUnauthorized, "invalid email or password"), h.Logger)
		return
	}

	token, err := h.Issuer.BuildJWT(credentials.Email)
	if err != nil {
		h.Logger.Errorw("error building JWT", "error", err)
		respond.Error(w, err, h.Logger)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	respond.JSON(w, http.StatusOK, models.LoginResponse{Success: true, Token: token}, h.Logger)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Database.ListOrders(r.Context())
	if err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	respond.JSON(w, http.StatusOK, ordersResponse{Success: true, Orders: orders}, h.Logger)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Database.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	respond.JSON(w, http.StatusOK, orderResponse{Success: true, Order: order}, h.Logger)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		respond.Error(w, err, h.Logger)
		return
	}

	order, err := h.Database.SetStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	h.audit(r, "order status changed", "order_id", order.ID, "status", order.Status)
	h.publish(events.NewEvent(events.StatusChanged, order))
	respond.JSON(w, http.StatusOK, orderResponse{Success: true, Order: order}, h.Logger)
}

func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	status, err := models.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		respond.Error(w, err, h.Logger)
		return
	}

	order, err := h.Database.SetPaymentStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	h.audit(r, "payment status changed", "order_id", order.ID, "payment_status", order.PaymentStatus)
	h.publish(events.NewEvent(events.PaymentChanged, order))
	respond.JSON(w, http.StatusOK, orderResponse{Success: true, Order: order}, h.Logger)
}

func (h *Handler) AttachShipment(w http.ResponseWriter, r *http.Request) {
	var shipment models.Shipment
	if err := decode(r, &shipment); err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	shipment.ShipmentID = strings.TrimSpace(shipment.ShipmentID)
	shipment.AWBCode = strings.TrimSpace(shipment.AWBCode)
	shipment.CourierName = strings.TrimSpace(shipment.CourierName)

	order, err := h.Database.AttachShipment(r.Context(), chi.URLParam(r, "id"), shipment)
	if err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	h.audit(r, "shipment attached", "order_id", order.ID, "shipment_id", shipment.ShipmentID)
	h.publish(events.NewEvent(events.ShipmentChanged, order))
	respond.JSON(w, http.StatusOK, orderResponse{Success: true, Order: order}, h.Logger)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Database.DeleteOrder(r.Context(), id); err != nil {
		respond.Error(w, err, h.Logger)
		return
	}
	h.audit(r, "order deleted", "order_id", id)
	h.publish(events.NewDeletedEvent(id))
	respond.JSON(w, http.StatusOK, successResponse{Success: true}, h.Logger)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Database.Ping(r.Context()); err != nil {
		h.Logger.Warnw("health check failed", "error", err)
		respond.JSON(w, http.StatusServiceUnavailable, successResponse{Success: false}, h.Logger)
		return
	}
	respond.JSON(w, http.StatusOK, successResponse{Success: true}, h.Logger)
}

// audit logs a confirmed mutation together with the admin who made it.
func (h *Handler) audit(r *http.Request, msg string, keysAndValues ...any) {
	h.Logger.Infow(msg, append(keysAndValues, "admin", middleware.Subject(r.Context()))...)
}

func (h *Handler) publish(event events.Event) {
	if h.Metrics != nil {
		h.Metrics.Events.WithLabelValues(string(event.Type)).Inc()
	}
	if h.Events == nil {
		return
	}
	h.Events.Dispatch(event)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "request body is not valid JSON", err)
	}
	return nil
}
