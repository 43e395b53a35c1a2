package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/internal/db/migrations"
	"github.com/affordindia/affordindia-sub004/models"
)

const selectOrders = `
SELECT o.id, o.user_id, c.id, c.name, c.email, o.status, o.payment_status, o.total, o.created_at,
       s.shipment_id, s.awb_code, s.courier_name
FROM orders o
LEFT JOIN customers c ON c.id = o.user_id
LEFT JOIN shipments s ON s.order_id = o.id`

type Manager struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewManager(ctx context.Context, databaseURI string, logger *zap.SugaredLogger) (*Manager, error) {
	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err = goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err = goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db, logger: logger}, nil
}

// NewManagerFromDB wraps an already opened and migrated connection.
func NewManagerFromDB(db *sql.DB, logger *zap.SugaredLogger) *Manager {
	return &Manager{db: db, logger: logger}
}

func (m *Manager) ListOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := m.db.QueryContext(ctx, selectOrders+` ORDER BY o.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	index := make(map[string]int)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		index[order.ID] = len(orders)
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	itemRows, err := m.db.QueryContext(ctx, `SELECT order_id, product_id, quantity, price FROM order_items ORDER BY order_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var orderID string
		var item models.OrderItem
		if err = itemRows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		i, ok := index[orderID]
		if !ok {
			continue
		}
		orders[i].Items = append(orders[i].Items, item)
	}
	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}

	return orders, nil
}

func (m *Manager) GetOrder(ctx context.Context, id string) (models.Order, error) {
	order, err := scanOrder(m.db.QueryRowContext(ctx, selectOrders+` WHERE o.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, notFound(id)
	}
	if err != nil {
		return models.Order{}, err
	}

	rows, err := m.db.QueryContext(ctx, `SELECT product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err = rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return models.Order{}, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err = rows.Err(); err != nil {
		return models.Order{}, fmt.Errorf("failed to get order items: %w", err)
	}

	return order, nil
}

func (m *Manager) SetStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var current models.OrderStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}

		var items int
		if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, id).Scan(&items); err != nil {
			return fmt.Errorf("failed to count order items: %w", err)
		}

		if err = models.ValidateStatusTransition(current, status, items); err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		m.logger.Infow("order status changed", "order_id", id, "from", current, "to", status)
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	return m.GetOrder(ctx, id)
}

func (m *Manager) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (models.Order, error) {
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var current models.PaymentStatus
		err := tx.QueryRowContext(ctx, `SELECT payment_status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}

		if err = models.ValidatePaymentTransition(current, status); err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx, `UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1`, id, status); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		m.logger.Infow("payment status changed", "order_id", id, "from", current, "to", status)
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	return m.GetOrder(ctx, id)
}

func (m *Manager) AttachShipment(ctx context.Context, id string, shipment models.Shipment) (models.Order, error) {
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var status models.OrderStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if status == models.OrderCancelled {
			return apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("order %s is cancelled", id))
		}

		var existing models.Shipment
		err = tx.QueryRowContext(ctx, `SELECT shipment_id, awb_code, courier_name FROM shipments WHERE order_id = $1`, id).
			Scan(&existing.ShipmentID, &existing.AWBCode, &existing.CourierName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to get shipment: %w", err)
		}

		merged, err := existing.Merge(shipment)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO shipments (order_id, shipment_id, awb_code, courier_name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (order_id) DO UPDATE SET awb_code = EXCLUDED.awb_code, courier_name = EXCLUDED.courier_name
		`, id, merged.ShipmentID, merged.AWBCode, merged.CourierName)
		if err != nil {
			return fmt.Errorf("failed to save shipment: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	return m.GetOrder(ctx, id)
}

func (m *Manager) DeleteOrder(ctx context.Context, id string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	m.logger.Infow("order deleted", "order_id", id)
	return nil
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func (m *Manager) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Warnw("rollback failed", "error", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (models.Order, error) {
	var (
		order                        models.Order
		userID                       string
		custID, custName, custEmail  sql.NullString
		shipID, shipAWB, shipCourier sql.NullString
		total                        decimal.Decimal
	)
	err := row.Scan(&order.ID, &userID, &custID, &custName, &custEmail, &order.Status, &order.PaymentStatus,
		&total, &order.CreatedAt, &shipID, &shipAWB, &shipCourier)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, err
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to scan order: %w", err)
	}

	order.Total = total
	order.User = models.UserRef{ID: userID}
	if custID.Valid {
		order.User = models.UserRef{ID: custID.String, Name: custName.String, Email: custEmail.String, Resolved: true}
	}
	if shipID.Valid {
		order.Shipment = &models.Shipment{ShipmentID: shipID.String, AWBCode: shipAWB.String, CourierName: shipCourier.String}
	}
	return order, nil
}

func notFound(id string) error {
	return apperr.New(apperr.KindNotFound, fmt.Sprintf("order %s not found", id))
}
