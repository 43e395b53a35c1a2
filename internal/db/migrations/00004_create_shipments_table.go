package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(UpShipmentsTable, DownShipmentsTable)
}

func UpShipmentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE TABLE shipments
(
    order_id TEXT PRIMARY KEY REFERENCES orders (id) ON DELETE CASCADE,
    shipment_id VARCHAR(255) NOT NULL,
    awb_code VARCHAR(255) NOT NULL DEFAULT '',
    courier_name VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL
);`)
	return err
}

func DownShipmentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE shipments;")
	return err
}
