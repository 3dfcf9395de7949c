package repository

import (
	"context"
	"database/sql"
	"time"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS restaurant_tables (
		id BIGINT UNSIGNED PRIMARY KEY,
		branch_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(120) NOT NULL,
		created_at DATETIME NOT NULL,
		KEY idx_tables_branch (branch_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGINT UNSIGNED PRIMARY KEY,
		branch_id BIGINT UNSIGNED NOT NULL,
		customer_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		by_client BOOLEAN NOT NULL DEFAULT FALSE,
		reservation_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL,
		voided BOOLEAN NOT NULL DEFAULT FALSE,
		start_time DATETIME(6) NOT NULL,
		end_time DATETIME(6) NULL,
		note TEXT NOT NULL,
		subtotal DECIMAL(14,4) NOT NULL,
		total DECIMAL(14,4) NOT NULL,
		KEY idx_sales_branch_status (branch_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS sale_products (
		id BIGINT UNSIGNED PRIMARY KEY,
		sale_id BIGINT UNSIGNED NOT NULL,
		product_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(255) NOT NULL,
		price DECIMAL(14,4) NOT NULL,
		amount INT NOT NULL,
		KEY idx_sale_products_sale (sale_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sale_taxes (
		sale_id BIGINT UNSIGNED NOT NULL,
		id BIGINT UNSIGNED NOT NULL,
		position INT NOT NULL,
		name VARCHAR(120) NOT NULL,
		value DECIMAL(14,4) NOT NULL,
		is_percentage BOOLEAN NOT NULL,
		PRIMARY KEY (sale_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS sale_tables (
		sale_id BIGINT UNSIGNED NOT NULL,
		table_id BIGINT UNSIGNED NOT NULL,
		position INT NOT NULL,
		branch_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(120) NOT NULL,
		PRIMARY KEY (sale_id, table_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED PRIMARY KEY,
		branch_id BIGINT UNSIGNED NOT NULL,
		customer_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		by_client BOOLEAN NOT NULL DEFAULT FALSE,
		request_date DATETIME(6) NOT NULL,
		date_in DATETIME(6) NOT NULL,
		date_out DATETIME(6) NOT NULL,
		price DECIMAL(14,4) NOT NULL,
		status VARCHAR(16) NOT NULL,
		table_number INT NOT NULL,
		table_ids VARCHAR(1024) NOT NULL DEFAULT '[]',
		client_number INT NOT NULL,
		occasion VARCHAR(255) NOT NULL DEFAULT '',
		reason VARCHAR(512) NOT NULL DEFAULT '',
		sale_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		updated_at DATETIME(6) NOT NULL,
		KEY idx_reservations_branch_status (branch_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS default_taxes (
		branch_id BIGINT UNSIGNED NOT NULL,
		id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(120) NOT NULL,
		value DECIMAL(14,4) NOT NULL,
		is_percentage BOOLEAN NOT NULL,
		PRIMARY KEY (branch_id, id)
	)`,
}

// Migrate creates the journal tables if they do not exist.  Each statement
// is retried a few times so the service can start while MySQL is still
// warming up.
func Migrate(ctx context.Context, db *sql.DB, retries int) error {
	for _, stmt := range schema {
		var err error
		for i := 0; i <= retries; i++ {
			if _, err = db.ExecContext(ctx, stmt); err == nil {
				break
			}
			select {
			case <-ctx.Done():
				return wrap("migrate", ctx.Err())
			case <-time.After(time.Second):
			}
		}
		if err != nil {
			return wrap("migrate", err)
		}
	}
	return nil
}
