// Package testdb opens throwaway SQLite databases carrying the order and
// payment tables, for package tests that exercise gorm repositories.
package testdb

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL,
		product_type TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		phone TEXT NOT NULL,
		email TEXT,
		status TEXT NOT NULL DEFAULT 'order_received',
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_plan TEXT NOT NULL DEFAULT 'full',
		fulfilment TEXT NOT NULL,
		delivery_zone TEXT,
		delivery_address TEXT,
		delivery_lat REAL,
		delivery_lng REAL,
		fulfilment_at DATETIME,
		subtotal INTEGER NOT NULL,
		delivery_fee INTEGER NOT NULL DEFAULT 0,
		total_amount INTEGER NOT NULL,
		deposit_amount INTEGER NOT NULL DEFAULT 0,
		amount_paid INTEGER NOT NULL DEFAULT 0,
		amount_due INTEGER NOT NULL,
		last_request_amount INTEGER,
		last_checkout_request_id TEXT,
		transaction_id TEXT,
		notes TEXT,
		payment_updated_at DATETIME,
		last_push_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT orders_order_number_key UNIQUE (order_number),
		CHECK (amount_paid >= 0 AND amount_due >= 0),
		CHECK (amount_paid + amount_due = total_amount)
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_type TEXT NOT NULL,
		name TEXT NOT NULL,
		size TEXT NOT NULL,
		flavour TEXT,
		toppings TEXT,
		message TEXT,
		quantity INTEGER NOT NULL,
		unit_price INTEGER NOT NULL,
		line_total INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE payment_attempts (
		id TEXT PRIMARY KEY,
		order_id TEXT,
		source TEXT NOT NULL,
		checkout_request_id TEXT,
		merchant_request_id TEXT,
		receipt TEXT,
		order_ref TEXT,
		outcome TEXT NOT NULL,
		result_code INTEGER,
		result_desc TEXT,
		amount INTEGER,
		phone TEXT,
		raw_payload TEXT NOT NULL DEFAULT '{}',
		processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT payment_attempts_checkout_request_id_key UNIQUE (checkout_request_id),
		CONSTRAINT payment_attempts_receipt_key UNIQUE (receipt)
	)`,
	`CREATE TABLE payment_ledger_entries (
		checkout_request_id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		merchant_request_id TEXT,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		receipt TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE idempotency_records (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		status TEXT NOT NULL,
		request_hash TEXT,
		result TEXT,
		expires_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT idempotency_records_scope_key UNIQUE (scope, idempotency_key)
	)`,
}

// Open returns an in-memory database private to t with the full schema applied.
// The pool is pinned to one connection so transactions never contend with
// the shared cache.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
