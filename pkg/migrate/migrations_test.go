package migrate_test

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovenly/backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestOrdersMigrationEnforcesLedgerBalance(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")
	for _, sub := range []string{
		"CONSTRAINT orders_order_number_key UNIQUE (order_number)",
		"CHECK (amount_paid + amount_due = total_amount)",
		"last_request_amount bigint",
		"DROP TABLE IF EXISTS orders",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentMigrationDeduplicatesDeliveries(t *testing.T) {
	content := readMigration(t, "*_create_payment_tables.sql")
	for _, sub := range []string{
		"CONSTRAINT payment_attempts_checkout_request_id_key UNIQUE (checkout_request_id)",
		"CONSTRAINT payment_attempts_receipt_key UNIQUE (receipt)",
		"checkout_request_id text PRIMARY KEY",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestIdempotencyMigrationIsScoped(t *testing.T) {
	content := readMigration(t, "*_create_idempotency_records.sql")
	if !strings.Contains(content, "UNIQUE (scope, idempotency_key)") {
		t.Fatal("idempotency records must be unique per scope and key")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	fsys := migrate.Embedded()
	matches, err := fs.Glob(fsys, pattern)
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)
	data, err := fs.ReadFile(fsys, matches[0])
	require.NoError(t, err)
	return string(data)
}
