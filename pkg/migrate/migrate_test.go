package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsMatchSourceTree(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded()))

	for _, name := range []string{
		"20260301090000_create_enum_types.sql",
		"20260301090100_create_orders.sql",
		"20260301090200_create_payment_tables.sql",
		"20260301090300_create_idempotency_records.sql",
	} {
		f, err := Embedded().Open(name)
		require.NoError(t, err, name)
		_ = f.Close()
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"no down": {"20260301090000_x.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"down first": {
			"20260301090000_x.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		},
		"duplicate version": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260301090000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		assert.Error(t, ValidateFS(fsys), name)
	}

	ok := fstest.MapFS{
		"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"README.md":            {Data: []byte("ignored")},
	}
	assert.NoError(t, ValidateFS(ok))
}
