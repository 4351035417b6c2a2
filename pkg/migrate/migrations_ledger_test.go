package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grainhub/warehouse-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration found", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_ledger")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS ledger_entries",
		"CHECK (total_quantity >= 0)",
		"CHECK (pending_quantity >= 0)",
		"CHECK (hold_quantity >= 0)",
		"UNIQUE (owner_type, owner_id, category_id)",
		"CREATE TABLE IF NOT EXISTS ledger_movements",
		"DROP TABLE IF EXISTS ledger_entries",
	}
	for _, sub := range checks {
		assert.True(t, strings.Contains(content, sub), "missing expected statement %q", sub)
	}
}

func TestTransactionMigrationGuardsLines(t *testing.T) {
	content := readMigration(t, "create_grain_transactions")

	for _, sub := range []string{
		"CHECK (quantity > 0)",
		"CHECK (unit_price >= 0)",
		"CHECK (status IN ('pending', 'completed', 'rejected'))",
		"UNIQUE (transaction_id, category_id)",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	assert.NoError(t, migrate.ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Warehouse Index")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_warehouse_index.sql"))
	assert.NoError(t, migrate.ValidateDir(dir))
}
