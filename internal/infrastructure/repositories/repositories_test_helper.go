package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createBridgeTransferTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE bridge_transfers (
		id TEXT PRIMARY KEY,
		source_chain_id TEXT NOT NULL,
		dest_chain_id TEXT NOT NULL,
		source_address TEXT NOT NULL,
		dest_address TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		fee_amount TEXT DEFAULT '0',
		direction TEXT NOT NULL,
		phase TEXT NOT NULL,
		reject_reason TEXT,
		revert_reason TEXT,
		source_tx_hash TEXT,
		source_block INTEGER DEFAULT 0,
		confirmations INTEGER DEFAULT 0,
		proof_blob BLOB,
		dest_tx_hash TEXT,
		unlock_tx_hash TEXT,
		expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createDetectedAttackTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE detected_attacks (
		id TEXT PRIMARY KEY,
		tx_id TEXT NOT NULL,
		source_address TEXT NOT NULL,
		flags TEXT NOT NULL,
		severity TEXT NOT NULL,
		detected_at DATETIME NOT NULL
	);`)
}
