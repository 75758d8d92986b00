package db

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    demo INTEGER NOT NULL DEFAULT 1,
    dry_run INTEGER NOT NULL DEFAULT 1,
    base_stake REAL NOT NULL,
    daily_profit_target REAL NOT NULL,
    daily_loss_limit REAL NOT NULL,
    max_trades INTEGER NOT NULL,
    initial_balance REAL NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    direction TEXT NOT NULL,
    stake REAL NOT NULL,
    profit REAL NOT NULL,
    result TEXT NOT NULL,
    threshold REAL NOT NULL DEFAULT 0,
    z_score REAL NOT NULL DEFAULT 0,
    contract_id TEXT,
    created_at DATETIME NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_trades_session_seq ON trades(session_id, seq);
`

// ApplyMigrations creates tables if they do not exist.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, err := d.DB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Columns added after the first release of the journal.
	if err := ensureColumn(d.DB, "sessions", "stop_reason", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "sessions", "final_balance", "REAL"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "sessions", "total_profit", "REAL"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "sessions", "max_drawdown", "REAL"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "sessions", "ended_at", "DATETIME"); err != nil {
		return err
	}
	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
