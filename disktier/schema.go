package disktier

import (
	"database/sql"
	"fmt"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS records (
	key TEXT PRIMARY KEY,
	filename TEXT,
	size INTEGER NOT NULL,
	last_access_time REAL NOT NULL,
	last_modified_time REAL NOT NULL,
	extended BLOB,
	inline_value BLOB,
	expire_at REAL
)`

const createLastAccessIndex = `
CREATE INDEX IF NOT EXISTS idx_records_last_access ON records(last_access_time)`

// migrate runs on every Open: it creates the schema if missing and adds
// any optional column introduced by a later revision of this package,
// matching spec.md §4.2's "verify column set; add missing optional
// columns" schema-migration rule.
func migrate(db *sql.DB) error {
	pragmas := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA foreign_keys=ON`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("disktier: pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(createRecordsTable); err != nil {
		return fmt.Errorf("disktier: create records table: %w", err)
	}
	if _, err := db.Exec(createLastAccessIndex); err != nil {
		return fmt.Errorf("disktier: create last_access index: %w", err)
	}

	cols, err := columnSet(db, "records")
	if err != nil {
		return fmt.Errorf("disktier: inspect schema: %w", err)
	}
	for _, alter := range optionalColumns(cols) {
		if _, err := db.Exec(alter); err != nil {
			return fmt.Errorf("disktier: migrate schema: %w", err)
		}
	}
	return nil
}

// optionalColumns returns the ALTER TABLE statements needed to bring an
// older records table up to the current column set.
func optionalColumns(existing map[string]bool) []string {
	var stmts []string
	if !existing["expire_at"] {
		stmts = append(stmts, `ALTER TABLE records ADD COLUMN expire_at REAL`)
	}
	if !existing["extended"] {
		stmts = append(stmts, `ALTER TABLE records ADD COLUMN extended BLOB`)
	}
	return stmts
}

func columnSet(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
