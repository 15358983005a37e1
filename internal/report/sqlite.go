package report

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ivlev/clipguard/internal/verdict"
)

// SQLiteLedger appends each verdict to a "verdicts" table as soon as it is known.
type SQLiteLedger struct {
	db   *sql.DB
	run  string
	stmt *sql.Stmt
}

// OpenSQLite opens (or creates) the database; run tags every row of this batch.
func OpenSQLite(path, run string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS verdicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run TEXT NOT NULL,
		file TEXT NOT NULL,
		result INTEGER NOT NULL,
		latency_ms REAL NOT NULL,
		regions INTEGER NOT NULL,
		created_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run);
	CREATE INDEX IF NOT EXISTS idx_verdicts_file ON verdicts(file);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create verdicts table: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO verdicts (run, file, result, latency_ms, regions, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &SQLiteLedger{db: db, run: run, stmt: stmt}, nil
}

func (l *SQLiteLedger) Record(v verdict.ImageVerdict) error {
	_, err := l.stmt.Exec(l.run, v.Source, v.Code, v.LatencyMS, v.Regions, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store verdict for %s: %w", v.Source, err)
	}
	return nil
}

// Rows lists the verdicts of this run in insertion order.
func (l *SQLiteLedger) Rows() ([]Row, error) {
	rows, err := l.db.Query(`SELECT file, result, latency_ms FROM verdicts WHERE run = ? ORDER BY id`, l.run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.File, &r.Result, &r.LatencyMS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	l.stmt.Close()
	return l.db.Close()
}
