// Package catalog stores the local history of dupview operations and scans.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dupview/internal/catalog/migrations"
	"dupview/internal/dv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteCatalog implements dv.Catalog on a SQLite database.
type SQLiteCatalog struct {
	db    *sql.DB
	clock dv.Clock
	path  string
}

var _ dv.Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog opens the catalog at path, or ":memory:", and brings
// its schema up to date. A nil clock means the system clock.
func NewSQLiteCatalog(path string, clock dv.Clock) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	if clock == nil {
		clock = dv.RealClock{}
	}
	return &SQLiteCatalog{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens a SQLite connection with foreign keys enforced.
// An in-memory database is pinned to one connection so every query sees
// the same data.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	return db, nil
}

// Operations

func (c *SQLiteCatalog) CreateOperation(operation, parameters string) (*dv.Operation, error) {
	op := &dv.Operation{
		StartedAt:  c.clock.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := c.db.ExecContext(context.Background(),
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

func (c *SQLiteCatalog) FinishOperation(id int64, status string) error {
	res, err := c.db.ExecContext(context.Background(),
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		c.clock.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing operation: no operation %d", id)
	}
	return nil
}

func (c *SQLiteCatalog) ListOperations(limit int) ([]*dv.Operation, error) {
	rows, err := c.db.QueryContext(context.Background(),
		`SELECT id, started_at, finished_at, operation, parameters, status
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*dv.Operation
	for rows.Next() {
		var (
			op       dv.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("listing operations: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Scans

func (c *SQLiteCatalog) RecordScan(scan *dv.ScanRecord) error {
	ctx := context.Background()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording scan: %w", err)
	}
	defer tx.Rollback()

	var opID sql.NullInt64
	if scan.OperationID != 0 {
		opID = sql.NullInt64{Int64: scan.OperationID, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO scans (id, operation_id, location, scanned_at, chains, orphans, unrecognized)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, opID, scan.Location, scan.ScannedAt.UTC(), scan.Chains, scan.Orphans, scan.Unrecognized)
	if err != nil {
		return fmt.Errorf("recording scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scan_sets (scan_id, position, prefix, type, start_time, end_time, volumes, chain, complete, issues)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("recording scan sets: %w", err)
	}
	defer stmt.Close()
	for i, s := range scan.Sets {
		_, err := stmt.ExecContext(ctx, scan.ID, i, s.Prefix, s.Type, s.Start.UTC(), s.End.UTC(),
			s.Volumes, s.Chain, s.Complete, s.Issues)
		if err != nil {
			return fmt.Errorf("recording scan set %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recording scan: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) ListScans(location string, limit int) ([]*dv.ScanRecord, error) {
	q := `SELECT id, operation_id, location, scanned_at, chains, orphans, unrecognized FROM scans`
	args := []any{}
	if location != "" {
		q += ` WHERE location = ?`
		args = append(args, location)
	}
	q += ` ORDER BY scanned_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(context.Background(), q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var scans []*dv.ScanRecord
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("listing scans: %w", err)
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return scans, nil
}

func (c *SQLiteCatalog) FindScan(id string) (*dv.ScanRecord, error) {
	ctx := context.Background()
	row := c.db.QueryRowContext(ctx,
		`SELECT id, operation_id, location, scanned_at, chains, orphans, unrecognized FROM scans WHERE id = ?`, id)
	scan, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding scan: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT prefix, type, start_time, end_time, volumes, chain, complete, issues
		 FROM scan_sets WHERE scan_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("finding scan sets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s dv.ScanSet
		if err := rows.Scan(&s.Prefix, &s.Type, &s.Start, &s.End, &s.Volumes, &s.Chain, &s.Complete, &s.Issues); err != nil {
			return nil, fmt.Errorf("finding scan sets: %w", err)
		}
		scan.Sets = append(scan.Sets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding scan sets: %w", err)
	}
	return scan, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (*dv.ScanRecord, error) {
	var (
		s    dv.ScanRecord
		opID sql.NullInt64
		at   time.Time
	)
	if err := r.Scan(&s.ID, &opID, &s.Location, &at, &s.Chains, &s.Orphans, &s.Unrecognized); err != nil {
		return nil, err
	}
	s.OperationID = opID.Int64
	s.ScannedAt = at
	return &s, nil
}

// Path returns the database file path, or ":memory:".
func (c *SQLiteCatalog) Path() string {
	return c.path
}

// CheckMigrations verifies the schema is current.
func (c *SQLiteCatalog) CheckMigrations() error {
	return migrations.Check(c.db)
}

func (c *SQLiteCatalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
