package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// IntegrityViolation wraps a uniqueness or foreign-key constraint failure
type IntegrityViolation struct {
	Table string
	Key   string
	Err   error
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation on %s (%s): %v", e.Table, e.Key, e.Err)
}

func (e *IntegrityViolation) Unwrap() error { return e.Err }

// sqliteConstraint is SQLITE_CONSTRAINT; extended codes share the low byte
const sqliteConstraint = 19

// IsConstraintError reports whether err is a driver-level constraint failure
func IsConstraintError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqliteConstraint
	}
	return false
}

func classify(table, key string, err error) error {
	if err == nil {
		return nil
	}
	if IsConstraintError(err) {
		return &IntegrityViolation{Table: table, Key: key, Err: err}
	}
	return fmt.Errorf("%s (%s): %w", table, key, err)
}

// Batch is a transaction with a per-query prepared statement cache.
// Each load phase runs inside exactly one Batch.
type Batch struct {
	tx      *sql.Tx
	dialect Dialect
	stmts   map[string]*sql.Stmt
}

// Begin opens a new Batch
func (s *Store) Begin(ctx context.Context) (*Batch, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Batch{tx: tx, dialect: s.Dialect, stmts: make(map[string]*sql.Stmt)}, nil
}

func (b *Batch) stmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if st, ok := b.stmts[query]; ok {
		return st, nil
	}
	st, err := b.tx.PrepareContext(ctx, b.dialect.rebind(query))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	b.stmts[query] = st
	return st, nil
}

// Exec runs a cached statement
func (b *Batch) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	st, err := b.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return st.ExecContext(ctx, args...)
}

// QueryRow runs a cached single-row statement
func (b *Batch) QueryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	st, err := b.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return st.QueryRowContext(ctx, args...), nil
}

func (b *Batch) closeStmts() {
	for _, st := range b.stmts {
		_ = st.Close()
	}
	b.stmts = nil
}

// Commit closes cached statements and commits
func (b *Batch) Commit() error {
	b.closeStmts()
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback closes cached statements and rolls back
func (b *Batch) Rollback() {
	b.closeStmts()
	_ = b.tx.Rollback()
}

// IndexKey is the natural key of a lookup row; Parent is 0 for flat lookups
type IndexKey struct {
	Parent int64
	Name   string
}

// LookupIndex maps natural keys to surrogate keys for one lookup table
type LookupIndex map[IndexKey]int64

// Get returns the surrogate key of a flat lookup name
func (ix LookupIndex) Get(name string) (int64, bool) {
	id, ok := ix[IndexKey{Name: name}]
	return id, ok
}

// GetOrCreate returns the surrogate key of name (under parentID for hierarchical
// lookups), inserting it when absent. Repeated or racing calls with the same
// natural key resolve to the same row.
func (b *Batch) GetOrCreate(ctx context.Context, lk Lookup, name string, parentID int64) (int64, error) {
	sel := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", lk.IDColumn, lk.Table, lk.NameColumn)
	ins := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?) ON CONFLICT DO NOTHING RETURNING %s", lk.Table, lk.NameColumn, lk.IDColumn)
	args := []any{name}
	if lk.ParentColumn != "" {
		sel += fmt.Sprintf(" AND %s = ?", lk.ParentColumn)
		ins = fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT DO NOTHING RETURNING %s",
			lk.Table, lk.NameColumn, lk.ParentColumn, lk.IDColumn)
		args = append(args, parentID)
	}

	id, found, err := b.scanID(ctx, sel, args...)
	if err != nil || found {
		return id, classify(lk.Table, name, err)
	}

	id, found, err = b.scanID(ctx, ins, args...)
	if err != nil {
		return 0, classify(lk.Table, name, err)
	}
	if found {
		return id, nil
	}

	// Lost an insert race or hit a conflicting row: read the winner
	id, found, err = b.scanID(ctx, sel, args...)
	if err != nil {
		return 0, classify(lk.Table, name, err)
	}
	if !found {
		return 0, &IntegrityViolation{Table: lk.Table, Key: name, Err: errors.New("conflicting row under a different parent")}
	}
	return id, nil
}

func (b *Batch) scanID(ctx context.Context, query string, args ...any) (int64, bool, error) {
	row, err := b.QueryRow(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	var id int64
	switch err := row.Scan(&id); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return id, true, nil
}

// LoadIndex reads a whole lookup table into memory
func (s *Store) LoadIndex(ctx context.Context, lk Lookup) (LookupIndex, error) {
	parent := "0"
	if lk.ParentColumn != "" {
		parent = lk.ParentColumn
	}
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s", lk.IDColumn, parent, lk.NameColumn, lk.Table)
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", lk.Table, err)
	}
	defer rows.Close()

	ix := make(LookupIndex)
	for rows.Next() {
		var (
			id, parentID int64
			name         string
		)
		if err := rows.Scan(&id, &parentID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", lk.Table, err)
		}
		ix[IndexKey{Parent: parentID, Name: name}] = id
	}
	return ix, rows.Err()
}

// CountRows returns the number of rows in table
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	if _, ok := TableByName(table); !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// placeholders returns "(?, ?, ...)" with n markers
func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

// IDSet returns the primary keys present in table
func (s *Store) IDSet(ctx context.Context, table, column string) (map[int64]struct{}, error) {
	if _, ok := TableByName(table); !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", column, table))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s ids: %w", table, err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}
