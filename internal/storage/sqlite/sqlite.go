// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlitedriver "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mmynk/sambatan/internal/models"
	"github.com/mmynk/sambatan/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// readConns bounds the reader pool. WAL lets readers run alongside the writer.
const readConns = 4

// SQLiteStore implements storage.Store using SQLite.
//
// Writes go through a single connection whose transactions begin IMMEDIATE,
// so the write lock is taken up front and waits out busy_timeout instead of
// failing on a read-to-write upgrade. Plain reads use a separate query-only
// pool.
type SQLiteStore struct {
	db     *sql.DB
	readDB *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys and busy timeout are per connection, so set them in the DSN
	base := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", base+"&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	readDB, err := sql.Open("sqlite", base+"&_pragma=query_only(1)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	readDB.SetMaxOpenConns(readConns)
	readDB.SetMaxIdleConns(readConns)

	return &SQLiteStore{db: db, readDB: readDB}, nil
}

// Close closes both connection pools.
func (s *SQLiteStore) Close() error {
	return errors.Join(s.readDB.Close(), s.db.Close())
}

// WithinTx runs fn inside a write transaction, committing only when fn
// succeeds. A busy database surfaces as storage.ErrVersionConflict so callers
// retry it like a lost compare-and-swap.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return runTx(ctx, s.db, fn)
}

// WithinReadTx runs fn inside a read transaction on the reader pool. fn sees
// one consistent snapshot and must not write.
func (s *SQLiteStore) WithinReadTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return runTx(ctx, s.readDB, fn)
}

func runTx(ctx context.Context, db *sql.DB, fn func(tx storage.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return busyAsConflict(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{q: tx}); err != nil {
		return busyAsConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return busyAsConflict(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func busyAsConflict(err error) error {
	if isBusy(err) {
		return fmt.Errorf("%w: %w", storage.ErrVersionConflict, err)
	}
	return err
}

// sqliteTx implements storage.Tx on top of *sql.Tx.
type sqliteTx struct {
	q querier
}

var _ storage.Tx = (*sqliteTx)(nil)

func (t *sqliteTx) GetGroupPurchase(ctx context.Context, id string) (*models.GroupPurchase, error) {
	return getGroupPurchase(ctx, t.q, id)
}

func (t *sqliteTx) GetActiveParticipant(ctx context.Context, groupPurchaseID, userID string) (*models.Participant, error) {
	return getActiveParticipant(ctx, t.q, groupPurchaseID, userID)
}

func (t *sqliteTx) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	return getParticipant(ctx, t.q, id)
}

func (t *sqliteTx) ListActiveParticipants(ctx context.Context, groupPurchaseID string) ([]*models.Participant, error) {
	return listActiveParticipants(ctx, t.q, groupPurchaseID)
}

func (t *sqliteTx) InsertParticipant(ctx context.Context, p *models.Participant) error {
	return insertParticipant(ctx, t.q, p)
}

func (t *sqliteTx) MarkWithdrawn(ctx context.Context, participantID string, at time.Time) error {
	return markWithdrawn(ctx, t.q, participantID, at)
}

func (t *sqliteTx) UpdateShippingChoice(ctx context.Context, participantID, rateID string, usedOptimized bool, at time.Time) error {
	return updateShippingChoice(ctx, t.q, participantID, rateID, usedOptimized, at)
}

func (t *sqliteTx) UpdateGroupPurchaseState(ctx context.Context, gp *models.GroupPurchase, expectedVersion int64) error {
	return updateGroupPurchaseState(ctx, t.q, gp, expectedVersion)
}

// isBusy reports whether err is SQLITE_BUSY or one of its extended codes,
// or SQLITE_LOCKED.
func isBusy(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	return false
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// toNanos converts an optional time to a nullable column value.
func toNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

// fromNanos converts a nullable column value to an optional time.
func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
