// Package pgstore provides a StateStore backed by PostgreSQL.
//
// Items live in one table keyed by ID; the history is a single row holding
// an integer array. Save replaces both inside one transaction, so readers
// never observe a half-written state.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/runoshun/tracker/internal/domain"
)

// Schema creates the tables used by the store.
const Schema = `
CREATE TABLE IF NOT EXISTS tracker_items (
	id          INTEGER PRIMARY KEY,
	kind        TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	start_time  TIMESTAMPTZ NULL,
	duration_ns BIGINT NOT NULL DEFAULT 0,
	epic_id     INTEGER NULL,
	subtasks    INTEGER[] NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS tracker_history (
	singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	ids       INTEGER[] NOT NULL DEFAULT '{}'
);`

const (
	insertItem = `INSERT INTO tracker_items
	(id, kind, name, description, status, start_time, duration_ns, epic_id, subtasks)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	selectItems = `SELECT id, kind, name, description, status, start_time, duration_ns, epic_id, subtasks
	FROM tracker_items ORDER BY id`
	insertHistory = `INSERT INTO tracker_history (singleton, ids) VALUES (TRUE, $1)`
	selectHistory = `SELECT ids FROM tracker_history WHERE singleton`
)

// ErrEmptyDSN is returned by Open when no connection string is configured.
var ErrEmptyDSN = errors.New("postgres dsn is empty")

// Store implements domain.StateStore on a PostgreSQL database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout bounds every database round of Save, Load and Open.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New wraps an open database. The schema is not created; call Migrate.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		logger:  slog.New(slog.DiscardHandler),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, ErrEmptyDSN
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := New(db, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored items and history in one transaction.
func (s *Store) Save(snap *domain.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracker_items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tracker_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for _, it := range snap.Items {
		if _, err := tx.ExecContext(ctx, insertItem, encodeRow(it).args()...); err != nil {
			return fmt.Errorf("insert item %d: %w", it.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, insertHistory, toInt64Array(snap.History)); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("state saved", "category", "postgres", "items", len(snap.Items), "history", len(snap.History))
	return nil
}

// Load reads every item and the history. Empty tables yield an empty
// snapshot. Rows that do not describe a valid item fail with
// domain.ErrStorageCorrupt.
func (s *Store) Load() (*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, selectItems)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap := &domain.Snapshot{}
	for rows.Next() {
		var r row
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("%w: scan item: %w", domain.ErrStorageCorrupt, err)
		}
		it, err := r.item()
		if err != nil {
			return nil, err
		}
		snap.Items = append(snap.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}

	var history pq.Int64Array
	switch err := s.db.QueryRowContext(ctx, selectHistory).Scan(&history); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("query history: %w", err)
	default:
		snap.History = fromInt64Array(history)
	}
	s.logger.Debug("state loaded", "category", "postgres", "items", len(snap.Items), "history", len(snap.History))
	return snap, nil
}

// row mirrors one tracker_items record.
type row struct {
	start       sql.NullTime
	epicID      sql.NullInt64
	kind        string
	name        string
	description string
	status      string
	subtasks    pq.Int64Array
	id          int64
	durationNs  int64
}

func encodeRow(it *domain.Item) row {
	r := row{
		id:          int64(it.ID),
		kind:        string(it.Kind),
		name:        it.Name,
		description: it.Description,
		status:      string(it.Status),
		durationNs:  int64(it.Duration),
		subtasks:    toInt64Array(it.Subtasks),
	}
	if it.HasStart() {
		r.start = sql.NullTime{Time: it.Start.UTC(), Valid: true}
	}
	if it.EpicID != 0 {
		r.epicID = sql.NullInt64{Int64: int64(it.EpicID), Valid: true}
	}
	return r
}

func (r row) args() []any {
	return []any{r.id, r.kind, r.name, r.description, r.status, r.start, r.durationNs, r.epicID, r.subtasks}
}

func (r *row) dest() []any {
	return []any{&r.id, &r.kind, &r.name, &r.description, &r.status, &r.start, &r.durationNs, &r.epicID, &r.subtasks}
}

func (r *row) item() (*domain.Item, error) {
	kind := domain.Kind(r.kind)
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: item %d has kind %q", domain.ErrStorageCorrupt, r.id, r.kind)
	}
	status := domain.Status(r.status)
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: item %d has status %q", domain.ErrStorageCorrupt, r.id, r.status)
	}
	if r.id <= 0 {
		return nil, fmt.Errorf("%w: item id %d", domain.ErrStorageCorrupt, r.id)
	}
	if r.durationNs < 0 {
		return nil, fmt.Errorf("%w: item %d has negative duration", domain.ErrStorageCorrupt, r.id)
	}
	it := &domain.Item{
		ID:          int(r.id),
		Kind:        kind,
		Name:        r.name,
		Description: r.description,
		Status:      status,
		Duration:    time.Duration(r.durationNs),
	}
	if r.start.Valid {
		it.Start = r.start.Time.UTC()
	}
	if r.epicID.Valid {
		it.EpicID = int(r.epicID.Int64)
	}
	if kind == domain.KindEpic {
		it.Subtasks = fromInt64Array(r.subtasks)
	}
	return it, nil
}

func toInt64Array(ids []int) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func fromInt64Array(a pq.Int64Array) []int {
	if len(a) == 0 {
		return nil
	}
	out := make([]int, len(a))
	for i, v := range a {
		out[i] = int(v)
	}
	return out
}

// Ensure Store implements StateStore.
var _ domain.StateStore = (*Store)(nil)
