// Package store provides SQLite-backed persistence for the Modelry
// repository: element types, relationship type rules, canvases, placed
// occurrences, relationship occurrences, property instances, design rules and
// their violations.
//
// The rule and impact engines consume this package through narrow interfaces
// they declare themselves; Store is the single concrete implementation.
package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/modelry/modelry/db"
	"github.com/modelry/modelry/errors"
)

// DerivedCanvasPrefix marks derived/impact canvases. Canvases whose name
// carries this prefix are read-only analytical artifacts: they are excluded
// from canonical-occurrence resolution and from design-rule evaluation.
const DerivedCanvasPrefix = "Impact:"

// Direction selects which incident edges of an occurrence are considered.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionBoth     Direction = "both"
)

// Valid reports whether d is one of the three known directions.
func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing || d == DirectionBoth
}

// Opposite returns the reversed direction. Both stays both.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionIncoming:
		return DirectionOutgoing
	case DirectionOutgoing:
		return DirectionIncoming
	default:
		return DirectionBoth
	}
}

// AnnotationSource discriminates user-authored property instances from
// rule-generated ones so cleanup never touches user data.
type AnnotationSource string

const (
	SourceUser        AnnotationSource = "user"
	SourceRulesEngine AnnotationSource = "rules-engine"
)

// dbtx is the subset of sql.DB and sql.Tx the store issues statements
// through, so a Store can be bound to either.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides storage operations for the Modelry repository.
type Store struct {
	db     dbtx
	sqlDB  *sql.DB
	logger *zap.SugaredLogger
}

// New creates a Store on top of an open database handle.
// If logger is nil the store operates silently.
func New(db *sql.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		db:     db,
		sqlDB:  db,
		logger: logger.Named("store"),
	}
}

// WithTx runs fn with a store view bound to one transaction: every statement
// fn issues through that view sees one consistent snapshot of the graph. An
// error from fn rolls the whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(st *Store) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	txStore := &Store{db: tx, sqlDB: s.sqlDB, logger: s.logger}
	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// execRetry runs a write statement under the bounded busy retry, so lock
// contention that outlives the backoff surfaces as ErrStoreTransient
// instead of a raw driver error.
func (s *Store) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := db.WithRetry(func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts both our RFC3339 writes and SQLite's CURRENT_TIMESTAMP
// format for rows created outside the store.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
