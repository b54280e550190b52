package store

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/modelry/modelry/errors"
)

// Driver-level failures are exercised with sqlmock since the in-memory
// database cannot be made to fail on demand.

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, nil), mock
}

func TestGetElementTypeNoRowsIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM element_types WHERE id = \?`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetElementType(context.Background(), 42)
	if !errors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListCanvasesQueryErrorIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM canvas_models`).
		WillReturnError(sql.ErrConnDone)

	_, err := s.ListCanvases(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("wrapped cause lost: %v", err)
	}
}

func TestPersistentLockContentionIsTransient(t *testing.T) {
	s, mock := newMockStore(t)

	locked := errors.New("database is locked")
	// The bounded retry re-runs the statement before giving up.
	for i := 0; i < 5; i++ {
		mock.ExpectExec(`DELETE FROM design_rule_violations`).
			WithArgs(int64(7)).
			WillReturnError(locked)
	}

	err := s.DeleteViolationsForRule(context.Background(), 7)
	if !errors.IsTransient(err) {
		t.Errorf("expected transient store failure, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLockContentionRetriesUntilSuccess(t *testing.T) {
	s, mock := newMockStore(t)

	locked := errors.New("database is locked")
	mock.ExpectExec(`DELETE FROM design_rule_violations`).
		WithArgs(int64(7)).
		WillReturnError(locked)
	mock.ExpectExec(`DELETE FROM design_rule_violations`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := s.DeleteViolationsForRule(context.Background(), 7); err != nil {
		t.Errorf("retry after contention failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateImpactCanvasRollsBackOnInsertError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM canvas_models`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM canvas_element_instances`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO canvas_models`).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	nodes := []ImpactNode{{TraversalID: 1, ElementTypeID: 1, Name: "A"}}
	_, err := s.CreateImpactCanvas(context.Background(), DerivedCanvasPrefix+" A", "", nodes, nil, 10, 100)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
