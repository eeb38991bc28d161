package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUnavailable means the store could not be reached or is busy.
	ErrUnavailable = errors.New("store unavailable")
	// ErrTimeout means the operation exceeded its deadline.
	ErrTimeout = errors.New("store timeout")
	// ErrProtocol means the store rejected the request or returned something
	// that could not be interpreted.
	ErrProtocol = errors.New("store protocol error")
	// ErrInvalidCollection means the collection name or schema is not usable.
	ErrInvalidCollection = errors.New("invalid collection")
	// ErrNoCollection means the collection has not been created.
	ErrNoCollection = errors.New("collection does not exist")
)

// OpFailure describes one failed operation inside a bulk request.
type OpFailure struct {
	Index  int
	Kind   OpKind
	ID     string
	Reason string
}

// BulkError is returned when one or more operations of a bulk request failed.
// No operation of the request has been applied.
type BulkError struct {
	Failures []OpFailure
}

func (e *BulkError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("op %d (%s %s): %s", f.Index, f.Kind, f.ID, f.Reason))
	}
	return fmt.Sprintf("bulk write failed: %s", strings.Join(parts, "; "))
}

// Unwrap lets errors.Is(err, ErrProtocol) match bulk failures.
func (e *BulkError) Unwrap() error { return ErrProtocol }

// classify wraps err with the sentinel that describes it.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrProtocol) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr,
			sqlite3.ErrFull, sqlite3.ErrNotADB, sqlite3.ErrCorrupt, sqlite3.ErrInterrupt:
			return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w: %w", op, ErrProtocol, err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProtocol, err)
}
