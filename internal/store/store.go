// Package store persists transformed rows with idempotent insert-or-update
// semantics keyed on the entity's composite uniqueness key.
package store

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// RowResult reports the outcome of one row within a batch.
type RowResult struct {
	// Inserted is true when the row created a new record, false when an
	// existing record was updated. Meaningless when Err is set.
	Inserted bool
	Err      error
}

// Store is the backing-store contract for the batch writer. WriteBatch
// attempts every row in one store operation and reports per-row outcomes; a
// non-nil error means the whole batch failed and no per-row results apply.
type Store interface {
	WriteBatch(ctx context.Context, rows []map[string]string) ([]RowResult, error)
	Ping(ctx context.Context) error
}

// IsUnavailable reports whether err indicates the store itself is unusable
// (connection loss, shutdown, resource exhaustion) rather than a data
// problem. Unavailability turns the run terminal instead of skipping a batch.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception, 57: operator intervention
		// (shutdown), 53: insufficient resources.
		switch pgErr.Code[:2] {
		case "08", "57", "53":
			return true
		}
	}
	return false
}
