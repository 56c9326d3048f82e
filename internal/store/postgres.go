package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres writes organization rows with insert-or-update semantics keyed on
// (name, organization_type). Only the columns present in each row are updated
// on conflict, so a narrow import never blanks fields a wider one populated.
type Postgres struct {
	pool *pgxpool.Pool
	cat  *catalog.Catalog
}

// NewPostgres creates a store backed by a pgx connection pool. The catalogue
// bounds the set of writable columns.
func NewPostgres(pool *pgxpool.Pool, cat *catalog.Catalog) *Postgres {
	return &Postgres{pool: pool, cat: cat}
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// WriteBatch writes all rows inside one transaction, isolating each row with
// a savepoint so a bad row cannot poison its neighbours. Per-row failures are
// reported in the result slice; only transaction-level failures return an
// error, in which case nothing from the batch was committed.
func (p *Postgres) WriteBatch(ctx context.Context, rows []map[string]string) ([]RowResult, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := make([]RowResult, len(rows))
	for i, row := range rows {
		query, args, err := p.upsertSQL(row)
		if err != nil {
			results[i] = RowResult{Err: err}
			continue
		}

		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		var inserted bool
		if err := tx.QueryRow(ctx, query, args...).Scan(&inserted); err != nil {
			if IsUnavailable(err) {
				return nil, fmt.Errorf("write row: %w", err)
			}
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			results[i] = RowResult{Err: err}
			continue
		}
		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}
		results[i] = RowResult{Inserted: inserted}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return results, nil
}

// upsertSQL builds the insert-or-update statement for one row. Columns come
// from the row itself so only mapped fields are touched on update; creation
// metadata is preserved. RETURNING (xmax = 0) distinguishes insert from
// update.
func (p *Postgres) upsertSQL(row map[string]string) (string, []interface{}, error) {
	if row["name"] == "" || row["organization_type"] == "" {
		return "", nil, fmt.Errorf("row is missing its uniqueness key")
	}

	cols := make([]string, 0, len(row))
	for col := range row {
		// Identifiers are restricted to catalogue fields; values travel as
		// bind parameters.
		if _, ok := p.cat.Get(col); !ok {
			return "", nil, fmt.Errorf("column %q is not in the catalogue", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]interface{}, 0, len(cols)+1)
	args = append(args, uuid.New())
	placeholders := make([]string, 0, len(cols)+1)
	placeholders = append(placeholders, "$1")
	var updates []string
	for i, col := range cols {
		args = append(args, row[col])
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		if col != "name" && col != "organization_type" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	updates = append(updates, "updated_at = now()")

	query := fmt.Sprintf(
		`INSERT INTO organizations (id, %s) VALUES (%s)
		ON CONFLICT (name, organization_type) DO UPDATE SET %s
		RETURNING (xmax = 0)`,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	return query, args, nil
}

var _ Store = (*Postgres)(nil)
