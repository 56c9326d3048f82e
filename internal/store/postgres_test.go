package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
)

func testStore() *Postgres {
	return &Postgres{cat: catalog.Organization()}
}

func TestUpsertSQL(t *testing.T) {
	p := testStore()

	query, args, err := p.upsertSQL(map[string]string{
		"name":              "Acme Corp",
		"organization_type": "customer",
		"city":              "Chicago",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Columns are sorted for a stable statement shape.
	if !strings.Contains(query, "INSERT INTO organizations (id, city, name, organization_type)") {
		t.Errorf("column list wrong:\n%s", query)
	}
	if !strings.Contains(query, "ON CONFLICT (name, organization_type) DO UPDATE SET") {
		t.Errorf("missing conflict clause:\n%s", query)
	}
	if !strings.Contains(query, "city = EXCLUDED.city") {
		t.Errorf("mapped column not updated on conflict:\n%s", query)
	}
	if !strings.Contains(query, "updated_at = now()") {
		t.Errorf("updated_at not touched:\n%s", query)
	}
	if !strings.Contains(query, "RETURNING (xmax = 0)") {
		t.Errorf("missing insert/update discriminator:\n%s", query)
	}

	// id plus one bind parameter per column.
	if len(args) != 4 {
		t.Errorf("len(args) = %d, want 4", len(args))
	}
	if args[1] != "Chicago" || args[2] != "Acme Corp" || args[3] != "customer" {
		t.Errorf("args = %v", args)
	}
}

func TestUpsertSQL_KeyColumnsNeverUpdated(t *testing.T) {
	p := testStore()

	query, _, err := p.upsertSQL(map[string]string{
		"name":              "Acme Corp",
		"organization_type": "customer",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(query, "name = EXCLUDED.name") {
		t.Errorf("uniqueness key rewritten on conflict:\n%s", query)
	}
	if strings.Contains(query, "organization_type = EXCLUDED.organization_type") {
		t.Errorf("uniqueness key rewritten on conflict:\n%s", query)
	}
}

func TestUpsertSQL_OnlyMappedColumnsUpdated(t *testing.T) {
	p := testStore()

	query, _, err := p.upsertSQL(map[string]string{
		"name":              "Acme Corp",
		"organization_type": "customer",
		"phone":             "3125550142",
	})
	if err != nil {
		t.Fatal(err)
	}
	// A narrow import must not blank columns it did not map.
	for _, absent := range []string{"city", "state", "notes", "email"} {
		if strings.Contains(query, absent) {
			t.Errorf("unmapped column %q appears in statement:\n%s", absent, query)
		}
	}
}

func TestUpsertSQL_MissingKey(t *testing.T) {
	p := testStore()

	for _, row := range []map[string]string{
		{"organization_type": "customer"},
		{"name": "Acme Corp"},
		{},
	} {
		if _, _, err := p.upsertSQL(row); err == nil {
			t.Errorf("upsertSQL(%v) succeeded, want missing-key error", row)
		}
	}
}

func TestUpsertSQL_RejectsUnknownColumn(t *testing.T) {
	p := testStore()

	_, _, err := p.upsertSQL(map[string]string{
		"name":              "Acme Corp",
		"organization_type": "customer",
		"name; DROP TABLE":  "x",
	})
	if err == nil {
		t.Fatal("non-catalogue column accepted")
	}
	if !strings.Contains(err.Error(), "not in the catalogue") {
		t.Errorf("err = %v", err)
	}
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "connection reset" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, true},
		{"wrapped deadline", fmt.Errorf("write row: %w", context.DeadlineExceeded), true},
		{"net error", fakeNetError{}, true},
		{"plain error", errors.New("deadlock detected"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnavailable(tt.err); got != tt.want {
				t.Errorf("IsUnavailable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
