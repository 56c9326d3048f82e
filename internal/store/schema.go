package store

import (
	"context"
	"fmt"
	"time"
)

// resetTimeout bounds destructive maintenance statements.
const resetTimeout = 30 * time.Second

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		organization_type TEXT NOT NULL DEFAULT 'prospect',
		priority TEXT,
		segment TEXT,
		website TEXT,
		phone TEXT,
		email TEXT,
		address_line1 TEXT,
		city TEXT,
		state TEXT,
		postal_code TEXT,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS organizations_name_type_idx
		ON organizations (name, organization_type)`,
}

// EnsureSchema creates the organizations table and its composite uniqueness
// index when they do not exist. Safe to run on every startup.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Reset empties the organizations table. Destructive; meant for development
// and staging databases before a fresh import.
func (p *Postgres) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()
	if _, err := p.pool.Exec(ctx, "TRUNCATE TABLE organizations"); err != nil {
		return fmt.Errorf("reset organizations: %w", err)
	}
	return nil
}
