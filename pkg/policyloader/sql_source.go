package policyloader

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// CreatePoliciesTable is portable DDL for the policies table (Postgres and
// SQLite). sod_constraints holds the tagged constraint array as JSON text.
const CreatePoliciesTable = `CREATE TABLE IF NOT EXISTS policies (
	policy_id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	priority INTEGER NOT NULL DEFAULT 0,
	applies_when TEXT,
	sod_constraints TEXT NOT NULL DEFAULT '[]'
)`

const selectPolicies = `SELECT policy_id, name, active, priority, applies_when, sod_constraints FROM policies ORDER BY priority DESC, policy_id`

// SQLSource reads policies from a SQL table. The caller owns the *sql.DB
// and its driver.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource wraps db.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Load reads and validates every row of the policies table.
func (s *SQLSource) Load(ctx context.Context) ([]governance.Policy, error) {
	rows, err := s.db.QueryContext(ctx, selectPolicies)
	if err != nil {
		return nil, fmt.Errorf("policyloader: query policies: %w", err)
	}
	defer rows.Close()

	out := make([]governance.Policy, 0)
	for rows.Next() {
		var (
			p           governance.Policy
			appliesWhen sql.NullString
			constraints string
		)
		if err := rows.Scan(&p.PolicyID, &p.Name, &p.Active, &p.Priority, &appliesWhen, &constraints); err != nil {
			return nil, fmt.Errorf("policyloader: scan policy: %w", err)
		}
		p.AppliesWhen = appliesWhen.String

		decoded, err := sod.DecodeConstraints([]byte(constraints))
		if err != nil {
			return nil, fmt.Errorf("policyloader: policy %s: %w", p.PolicyID, err)
		}
		p.SodConstraints = decoded
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policyloader: iterate policies: %w", err)
	}
	return out, nil
}
