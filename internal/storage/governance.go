package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
)

type mistakeRow struct {
	ID          string    `db:"id"`
	Tenant      string    `db:"tenant"`
	Project     string    `db:"project"`
	Signature   string    `db:"signature"`
	Description string    `db:"description"`
	Occurrences int       `db:"occurrences"`
	FirstSeenAt time.Time `db:"first_seen_at"`
	LastSeenAt  time.Time `db:"last_seen_at"`
}

// UpsertMistake records an occurrence of a failure signature, incrementing
// the counter if the signature is already known (spec.md §4.7).
func (s *Store) UpsertMistake(ctx context.Context, tenant, project, signature, description string) (model.Mistake, error) {
	now := time.Now().UTC()
	var m model.Mistake
	err := s.Transaction(ctx, func(q querier) error {
		sel := s.rebind(`SELECT id, tenant, project, signature, description, occurrences, first_seen_at, last_seen_at
			FROM mistakes WHERE tenant = ? AND project = ? AND signature = ?`)
		var row mistakeRow
		err := q.GetContext(ctx, &row, sel, tenant, project, signature)
		if err == nil {
			id, _ := uuid.Parse(row.ID)
			m = model.Mistake{
				ID: id, Tenant: row.Tenant, Project: row.Project, Signature: row.Signature,
				Description: row.Description, Occurrences: row.Occurrences + 1,
				FirstSeenAt: row.FirstSeenAt, LastSeenAt: now,
			}
			upd := s.rebind(`UPDATE mistakes SET occurrences = ?, last_seen_at = ? WHERE id = ?`)
			_, execErr := q.ExecContext(ctx, upd, m.Occurrences, now, row.ID)
			return execErr
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("storage: lookup mistake: %w", err)
		}
		m = model.Mistake{
			ID: uuid.New(), Tenant: tenant, Project: project, Signature: signature,
			Description: description, Occurrences: 1, FirstSeenAt: now, LastSeenAt: now,
		}
		ins := s.rebind(`INSERT INTO mistakes (id, tenant, project, signature, description, occurrences, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		_, insErr := q.ExecContext(ctx, ins, m.ID.String(), tenant, project, signature, description, 1, now, now)
		return insErr
	})
	return m, err
}

// ListMistakes returns every mistake signature recorded for a project, used
// by memory_maintain's loop-breaker pass to find repeat offenders.
func (s *Store) ListMistakes(ctx context.Context, tenant, project string) ([]model.Mistake, error) {
	query := s.rebind(`SELECT id, tenant, project, signature, description, occurrences, first_seen_at, last_seen_at
		FROM mistakes WHERE tenant = ? AND project = ?`)
	var rows []mistakeRow
	if err := s.db.SelectContext(ctx, &rows, query, tenant, project); err != nil {
		return nil, fmt.Errorf("storage: list mistakes: %w", err)
	}
	out := make([]model.Mistake, 0, len(rows))
	for _, row := range rows {
		id, _ := uuid.Parse(row.ID)
		out = append(out, model.Mistake{
			ID: id, Tenant: row.Tenant, Project: row.Project, Signature: row.Signature,
			Description: row.Description, Occurrences: row.Occurrences,
			FirstSeenAt: row.FirstSeenAt, LastSeenAt: row.LastSeenAt,
		})
	}
	return out, nil
}

// CreateGuardrail inserts a guardrail rule, idempotent on (tenant, project,
// signature): a second call with the same signature is a no-op returning
// the existing row (spec.md §4.7).
func (s *Store) CreateGuardrail(ctx context.Context, g *model.Guardrail) (bool, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = time.Now().UTC()
	if g.Severity == "" {
		g.Severity = "warn"
	}
	query := s.rebind(`INSERT INTO guardrails (id, tenant, project, signature, rule, severity, source_mistake, suppress_ids, active, created_at, expires_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM guardrails WHERE tenant = ? AND project = ? AND signature = ?)`)
	sourceMistake := ""
	if g.SourceMistake != uuid.Nil {
		sourceMistake = g.SourceMistake.String()
	}
	suppressJSON, err := json.Marshal(suppressIDStrings(g.SuppressIDs))
	if err != nil {
		return false, fmt.Errorf("storage: marshal suppress_ids: %w", err)
	}
	var expiresAt *time.Time
	if !g.ExpiresAt.IsZero() {
		expiresAt = &g.ExpiresAt
	}
	res, err := s.db.ExecContext(ctx, query, g.ID.String(), g.Tenant, g.Project, g.Signature, g.Rule, g.Severity,
		sourceMistake, string(suppressJSON), g.Active, g.CreatedAt, expiresAt, g.Tenant, g.Project, g.Signature)
	if err != nil {
		return false, fmt.Errorf("storage: create guardrail: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListGuardrails returns active, unexpired guardrails for a project.
func (s *Store) ListGuardrails(ctx context.Context, tenant, project string) ([]model.Guardrail, error) {
	query := s.rebind(`SELECT id, tenant, project, signature, rule, severity, source_mistake, suppress_ids, active, created_at, expires_at
		FROM guardrails WHERE tenant = ? AND project = ? AND active = ?`)
	rows, err := s.db.QueryContext(ctx, query, tenant, project, true)
	if err != nil {
		return nil, fmt.Errorf("storage: list guardrails: %w", err)
	}
	defer rows.Close()

	var out []model.Guardrail
	now := time.Now().UTC()
	for rows.Next() {
		var g model.Guardrail
		var id, sourceMistake, suppressJSON string
		var expiresAt sql.NullTime
		if err := rows.Scan(&id, &g.Tenant, &g.Project, &g.Signature, &g.Rule, &g.Severity, &sourceMistake,
			&suppressJSON, &g.Active, &g.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("storage: scan guardrail: %w", err)
		}
		if expiresAt.Valid {
			g.ExpiresAt = expiresAt.Time
			if g.ExpiresAt.Before(now) {
				continue
			}
		}
		g.ID, _ = uuid.Parse(id)
		if sourceMistake != "" {
			g.SourceMistake, _ = uuid.Parse(sourceMistake)
		}
		var idStrs []string
		if err := json.Unmarshal([]byte(suppressJSON), &idStrs); err == nil {
			for _, s := range idStrs {
				if parsed, err := uuid.Parse(s); err == nil {
					g.SuppressIDs = append(g.SuppressIDs, parsed)
				}
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func suppressIDStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// MistakeOccurrences returns the current occurrence count for a signature,
// used by the loop-breaker threshold check.
func (s *Store) MistakeOccurrences(ctx context.Context, tenant, project, signature string) (int, error) {
	query := s.rebind(`SELECT occurrences FROM mistakes WHERE tenant = ? AND project = ? AND signature = ?`)
	var n int
	err := s.db.GetContext(ctx, &n, query, tenant, project, signature)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: mistake occurrences: %w", err)
	}
	return n, nil
}

// CreateConflict records a detected contradiction between two active items,
// idempotent on the unsigned pair (spec.md §4.6 "findConflicts").
func (s *Store) CreateConflict(ctx context.Context, c *model.ModelConflict) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.DetectedAt = time.Now().UTC()
	a, b := c.ItemA, c.ItemB
	if a.String() > b.String() {
		a, b = b, a
	}
	query := s.rebind(`INSERT INTO conflicts (id, tenant, project, item_a, item_b, reason, suppressed, detected_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM conflicts WHERE tenant = ? AND project = ? AND item_a = ? AND item_b = ?)`)
	_, err := s.db.ExecContext(ctx, query, c.ID.String(), c.Tenant, c.Project, a.String(), b.String(),
		c.Reason, c.Suppressed, c.DetectedAt, c.Tenant, c.Project, a.String(), b.String())
	if err != nil {
		return fmt.Errorf("storage: create conflict: %w", err)
	}
	return nil
}

// ListConflicts returns unsuppressed conflicts for a project.
func (s *Store) ListConflicts(ctx context.Context, tenant, project string) ([]model.ModelConflict, error) {
	query := s.rebind(`SELECT id, tenant, project, item_a, item_b, reason, suppressed, detected_at
		FROM conflicts WHERE tenant = ? AND project = ? AND suppressed = ?`)
	rows, err := s.db.QueryContext(ctx, query, tenant, project, false)
	if err != nil {
		return nil, fmt.Errorf("storage: list conflicts: %w", err)
	}
	defer rows.Close()

	var out []model.ModelConflict
	for rows.Next() {
		var c model.ModelConflict
		var id, a, b string
		if err := rows.Scan(&id, &c.Tenant, &c.Project, &a, &b, &c.Reason, &c.Suppressed, &c.DetectedAt); err != nil {
			return nil, fmt.Errorf("storage: scan conflict: %w", err)
		}
		c.ID, _ = uuid.Parse(id)
		c.ItemA, _ = uuid.Parse(a)
		c.ItemB, _ = uuid.Parse(b)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SuppressConflict marks a conflict as acknowledged so it no longer appears
// in forensic meta, used by memory_feedback.
func (s *Store) SuppressConflict(ctx context.Context, tenant, project string, id uuid.UUID) error {
	query := s.rebind(`UPDATE conflicts SET suppressed = ? WHERE tenant = ? AND project = ? AND id = ?`)
	_, err := s.db.ExecContext(ctx, query, true, tenant, project, id.String())
	if err != nil {
		return fmt.Errorf("storage: suppress conflict: %w", err)
	}
	return nil
}
