package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kioku-ai/kioku/internal/model"
)

// InsertAuditRecords appends a batch of audit records in one statement,
// the flush path of the buffered audit writer (internal/audit).
func (s *Store) InsertAuditRecords(ctx context.Context, records []model.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(q querier) error {
		stmt := s.rebind(`INSERT INTO audit_records
			(id, tenant, project, tool, trace_id, success, error_code, duration_ms, item_id, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, r := range records {
			if r.ID == uuid.Nil {
				r.ID = uuid.New()
			}
			itemID := ""
			if r.ItemID != uuid.Nil {
				itemID = r.ItemID.String()
			}
			if _, err := q.ExecContext(ctx, stmt, r.ID.String(), r.Tenant, r.Project, r.Tool,
				r.TraceID, r.Success, r.ErrorCode, r.DurationMS, itemID, r.Detail, r.CreatedAt); err != nil {
				return fmt.Errorf("storage: insert audit record: %w", err)
			}
		}
		return nil
	})
}

// TrimAudit deletes the oldest audit rows beyond maxRows per tenant/project,
// the memory_maintain audit_trim action (spec.md §4.8).
func (s *Store) TrimAudit(ctx context.Context, tenant, project string, maxRows int) (int64, error) {
	sub := s.rebind(`SELECT id FROM audit_records WHERE tenant = ? AND project = ?
		ORDER BY created_at DESC LIMIT -1 OFFSET ?`)
	if s.dialect == DialectPostgres {
		sub = s.rebind(`SELECT id FROM audit_records WHERE tenant = ? AND project = ?
			ORDER BY created_at DESC OFFSET ?`)
	}
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, sub, tenant, project, maxRows); err != nil {
		return 0, fmt.Errorf("storage: select audit overflow: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM audit_records WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("storage: build audit trim query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("storage: trim audit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecentAuditRecords returns the most recent audit records for a project,
// newest first, used by the loop-breaker to trace candidate item ids
// (spec.md §4.7 "checkLoopBreaker").
func (s *Store) RecentAuditRecords(ctx context.Context, tenant, project string, limit int) ([]model.AuditRecord, error) {
	query := s.rebind(`SELECT id, tenant, project, tool, trace_id, success, error_code, duration_ms, item_id, detail, created_at
		FROM audit_records WHERE tenant = ? AND project = ? ORDER BY created_at DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, tenant, project, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: recent audit records: %w", err)
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var r model.AuditRecord
		var id, itemID string
		if err := rows.Scan(&id, &r.Tenant, &r.Project, &r.Tool, &r.TraceID, &r.Success, &r.ErrorCode,
			&r.DurationMS, &itemID, &r.Detail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan audit record: %w", err)
		}
		r.ID, _ = uuid.Parse(id)
		if itemID != "" {
			r.ItemID, _ = uuid.Parse(itemID)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// History returns the version history of an item, newest first.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]model.History, error) {
	query := s.rebind(`SELECT item_id, version, title, content, tags, content_hash, usefulness_score, updated_at, reason
		FROM item_history WHERE item_id = ? ORDER BY version DESC`)
	rows, err := s.db.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("storage: list history: %w", err)
	}
	defer rows.Close()

	var out []model.History
	for rows.Next() {
		var h model.History
		var itemID, tagsJSON string
		if err := rows.Scan(&itemID, &h.Version, &h.Title, &h.Content, &tagsJSON, &h.ContentHash,
			&h.UsefulnessScore, &h.UpdatedAt, &h.Reason); err != nil {
			return nil, fmt.Errorf("storage: scan history: %w", err)
		}
		h.ItemID, _ = uuid.Parse(itemID)
		if tagsJSON != "" {
			_ = json.Unmarshal([]byte(tagsJSON), &h.Tags)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
