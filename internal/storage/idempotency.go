package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrIdempotencyPayloadMismatch is returned when the same idempotency key is
// reused with a different request payload hash for the same (tenant,
// project, tool).
var ErrIdempotencyPayloadMismatch = errors.New("storage: idempotency key reused with different payload")

// ErrIdempotencyInProgress indicates a matching idempotency key is currently
// being processed by another caller.
var ErrIdempotencyInProgress = errors.New("storage: idempotency key request already in progress")

// IdempotencyLookup describes the current state of an idempotency key.
type IdempotencyLookup struct {
	Completed    bool
	ResponseData json.RawMessage
}

// BeginIdempotency reserves key for processing memory_upsert (spec.md §4.3
// "Supplemented Features" — retry safety). If the returned lookup has
// Completed=true, the caller should replay ResponseData instead of running
// the operation again. A stale in-progress reservation is left alone rather
// than taken over: it blocks retries until CleanupIdempotencyKeys removes it,
// so a crash between reserving and completing never lets two writers race.
func (s *Store) BeginIdempotency(ctx context.Context, tenant, project, tool, key, requestHash string) (IdempotencyLookup, error) {
	now := time.Now().UTC()
	ins := s.rebind(`INSERT INTO idempotency_keys (tenant, project, tool, idempotency_key, request_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'in_progress', ?, ?)`)
	if _, err := s.db.ExecContext(ctx, ins, tenant, project, tool, key, requestHash, now, now); err == nil {
		return IdempotencyLookup{}, nil // caller owns processing
	}

	sel := s.rebind(`SELECT request_hash, status, response_data FROM idempotency_keys
		WHERE tenant = ? AND project = ? AND tool = ? AND idempotency_key = ?`)
	var row struct {
		RequestHash  string         `db:"request_hash"`
		Status       string         `db:"status"`
		ResponseData sql.NullString `db:"response_data"`
	}
	if err := s.db.GetContext(ctx, &row, sel, tenant, project, tool, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost a race against a concurrent insert; treat as in-progress.
			return IdempotencyLookup{}, ErrIdempotencyInProgress
		}
		return IdempotencyLookup{}, fmt.Errorf("storage: lookup idempotency: %w", err)
	}
	if row.RequestHash != requestHash {
		return IdempotencyLookup{}, ErrIdempotencyPayloadMismatch
	}
	if row.Status == "completed" {
		return IdempotencyLookup{Completed: true, ResponseData: json.RawMessage(row.ResponseData.String)}, nil
	}
	return IdempotencyLookup{}, ErrIdempotencyInProgress
}

// CompleteIdempotency stores the final response for a previously reserved key.
func (s *Store) CompleteIdempotency(ctx context.Context, tenant, project, tool, key string, responseData any) error {
	payload, err := json.Marshal(responseData)
	if err != nil {
		return fmt.Errorf("storage: marshal idempotency response: %w", err)
	}
	upd := s.rebind(`UPDATE idempotency_keys SET status = 'completed', response_data = ?, updated_at = ?
		WHERE tenant = ? AND project = ? AND tool = ? AND idempotency_key = ? AND status = 'in_progress'`)
	res, err := s.db.ExecContext(ctx, upd, string(payload), time.Now().UTC(), tenant, project, tool, key)
	if err != nil {
		return fmt.Errorf("storage: complete idempotency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage: complete idempotency: key not found or not in_progress")
	}
	return nil
}

// ClearInProgressIdempotency removes an in-progress reservation so the
// client can retry after the underlying operation failed.
func (s *Store) ClearInProgressIdempotency(ctx context.Context, tenant, project, tool, key string) error {
	del := s.rebind(`DELETE FROM idempotency_keys
		WHERE tenant = ? AND project = ? AND tool = ? AND idempotency_key = ? AND status = 'in_progress'`)
	_, err := s.db.ExecContext(ctx, del, tenant, project, tool, key)
	if err != nil {
		return fmt.Errorf("storage: clear idempotency: %w", err)
	}
	return nil
}

// CleanupIdempotencyKeys removes old completed records and abandoned
// in-progress records, run as part of memory_maintain.
func (s *Store) CleanupIdempotencyKeys(ctx context.Context, completedTTL, inProgressTTL time.Duration) (int64, error) {
	now := time.Now().UTC()
	del := s.rebind(`DELETE FROM idempotency_keys
		WHERE (status = 'completed' AND updated_at < ?)
		   OR (status = 'in_progress' AND updated_at < ?)`)
	res, err := s.db.ExecContext(ctx, del, now.Add(-completedTTL), now.Add(-inProgressTTL))
	if err != nil {
		return 0, fmt.Errorf("storage: cleanup idempotency keys: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
