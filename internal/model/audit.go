package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is an append-only log entry for a single tool invocation,
// written on every request completion regardless of success (spec.md §4.8).
type AuditRecord struct {
	ID         uuid.UUID `json:"id"`
	Tenant     string    `json:"tenant"`
	Project    string    `json:"project"`
	Tool       string    `json:"tool"`
	TraceID    string    `json:"trace_id"`
	Success    bool      `json:"success"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	ItemID     uuid.UUID `json:"item_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
