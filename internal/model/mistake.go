package model

import (
	"time"

	"github.com/google/uuid"
)

// Mistake is a recorded loop-breaker signal: a repeated failure signature
// tied to a project, used to detect when an agent is retrying the same
// doomed approach (spec.md §4.7).
type Mistake struct {
	ID          uuid.UUID `json:"id"`
	Tenant      string    `json:"tenant"`
	Project     string    `json:"project"`
	Signature   string    `json:"signature"`
	Description string    `json:"description"`
	Occurrences int       `json:"occurrences"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Guardrail is a standing rule surfaced to callers once a mistake signature
// crosses the loop-breaker threshold, or created directly by a caller.
type Guardrail struct {
	ID            uuid.UUID   `json:"id"`
	Tenant        string      `json:"tenant"`
	Project       string      `json:"project"`
	Signature     string      `json:"signature"`
	Rule          string      `json:"rule"`
	Severity      string      `json:"severity"` // "warn" or "block"
	SourceMistake uuid.UUID   `json:"source_mistake,omitempty"`
	SuppressIDs   []uuid.UUID `json:"suppress_ids,omitempty"`
	Active        bool        `json:"active"`
	CreatedAt     time.Time   `json:"created_at"`
	ExpiresAt     time.Time   `json:"expires_at,omitempty"`
}
