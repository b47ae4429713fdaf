// Package model defines the storage-level types shared by every subsystem:
// the memory item itself, its links, audit trail, and governance side tables.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the type of knowledge a MemoryItem carries.
type Kind string

const (
	KindFact    Kind = "fact"
	KindState   Kind = "state"
	KindDecision Kind = "decision"
	KindRunbook Kind = "runbook"
	KindEpisode Kind = "episode"
)

// Valid reports whether k is one of the five recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFact, KindState, KindDecision, KindRunbook, KindEpisode:
		return true
	}
	return false
}

// Status is a MemoryItem's place in the governance lifecycle (spec.md §4.4).
type Status string

const (
	StatusActive      Status = "active"
	StatusQuarantined Status = "quarantined"
	StatusDeprecated  Status = "deprecated"
	StatusDeleted     Status = "deleted"
)

// Provenance records who produced an item and how confident they were.
// Stored as JSON text on both backends; decoded at the boundary.
type Provenance struct {
	ModelID    string    `json:"model_id,omitempty"`
	Persona    string    `json:"persona,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// MemoryItem is the unit of knowledge persisted by the store. See spec.md §3.
type MemoryItem struct {
	ID       uuid.UUID `json:"id"`
	Tenant   string    `json:"tenant"`
	Project  string    `json:"project"`
	Kind     Kind      `json:"kind"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Tags     []string  `json:"tags"`

	Provenance Provenance `json:"provenance"`

	Verified        bool    `json:"verified"`
	Confidence      float64 `json:"confidence"`
	UsefulnessScore float64 `json:"usefulness_score"`
	ErrorCount      int     `json:"error_count"`
	Version         int     `json:"version"`
	Status          Status  `json:"status"`
	StatusReason    string  `json:"status_reason,omitempty"`
	ContentHash     string  `json:"content_hash"`

	// Embedding is nil when the embedding backend failed or is disabled.
	Embedding []float32 `json:"-"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// TagSet returns t as a lower-cased, de-duplicated, sorted-free set view.
// Callers that need determinism should sort the result themselves.
func TagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[normalizeTag(t)] = struct{}{}
	}
	return set
}

func normalizeTag(t string) string {
	out := make([]rune, 0, len(t))
	for _, r := range t {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return string(out)
}

// NormalizeTags lower-cases and de-duplicates a tag slice, preserving first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := normalizeTag(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// HasAnyTag reports whether item tags intersect candidates.
func HasAnyTag(itemTags []string, candidates map[string]struct{}) bool {
	for _, t := range itemTags {
		if _, ok := candidates[normalizeTag(t)]; ok {
			return true
		}
	}
	return false
}

// History is a prior snapshot of an item's content-bearing fields, appended
// on every content-changing update (spec.md §3 "History").
type History struct {
	ItemID          uuid.UUID `json:"item_id"`
	Version         int       `json:"version"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	Tags            []string  `json:"tags"`
	ContentHash     string    `json:"content_hash"`
	UsefulnessScore float64   `json:"usefulness_score"`
	UpdatedAt       time.Time `json:"updated_at"`
	Reason          string    `json:"reason"`
}
