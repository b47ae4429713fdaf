package model

import (
	"time"

	"github.com/google/uuid"
)

// Relation is the typed edge kind in the knowledge graph (spec.md §4.6).
type Relation string

const (
	RelationCauses     Relation = "causes"
	RelationDependsOn  Relation = "depends_on"
	RelationContradicts Relation = "contradicts"
	RelationSupersedes Relation = "supersedes"
	RelationRelatedTo  Relation = "related_to"
)

// Valid reports whether r is one of the five recognized relation kinds.
func (r Relation) Valid() bool {
	switch r {
	case RelationCauses, RelationDependsOn, RelationContradicts, RelationSupersedes, RelationRelatedTo:
		return true
	}
	return false
}

// MemoryLink is a directed, typed edge between two MemoryItems.
type MemoryLink struct {
	ID        uuid.UUID `json:"id"`
	Tenant    string    `json:"tenant"`
	Project   string    `json:"project"`
	FromID    uuid.UUID `json:"from_id"`
	ToID      uuid.UUID `json:"to_id"`
	Relation  Relation  `json:"relation"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
