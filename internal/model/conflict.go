package model

import (
	"time"

	"github.com/google/uuid"
)

// ModelConflict records two active items whose content appears to
// contradict each other, surfaced so a caller can resolve or suppress it
// (spec.md §4.6 "findConflicts", §6 forensic meta "cross-model conflicts").
type ModelConflict struct {
	ID         uuid.UUID `json:"id"`
	Tenant     string    `json:"tenant"`
	Project    string    `json:"project"`
	ItemA      uuid.UUID `json:"item_a"`
	ItemB      uuid.UUID `json:"item_b"`
	Reason     string    `json:"reason"`
	Suppressed bool      `json:"suppressed"`
	DetectedAt time.Time `json:"detected_at"`
}
