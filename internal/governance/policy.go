// Package governance implements the lifecycle state machine, policy
// engine, deduplication gates, conflict detection and loop-breaker guardrail
// machinery that sit on top of internal/storage (spec.md §4.3, §4.4, §4.7).
package governance

import (
	"time"

	"github.com/kioku-ai/kioku/internal/model"
)

// Policy is the tunable set of thresholds driving the prune evaluation and
// quarantine/delete escalation (spec.md §4.4). Every field is overridable
// per memory_maintain call.
type Policy struct {
	MaxAgeDays                 int
	MinUsefulness              float64
	MaxErrorCount              int
	KeepLastNEpisodes          int
	QuarantineOnWrongThreshold int
	DeleteOnWrongThreshold     int
}

// DefaultPolicy is the policy applied when a caller supplies no overrides.
func DefaultPolicy() Policy {
	return Policy{
		MaxAgeDays:                 180,
		MinUsefulness:              -5.0,
		MaxErrorCount:              5,
		KeepLastNEpisodes:          500,
		QuarantineOnWrongThreshold: 3,
		DeleteOnWrongThreshold:     5,
	}
}

// protectedTags is the fixed set of tags that make an item immune to
// automated prune and loop-breaker actions, regardless of policy
// thresholds (spec.md §4.4).
var protectedTags = map[string]struct{}{
	"critical": {}, "operational": {}, "persistence": {}, "credential": {},
	"verified": {}, "guardrail": {}, "ssh": {}, "webshell": {}, "exploit": {},
	"root": {},
}

// IsProtected reports whether item is immune to automatic mutation: a
// protected tag, verified=true, confidence >= 0.8, or usefulness_score >=
// 1.0 (spec.md §4.4). Explicit memory_forget still applies regardless.
func IsProtected(item model.MemoryItem) bool {
	if item.Verified || item.Confidence >= 0.8 || item.UsefulnessScore >= 1.0 {
		return true
	}
	for _, t := range item.Tags {
		if _, ok := protectedTags[t]; ok {
			return true
		}
	}
	return false
}

// PruneDecision is the outcome of evaluating one item against a Policy.
type PruneDecision struct {
	Transition bool
	NewStatus  model.Status
	Reason     string
}

// Evaluate applies the prune policy to item as of now, returning whether a
// transition should occur and to what status (spec.md §4.4's state
// diagram, driven by age/usefulness/error-count thresholds rather than
// feedback).
func Evaluate(item model.MemoryItem, p Policy, now time.Time) PruneDecision {
	if IsProtected(item) || item.Status != model.StatusActive {
		return PruneDecision{}
	}

	ageDays := int(now.Sub(item.UpdatedAt).Hours() / 24)
	failsPolicy := ageDays > p.MaxAgeDays || item.UsefulnessScore < p.MinUsefulness || item.ErrorCount > p.MaxErrorCount
	if !failsPolicy {
		return PruneDecision{}
	}

	reason := "policy evaluation failed"
	switch item.Kind {
	case model.KindDecision, model.KindState:
		return PruneDecision{Transition: true, NewStatus: model.StatusDeprecated, Reason: reason}
	default:
		return PruneDecision{Transition: true, NewStatus: model.StatusQuarantined, Reason: reason}
	}
}

// Escalate applies the quarantined -> {deleted, deprecated, no-op} rule
// once error_count crosses DeleteOnWrongThreshold (spec.md §4.4). State
// items never auto-delete; they require a manual supersede.
func Escalate(item model.MemoryItem, p Policy) PruneDecision {
	if item.Status != model.StatusQuarantined || item.ErrorCount < p.DeleteOnWrongThreshold {
		return PruneDecision{}
	}
	switch item.Kind {
	case model.KindRunbook, model.KindEpisode, model.KindFact:
		return PruneDecision{Transition: true, NewStatus: model.StatusDeleted, Reason: "error count exceeded delete threshold"}
	case model.KindDecision:
		return PruneDecision{Transition: true, NewStatus: model.StatusDeprecated, Reason: "error count exceeded delete threshold"}
	default: // state: no automatic change, manual supersede required
		return PruneDecision{}
	}
}
