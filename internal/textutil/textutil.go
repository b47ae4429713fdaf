// Package textutil provides the normalization, hashing, keyword extraction
// and temporal decay primitives shared by the search, ranker and governance
// packages.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// ContentHash returns the lower-case hex SHA-256 digest of content, matching
// the literal invariant content_hash = sha256(content).
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// HasCommandBlock reports whether content carries at least one executable
// command line: a fenced code block or a shell-prompt line. Used to flag
// critical runbooks that describe an action without specifying it
// (spec.md §7 "format-policy errors").
func HasCommandBlock(content string) bool {
	if strings.Contains(content, "```") {
		return true
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "$ ") || strings.HasPrefix(trimmed, "# ") {
			return true
		}
	}
	return false
}

// Normalize lower-cases, folds punctuation to spaces and collapses
// whitespace, producing a canonical form used for fuzzy matching.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"to": {}, "in": {}, "on": {}, "for": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "been": {}, "being": {}, "with": {}, "at": {},
	"by": {}, "this": {}, "that": {}, "it": {}, "as": {}, "from": {},
	"we": {}, "you": {}, "they": {}, "it's": {}, "into": {}, "than": {},
}

// Keywords extracts the normalized, stop-word-filtered tokens of at least
// three characters from s, used for fuzzy-title comparison and keyword
// extraction.
func Keywords(s string) []string {
	fields := strings.Fields(Normalize(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// JaccardSimilarity returns the size of the intersection over the size of
// the union of the two keyword sets derived from a and b.
func JaccardSimilarity(a, b string) float64 {
	setA := toSet(Keywords(a))
	setB := toSet(Keywords(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Dominance reports whether the shorter of a, b is "dominated by" the
// longer one: nearly all of its keywords appear in the other, used as the
// fuzzy-title upsert gate's secondary condition alongside Jaccard.
func Dominance(a, b string) float64 {
	setA := toSet(Keywords(a))
	setB := toSet(Keywords(b))
	shorter, longer := setA, setB
	if len(setB) < len(setA) {
		shorter, longer = setB, setA
	}
	if len(shorter) == 0 {
		return 0
	}
	contained := 0
	for k := range shorter {
		if _, ok := longer[k]; ok {
			contained++
		}
	}
	return float64(contained) / float64(len(shorter))
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// TemporalClass buckets a memory kind into the decay profile used by the
// ranker's recency component (spec.md §4.5).
type TemporalClass string

const (
	ClassEvent      TemporalClass = "event"
	ClassState      TemporalClass = "state"
	ClassRule       TemporalClass = "rule"
	ClassPreference TemporalClass = "preference"
)

// decayRate is the per-day decay constant k of the hyperbolic curve
// 1/(1+k*days) for each temporal class: events go stale fastest, rules and
// preferences barely decay.
var decayRate = map[TemporalClass]float64{
	ClassEvent:      0.15,
	ClassState:      0.10,
	ClassRule:       0.03,
	ClassPreference: 0.02,
}

// ClassOf maps a memory kind and its tags to a decay class (spec.md §4.5):
// episode kind or an event/log tag decays fastest as an event; decision and
// runbook kinds or a rule/policy/guardrail tag barely decay as a rule; an
// explicit preference tag decays slowest; everything else is state.
func ClassOf(kind string, tags []string) TemporalClass {
	if kind == "episode" || hasAny(tags, "event", "log") {
		return ClassEvent
	}
	if kind == "decision" || kind == "runbook" || hasAny(tags, "rule", "policy", "guardrail") {
		return ClassRule
	}
	if hasAny(tags, "user_preference", "preference") {
		return ClassPreference
	}
	return ClassState
}

func hasAny(tags []string, targets ...string) bool {
	for _, t := range tags {
		for _, target := range targets {
			if t == target {
				return true
			}
		}
	}
	return false
}

// RecencyScore returns the hyperbolic recency decay 1/(1+k*ageDays) for an
// item of the given class last touched at updatedAt, evaluated at now. The result is
// bounded to [0.05, 1.0]: even very old rule/preference memories retain a
// small floor of relevance rather than vanishing from rankings entirely.
func RecencyScore(class TemporalClass, updatedAt, now time.Time) float64 {
	ageDays := now.Sub(updatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	rate, ok := decayRate[class]
	if !ok {
		rate = decayRate[ClassPreference]
	}
	score := expDecay(rate, ageDays)
	if score < 0.05 {
		return 0.05
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

func expDecay(rate, ageDays float64) float64 {
	// 1 / (1 + rate*ageDays) approximates exponential decay without needing
	// math.Exp, and keeps the floor behavior simple to reason about.
	return 1.0 / (1.0 + rate*ageDays)
}
