package governance

import (
	"sort"
	"strings"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/textutil"
)

// jaccardAcceptThreshold and secondBestCeiling gate the fuzzy-title upsert
// match (spec.md §4.3 step 3): the best candidate must clear the accept
// threshold and the runner-up must stay comfortably below it, or the match
// is ambiguous and rejected.
const (
	jaccardAcceptThreshold = 0.60
	secondBestCeiling      = 0.55
)

// FuzzyMatch is the unique best candidate accepted by the fuzzy-title gate.
type FuzzyMatch struct {
	Item  model.MemoryItem
	Score float64
}

// FindFuzzyMatch scores candidates against newTitle by Jaccard similarity
// over title keywords and accepts the unique best match only if it clears
// jaccardAcceptThreshold while every other candidate stays below
// secondBestCeiling, and the candidate's content differs from newContent
// (a content match belongs to the idempotency gate, not here). Candidates
// whose title marks a different outcome status than newTitle (e.g.
// [FAILED] vs [SUCCESS]) are excluded before scoring.
func FindFuzzyMatch(candidates []model.MemoryItem, newTitle, newContentHash string) (FuzzyMatch, bool) {
	type scored struct {
		item  model.MemoryItem
		score float64
	}
	var ranked []scored
	for _, c := range candidates {
		if outcomeMarker(c.Title) != "" && outcomeMarker(c.Title) != outcomeMarker(newTitle) {
			continue
		}
		if c.ContentHash == newContentHash {
			continue
		}
		ranked = append(ranked, scored{item: c, score: textutil.JaccardSimilarity(c.Title, newTitle)})
	}
	if len(ranked) == 0 {
		return FuzzyMatch{}, false
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	best := ranked[0]
	if best.score < jaccardAcceptThreshold {
		return FuzzyMatch{}, false
	}
	if len(ranked) > 1 && ranked[1].score >= secondBestCeiling {
		return FuzzyMatch{}, false
	}
	return FuzzyMatch{Item: best.item, Score: best.score}, true
}

var outcomeMarkers = []string{"[FAILED]", "[SUCCESS]", "[ERROR]", "[OK]"}

func outcomeMarker(title string) string {
	upper := strings.ToUpper(title)
	for _, m := range outcomeMarkers {
		if strings.Contains(upper, m) {
			return m
		}
	}
	return ""
}

// DedupReport describes a group of active items sharing one content hash,
// and the survivor chosen by the dedup maintenance action.
type DedupReport struct {
	ContentHash string
	Survivor    model.MemoryItem
	Removed     []model.MemoryItem
}

// Dedup groups active project items by exact content hash and, for every
// group with more than one member, keeps the best (ordered by verified
// desc, usefulness desc, version desc, updated desc) and marks the rest for
// soft deletion (spec.md §4.8 "dedup").
func Dedup(items []model.MemoryItem) []DedupReport {
	groups := make(map[string][]model.MemoryItem)
	for _, it := range items {
		if it.Status != model.StatusActive {
			continue
		}
		groups[it.ContentHash] = append(groups[it.ContentHash], it)
	}

	var reports []DedupReport
	for hash, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if a.Verified != b.Verified {
				return a.Verified
			}
			if a.UsefulnessScore != b.UsefulnessScore {
				return a.UsefulnessScore > b.UsefulnessScore
			}
			if a.Version != b.Version {
				return a.Version > b.Version
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		})
		reports = append(reports, DedupReport{ContentHash: hash, Survivor: group[0], Removed: group[1:]})
	}
	return reports
}

// DetectConflicts heuristically flags pairs of active items sharing a
// title whose content diverges, and decision pairs using opposing
// keywords, as candidate contradicts edges (spec.md §4.8 "conflict").
func DetectConflicts(items []model.MemoryItem) []ConflictCandidate {
	var out []ConflictCandidate
	byTitle := make(map[string][]model.MemoryItem)
	for _, it := range items {
		if it.Status != model.StatusActive {
			continue
		}
		byTitle[textutil.Normalize(it.Title)] = append(byTitle[textutil.Normalize(it.Title)], it)
	}
	for _, group := range byTitle {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.ContentHash == b.ContentHash {
					continue
				}
				out = append(out, ConflictCandidate{A: a, B: b, Reason: "same title, different content"})
			}
		}
	}

	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if a.Kind != model.KindDecision || b.Kind != model.KindDecision || a.Status != model.StatusActive || b.Status != model.StatusActive {
				continue
			}
			if opposingKeywords(a.Content, b.Content) {
				out = append(out, ConflictCandidate{A: a, B: b, Reason: "opposing decision keywords"})
			}
		}
	}
	return out
}

// ConflictCandidate is a pair of items flagged for a contradicts edge.
type ConflictCandidate struct {
	A, B   model.MemoryItem
	Reason string
}

var opposingPairs = [][2]string{
	{"enable", "disable"}, {"yes", "no"}, {"allow", "deny"}, {"true", "false"}, {"accept", "reject"},
}

func opposingKeywords(a, b string) bool {
	na, nb := textutil.Normalize(a), textutil.Normalize(b)
	for _, pair := range opposingPairs {
		if containsWord(na, pair[0]) && containsWord(nb, pair[1]) {
			return true
		}
		if containsWord(na, pair[1]) && containsWord(nb, pair[0]) {
			return true
		}
	}
	return false
}

func containsWord(normalized, word string) bool {
	for _, f := range strings.Fields(normalized) {
		if f == word {
			return true
		}
	}
	return false
}
