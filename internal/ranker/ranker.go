// Package ranker implements the hybrid merge/weight/decay/rerank/diversify
// pipeline that turns raw keyword and vector hits into the ordered result
// of a memory_search call (spec.md §4.5).
package ranker

import (
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/search"
	"github.com/kioku-ai/kioku/internal/textutil"
)

// Weights is a (keyword, vector, recency) weighting triple.
type Weights struct {
	Keyword float64
	Vector  float64
	Recency float64
}

var weightProfiles = map[model.SearchMode]Weights{
	model.ModeKeywordOnly: {Keyword: 0.75, Vector: 0, Recency: 0.25},
	model.ModeHybrid:      {Keyword: 0.5, Vector: 0.3, Recency: 0.2},
	model.ModeVectorOnly:  {Keyword: 0, Vector: 0.8, Recency: 0.2},
}

// WeightsFor returns the active weight profile for mode, defaulting to
// hybrid for an unrecognized mode.
func WeightsFor(mode model.SearchMode) Weights {
	if w, ok := weightProfiles[mode]; ok {
		return w
	}
	return weightProfiles[model.ModeHybrid]
}

// keywordNormCap is the raw keyword score divisor beyond which the
// normalized keyword component saturates at 1.0.
const keywordNormCap = 20.0

// Candidate is one item merged from the keyword and vector candidate sets,
// carrying the raw component scores that feed the final formula.
type Candidate struct {
	Item       model.MemoryItem
	RawKeyword float64
	VectorRaw  float64 // already in [0,1] per search.Result contract
}

// Merge combines keyword and vector hits by item identity. items supplies
// the full MemoryItem for every id referenced by either result set; ids
// with no corresponding item (e.g. concurrently deleted) are dropped.
func Merge(keywordHits, vectorHits []search.Result, items map[uuid.UUID]model.MemoryItem) []Candidate {
	byID := make(map[uuid.UUID]*Candidate, len(keywordHits)+len(vectorHits))
	order := make([]uuid.UUID, 0, len(keywordHits)+len(vectorHits))
	for _, h := range keywordHits {
		if _, ok := byID[h.ItemID]; !ok {
			byID[h.ItemID] = &Candidate{}
			order = append(order, h.ItemID)
		}
		byID[h.ItemID].RawKeyword = h.Score
	}
	for _, h := range vectorHits {
		if _, ok := byID[h.ItemID]; !ok {
			byID[h.ItemID] = &Candidate{}
			order = append(order, h.ItemID)
		}
		byID[h.ItemID].VectorRaw = h.Score
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		item, ok := items[id]
		if !ok {
			continue
		}
		c := *byID[id]
		c.Item = item
		out = append(out, c)
	}
	return out
}

// Score computes an item's final ranked score per spec.md §4.5's formula,
// before reranking.
func Score(c Candidate, mode model.SearchMode, now time.Time) model.ScoredItem {
	w := WeightsFor(mode)
	kwNorm := min(1.0, c.RawKeyword/keywordNormCap)
	vec := c.VectorRaw

	class := textutil.ClassOf(string(c.Item.Kind), c.Item.Tags)
	recency := textutil.RecencyScore(class, c.Item.UpdatedAt, now)

	verifiedBonus := 0.0
	if c.Item.Verified {
		verifiedBonus = 0.1
	}
	deprecatedMult := 1.0
	if c.Item.Status == model.StatusDeprecated {
		deprecatedMult = 0.7
	}

	final := (w.Keyword*kwNorm + w.Vector*vec + w.Recency*recency + verifiedBonus) * deprecatedMult
	if final > 1.0 {
		final = 1.0
	}

	return model.ScoredItem{
		Item:         c.Item,
		KeywordScore: kwNorm,
		VectorScore:  vec,
		RecencyScore: recency,
		FinalScore:   final,
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
