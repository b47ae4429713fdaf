package ranker

import (
	"sort"
	"strings"
	"time"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/textutil"
)

// commonTechniqueWords are generic terms that don't count as a deliberate
// tag reference for the target-tag boost (spec.md §4.5): a query like "fix
// the bug" shouldn't get a boost just because an item happens to be tagged
// "bug".
var commonTechniqueWords = map[string]struct{}{
	"fix": {}, "bug": {}, "issue": {}, "error": {}, "test": {}, "use": {},
	"add": {}, "remove": {}, "update": {}, "change": {}, "code": {},
	"function": {}, "method": {}, "data": {}, "file": {}, "run": {},
	"build": {}, "check": {}, "make": {}, "need": {}, "work": {},
}

// Rerank applies the error-penalty, title-match bonus and target-tag boost
// multipliers to every scored item's FinalScore and returns the set
// re-sorted descending by FinalScore.
func Rerank(scored []model.ScoredItem, queryKeywords []string) []model.ScoredItem {
	for i, s := range scored {
		errorPenalty := 1 - min(0.5, float64(s.Item.ErrorCount)*0.1)

		titleRatio := titleMatchRatio(s.Item.Title, queryKeywords)
		titleBonus := 1 + titleRatio*0.15

		tagHits := countTagHits(s.Item.Tags, queryKeywords)
		tagBoost := 1 + min(0.5, float64(tagHits)*0.25)

		scored[i].FinalScore = s.FinalScore * errorPenalty * titleBonus * tagBoost
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].FinalScore > scored[j].FinalScore })
	return scored
}

func titleMatchRatio(title string, queryKeywords []string) float64 {
	if len(queryKeywords) == 0 {
		return 0
	}
	titleWords := textutil.Keywords(title)
	titleSet := make(map[string]struct{}, len(titleWords))
	for _, w := range titleWords {
		titleSet[w] = struct{}{}
	}
	matched := 0
	for _, kw := range queryKeywords {
		if _, ok := titleSet[kw]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryKeywords))
}

func countTagHits(tags, queryKeywords []string) int {
	normTags := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		normTags[strings.ToLower(t)] = struct{}{}
	}
	hits := 0
	for _, kw := range queryKeywords {
		if _, common := commonTechniqueWords[kw]; common {
			continue
		}
		if _, tagged := normTags[kw]; tagged {
			hits++
		}
	}
	return hits
}

// Rank scores, reranks, optionally diversifies and truncates candidates to
// limit, the full pipeline behind one memory_search call (spec.md §4.5).
// queryKeywords should be the normalized keyword extraction of the query
// text, used by both the title bonus and tag boost.
func Rank(candidates []Candidate, mode model.SearchMode, queryKeywords []string, limit int, diversify bool, now time.Time) []model.ScoredItem {
	scored := make([]model.ScoredItem, len(candidates))
	for i, c := range candidates {
		scored[i] = Score(c, mode, now)
	}
	scored = Rerank(scored, queryKeywords)
	if diversify {
		scored = Diversify(scored, 3)
	}
	if limit <= 0 {
		limit = 10
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Diversify caps the number of items per kind at capPerKind, preserving the
// existing (already score-sorted) order and dropping the lowest-ranked
// overflow of any over-represented kind.
func Diversify(scored []model.ScoredItem, capPerKind int) []model.ScoredItem {
	counts := make(map[model.Kind]int)
	out := make([]model.ScoredItem, 0, len(scored))
	for _, s := range scored {
		if counts[s.Item.Kind] >= capPerKind {
			continue
		}
		counts[s.Item.Kind]++
		out = append(out, s)
	}
	return out
}
