package model

// SearchMode selects the weighting profile applied by the ranker (spec.md §4.5).
type SearchMode string

const (
	ModeHybrid      SearchMode = "hybrid"
	ModeKeywordOnly SearchMode = "keyword_only"
	ModeVectorOnly  SearchMode = "vector_only"
)

// SearchQuery carries the parameters of a memory_search invocation.
type SearchQuery struct {
	Tenant             string
	Project            string
	Text               string
	Kinds              []Kind
	Tags               []string
	Mode               SearchMode
	Limit              int
	Verbose            bool
	OverrideQuarantine bool
	Diversify          bool
}

// ListSortField whitelists the columns memory_list may sort by (spec.md §6
// "four sort fields"). Any other value falls back to SortUpdatedAt.
type ListSortField string

const (
	SortUpdatedAt  ListSortField = "updated_at"
	SortCreatedAt  ListSortField = "created_at"
	SortUsefulness ListSortField = "usefulness_score"
	SortConfidence ListSortField = "confidence"
)

// Valid reports whether f is one of the four whitelisted sort fields.
func (f ListSortField) Valid() bool {
	switch f {
	case SortUpdatedAt, SortCreatedAt, SortUsefulness, SortConfidence:
		return true
	}
	return false
}

// ListFilter carries the parameters of a memory_list invocation.
type ListFilter struct {
	Tenant   string
	Project  string
	Kinds    []Kind
	Status   Status
	Tags     []string
	SortBy   ListSortField
	SortDesc bool
	Limit    int
	Offset   int
}

// ScoredItem pairs a MemoryItem with its final ranked score and the
// component scores that produced it, for forensic meta reporting.
type ScoredItem struct {
	Item         MemoryItem
	KeywordScore float64
	VectorScore  float64
	RecencyScore float64
	FinalScore   float64
}

// ExcludedItem is a hit removed from the main result set by governance
// (spec.md §4.5 "Excluded-items sidecar").
type ExcludedItem struct {
	Item   MemoryItem
	Reason string // "quarantined", "suppressed" or "deleted"
}

// SearchResult is the full output of a ranked search: the returned page,
// the items governance removed, and whether vector search degraded the
// effective mode to keyword_only.
type SearchResult struct {
	Items          []ScoredItem
	Excluded       []ExcludedItem
	EffectiveMode  SearchMode
	FallbackReason string
}
