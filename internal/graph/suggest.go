package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
)

// Suggestion is a proposed edge from SuggestRelations, not yet persisted.
type Suggestion struct {
	ToID       uuid.UUID
	ToTitle    string
	Relation   model.Relation
	Confidence float64
}

// relationRules maps (kind of the source item, kind of the candidate) to
// the relation type suggested between them, each with a static confidence
// (spec.md §4.6 "a small rule table").
var relationRules = map[[2]model.Kind]struct {
	relation   model.Relation
	confidence float64
}{
	{model.KindDecision, model.KindDecision}: {model.RelationSupersedes, 0.6},
	{model.KindDecision, model.KindRunbook}:  {model.RelationDependsOn, 0.5},
	{model.KindRunbook, model.KindDecision}:  {model.RelationDependsOn, 0.5},
	{model.KindState, model.KindState}:       {model.RelationContradicts, 0.4},
	{model.KindEpisode, model.KindFact}:      {model.RelationCauses, 0.45},
	{model.KindFact, model.KindEpisode}:      {model.RelationRelatedTo, 0.3},
}

const defaultSuggestionConfidence = 0.25

// SuggestRelations uses full-text search over the item's title to find
// candidate related items and proposes a relation type per relationRules,
// excluding the item itself (spec.md §4.6 "suggestRelations").
func (g *Graph) SuggestRelations(ctx context.Context, tenant, project string, id uuid.UUID, limit int) ([]Suggestion, error) {
	item, err := g.store.GetItem(ctx, tenant, project, id)
	if err != nil {
		return nil, fmt.Errorf("graph: suggest relations: %w", err)
	}
	hits, err := g.store.FullTextSearch(ctx, tenant, project, item.Title, limit+1)
	if err != nil {
		return nil, fmt.Errorf("graph: suggest relations: %w", err)
	}

	var out []Suggestion
	for _, h := range hits {
		if h.ID == id {
			continue
		}
		candidate, err := g.store.GetItem(ctx, tenant, project, h.ID)
		if err != nil {
			continue
		}
		relation, confidence := model.RelationRelatedTo, defaultSuggestionConfidence
		if rule, ok := relationRules[[2]model.Kind{item.Kind, candidate.Kind}]; ok {
			relation, confidence = rule.relation, rule.confidence
		}
		out = append(out, Suggestion{ToID: candidate.ID, ToTitle: candidate.Title, Relation: relation, Confidence: confidence})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
