// Package graph implements the knowledge graph operations over
// model.MemoryLink edges: adding relations, bounded traversal, relation
// suggestion and contradiction discovery (spec.md §4.6).
package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
	"github.com/kioku-ai/kioku/internal/storage"
)

// ErrInvalidRelation is returned by AddRelation for an unrecognized
// relation type.
var ErrInvalidRelation = fmt.Errorf("graph: invalid relation type")

// Graph operates over a project's links using store as the backing table.
type Graph struct {
	store *storage.Store
}

// New builds a Graph over store.
func New(store *storage.Store) *Graph {
	return &Graph{store: store}
}

// AddRelation upserts an edge by (from, to, relation): when that edge
// already exists it is returned as stored (its note unchanged) and no row is
// added, since the links table has no uniqueness constraint of its own.
func (g *Graph) AddRelation(ctx context.Context, tenant, project string, from, to uuid.UUID, relation model.Relation, note string) (model.MemoryLink, error) {
	if !relation.Valid() {
		return model.MemoryLink{}, ErrInvalidRelation
	}
	existing, err := g.store.LinksFrom(ctx, tenant, project, from)
	if err != nil {
		return model.MemoryLink{}, fmt.Errorf("graph: add relation: %w", err)
	}
	for _, l := range existing {
		if l.ToID == to && l.Relation == relation {
			return l, nil
		}
	}
	link := model.MemoryLink{Tenant: tenant, Project: project, FromID: from, ToID: to, Relation: relation, Note: note}
	if err := g.store.CreateLink(ctx, &link); err != nil {
		return model.MemoryLink{}, err
	}
	return link, nil
}

// Hop is one step of a traversal: the node reached, the number of hops from
// start, the path of ids taken, the relation traversed to reach it, and its
// edge weight (always 1.0; the model carries no per-edge weight yet).
type Hop struct {
	ID       uuid.UUID
	HopCount int
	Path     []uuid.UUID
	Relation model.Relation
	Weight   float64
}

// Traverse performs a breadth-first walk from start out to maxHops,
// restricted to relations in allowed (nil or empty means all relations),
// never revisiting a node (spec.md §4.6 "traverseGraph").
func (g *Graph) Traverse(ctx context.Context, tenant, project string, start uuid.UUID, maxHops int, allowed []model.Relation) ([]Hop, error) {
	allowSet := make(map[model.Relation]struct{}, len(allowed))
	for _, r := range allowed {
		allowSet[r] = struct{}{}
	}

	visited := map[uuid.UUID]struct{}{start: {}}
	type queued struct {
		id   uuid.UUID
		hop  int
		path []uuid.UUID
	}
	queue := []queued{{id: start, hop: 0, path: []uuid.UUID{start}}}
	var out []Hop

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hop >= maxHops {
			continue
		}
		edges, err := g.store.LinksFrom(ctx, tenant, project, cur.id)
		if err != nil {
			return nil, fmt.Errorf("graph: traverse: %w", err)
		}
		for _, e := range edges {
			if len(allowSet) > 0 {
				if _, ok := allowSet[e.Relation]; !ok {
					continue
				}
			}
			if _, seen := visited[e.ToID]; seen {
				continue
			}
			visited[e.ToID] = struct{}{}
			path := append(append([]uuid.UUID{}, cur.path...), e.ToID)
			out = append(out, Hop{ID: e.ToID, HopCount: cur.hop + 1, Path: path, Relation: e.Relation, Weight: 1.0})
			queue = append(queue, queued{id: e.ToID, hop: cur.hop + 1, path: path})
		}
	}
	return out, nil
}

// Conflict is a detected contradiction edge whose endpoints are both
// active.
type Conflict struct {
	Link model.MemoryLink
	A    model.MemoryItem
	B    model.MemoryItem
}

// FindConflicts returns all contradicts edges whose endpoints are both
// active (spec.md §4.6).
func (g *Graph) FindConflicts(ctx context.Context, tenant, project string) ([]Conflict, error) {
	links, err := g.store.AllLinks(ctx, tenant, project)
	if err != nil {
		return nil, fmt.Errorf("graph: find conflicts: %w", err)
	}
	var out []Conflict
	for _, l := range links {
		if l.Relation != model.RelationContradicts {
			continue
		}
		a, err := g.store.GetItem(ctx, tenant, project, l.FromID)
		if err != nil {
			continue
		}
		b, err := g.store.GetItem(ctx, tenant, project, l.ToID)
		if err != nil {
			continue
		}
		if a.Status != model.StatusActive || b.Status != model.StatusActive {
			continue
		}
		out = append(out, Conflict{Link: l, A: a, B: b})
	}
	return out, nil
}

// CleanDanglingLinks removes edges whose endpoint no longer resolves to an
// item, used by the clean_links maintenance action.
func (g *Graph) CleanDanglingLinks(ctx context.Context, tenant, project string) (int, error) {
	links, err := g.store.AllLinks(ctx, tenant, project)
	if err != nil {
		return 0, fmt.Errorf("graph: clean dangling links: %w", err)
	}
	removed := 0
	for _, l := range links {
		if itemResolvable(ctx, g.store, tenant, project, l.FromID) && itemResolvable(ctx, g.store, tenant, project, l.ToID) {
			continue
		}
		if err := g.store.DeleteLink(ctx, tenant, project, l.ID); err != nil {
			return removed, fmt.Errorf("graph: delete dangling link: %w", err)
		}
		removed++
	}
	return removed, nil
}

// itemResolvable reports whether id still names a non-deleted item. A
// soft-deleted item is gone for graph purposes even though its row
// survives for audit until "archive" purges it.
func itemResolvable(ctx context.Context, store *storage.Store, tenant, project string, id uuid.UUID) bool {
	item, err := store.GetItem(ctx, tenant, project, id)
	if err != nil {
		return false
	}
	return item.Status != model.StatusDeleted
}
