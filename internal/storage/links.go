package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/model"
)

type linkRow struct {
	ID        string    `db:"id"`
	Tenant    string    `db:"tenant"`
	Project   string    `db:"project"`
	FromID    string    `db:"from_id"`
	ToID      string    `db:"to_id"`
	Relation  string    `db:"relation"`
	Note      string    `db:"note"`
	CreatedAt time.Time `db:"created_at"`
}

func (r linkRow) toModel() (model.MemoryLink, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return model.MemoryLink{}, err
	}
	from, err := uuid.Parse(r.FromID)
	if err != nil {
		return model.MemoryLink{}, err
	}
	to, err := uuid.Parse(r.ToID)
	if err != nil {
		return model.MemoryLink{}, err
	}
	return model.MemoryLink{
		ID: id, Tenant: r.Tenant, Project: r.Project, FromID: from, ToID: to,
		Relation: model.Relation(r.Relation), Note: r.Note, CreatedAt: r.CreatedAt,
	}, nil
}

// CreateLink inserts a directed, typed edge (spec.md §4.6).
func (s *Store) CreateLink(ctx context.Context, link *model.MemoryLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	link.CreatedAt = time.Now().UTC()
	query := s.rebind(`INSERT INTO links (id, tenant, project, from_id, to_id, relation, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, link.ID.String(), link.Tenant, link.Project,
		link.FromID.String(), link.ToID.String(), string(link.Relation), link.Note, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: create link: %w", err)
	}
	return nil
}

// LinksFrom returns outgoing edges of an item, used by graph traversal.
func (s *Store) LinksFrom(ctx context.Context, tenant, project string, id uuid.UUID) ([]model.MemoryLink, error) {
	query := s.rebind(`SELECT id, tenant, project, from_id, to_id, relation, note, created_at
		FROM links WHERE tenant = ? AND project = ? AND from_id = ?`)
	var rows []linkRow
	if err := s.db.SelectContext(ctx, &rows, query, tenant, project, id.String()); err != nil {
		return nil, fmt.Errorf("storage: list outgoing links: %w", err)
	}
	return linkRowsToModels(rows)
}

// LinksTo returns incoming edges of an item.
func (s *Store) LinksTo(ctx context.Context, tenant, project string, id uuid.UUID) ([]model.MemoryLink, error) {
	query := s.rebind(`SELECT id, tenant, project, from_id, to_id, relation, note, created_at
		FROM links WHERE tenant = ? AND project = ? AND to_id = ?`)
	var rows []linkRow
	if err := s.db.SelectContext(ctx, &rows, query, tenant, project, id.String()); err != nil {
		return nil, fmt.Errorf("storage: list incoming links: %w", err)
	}
	return linkRowsToModels(rows)
}

// AllLinks returns every edge in a project, used by full traversal and
// the clean_links maintenance action.
func (s *Store) AllLinks(ctx context.Context, tenant, project string) ([]model.MemoryLink, error) {
	query := s.rebind(`SELECT id, tenant, project, from_id, to_id, relation, note, created_at
		FROM links WHERE tenant = ? AND project = ?`)
	var rows []linkRow
	if err := s.db.SelectContext(ctx, &rows, query, tenant, project); err != nil {
		return nil, fmt.Errorf("storage: list all links: %w", err)
	}
	return linkRowsToModels(rows)
}

// DeleteLink removes an edge, used by clean_links when an endpoint is gone.
func (s *Store) DeleteLink(ctx context.Context, tenant, project string, id uuid.UUID) error {
	query := s.rebind(`DELETE FROM links WHERE tenant = ? AND project = ? AND id = ?`)
	if _, err := s.db.ExecContext(ctx, query, tenant, project, id.String()); err != nil {
		return fmt.Errorf("storage: delete link: %w", err)
	}
	return nil
}

func linkRowsToModels(rows []linkRow) ([]model.MemoryLink, error) {
	out := make([]model.MemoryLink, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
