package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kioku-ai/kioku/internal/model"
)

// itemRow is the wire shape scanned from either dialect; nullable/dialect
// specific columns are handled field by field in the conversion helpers.
type itemRow struct {
	ID              string          `db:"id"`
	Tenant          string          `db:"tenant"`
	Project         string          `db:"project"`
	Kind            string          `db:"kind"`
	Title           string          `db:"title"`
	Content         string          `db:"content"`
	Tags            string          `db:"tags"`
	Provenance      string          `db:"provenance"`
	Verified        bool            `db:"verified"`
	Confidence      float64         `db:"confidence"`
	UsefulnessScore float64         `db:"usefulness_score"`
	ErrorCount      int             `db:"error_count"`
	Version         int             `db:"version"`
	Status          string          `db:"status"`
	StatusReason    string          `db:"status_reason"`
	ContentHash     string          `db:"content_hash"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
	LastUsedAt      time.Time       `db:"last_used_at"`
}

func (r itemRow) toModel() (model.MemoryItem, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return model.MemoryItem{}, fmt.Errorf("storage: parse item id: %w", err)
	}
	var tags []string
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			return model.MemoryItem{}, fmt.Errorf("storage: decode tags: %w", err)
		}
	}
	var prov model.Provenance
	if r.Provenance != "" {
		if err := json.Unmarshal([]byte(r.Provenance), &prov); err != nil {
			return model.MemoryItem{}, fmt.Errorf("storage: decode provenance: %w", err)
		}
	}
	return model.MemoryItem{
		ID:              id,
		Tenant:          r.Tenant,
		Project:         r.Project,
		Kind:            model.Kind(r.Kind),
		Title:           r.Title,
		Content:         r.Content,
		Tags:            tags,
		Provenance:      prov,
		Verified:        r.Verified,
		Confidence:      r.Confidence,
		UsefulnessScore: r.UsefulnessScore,
		ErrorCount:      r.ErrorCount,
		Version:         r.Version,
		Status:          model.Status(r.Status),
		StatusReason:    r.StatusReason,
		ContentHash:     r.ContentHash,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		LastUsedAt:      r.LastUsedAt,
	}, nil
}

// CreateItem inserts a new memory item. The caller is responsible for
// having already run the upsert gates (spec.md §4.3); this is a plain
// insert.
func (s *Store) CreateItem(ctx context.Context, item *model.MemoryItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt, item.LastUsedAt = now, now, now
	if item.Version == 0 {
		item.Version = 1
	}
	if item.Status == "" {
		item.Status = model.StatusActive
	}

	tagsJSON, err := json.Marshal(model.NormalizeTags(item.Tags))
	if err != nil {
		return fmt.Errorf("storage: encode tags: %w", err)
	}
	provJSON, err := json.Marshal(item.Provenance)
	if err != nil {
		return fmt.Errorf("storage: encode provenance: %w", err)
	}

	embeddingArg, err := s.encodeEmbedding(item.Embedding)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO items (id, tenant, project, kind, title, content, tags, provenance,
			verified, confidence, usefulness_score, error_count, version, status, status_reason,
			content_hash, embedding, created_at, updated_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		item.ID.String(), item.Tenant, item.Project, string(item.Kind), item.Title, item.Content,
		string(tagsJSON), string(provJSON), item.Verified, item.Confidence, item.UsefulnessScore,
		item.ErrorCount, item.Version, string(item.Status), item.StatusReason, item.ContentHash,
		embeddingArg, item.CreatedAt, item.UpdatedAt, item.LastUsedAt)
	if err != nil {
		return fmt.Errorf("storage: create item: %w", err)
	}
	return nil
}

// GetItem fetches a single item by id, scoped to tenant/project.
func (s *Store) GetItem(ctx context.Context, tenant, project string, id uuid.UUID) (model.MemoryItem, error) {
	query := s.rebind(`SELECT id, tenant, project, kind, title, content, tags, provenance,
		verified, confidence, usefulness_score, error_count, version, status, status_reason,
		content_hash, created_at, updated_at, last_used_at
		FROM items WHERE tenant = ? AND project = ? AND id = ?`)
	var row itemRow
	err := s.db.GetContext(ctx, &row, query, tenant, project, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return model.MemoryItem{}, ErrNotFound
	}
	if err != nil {
		return model.MemoryItem{}, fmt.Errorf("storage: get item: %w", err)
	}
	return row.toModel()
}

// TouchLastUsed bumps last_used_at, used by memory_get and by the upsert
// idempotency gate (spec.md §4.8 item touch semantics).
func (s *Store) TouchLastUsed(ctx context.Context, tenant, project string, id uuid.UUID) error {
	query := s.rebind(`UPDATE items SET last_used_at = ? WHERE tenant = ? AND project = ? AND id = ?`)
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), tenant, project, id.String())
	if err != nil {
		return fmt.Errorf("storage: touch item: %w", err)
	}
	return nil
}

// UpdateContent applies a content-changing update: bumps version, refreshes
// content_hash/embedding/timestamps, and appends the prior state to
// item_history (spec.md §3 "History").
func (s *Store) UpdateContent(ctx context.Context, item *model.MemoryItem, reason string) error {
	return s.Transaction(ctx, func(q querier) error {
		var prior itemRow
		sel := s.rebind(`SELECT id, tenant, project, kind, title, content, tags, provenance,
			verified, confidence, usefulness_score, error_count, version, status, status_reason,
			content_hash, created_at, updated_at, last_used_at
			FROM items WHERE tenant = ? AND project = ? AND id = ?`)
		if err := q.GetContext(ctx, &prior, sel, item.Tenant, item.Project, item.ID.String()); err != nil {
			return fmt.Errorf("storage: load prior item: %w", err)
		}

		histIns := s.rebind(`INSERT INTO item_history
			(item_id, version, title, content, tags, content_hash, usefulness_score, updated_at, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if _, err := q.ExecContext(ctx, histIns, prior.ID, prior.Version, prior.Title, prior.Content,
			prior.Tags, prior.ContentHash, prior.UsefulnessScore, prior.UpdatedAt, reason); err != nil {
			return fmt.Errorf("storage: append history: %w", err)
		}

		item.Version = prior.Version + 1
		item.UpdatedAt = time.Now().UTC()

		tagsJSON, err := json.Marshal(model.NormalizeTags(item.Tags))
		if err != nil {
			return fmt.Errorf("storage: encode tags: %w", err)
		}
		embeddingArg, err := s.encodeEmbedding(item.Embedding)
		if err != nil {
			return err
		}

		upd := s.rebind(`UPDATE items SET title = ?, content = ?, tags = ?, confidence = ?,
			content_hash = ?, embedding = ?, version = ?, updated_at = ?
			WHERE tenant = ? AND project = ? AND id = ?`)
		_, err = q.ExecContext(ctx, upd, item.Title, item.Content, string(tagsJSON), item.Confidence,
			item.ContentHash, embeddingArg, item.Version, item.UpdatedAt,
			item.Tenant, item.Project, item.ID.String())
		if err != nil {
			return fmt.Errorf("storage: update item content: %w", err)
		}
		return nil
	})
}

// SetStatus transitions an item's governance status (spec.md §4.4).
func (s *Store) SetStatus(ctx context.Context, tenant, project string, id uuid.UUID, status model.Status, reason string) error {
	query := s.rebind(`UPDATE items SET status = ?, status_reason = ?, updated_at = ?
		WHERE tenant = ? AND project = ? AND id = ?`)
	_, err := s.db.ExecContext(ctx, query, string(status), reason, time.Now().UTC(), tenant, project, id.String())
	if err != nil {
		return fmt.Errorf("storage: set item status: %w", err)
	}
	return nil
}

// AdjustUsefulness adds delta to usefulness_score, used by memory_feedback's
// useful/not_relevant labels and memory_get's implicit-interest bump
// (spec.md §4.4). error_count is untouched.
func (s *Store) AdjustUsefulness(ctx context.Context, tenant, project string, id uuid.UUID, delta float64) (model.MemoryItem, error) {
	var updated model.MemoryItem
	err := s.Transaction(ctx, func(q querier) error {
		upd := s.rebind(`UPDATE items SET usefulness_score = usefulness_score + ?
			WHERE tenant = ? AND project = ? AND id = ?`)
		if _, err := q.ExecContext(ctx, upd, delta, tenant, project, id.String()); err != nil {
			return fmt.Errorf("storage: adjust usefulness: %w", err)
		}
		m, err := s.reloadItem(ctx, q, tenant, project, id)
		if err != nil {
			return err
		}
		updated = m
		return nil
	})
	return updated, err
}

// MarkWrong increments error_count and clears verified, used by
// memory_feedback's "wrong" label (spec.md §4.4).
func (s *Store) MarkWrong(ctx context.Context, tenant, project string, id uuid.UUID) (model.MemoryItem, error) {
	var updated model.MemoryItem
	err := s.Transaction(ctx, func(q querier) error {
		upd := s.rebind(`UPDATE items SET error_count = error_count + 1, verified = ?
			WHERE tenant = ? AND project = ? AND id = ?`)
		if _, err := q.ExecContext(ctx, upd, false, tenant, project, id.String()); err != nil {
			return fmt.Errorf("storage: mark wrong: %w", err)
		}
		m, err := s.reloadItem(ctx, q, tenant, project, id)
		if err != nil {
			return err
		}
		updated = m
		return nil
	})
	return updated, err
}

func (s *Store) reloadItem(ctx context.Context, q querier, tenant, project string, id uuid.UUID) (model.MemoryItem, error) {
	sel := s.rebind(`SELECT id, tenant, project, kind, title, content, tags, provenance,
		verified, confidence, usefulness_score, error_count, version, status, status_reason,
		content_hash, created_at, updated_at, last_used_at
		FROM items WHERE tenant = ? AND project = ? AND id = ?`)
	var row itemRow
	if err := q.GetContext(ctx, &row, sel, tenant, project, id.String()); err != nil {
		return model.MemoryItem{}, fmt.Errorf("storage: reload item: %w", err)
	}
	return row.toModel()
}

// FindByContentHash looks up an active item with an identical content hash,
// the idempotency gate of the upsert pipeline (spec.md §4.3 step 1).
func (s *Store) FindByContentHash(ctx context.Context, tenant, project, hash string) (model.MemoryItem, bool, error) {
	query := s.rebind(`SELECT id, tenant, project, kind, title, content, tags, provenance,
		verified, confidence, usefulness_score, error_count, version, status, status_reason,
		content_hash, created_at, updated_at, last_used_at
		FROM items WHERE tenant = ? AND project = ? AND content_hash = ? AND status = 'active'
		ORDER BY created_at ASC LIMIT 1`)
	var row itemRow
	err := s.db.GetContext(ctx, &row, query, tenant, project, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MemoryItem{}, false, nil
	}
	if err != nil {
		return model.MemoryItem{}, false, fmt.Errorf("storage: find by content hash: %w", err)
	}
	m, err := row.toModel()
	return m, err == nil, err
}

// ListCandidatesForTitleMatch returns active items of the given kind for
// the exact/fuzzy title gates (spec.md §4.3 steps 2-3).
func (s *Store) ListCandidatesForTitleMatch(ctx context.Context, tenant, project string, kind model.Kind) ([]model.MemoryItem, error) {
	query := s.rebind(`SELECT id, tenant, project, kind, title, content, tags, provenance,
		verified, confidence, usefulness_score, error_count, version, status, status_reason,
		content_hash, created_at, updated_at, last_used_at
		FROM items WHERE tenant = ? AND project = ? AND kind = ? AND status = 'active'`)
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query, tenant, project, string(kind)); err != nil {
		return nil, fmt.Errorf("storage: list title match candidates: %w", err)
	}
	return rowsToModels(rows)
}

// ListItems returns items matching filter, newest first.
func (s *Store) ListItems(ctx context.Context, f model.ListFilter) ([]model.MemoryItem, error) {
	clauses := "tenant = ? AND project = ?"
	args := []interface{}{f.Tenant, f.Project}
	if f.Status != "" {
		clauses += " AND status = ?"
		args = append(args, string(f.Status))
	} else {
		clauses += " AND status != 'deleted'"
	}
	if len(f.Kinds) > 0 {
		placeholders := ""
		for i, k := range f.Kinds {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, string(k))
		}
		clauses += " AND kind IN (" + placeholders + ")"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	sortBy := f.SortBy
	dir := "DESC"
	if sortBy == "" {
		sortBy = model.SortUpdatedAt
	} else {
		if !sortBy.Valid() {
			sortBy = model.SortUpdatedAt
		}
		if !f.SortDesc {
			dir = "ASC"
		}
	}
	query := s.rebind(fmt.Sprintf(`SELECT id, tenant, project, kind, title, content, tags, provenance,
		verified, confidence, usefulness_score, error_count, version, status, status_reason,
		content_hash, created_at, updated_at, last_used_at
		FROM items WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?`, clauses, sortBy, dir))
	args = append(args, limit, f.Offset)
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("storage: list items: %w", err)
	}
	return rowsToModels(rows)
}

// AllActiveForProject returns every active item in a project, used by
// search, graph traversal, and maintenance passes.
func (s *Store) AllActiveForProject(ctx context.Context, tenant, project string) ([]model.MemoryItem, error) {
	query := s.rebind(`SELECT id, tenant, project, kind, title, content, tags, provenance,
		verified, confidence, usefulness_score, error_count, version, status, status_reason,
		content_hash, created_at, updated_at, last_used_at
		FROM items WHERE tenant = ? AND project = ? AND status = 'active'`)
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query, tenant, project); err != nil {
		return nil, fmt.Errorf("storage: list active items: %w", err)
	}
	return rowsToModels(rows)
}

// AllEmbeddings returns the stored embedding vectors for every active item
// in a project, keyed by item id. Items with no stored embedding (never
// embedded, or the provider failed) are omitted, matching spec.md §4.2's
// instruction to skip embedding-less items in the vector scan rather than
// treat them as a zero vector.
func (s *Store) AllEmbeddings(ctx context.Context, tenant, project string) (map[uuid.UUID][]float32, error) {
	query := s.rebind(`SELECT id, embedding FROM items
		WHERE tenant = ? AND project = ? AND status = 'active' AND embedding IS NOT NULL`)
	rows, err := s.db.QueryContext(ctx, query, tenant, project)
	if err != nil {
		return nil, fmt.Errorf("storage: list embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]float32)
	for rows.Next() {
		var idStr string
		id := uuid.Nil
		var vec pgvector.Vector
		var raw []byte
		var scanErr error
		if s.dialect == DialectPostgres {
			scanErr = rows.Scan(&idStr, &vec)
		} else {
			scanErr = rows.Scan(&idStr, &raw)
		}
		if scanErr != nil {
			return nil, fmt.Errorf("storage: scan embedding: %w", scanErr)
		}
		if id, scanErr = uuid.Parse(idStr); scanErr != nil {
			continue
		}
		if s.dialect == DialectPostgres {
			out[id] = vec.Slice()
		} else {
			out[id] = DecodeEmbedding(raw)
		}
	}
	return out, rows.Err()
}

// DeleteItem hard-deletes an item that is already in the "deleted" status
// past a retention window, used by memory_maintain's archive action.
func (s *Store) DeleteItem(ctx context.Context, tenant, project string, id uuid.UUID) error {
	query := s.rebind(`DELETE FROM items WHERE tenant = ? AND project = ? AND id = ?`)
	_, err := s.db.ExecContext(ctx, query, tenant, project, id.String())
	if err != nil {
		return fmt.Errorf("storage: delete item: %w", err)
	}
	return nil
}

func rowsToModels(rows []itemRow) ([]model.MemoryItem, error) {
	out := make([]model.MemoryItem, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// rebind rewrites `?` placeholders to `$1, $2, ...` on Postgres.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// encodeEmbedding returns the driver value for an embedding column: a
// pgvector.Vector on Postgres, a packed little-endian float32 blob on
// SQLite.
func (s *Store) encodeEmbedding(v []float32) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if s.dialect == DialectPostgres {
		vec := pgvector.NewVector(v)
		return &vec, nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf, nil
}

// DecodeEmbedding reverses encodeEmbedding's SQLite blob packing, exported
// for the vector search index to decode embeddings read back out-of-band.
func DecodeEmbedding(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
