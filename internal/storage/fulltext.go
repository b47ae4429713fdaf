package storage

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// FullTextResult is one hit from the backend's native full-text engine.
type FullTextResult struct {
	ID    uuid.UUID
	Score float64
}

// FullTextSearch runs the dialect-native full-text query: FTS5 bm25() on
// SQLite, websearch_to_tsquery + ts_rank on Postgres (spec.md §4.2
// "keyword index"). An empty result (not an error) means the query matched
// nothing; callers fall back to a LIKE scan in that case.
func (s *Store) FullTextSearch(ctx context.Context, tenant, project, query string, limit int) ([]FullTextResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.dialect == DialectPostgres {
		return s.fullTextSearchPostgres(ctx, tenant, project, query, limit)
	}
	return s.fullTextSearchSQLite(ctx, tenant, project, query, limit)
}

func (s *Store) fullTextSearchSQLite(ctx context.Context, tenant, project, query string, limit int) ([]FullTextResult, error) {
	sqlQuery := `SELECT items.id, bm25(items_fts) AS rank
		FROM items_fts JOIN items ON items.rowid = items_fts.rowid
		WHERE items_fts MATCH ? AND items.tenant = ? AND items.project = ? AND items.status IN ('active', 'quarantined')
		ORDER BY rank LIMIT ?`
	rows, err := s.db.QueryContext(ctx, sqlQuery, ftsQuery(query), tenant, project, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: fts5 search: %w", err)
	}
	defer rows.Close()

	var out []FullTextResult
	for rows.Next() {
		var idStr string
		var rank float64
		if err := rows.Scan(&idStr, &rank); err != nil {
			return nil, fmt.Errorf("storage: scan fts5 row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		// bm25() returns lower (more negative) for better matches; invert so
		// higher means more relevant, matching every other component score.
		out = append(out, FullTextResult{ID: id, Score: 1.0 / (1.0 + math.Abs(rank))})
	}
	return out, rows.Err()
}

func (s *Store) fullTextSearchPostgres(ctx context.Context, tenant, project, query string, limit int) ([]FullTextResult, error) {
	sqlQuery := s.rebind(`SELECT id, ts_rank(search_vector, websearch_to_tsquery('english', ?)) AS rank
		FROM items
		WHERE tenant = ? AND project = ? AND status IN ('active', 'quarantined')
		AND search_vector @@ websearch_to_tsquery('english', ?)
		ORDER BY rank DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, sqlQuery, query, tenant, project, query, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: tsvector search: %w", err)
	}
	defer rows.Close()

	var out []FullTextResult
	for rows.Next() {
		var idStr string
		var rank float64
		if err := rows.Scan(&idStr, &rank); err != nil {
			return nil, fmt.Errorf("storage: scan tsvector row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		out = append(out, FullTextResult{ID: id, Score: rank})
	}
	return out, rows.Err()
}

// ftsQuery quotes each token for FTS5 so punctuation in free-text queries
// (colons, hyphens) doesn't get interpreted as FTS5 query syntax.
func ftsQuery(q string) string {
	tokens := strings.Fields(q)
	for i, tok := range tokens {
		tokens[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
	}
	return strings.Join(tokens, " ")
}
