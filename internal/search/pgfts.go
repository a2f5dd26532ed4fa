package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback when Meilisearch is down or not configured.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always reports true; there is no availability signal separate
// from the database itself.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the posts fts column, ranked.
func (p *PgFTS) Search(q Query) ([]int64, error) {
	if strings.TrimSpace(q.Term) == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT pid FROM posts
		WHERE NOT deleted AND fts @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC, timestamp DESC
		LIMIT $2
	`, q.Term, limit)
	if err != nil {
		return nil, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var pids []int64
	for rows.Next() {
		var pid int64
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("pgfts scan: %w", err)
		}
		pids = append(pids, pid)
	}
	return pids, rows.Err()
}
