package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across posts and journeys using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultPost {
		postWhere := "p.fts @@ " + tsQuery
		if q.FilterAuthorID != "" {
			postWhere += fmt.Sprintf(" AND p.user_id = $%d", argN)
			args = append(args, q.FilterAuthorID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'post'::text AS type, p.id, p.user_name AS title,
				ts_headline('english', coalesce(p.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.user_id AS author_id,
				ts_rank(p.fts, %s) AS rank
			FROM posts p
			WHERE %s`, tsQuery, tsQuery, postWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultJourney {
		journeyWhere := "j.fts @@ " + tsQuery
		if q.FilterAuthorID != "" {
			journeyWhere += fmt.Sprintf(" AND j.user_id = $%d", argN)
			args = append(args, q.FilterAuthorID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'journey'::text AS type, j.id, j.title,
				ts_headline('english', coalesce(j.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				j.user_id AS author_id,
				ts_rank(j.fts, %s) AS rank
			FROM journeys j
			WHERE %s`, tsQuery, tsQuery, journeyWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, author_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.AuthorID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PostRecord, []JourneyRecord, error) {
	postRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, user_name, content
		FROM posts
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load posts: %w", err)
	}
	defer postRows.Close()

	posts := make([]PostRecord, 0)
	for postRows.Next() {
		var pr PostRecord
		if err := postRows.Scan(&pr.ID, &pr.AuthorID, &pr.AuthorName, &pr.Content); err != nil {
			return nil, nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, pr)
	}
	if err := postRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate posts: %w", err)
	}

	journeyRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, title, description
		FROM journeys
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load journeys: %w", err)
	}
	defer journeyRows.Close()

	journeys := make([]JourneyRecord, 0)
	for journeyRows.Next() {
		var jr JourneyRecord
		if err := journeyRows.Scan(&jr.ID, &jr.AuthorID, &jr.Title, &jr.Description); err != nil {
			return nil, nil, fmt.Errorf("scan journey: %w", err)
		}
		journeys = append(journeys, jr)
	}
	if err := journeyRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate journeys: %w", err)
	}

	return posts, journeys, nil
}
