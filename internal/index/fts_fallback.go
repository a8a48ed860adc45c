//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/cloudshelf/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over catalog_items.
	return nil
}

func ftsClear(_ *sql.Tx) error { return nil }

func ftsInsert(_ *sql.Tx, _ models.CatalogItem) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// Every whitespace-separated term must match the title or the publisher.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}

	var where []string
	var args []any
	for _, t := range terms {
		like := "%" + escapeLike(t) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR publisher LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT store_key, title, publisher
		FROM catalog_items
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY position
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.StoreKey, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
