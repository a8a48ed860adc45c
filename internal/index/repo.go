package index

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/cloudshelf/internal/models"
)

// SearchResult represents one search hit.
type SearchResult struct {
	StoreKey string `json:"store_key"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// ApplyRun is the stored outcome of one Apply batch.
type ApplyRun struct {
	BatchID    string    `json:"batch_id"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Removed    int       `json:"removed"`
	Failed     int       `json:"failed"`
	FinishedAt time.Time `json:"finished_at"`
}

// ReplaceCatalog stores items as the current catalog snapshot, in order.
// Pending toggles for keys that left the catalog are dropped.
func (db *DB) ReplaceCatalog(items []models.CatalogItem) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM catalog_items`); err != nil {
		return fmt.Errorf("index: clear catalog: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO catalog_items
			(store_key, position, title, publisher, cloud_title_id, tile_url, poster_url, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_key) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("index: prepare catalog insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if _, dup := seen[it.StoreKey]; dup {
			continue
		}
		seen[it.StoreKey] = struct{}{}
		if _, err := stmt.Exec(it.StoreKey, i, it.Title, it.Publisher, it.CloudTitleID, it.TileURL, it.PosterURL, now); err != nil {
			return fmt.Errorf("index: insert %s: %w", it.StoreKey, err)
		}
		if err := ftsInsert(tx, it); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM pending WHERE store_key NOT IN (SELECT store_key FROM catalog_items)`); err != nil {
		return fmt.Errorf("index: prune pending: %w", err)
	}
	return tx.Commit()
}

// Catalog returns the stored snapshot in its original order.
func (db *DB) Catalog() ([]models.CatalogItem, error) {
	rows, err := db.conn.Query(`
		SELECT store_key, title, publisher, cloud_title_id, tile_url, poster_url
		FROM catalog_items
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("index: catalog: %w", err)
	}
	defer rows.Close()

	out := []models.CatalogItem{}
	for rows.Next() {
		var it models.CatalogItem
		if err := rows.Scan(&it.StoreKey, &it.Title, &it.Publisher, &it.CloudTitleID, &it.TileURL, &it.PosterURL); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SetPending records a toggle for the given account. Non-pending states
// clear the row.
func (db *DB) SetPending(accountID uint32, key string, state models.State) error {
	if !state.Pending() {
		return db.ClearPending(accountID, key)
	}
	_, err := db.conn.Exec(`
		INSERT INTO pending (account_id, store_key, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, store_key) DO UPDATE SET
			state      = excluded.state,
			updated_at = excluded.updated_at
	`, accountID, key, state.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: set pending %s: %w", key, err)
	}
	return nil
}

// ClearPending removes toggles for keys, or every toggle of the account when
// no keys are given.
func (db *DB) ClearPending(accountID uint32, keys ...string) error {
	if len(keys) == 0 {
		if _, err := db.conn.Exec(`DELETE FROM pending WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("index: clear pending: %w", err)
		}
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	for _, k := range keys {
		if _, err := tx.Exec(`DELETE FROM pending WHERE account_id = ? AND store_key = ?`, accountID, k); err != nil {
			return fmt.Errorf("index: clear pending %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Pending returns the persisted toggles of an account.
func (db *DB) Pending(accountID uint32) (map[string]models.State, error) {
	rows, err := db.conn.Query(`SELECT store_key, state FROM pending WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("index: pending: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.State)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		s, err := models.ParseState(raw)
		if err != nil {
			return nil, fmt.Errorf("index: pending %s: %w", key, err)
		}
		out[key] = s
	}
	return out, rows.Err()
}

// RecordApply stores the outcome of an Apply batch.
func (db *DB) RecordApply(accountID uint32, run ApplyRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO apply_runs (batch_id, account_id, created, updated, removed, failed, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.BatchID, accountID, run.Created, run.Updated, run.Removed, run.Failed, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("index: record apply: %w", err)
	}
	return nil
}

// ApplyRuns returns the most recent Apply outcomes, newest first.
func (db *DB) ApplyRuns(accountID uint32, limit int) ([]ApplyRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT batch_id, created, updated, removed, failed, finished_at
		FROM apply_runs
		WHERE account_id = ?
		ORDER BY finished_at DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("index: apply runs: %w", err)
	}
	defer rows.Close()

	var out []ApplyRun
	for rows.Next() {
		var r ApplyRun
		var finished sql.NullTime
		if err := rows.Scan(&r.BatchID, &r.Created, &r.Updated, &r.Removed, &r.Failed, &finished); err != nil {
			return nil, err
		}
		r.FinishedAt = finished.Time
		out = append(out, r)
	}
	return out, rows.Err()
}
