package index

import "github.com/starford/cloudshelf/internal/models"

// Index is the persistence surface the service depends on.
type Index interface {
	ReplaceCatalog(items []models.CatalogItem) error
	Catalog() ([]models.CatalogItem, error)
	SetPending(accountID uint32, key string, state models.State) error
	ClearPending(accountID uint32, keys ...string) error
	Pending(accountID uint32) (map[string]models.State, error)
	Search(query string, limit int) ([]SearchResult, error)
	RecordApply(accountID uint32, run ApplyRun) error
	ApplyRuns(accountID uint32, limit int) ([]ApplyRun, error)
	Close() error
}

// Verify *DB satisfies Index at compile time.
var _ Index = (*DB)(nil)
