package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postal-cli/internal/model"
)

// ErrNotFound is returned by Get when the postal code is not stored.
var ErrNotFound = eris.New("postal code not found")

// Store defines the persistence interface for postal code records.
// Every backend returns records sorted by postal code.
type Store interface {
	GetAll(ctx context.Context) ([]model.PostalRecord, error)
	Get(ctx context.Context, code string) (*model.PostalRecord, error)
	ListIncomplete(ctx context.Context) ([]model.PostalRecord, error)

	// Upsert inserts the record or replaces both region fields of an
	// existing one.
	Upsert(ctx context.Context, rec model.PostalRecord) error
	UpsertMany(ctx context.Context, recs []model.PostalRecord) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Persister is implemented by stores that hold records in memory and must
// be flushed back to their backing file.
type Persister interface {
	Persist(ctx context.Context) error
}
