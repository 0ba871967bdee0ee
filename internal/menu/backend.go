package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/postal-cli/internal/enrich"
	"github.com/sells-group/postal-cli/internal/importer"
	"github.com/sells-group/postal-cli/internal/model"
	"github.com/sells-group/postal-cli/internal/store"
	"github.com/sells-group/postal-cli/pkg/postalapi"
)

// RemoteBackend drives a running lookup service over HTTP.
type RemoteBackend struct {
	Client *postalapi.Client
}

// ListAll implements Backend.
func (b *RemoteBackend) ListAll(ctx context.Context) ([]model.PostalRecord, error) {
	return b.Client.ListAll(ctx)
}

// Get implements Backend.
func (b *RemoteBackend) Get(ctx context.Context, code string) (*model.PostalRecord, error) {
	rec, err := b.Client.Get(ctx, code)
	if errors.Is(err, postalapi.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Update implements Backend.
func (b *RemoteBackend) Update(ctx context.Context, apiKey string) (string, error) {
	res, err := b.Client.Update(ctx, apiKey)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

// LocalBackend works on a store in the same process.
type LocalBackend struct {
	Store    store.Store
	Enricher *enrich.Enricher
	Options  importer.Options
}

// ListAll implements Backend.
func (b *LocalBackend) ListAll(ctx context.Context) ([]model.PostalRecord, error) {
	return b.Store.GetAll(ctx)
}

// Get implements Backend.
func (b *LocalBackend) Get(ctx context.Context, code string) (*model.PostalRecord, error) {
	rec, err := b.Store.Get(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Update implements Backend.
func (b *LocalBackend) Update(ctx context.Context, apiKey string) (string, error) {
	res, err := b.Enricher.BulkUpdate(ctx, apiKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d postal codes updated successfully.", res.Updated), nil
}

// ImportFile implements Importer.
func (b *LocalBackend) ImportFile(ctx context.Context, apiKey, path string) (string, error) {
	rows, err := importer.ReadFile(ctx, path, b.Options)
	if err != nil {
		return "", err
	}
	res, err := b.Enricher.Import(ctx, apiKey, rows)
	if err != nil {
		return "", eris.Wrap(err, "menu: import")
	}
	return fmt.Sprintf("Imported %d postal codes (%d already present, %d invalid, %d without data).",
		res.Imported, res.Existing, res.Invalid, res.Missed), nil
}
