// Package enrich fills in missing municipality and district data from the
// CTT lookup service.
package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/postal-cli/internal/model"
	"github.com/sells-group/postal-cli/internal/store"
	"github.com/sells-group/postal-cli/pkg/ctt"
)

// ErrMissingAPIKey is returned when an update or import is started without
// a CTT API key.
var ErrMissingAPIKey = eris.New("API key is required.")

// UpdateResult summarizes one bulk update.
type UpdateResult struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
}

// ImportResult summarizes one enriched import.
type ImportResult struct {
	Rows     int `json:"rows"`
	Invalid  int `json:"invalid"`
	Existing int `json:"existing"`
	Imported int `json:"imported"`
	Missed   int `json:"missed"`
}

// Enricher runs lookups against the CTT client and writes results back to
// the store. Bulk updates and imports on one Enricher never overlap.
type Enricher struct {
	store  store.Store
	client ctt.Client

	mu sync.Mutex
}

// New creates an Enricher.
func New(st store.Store, client ctt.Client) *Enricher {
	return &Enricher{store: st, client: client}
}

// FetchRegion looks up one postal code and returns the first entry's region.
// It returns false when the service has no data for the code, the data is
// incomplete, or the call fails; failures are logged and never returned.
func (e *Enricher) FetchRegion(ctx context.Context, apiKey, code string) (model.Region, bool) {
	log := zap.L().With(zap.String("postal_code", code))

	addrs, err := e.client.Lookup(ctx, apiKey, code)
	if err != nil {
		log.Warn("enrich: lookup failed", zap.Error(err))
		return model.Region{}, false
	}
	if len(addrs) == 0 {
		log.Debug("enrich: no data returned")
		return model.Region{}, false
	}

	region := model.Region{
		Concelho: clean(addrs[0].Concelho),
		Distrito: clean(addrs[0].Distrito),
	}
	if !region.Complete() {
		log.Debug("enrich: incomplete data returned",
			zap.String("concelho", region.Concelho),
			zap.String("distrito", region.Distrito),
		)
		return model.Region{}, false
	}
	return region, true
}

// BulkUpdate enriches every incomplete record in the store, one lookup at a
// time. Records without usable data are left untouched. If ctx is cancelled
// the loop stops early and the work done so far is kept.
func (e *Enricher) BulkUpdate(ctx context.Context, apiKey string) (UpdateResult, error) {
	var res UpdateResult
	if strings.TrimSpace(apiKey) == "" {
		return res, ErrMissingAPIKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	candidates, err := e.store.ListIncomplete(ctx)
	if err != nil {
		return res, eris.Wrap(err, "enrich: list incomplete")
	}
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		zap.L().Info("enrich: no incomplete postal codes")
		return res, nil
	}

	zap.L().Info("enrich: bulk update started", zap.Int("candidates", len(candidates)))

	var loopErr error
	for _, rec := range candidates {
		if ctx.Err() != nil {
			zap.L().Warn("enrich: bulk update interrupted",
				zap.Int("updated", res.Updated),
				zap.Int("remaining", res.Candidates-res.Updated-res.Skipped),
			)
			break
		}

		region, ok := e.FetchRegion(ctx, apiKey, rec.PostalCode)
		if !ok {
			res.Skipped++
			continue
		}
		if err := e.store.Upsert(ctx, rec.WithRegion(region)); err != nil {
			loopErr = eris.Wrapf(err, "enrich: upsert %s", rec.PostalCode)
			break
		}
		res.Updated++
	}

	if err := e.persist(ctx); err != nil {
		if loopErr != nil {
			return res, loopErr
		}
		return res, err
	}

	zap.L().Info("enrich: bulk update finished",
		zap.Int("candidates", res.Candidates),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, loopErr
}

// Import enriches the given rows into the store. Rows with a malformed code
// are skipped, as are codes already stored. Rows that already carry both
// region fields are stored as-is; the rest are looked up once per code and
// stored only when the lookup returns data.
func (e *Enricher) Import(ctx context.Context, apiKey string, rows []model.PostalRecord) (ImportResult, error) {
	res := ImportResult{Rows: len(rows)}
	if strings.TrimSpace(apiKey) == "" {
		return res, ErrMissingAPIKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{}, len(rows))
	var loopErr error
	for _, row := range rows {
		if ctx.Err() != nil {
			loopErr = eris.Wrap(ctx.Err(), "enrich: import interrupted")
			break
		}

		if !model.ValidPostalCode(row.PostalCode) {
			res.Invalid++
			zap.L().Debug("enrich: skipping malformed postal code", zap.String("postal_code", row.PostalCode))
			continue
		}
		if _, dup := seen[row.PostalCode]; dup {
			res.Existing++
			continue
		}
		seen[row.PostalCode] = struct{}{}

		_, err := e.store.Get(ctx, row.PostalCode)
		if err == nil {
			res.Existing++
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			loopErr = eris.Wrapf(err, "enrich: get %s", row.PostalCode)
			break
		}

		rec := row
		if !row.Region().Complete() {
			region, ok := e.FetchRegion(ctx, apiKey, row.PostalCode)
			if !ok {
				res.Missed++
				continue
			}
			rec = row.WithRegion(region)
		}
		if err := e.store.Upsert(ctx, rec); err != nil {
			loopErr = eris.Wrapf(err, "enrich: upsert %s", row.PostalCode)
			break
		}
		res.Imported++
	}

	if err := e.persist(ctx); err != nil && loopErr == nil {
		loopErr = err
	}

	zap.L().Info("enrich: import finished",
		zap.Int("rows", res.Rows),
		zap.Int("imported", res.Imported),
		zap.Int("existing", res.Existing),
		zap.Int("invalid", res.Invalid),
		zap.Int("missed", res.Missed),
	)
	return res, loopErr
}

// persist flushes file-backed stores. It ignores ctx cancellation so an
// interrupted run still saves what it did.
func (e *Enricher) persist(ctx context.Context) error {
	p, ok := e.store.(store.Persister)
	if !ok {
		return nil
	}
	if err := p.Persist(context.WithoutCancel(ctx)); err != nil {
		return eris.Wrap(err, "enrich: persist store")
	}
	return nil
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
