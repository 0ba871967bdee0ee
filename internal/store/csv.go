package store

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postal-cli/internal/model"
)

// csvRow is the on-disk layout of the backing file.
type csvRow struct {
	PostalCode string `csv:"cp7"`
	Concelho   string `csv:"concelho"`
	Distrito   string `csv:"distrito"`
}

// CSVStore implements Store over an in-memory table loaded from a
// comma-delimited file. Changes only reach the file on Persist.
type CSVStore struct {
	path string

	mu      sync.RWMutex
	records map[string]model.Region
}

// NewCSV loads the table from path. A missing file yields an empty store.
func NewCSV(path string) (*CSVStore, error) {
	s := &CSVStore{path: path, records: make(map[string]model.Region)}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("csv store file not found, starting empty", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := s.load(f); err != nil {
		return nil, eris.Wrapf(err, "csv: load %s", path)
	}

	zap.L().Debug("csv store loaded", zap.String("path", path), zap.Int("records", len(s.records)))
	return s, nil
}

func (s *CSVStore) load(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "csv: read header")
	}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if h == "postal_code" {
			h = "cp7"
		}
		header[i] = h
	}

	dec, err := csvutil.NewDecoder(paddedReader{r: cr, n: len(header)}, header...)
	if err != nil {
		return eris.Wrap(err, "csv: new decoder")
	}

	for {
		var row csvRow
		err := dec.Decode(&row)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "csv: decode row")
		}

		code := strings.TrimSpace(row.PostalCode)
		if code == "" {
			continue
		}
		s.records[code] = model.Region{
			Concelho: strings.TrimSpace(row.Concelho),
			Distrito: strings.TrimSpace(row.Distrito),
		}
	}
}

// paddedReader fits every row to the header width so short rows decode
// with empty trailing fields.
type paddedReader struct {
	r *csv.Reader
	n int
}

func (p paddedReader) Read() ([]string, error) {
	rec, err := p.r.Read()
	if err != nil {
		return nil, err
	}
	for len(rec) < p.n {
		rec = append(rec, "")
	}
	return rec[:p.n], nil
}

// Persist rewrites the backing file with the full table. The file is
// replaced atomically via a temp file in the same directory.
func (s *CSVStore) Persist(_ context.Context) error {
	s.mu.RLock()
	rows := make([]csvRow, 0, len(s.records))
	for code, region := range s.records {
		rows = append(rows, csvRow{PostalCode: code, Concelho: region.Concelho, Distrito: region.Distrito})
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].PostalCode < rows[j].PostalCode })

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".postal-*.csv")
	if err != nil {
		return eris.Wrap(err, "csv: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := csv.NewWriter(tmp)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false
	if err := enc.EncodeHeader(csvRow{}); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "csv: write header")
	}
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrapf(err, "csv: write row %s", row.PostalCode)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "csv: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "csv: close temp file")
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return eris.Wrapf(err, "csv: replace %s", s.path)
	}

	zap.L().Info("csv store persisted", zap.String("path", s.path), zap.Int("records", len(rows)))
	return nil
}

func (s *CSVStore) GetAll(_ context.Context) ([]model.PostalRecord, error) {
	return s.collect(func(model.PostalRecord) bool { return true }), nil
}

func (s *CSVStore) Get(_ context.Context, code string) (*model.PostalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	region, ok := s.records[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &model.PostalRecord{PostalCode: code, Concelho: region.Concelho, Distrito: region.Distrito}, nil
}

func (s *CSVStore) ListIncomplete(_ context.Context) ([]model.PostalRecord, error) {
	return s.collect(model.PostalRecord.Incomplete), nil
}

func (s *CSVStore) Upsert(_ context.Context, rec model.PostalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.PostalCode] = rec.Region()
	return nil
}

func (s *CSVStore) UpsertMany(_ context.Context, recs []model.PostalRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		s.records[rec.PostalCode] = rec.Region()
	}
	return int64(len(recs)), nil
}

// Migrate is a no-op: the file has a fixed layout.
func (s *CSVStore) Migrate(_ context.Context) error {
	return nil
}

func (s *CSVStore) Close() error {
	return nil
}

func (s *CSVStore) collect(keep func(model.PostalRecord) bool) []model.PostalRecord {
	s.mu.RLock()
	out := make([]model.PostalRecord, 0, len(s.records))
	for code, region := range s.records {
		rec := model.PostalRecord{PostalCode: code, Concelho: region.Concelho, Distrito: region.Distrito}
		if keep(rec) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PostalCode < out[j].PostalCode })
	return out
}
