package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/postal-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS postal_codes (
	postal_code TEXT PRIMARY KEY,
	concelho    TEXT,
	distrito    TEXT
);
`

const (
	sqliteSelectAll = `SELECT postal_code, concelho, distrito FROM postal_codes`

	sqliteIncompleteFilter = ` WHERE concelho IS NULL OR trim(concelho) = '' OR distrito IS NULL OR trim(distrito) = ''`

	sqliteUpsert = `INSERT INTO postal_codes (postal_code, concelho, distrito) VALUES (?, ?, ?)
		ON CONFLICT(postal_code) DO UPDATE SET concelho = excluded.concelho, distrito = excluded.distrito`
)

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]model.PostalRecord, error) {
	return s.list(ctx, sqliteSelectAll+` ORDER BY postal_code`, "list postal codes")
}

func (s *SQLiteStore) ListIncomplete(ctx context.Context) ([]model.PostalRecord, error) {
	return s.list(ctx, sqliteSelectAll+sqliteIncompleteFilter+` ORDER BY postal_code`, "list incomplete")
}

func (s *SQLiteStore) Get(ctx context.Context, code string) (*model.PostalRecord, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectAll+` WHERE postal_code = ?`, code)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get postal code %s", code)
	}
	return rec, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec model.PostalRecord) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsert,
		rec.PostalCode, nullable(rec.Concelho), nullable(rec.Distrito),
	)
	return eris.Wrapf(err, "sqlite: upsert postal code %s", rec.PostalCode)
}

func (s *SQLiteStore) UpsertMany(ctx context.Context, recs []model.PostalRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.PostalCode, nullable(rec.Concelho), nullable(rec.Distrito)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert postal code %s", rec.PostalCode)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return n, nil
}

func (s *SQLiteStore) list(ctx context.Context, query, action string) ([]model.PostalRecord, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", action)
	}
	defer rows.Close()

	recs := []model.PostalRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s scan", action)
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrapf(rows.Err(), "sqlite: %s iterate", action)
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

// scanRecord reads one postal_codes row; NULL region columns become "".
func scanRecord(row scannable) (*model.PostalRecord, error) {
	var rec model.PostalRecord
	var concelho, distrito sql.NullString
	if err := row.Scan(&rec.PostalCode, &concelho, &distrito); err != nil {
		return nil, err
	}
	rec.Concelho = concelho.String
	rec.Distrito = distrito.String
	return &rec, nil
}

// nullable stores blank region fields as NULL.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
