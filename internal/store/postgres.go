package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/postal-cli/internal/db"
	"github.com/sells-group/postal-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS postal_codes (
	postal_code TEXT PRIMARY KEY,
	concelho    TEXT,
	distrito    TEXT
);
`

const (
	pgSelectAll = `SELECT postal_code, concelho, distrito FROM postal_codes`

	pgIncompleteFilter = ` WHERE concelho IS NULL OR btrim(concelho) = '' OR distrito IS NULL OR btrim(distrito) = ''`

	pgUpsert = `INSERT INTO postal_codes (postal_code, concelho, distrito) VALUES ($1, $2, $3)
		ON CONFLICT (postal_code) DO UPDATE SET concelho = EXCLUDED.concelho, distrito = EXCLUDED.distrito`
)

var postalUpsertConfig = db.UpsertConfig{
	Table:        "postal_codes",
	Columns:      []string{"postal_code", "concelho", "distrito"},
	ConflictKeys: []string{"postal_code"},
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetAll(ctx context.Context) ([]model.PostalRecord, error) {
	return s.list(ctx, pgSelectAll+` ORDER BY postal_code`, "list postal codes")
}

func (s *PostgresStore) ListIncomplete(ctx context.Context) ([]model.PostalRecord, error) {
	return s.list(ctx, pgSelectAll+pgIncompleteFilter+` ORDER BY postal_code`, "list incomplete")
}

func (s *PostgresStore) Get(ctx context.Context, code string) (*model.PostalRecord, error) {
	row := s.pool.QueryRow(ctx, pgSelectAll+` WHERE postal_code = $1`, code)

	rec, err := scanPgRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get postal code %s", code)
	}
	return rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec model.PostalRecord) error {
	_, err := s.pool.Exec(ctx, pgUpsert, rec.PostalCode, nullable(rec.Concelho), nullable(rec.Distrito))
	return eris.Wrapf(err, "postgres: upsert postal code %s", rec.PostalCode)
}

func (s *PostgresStore) UpsertMany(ctx context.Context, recs []model.PostalRecord) (int64, error) {
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = []any{rec.PostalCode, nullable(rec.Concelho), nullable(rec.Distrito)}
	}

	n, err := db.BulkUpsert(ctx, s.pool, postalUpsertConfig, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert many")
	}
	return n, nil
}

func (s *PostgresStore) list(ctx context.Context, query, action string) ([]model.PostalRecord, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", action)
	}
	defer rows.Close()

	recs := []model.PostalRecord{}
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: %s scan", action)
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrapf(rows.Err(), "postgres: %s iterate", action)
}

func scanPgRecord(row pgx.Row) (*model.PostalRecord, error) {
	var rec model.PostalRecord
	var concelho, distrito pgtype.Text
	if err := row.Scan(&rec.PostalCode, &concelho, &distrito); err != nil {
		return nil, err
	}
	rec.Concelho = concelho.String
	rec.Distrito = distrito.String
	return &rec, nil
}
