package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postal-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestCSV(t *testing.T) Store {
	t.Helper()
	s, err := NewCSV(filepath.Join(t.TempDir(), "postal.csv"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(context.Background(), "9999-999")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpsertThenGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Get(ctx, "1000-001")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Upsert(ctx, model.PostalRecord{PostalCode: "1000-001", Concelho: "Lisboa", Distrito: "Lisboa"}))

		got, err := s.Get(ctx, "1000-001")
		require.NoError(t, err)
		assert.Equal(t, model.PostalRecord{PostalCode: "1000-001", Concelho: "Lisboa", Distrito: "Lisboa"}, *got)
	})

	t.Run("UpsertOverwritesBothFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, model.PostalRecord{PostalCode: "4700-123", Concelho: "Old", Distrito: ""}))
		require.NoError(t, s.Upsert(ctx, model.PostalRecord{PostalCode: "4700-123", Concelho: "Braga", Distrito: "Braga"}))

		got, err := s.Get(ctx, "4700-123")
		require.NoError(t, err)
		assert.Equal(t, "Braga", got.Concelho)
		assert.Equal(t, "Braga", got.Distrito)

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("UpsertIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := model.PostalRecord{PostalCode: "3000-001", Concelho: "Coimbra", Distrito: "Coimbra"}

		require.NoError(t, s.Upsert(ctx, rec))
		once, err := s.GetAll(ctx)
		require.NoError(t, err)

		require.NoError(t, s.Upsert(ctx, rec))
		twice, err := s.GetAll(ctx)
		require.NoError(t, err)

		assert.Equal(t, once, twice)
	})

	t.Run("GetAllSorted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, code := range []string{"4700-123", "1000-001", "3000-001"} {
			require.NoError(t, s.Upsert(ctx, model.PostalRecord{PostalCode: code}))
		}

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "1000-001", all[0].PostalCode)
		assert.Equal(t, "3000-001", all[1].PostalCode)
		assert.Equal(t, "4700-123", all[2].PostalCode)
	})

	t.Run("GetAllEmpty", func(t *testing.T) {
		s := newStore(t)

		all, err := s.GetAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ListIncomplete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		recs := []model.PostalRecord{
			{PostalCode: "1000-001", Concelho: "Lisboa", Distrito: "Lisboa"},
			{PostalCode: "1000-002", Concelho: "Lisboa"},
			{PostalCode: "1000-003", Distrito: "Lisboa"},
			{PostalCode: "1000-004"},
			{PostalCode: "4700-123", Concelho: "Braga", Distrito: "Braga"},
		}
		for _, rec := range recs {
			require.NoError(t, s.Upsert(ctx, rec))
		}

		got, err := s.ListIncomplete(ctx)
		require.NoError(t, err)

		var codes []string
		for _, rec := range got {
			assert.True(t, rec.Incomplete())
			codes = append(codes, rec.PostalCode)
		}
		assert.Equal(t, []string{"1000-002", "1000-003", "1000-004"}, codes)
	})

	t.Run("ListIncompleteNone", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Upsert(ctx, model.PostalRecord{PostalCode: "1000-001", Concelho: "Lisboa", Distrito: "Lisboa"}))

		got, err := s.ListIncomplete(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("UpsertMany", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.UpsertMany(ctx, []model.PostalRecord{
			{PostalCode: "1000-001"},
			{PostalCode: "4700-123", Concelho: "Braga", Distrito: "Braga"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		incomplete, err := s.ListIncomplete(ctx)
		require.NoError(t, err)
		require.Len(t, incomplete, 1)
		assert.Equal(t, "1000-001", incomplete[0].PostalCode)
	})

	t.Run("UpsertManyEmpty", func(t *testing.T) {
		s := newStore(t)

		n, err := s.UpsertMany(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestCSVStore(t *testing.T) {
	storeTestSuite(t, newTestCSV)
}
