package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postal-cli/internal/enrich"
	"github.com/sells-group/postal-cli/internal/model"
	"github.com/sells-group/postal-cli/internal/store"
	"github.com/sells-group/postal-cli/pkg/ctt"
	"github.com/sells-group/postal-cli/pkg/ctt/mocks"
)

type stubUpdater struct {
	res    enrich.UpdateResult
	err    error
	calls  int
	gotKey string
	ctxErr error
}

func (u *stubUpdater) BulkUpdate(ctx context.Context, apiKey string) (enrich.UpdateResult, error) {
	u.calls++
	u.gotKey = apiKey
	u.ctxErr = ctx.Err()
	return u.res, u.err
}

func newTestStore(t *testing.T, recs ...model.PostalRecord) *store.CSVStore {
	t.Helper()
	st, err := store.NewCSV(filepath.Join(t.TempDir(), "updated_data.csv"))
	require.NoError(t, err)
	if len(recs) > 0 {
		_, err = st.UpsertMany(context.Background(), recs)
		require.NoError(t, err)
	}
	return st
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	srv := NewServer(newTestStore(t), &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestList_MapShape(t *testing.T) {
	st := newTestStore(t,
		model.PostalRecord{PostalCode: "1000-001", Concelho: "Lisboa", Distrito: "Lisboa"},
		model.PostalRecord{PostalCode: "4700-123"},
	)
	srv := NewServer(st, &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodGet, "/postal-codes", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"1000-001":["Lisboa","Lisboa"],"4700-123":["",""]}`, rec.Body.String())
}

func TestList_ListShape(t *testing.T) {
	st := newTestStore(t,
		model.PostalRecord{PostalCode: "4700-123", Concelho: "Braga", Distrito: "Braga"},
		model.PostalRecord{PostalCode: "1000-001", Concelho: "Lisboa", Distrito: "Lisboa"},
	)
	srv := NewServer(st, &stubUpdater{}, Options{ListShape: ShapeList})

	rec := do(t, srv.Router(), http.MethodGet, "/postal-codes", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"postal_code":"1000-001","concelho":"Lisboa","distrito":"Lisboa"},
		{"postal_code":"4700-123","concelho":"Braga","distrito":"Braga"}
	]`, rec.Body.String())
}

func TestList_EmptyStore(t *testing.T) {
	for _, shape := range []string{ShapeMap, ShapeList} {
		t.Run(shape, func(t *testing.T) {
			srv := NewServer(newTestStore(t), &stubUpdater{}, Options{ListShape: shape})
			rec := do(t, srv.Router(), http.MethodGet, "/postal-codes", "")
			assert.Equal(t, http.StatusOK, rec.Code)
			if shape == ShapeMap {
				assert.JSONEq(t, `{}`, rec.Body.String())
			} else {
				assert.JSONEq(t, `[]`, rec.Body.String())
			}
		})
	}
}

func TestList_StoreError(t *testing.T) {
	srv := NewServer(&brokenStore{err: eris.New("db down")}, &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodGet, "/postal-codes", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestGet(t *testing.T) {
	st := newTestStore(t, model.PostalRecord{PostalCode: "1000-001", Concelho: "Lisboa", Distrito: "Lisboa"})
	srv := NewServer(st, &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodGet, "/postal-codes/1000-001", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"postal_code":"1000-001","concelho":"Lisboa","distrito":"Lisboa"}`, rec.Body.String())
}

func TestGet_NotFoundOnEmptyStore(t *testing.T) {
	srv := NewServer(newTestStore(t), &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodGet, "/postal-codes/9999-999", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Postal code not found"}`, rec.Body.String())
}

func TestGet_MalformedCode(t *testing.T) {
	srv := NewServer(newTestStore(t), &stubUpdater{}, Options{})

	for _, code := range []string{"1000001", "10000-01", "abcd-efg", "update"} {
		rec := do(t, srv.Router(), http.MethodGet, "/postal-codes/"+code, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, code)
		assert.Equal(t, MsgInvalidCode, decodeError(t, rec))
	}
}

func TestGet_StoreError(t *testing.T) {
	srv := NewServer(&brokenStore{err: eris.New("db down")}, &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodGet, "/postal-codes/1000-001", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUpdate(t *testing.T) {
	upd := &stubUpdater{res: enrich.UpdateResult{Candidates: 3, Updated: 2, Skipped: 1}}
	srv := NewServer(newTestStore(t), upd, Options{})

	rec := do(t, srv.Router(), http.MethodPost, "/postal-codes/update", `{"api_key":" key-123 "}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"2 postal codes updated successfully.","updated":2,"candidates":3}`, rec.Body.String())
	assert.Equal(t, 1, upd.calls)
	assert.Equal(t, "key-123", upd.gotKey)
	assert.NoError(t, upd.ctxErr)
}

func TestUpdate_MissingAPIKey(t *testing.T) {
	for name, body := range map[string]string{
		"empty body":   "",
		"empty object": `{}`,
		"blank key":    `{"api_key":"   "}`,
		"null key":     `{"api_key":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			st := newTestStore(t, model.PostalRecord{PostalCode: "1000-001"})
			upd := &stubUpdater{}
			srv := NewServer(st, upd, Options{})

			rec := do(t, srv.Router(), http.MethodPost, "/postal-codes/update", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"API key is required."}`, rec.Body.String())
			assert.Zero(t, upd.calls)

			got, err := st.Get(context.Background(), "1000-001")
			require.NoError(t, err)
			assert.True(t, got.Incomplete())
		})
	}
}

func TestUpdate_InvalidJSON(t *testing.T) {
	upd := &stubUpdater{}
	srv := NewServer(newTestStore(t), upd, Options{})

	rec := do(t, srv.Router(), http.MethodPost, "/postal-codes/update", `{"api_key":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidBody, decodeError(t, rec))
	assert.Zero(t, upd.calls)
}

func TestUpdate_UpdaterError(t *testing.T) {
	upd := &stubUpdater{err: eris.New("enrich: persist store")}
	srv := NewServer(newTestStore(t), upd, Options{})

	rec := do(t, srv.Router(), http.MethodPost, "/postal-codes/update", `{"api_key":"k"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, decodeError(t, rec))
}

func TestUpdate_ZeroCandidates(t *testing.T) {
	srv := NewServer(newTestStore(t), &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodPost, "/postal-codes/update", `{"api_key":"k"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body UpdateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "0 postal codes updated successfully.", body.Message)
}

func TestUpdate_EndToEndWithEnricher(t *testing.T) {
	st := newTestStore(t, model.PostalRecord{PostalCode: "1000-001"})
	client := mocks.NewMockClient(t)
	client.On("Lookup", mock.Anything, "k", "1000-001").
		Return([]ctt.Address{{Concelho: "Lisboa", Distrito: "Lisboa"}}, nil).Once()

	srv := NewServer(st, enrich.New(st, client), Options{})
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/postal-codes/update", `{"api_key":"k"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"1 postal codes updated successfully."`)

	rec = do(t, h, http.MethodGet, "/postal-codes/1000-001", "")
	assert.JSONEq(t, `{"postal_code":"1000-001","concelho":"Lisboa","distrito":"Lisboa"}`, rec.Body.String())
}

func TestUpdate_WrongMethod(t *testing.T) {
	srv := NewServer(newTestStore(t), &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodDelete, "/postal-codes/update", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	srv := NewServer(newTestStore(t), &stubUpdater{}, Options{})

	rec := do(t, srv.Router(), http.MethodGet, "/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decodeError(t, rec))
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(newTestStore(t), &stubUpdater{}, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/postal-codes", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// brokenStore fails every read.
type brokenStore struct {
	store.Store
	err error
}

func (b *brokenStore) GetAll(context.Context) ([]model.PostalRecord, error) { return nil, b.err }

func (b *brokenStore) Get(context.Context, string) (*model.PostalRecord, error) { return nil, b.err }
