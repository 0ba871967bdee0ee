package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/postal-cli/internal/api"
	"github.com/sells-group/postal-cli/internal/config"
	"github.com/sells-group/postal-cli/internal/store"
	"github.com/sells-group/postal-cli/pkg/ctt"
)

func TestInitStore_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updated_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("cp7,concelho,distrito\n1000-001,Lisboa,Lisboa\n"), 0o644))

	cfg = &config.Config{Store: config.StoreConfig{Driver: "csv", Path: path}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*store.CSVStore)
	assert.True(t, ok)
	rec, err := st.Get(context.Background(), "1000-001")
	require.NoError(t, err)
	assert.Equal(t, "Lisboa", rec.Concelho)
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "postal.db"),
	}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	recs, err := st.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestInitStore_PostgresBadURL(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "postgres", DatabaseURL: "://bad"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres store")
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver: mysql")
}

func TestListShape(t *testing.T) {
	tests := []struct {
		driver, configured, want string
	}{
		{"csv", "", api.ShapeMap},
		{"sqlite", "", api.ShapeList},
		{"postgres", "", api.ShapeList},
		{"csv", "list", api.ShapeList},
		{"sqlite", "map", api.ShapeMap},
	}
	for _, tt := range tests {
		cfg = &config.Config{
			Store:  config.StoreConfig{Driver: tt.driver},
			Server: config.ServerConfig{ListShape: tt.configured},
		}
		assert.Equal(t, tt.want, listShape(), "driver=%s configured=%q", tt.driver, tt.configured)
	}
}

func TestNewCTTClient(t *testing.T) {
	cfg = &config.Config{CTT: config.CTTConfig{BaseURL: ctt.DefaultBaseURL, TimeoutSecs: 5}}
	assert.NotNil(t, newCTTClient())
}
