package backup

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birddex/internal/model"
)

func TestExportDisabledWithoutCredentials(t *testing.T) {
	e, err := NewExporter(Config{Bucket: "b", PublicDomain: "https://cdn.example"})
	require.NoError(t, err)
	assert.False(t, e.Enabled())

	_, err = e.Export(context.Background(), Snapshot{SessionID: "s"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestExportUploadsSnapshot(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, raw
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, err := NewExporter(Config{
		SecretID:     "id",
		SecretKey:    "key",
		Bucket:       "birddex-1250000000",
		PublicDomain: "https://cdn.example/",
		BucketURL:    srv.URL,
	})
	require.NoError(t, err)
	require.True(t, e.Enabled())

	url, err := e.Export(context.Background(), Snapshot{
		SessionID: "player/../1",
		Entries:   []model.PokedexEntry{{BirdID: "bird-1", Species: "sparrow", CapturedAt: 10}},
		Level:     model.LevelState{Level: 1, XP: 50, TotalXP: 50},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(path, "/birddex/snapshots/player_.._1/"), path)
	assert.True(t, strings.HasSuffix(path, "_pokedex.json"), path)
	assert.Equal(t, "https://cdn.example"+path, url)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, "player/../1", snap.SessionID)
	assert.NotZero(t, snap.ExportedAt)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "bird-1", snap.Entries[0].BirdID)
	assert.Equal(t, 50, snap.Level.TotalXP)
}

func TestExportSurfacesUploadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e, err := NewExporter(Config{SecretID: "id", SecretKey: "key", Bucket: "b", PublicDomain: "https://cdn", BucketURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Export(context.Background(), Snapshot{SessionID: "s"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "anonymous", sanitize(""))
	assert.Equal(t, "anonymous", sanitize(".."))
	assert.Equal(t, "a_b", sanitize("a b"))
}
