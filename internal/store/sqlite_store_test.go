package store_test

import (
	"path/filepath"
	"testing"

	"birddex/internal/store"
)

func TestSQLiteStoreBasicFlow(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "birddex.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	if err := st.Put("p1:pokedex_entries", []byte(`[]`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, ok, err := st.Get("p1:pokedex_entries")
	if err != nil || !ok {
		t.Fatalf("Get() err=%v ok=%v", err, ok)
	}
	if string(got) != `[]` {
		t.Fatalf("expected [] got %q", got)
	}

	if err := st.PutMany(map[string][]byte{
		"p1:pokedex_entries":     []byte(`[{"birdId":"b1"}]`),
		"p1:pokedex_capture_ids": []byte(`["c1"]`),
		"p2:user_level_state":    []byte(`{"totalXp":10}`),
	}); err != nil {
		t.Fatalf("PutMany() error = %v", err)
	}
	got, _, _ = st.Get("p1:pokedex_entries")
	if string(got) != `[{"birdId":"b1"}]` {
		t.Fatalf("expected upserted value, got %q", got)
	}

	keys, err := st.Keys("p1:")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "p1:pokedex_capture_ids" || keys[1] != "p1:pokedex_entries" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := st.Delete("p1:pokedex_entries"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := st.Get("p1:pokedex_entries"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "birddex.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := store.SaveJSON(st, "userLocation", map[string]float64{"lat": 35.6, "lng": 139.7}); err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}
	_ = st.Close()

	reopened, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() reopen error = %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	loc, ok := store.LoadJSON[map[string]float64](reopened, "userLocation")
	if !ok {
		t.Fatalf("expected stored location")
	}
	if loc["lat"] != 35.6 || loc["lng"] != 139.7 {
		t.Fatalf("unexpected location %v", loc)
	}
}
