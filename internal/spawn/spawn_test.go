package spawn_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birddex/internal/knowledge"
	"birddex/internal/model"
	"birddex/internal/spawn"
	"birddex/internal/store"
)

var tokyo = model.Location{Lat: 35.6762, Lng: 139.6503}

var fullPool = []model.Bird{
	{ID: "c", Name: "Sparrow", Species: "Passer montanus", Rarity: model.RarityCommon},
	{ID: "u", Name: "Coal Tit", Species: "Periparus ater", Rarity: model.RarityUncommon},
	{ID: "r", Name: "Kingfisher", Species: "Alcedo atthis", Rarity: model.RarityRare},
	{ID: "l", Name: "Steller's Sea Eagle", Species: "Haliaeetus pelagicus", Rarity: model.RarityLegendary},
}

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestGenerateDrawsFromPoolNearCenter(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_700_000_000_000)
	spawns := spawn.Generate(tokyo, 20, knowledge.FallbackBirds, seeded(), now)
	require.NotEmpty(t, spawns)

	ids := map[string]bool{}
	for _, b := range knowledge.FallbackBirds {
		ids[b.ID] = true
	}
	for _, s := range spawns {
		assert.True(t, ids[s.BirdID], "unexpected bird %s", s.BirdID)
		assert.InDelta(t, tokyo.Lat, s.Lat, 0.0005)
		assert.InDelta(t, tokyo.Lng, s.Lng, 0.0005)
		assert.Equal(t, now.UnixMilli(), s.SpawnedAt)
		assert.NotEmpty(t, s.ModelKey)
	}
}

func TestGenerateFallsThroughEmptyRarities(t *testing.T) {
	t.Parallel()

	pool := []model.Bird{{ID: "rare-1", Name: "Kingfisher", Species: "Alcedo atthis", Rarity: model.RarityRare}}
	spawns := spawn.Generate(tokyo, 200, pool, seeded(), time.Now())

	// rolls at or above 0.95 find no legendary bird and are dropped
	assert.Greater(t, len(spawns), 150)
	assert.Less(t, len(spawns), 200)
	for _, s := range spawns {
		assert.Equal(t, "rare-1", s.BirdID)
		assert.Equal(t, "kingfisher", s.ModelKey)
	}

	assert.Empty(t, spawn.Generate(tokyo, 5, nil, seeded(), time.Now()))
}

func TestNearby(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(42)
	birds := spawn.Nearby(tokyo, seeded(), now)
	require.Len(t, birds, 5)
	for i, b := range birds {
		assert.Equal(t, knowledge.NearbySpecies[i], b.Species)
		assert.Equal(t, b.Species, b.ModelKey)
		d := spawn.Distance(tokyo, model.Location{Lat: b.Lat, Lng: b.Lng})
		assert.Greater(t, d, 80.0)
		assert.Less(t, d, 350.0)
	}
	assert.Equal(t, "bird-42-0", birds[0].BirdID)
}

func TestDistance(t *testing.T) {
	t.Parallel()

	assert.Zero(t, spawn.Distance(tokyo, tokyo))
	north := model.Location{Lat: tokyo.Lat + 0.001, Lng: tokyo.Lng}
	assert.InDelta(t, 111.2, spawn.Distance(tokyo, north), 0.5)
}

func TestFieldExpiresSpawns(t *testing.T) {
	t.Parallel()

	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	now := time.UnixMilli(1_700_000_000_000)
	f := spawn.NewField(st, spawn.WithRand(seeded()), spawn.WithClock(func() time.Time { return now }))

	initial := f.Ensure(fullPool)
	require.Len(t, initial, spawn.InitialCount)
	assert.Equal(t, initial, f.Ensure(fullPool))

	now = now.Add(spawn.TTL)
	assert.Empty(t, f.Spawns())
	raw, ok := store.LoadJSON[[]model.BirdSpawn](st, "birdSpawns")
	assert.True(t, ok)
	assert.Empty(t, raw)

	regenerated := f.Ensure(fullPool)
	require.Len(t, regenerated, spawn.InitialCount)
	assert.Equal(t, now.UnixMilli(), regenerated[0].SpawnedAt)
}

func TestFieldMovementThreshold(t *testing.T) {
	t.Parallel()

	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	f := spawn.NewField(st, spawn.WithRand(seeded()))
	assert.Equal(t, spawn.DefaultLocation, f.Location())

	first := f.UpdateLocation(tokyo, fullPool)
	assert.Zero(t, first.Moved)
	assert.Empty(t, first.Spawned)

	small := model.Location{Lat: tokyo.Lat + 0.0002, Lng: tokyo.Lng}
	step := f.UpdateLocation(small, fullPool)
	assert.Empty(t, step.Spawned)
	assert.InDelta(t, 22.2, step.TotalDistance, 0.5)

	far := model.Location{Lat: small.Lat + 0.001, Lng: small.Lng}
	jump := f.UpdateLocation(far, fullPool)
	assert.Len(t, jump.Spawned, spawn.MoveCount)
	assert.Zero(t, jump.TotalDistance)
	assert.Equal(t, far, f.Location())
	assert.Len(t, f.Spawns(), len(jump.Spawned))

	m := f.Movement()
	require.NotNil(t, m.LastPosition)
	assert.Equal(t, far, *m.LastPosition)
}
