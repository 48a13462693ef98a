package progression_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birddex/internal/model"
	"birddex/internal/progression"
)

func badgeByID(t *testing.T, badges []model.Badge, id string) model.Badge {
	t.Helper()
	for _, b := range badges {
		if b.ID == id {
			return b
		}
	}
	require.Failf(t, "badge not found", "id=%s", id)
	return model.Badge{}
}

func TestBadgesProgress(t *testing.T) {
	t.Parallel()

	entries := []model.PokedexEntry{
		{BirdID: "1", Species: "Anas platyrhynchos", Meta: map[string]any{"name": "Mallard duck", "rarity": "rare"}},
		{BirdID: "2", Species: "Ardea alba", Meta: map[string]any{"name": "Great Egret", "rarity": "rare"}},
		{BirdID: "3", Species: "Alcedo atthis", Meta: map[string]any{"nameJa": "カワセミ", "rarity": "legendary"}},
		{BirdID: "4", Species: "Passer montanus", Meta: map[string]any{"name": "Sparrow"}},
	}
	badges := progression.Badges(entries, 2)

	first := badgeByID(t, badges, "first-capture")
	assert.True(t, first.Unlocked)
	assert.Equal(t, 1, first.Progress)

	watcher := badgeByID(t, badges, "birdwatcher")
	assert.False(t, watcher.Unlocked)
	assert.Equal(t, 4, watcher.Progress)
	assert.Equal(t, 5, watcher.Target)

	assert.False(t, badgeByID(t, badges, "rare-hunter").Unlocked)
	assert.Equal(t, 2, badgeByID(t, badges, "rare-hunter").Progress)
	assert.True(t, badgeByID(t, badges, "legend-seeker").Unlocked)
	assert.True(t, badgeByID(t, badges, "waterside").Unlocked)
	assert.Equal(t, 2, badgeByID(t, badges, "level-5").Progress)
}

func TestNewlyUnlocked(t *testing.T) {
	t.Parallel()

	before := progression.Badges(nil, 1)
	entries := make([]model.PokedexEntry, 0, 5)
	for i := 0; i < 5; i++ {
		entries = append(entries, model.PokedexEntry{BirdID: fmt.Sprint(i), Species: fmt.Sprintf("species-%d", i)})
	}
	after := progression.Badges(entries, 5)

	ids := make([]string, 0)
	for _, b := range progression.NewlyUnlocked(before, after) {
		ids = append(ids, b.ID)
	}
	assert.ElementsMatch(t, []string{"first-capture", "birdwatcher", "level-5"}, ids)
	assert.Empty(t, progression.NewlyUnlocked(after, after))
}
