package progression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birddex/internal/model"
	"birddex/internal/progression"
	"birddex/internal/store"
)

func newLevels(t *testing.T) (*progression.Levels, store.Store) {
	t.Helper()
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	return progression.NewLevels(st), st
}

func TestThresholdAndLevelOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100, progression.Threshold(1))
	assert.Equal(t, 300, progression.Threshold(2))
	assert.Equal(t, 600, progression.Threshold(3))
	assert.Equal(t, 1000, progression.Threshold(4))

	cases := map[int]int{0: 1, 99: 1, 100: 1, 299: 1, 300: 2, 599: 2, 600: 3, 1000: 4, 1499: 4, 1500: 5}
	for total, want := range cases {
		assert.Equal(t, want, progression.LevelOf(total), "total=%d", total)
	}
}

func TestAddXPCrossesEachThreshold(t *testing.T) {
	t.Parallel()

	l, _ := newLevels(t)
	var ups []int
	for i := 1; i <= 10; i++ {
		res := l.AddXP(100, model.RarityCommon)
		if res.LeveledUp {
			ups = append(ups, l.State().TotalXP)
		}
		if i == 1 {
			assert.Equal(t, 1, res.NewLevel)
			assert.Equal(t, 100, l.State().TotalXP)
		}
	}
	assert.Equal(t, []int{100, 300, 600, 1000}, ups)
	assert.Equal(t, 4, l.State().Level)
}

func TestAddXPRarityScaling(t *testing.T) {
	t.Parallel()

	l, _ := newLevels(t)
	assert.Equal(t, 150, l.AddXP(50, model.RarityLegendary).Gained)
	assert.Equal(t, 150, l.State().TotalXP)
	assert.Equal(t, 75, l.AddXP(50, model.RarityUncommon).Gained)
	assert.Equal(t, 225, l.State().TotalXP)
	assert.Equal(t, 100, l.AddXP(50, model.RarityRare).Gained)
	assert.Equal(t, 50, l.AddXP(50, "").Gained)
	assert.Equal(t, 4, l.AddXP(3, model.RarityUncommon).Gained)
}

func TestLevelMonotonic(t *testing.T) {
	t.Parallel()

	l, _ := newLevels(t)
	prev := l.State()
	for _, amount := range []int{0, 7, 50, 0, 333, 1, 999} {
		l.AddXP(amount, model.RarityRare)
		cur := l.State()
		assert.GreaterOrEqual(t, cur.Level, prev.Level)
		assert.GreaterOrEqual(t, cur.TotalXP, prev.TotalXP)
		prev = cur
	}
	l.AddXP(-100, model.RarityCommon)
	assert.Equal(t, prev.TotalXP, l.State().TotalXP)
}

func TestProgress(t *testing.T) {
	t.Parallel()

	l, _ := newLevels(t)
	assert.Equal(t, model.XPProgress{Current: 0, Required: 100, Percentage: 0}, l.Progress())

	l.AddXP(75, model.RarityCommon)
	assert.Equal(t, model.XPProgress{Current: 75, Required: 100, Percentage: 75}, l.Progress())
	assert.Equal(t, 1, l.State().Level)

	l.AddXP(75, model.RarityCommon)
	assert.Equal(t, model.XPProgress{Current: 50, Required: 200, Percentage: 25}, l.Progress())

	l.AddXP(151, model.RarityCommon)
	assert.Equal(t, model.XPProgress{Current: 1, Required: 300, Percentage: 0}, l.Progress())
}

func TestLevelRecomputedOnLoad(t *testing.T) {
	t.Parallel()

	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, st.Put("user_level_state", []byte(`{"xp":650,"level":9,"totalXp":650}`)))

	l := progression.NewLevels(st)
	assert.Equal(t, 3, l.State().Level)
	assert.Equal(t, 650, l.State().TotalXP)

	require.NoError(t, st.Put("user_level_state", []byte(`nope`)))
	assert.Equal(t, model.LevelState{Level: 1}, progression.NewLevels(st).State())
}

func TestSubscribersNotifiedAfterMutation(t *testing.T) {
	t.Parallel()

	l, st := newLevels(t)
	var first, second []int
	unsubscribe := l.Subscribe(func(s model.LevelState) {
		saved, ok := store.LoadJSON[model.LevelState](st, "user_level_state")
		require.True(t, ok)
		assert.Equal(t, s.TotalXP, saved.TotalXP)
		first = append(first, s.TotalXP)
	})
	l.Subscribe(func(s model.LevelState) { second = append(second, s.TotalXP) })

	l.AddXP(50, model.RarityCommon)
	unsubscribe()
	l.AddXP(50, model.RarityCommon)

	assert.Equal(t, []int{50}, first)
	assert.Equal(t, []int{50, 100}, second)

	require.NoError(t, l.Reset())
	assert.Equal(t, []int{50, 100, 0}, second)
}
