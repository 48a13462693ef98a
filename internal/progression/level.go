package progression

import (
	"log"
	"math"
	"sort"
	"sync"

	"birddex/internal/model"
	"birddex/internal/store"
)

const levelStateKey = "user_level_state"

var rarityMultipliers = map[model.Rarity]float64{
	model.RarityCommon:    1.0,
	model.RarityUncommon:  1.5,
	model.RarityRare:      2.0,
	model.RarityLegendary: 3.0,
}

// Threshold is the cumulative XP needed to reach level n.
func Threshold(n int) int {
	if n <= 0 {
		return 0
	}
	return 100 * n * (n + 1) / 2
}

// earnedLevel is the highest level whose threshold totalXP has reached, or 0.
func earnedLevel(totalXP int) int {
	n := 0
	for Threshold(n+1) <= totalXP {
		n++
	}
	return n
}

// LevelOf is the player-facing level for totalXP; it never drops below 1.
func LevelOf(totalXP int) int {
	if n := earnedLevel(totalXP); n > 1 {
		return n
	}
	return 1
}

// Multiplier returns the XP factor for rarity; unknown rarities count as common.
func Multiplier(rarity model.Rarity) float64 {
	if m, ok := rarityMultipliers[rarity]; ok {
		return m
	}
	return 1.0
}

type LevelUp struct {
	LeveledUp bool `json:"leveledUp"`
	NewLevel  int  `json:"newLevel"`
	Gained    int  `json:"gained"`
}

type Levels struct {
	st store.Store

	mu        sync.Mutex
	state     model.LevelState
	listeners map[int]func(model.LevelState)
	nextID    int
}

func NewLevels(st store.Store) *Levels {
	l := &Levels{
		st:        st,
		state:     model.LevelState{Level: 1},
		listeners: make(map[int]func(model.LevelState)),
	}
	if saved, ok := store.LoadJSON[model.LevelState](st, levelStateKey); ok && saved.TotalXP >= 0 {
		saved.Level = LevelOf(saved.TotalXP)
		l.state = saved
	}
	return l
}

// AddXP awards base XP scaled by rarity. Crossing any level threshold,
// including the first at 100, counts as a level-up.
func (l *Levels) AddXP(base int, rarity model.Rarity) LevelUp {
	gained := int(math.Trunc(float64(base) * Multiplier(rarity)))
	if gained < 0 {
		gained = 0
	}

	l.mu.Lock()
	before := earnedLevel(l.state.TotalXP)
	l.state.XP += gained
	l.state.TotalXP += gained
	l.state.Level = LevelOf(l.state.TotalXP)
	after := earnedLevel(l.state.TotalXP)
	snapshot := l.state
	if err := store.SaveJSON(l.st, levelStateKey, snapshot); err != nil {
		log.Printf("level persist failed: total_xp=%d err=%v", snapshot.TotalXP, err)
	}
	listeners := l.listenersLocked()
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return LevelUp{LeveledUp: after > before, NewLevel: snapshot.Level, Gained: gained}
}

// Progress reports XP earned inside the current level band.
func (l *Levels) Progress() model.XPProgress {
	l.mu.Lock()
	total := l.state.TotalXP
	l.mu.Unlock()
	return progressOf(total)
}

func progressOf(total int) model.XPProgress {
	n := earnedLevel(total)
	current := total - Threshold(n)
	required := Threshold(n+1) - Threshold(n)
	percentage := 100
	if required > 0 {
		percentage = int(math.Round(float64(current) / float64(required) * 100))
	}
	return model.XPProgress{Current: current, Required: required, Percentage: percentage}
}

func (l *Levels) State() model.LevelState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Levels) Subscribe(fn func(model.LevelState)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

func (l *Levels) Reset() error {
	l.mu.Lock()
	l.state = model.LevelState{Level: 1}
	snapshot := l.state
	err := store.SaveJSON(l.st, levelStateKey, snapshot)
	listeners := l.listenersLocked()
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(snapshot)
	}
	return err
}

func (l *Levels) listenersLocked() []func(model.LevelState) {
	ids := make([]int, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(model.LevelState), 0, len(ids))
	for _, id := range ids {
		out = append(out, l.listeners[id])
	}
	return out
}
