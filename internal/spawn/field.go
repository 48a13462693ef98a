package spawn

import (
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"birddex/internal/model"
	"birddex/internal/store"
)

const (
	locationKey = "userLocation"
	spawnsKey   = "birdSpawns"
	movementKey = "userMovement"
)

// Field is one player's persisted surroundings: last known location, live
// spawns and the walking accumulator.
type Field struct {
	st  store.Store
	now func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Field)

func WithClock(now func() time.Time) Option {
	return func(f *Field) { f.now = now }
}

func WithRand(rnd *rand.Rand) Option {
	return func(f *Field) { f.rnd = rnd }
}

func NewField(st store.Store, opts ...Option) *Field {
	f := &Field{
		st:  st,
		now: time.Now,
		rnd: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type MoveResult struct {
	Location      model.Location    `json:"location"`
	Moved         float64           `json:"moved"`
	TotalDistance float64           `json:"totalDistance"`
	Spawned       []model.BirdSpawn `json:"spawned"`
}

// Location is the last reported position, or the default city center.
func (f *Field) Location() model.Location {
	if loc, ok := store.LoadJSON[model.Location](f.st, locationKey); ok {
		return loc
	}
	return DefaultLocation
}

func (f *Field) Movement() model.UserMovement {
	m, _ := store.LoadJSON[model.UserMovement](f.st, movementKey)
	return m
}

// Spawns returns the unexpired spawns, pruning expired ones from storage.
func (f *Field) Spawns() []model.BirdSpawn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveLocked()
}

// Ensure returns the live spawns, generating an initial batch from pool
// around the current location when none are left.
func (f *Field) Ensure(pool []model.Bird) []model.BirdSpawn {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := f.liveLocked()
	if len(live) > 0 {
		return live
	}
	live = Generate(f.Location(), InitialCount, pool, f.rnd, f.now())
	f.saveLocked(spawnsKey, live)
	return live
}

// Refresh discards every spawn and generates a new batch.
func (f *Field) Refresh(pool []model.Bird) []model.BirdSpawn {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := Generate(f.Location(), InitialCount, pool, f.rnd, f.now())
	f.saveLocked(spawnsKey, live)
	return live
}

// UpdateLocation records a position fix. A single step of at least
// MoveThresholdM meters spawns MoveCount birds and resets the accumulator.
func (f *Field) UpdateLocation(loc model.Location, pool []model.Bird) MoveResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	movement, _ := store.LoadJSON[model.UserMovement](f.st, movementKey)
	result := MoveResult{Location: loc, Spawned: []model.BirdSpawn{}}
	next := model.UserMovement{LastPosition: &loc, LastUpdateTime: now.UnixMilli()}

	if movement.LastPosition != nil {
		result.Moved = Distance(*movement.LastPosition, loc)
		if result.Moved >= MoveThresholdM {
			result.Spawned = Generate(loc, MoveCount, pool, f.rnd, now)
			live := append(f.liveLocked(), result.Spawned...)
			f.saveLocked(spawnsKey, live)
		} else {
			next.TotalDistance = movement.TotalDistance + result.Moved
		}
	}
	result.TotalDistance = next.TotalDistance

	if err := store.SaveJSONMany(f.st, map[string]any{
		movementKey: next,
		locationKey: loc,
	}); err != nil {
		log.Printf("location persist failed: lat=%.5f lng=%.5f err=%v", loc.Lat, loc.Lng, err)
	}
	return result
}

func (f *Field) liveLocked() []model.BirdSpawn {
	spawns, _ := store.LoadJSON[[]model.BirdSpawn](f.st, spawnsKey)
	now := f.now()
	live := make([]model.BirdSpawn, 0, len(spawns))
	for _, s := range spawns {
		if !Expired(s, now) {
			live = append(live, s)
		}
	}
	if len(live) != len(spawns) {
		f.saveLocked(spawnsKey, live)
	}
	return live
}

func (f *Field) saveLocked(key string, v any) {
	if err := store.SaveJSON(f.st, key, v); err != nil {
		log.Printf("spawn state persist failed: key=%s err=%v", key, err)
	}
}
