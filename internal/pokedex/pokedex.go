// Package pokedex is the authoritative ledger of captured birds. Commits are
// idempotent per capture id and resolve conflicts on the same bird by the
// capture timestamp, never by arrival order.
package pokedex

import (
	"log"
	"sort"
	"strings"
	"sync"

	"birddex/internal/model"
	"birddex/internal/store"
)

const (
	entriesKey    = "pokedex_entries"
	captureIDsKey = "pokedex_capture_ids"
)

type CommitResult int

const (
	Added CommitResult = iota
	DuplicateCapture
	StaleCapture
	Invalid
)

func (r CommitResult) String() string {
	switch r {
	case Added:
		return "added"
	case DuplicateCapture:
		return "duplicate_capture"
	case StaleCapture:
		return "stale_capture"
	default:
		return "invalid"
	}
}

type Store struct {
	st store.Store

	mu         sync.RWMutex
	entries    map[string]model.PokedexEntry
	captureIDs map[string]struct{}
	listeners  map[int]func(model.PokedexEntry)
	nextID     int
}

// New loads the pokedex persisted in st. Unreadable state starts empty.
func New(st store.Store) *Store {
	s := &Store{
		st:         st,
		entries:    make(map[string]model.PokedexEntry),
		captureIDs: make(map[string]struct{}),
		listeners:  make(map[int]func(model.PokedexEntry)),
	}
	s.load()
	return s
}

func (s *Store) load() {
	entries, _ := store.LoadJSON[[]model.PokedexEntry](s.st, entriesKey)
	for _, e := range entries {
		if strings.TrimSpace(e.BirdID) == "" {
			continue
		}
		if cur, ok := s.entries[e.BirdID]; ok && cur.CapturedAt > e.CapturedAt {
			continue
		}
		s.entries[e.BirdID] = e
	}
	ids, _ := store.LoadJSON[[]string](s.st, captureIDsKey)
	for _, id := range ids {
		s.captureIDs[id] = struct{}{}
	}
}

// Commit records entry under captureID. A consumed capture id or an existing
// entry with a strictly later capture time leaves the ledger untouched.
func (s *Store) Commit(entry model.PokedexEntry, captureID string) CommitResult {
	if strings.TrimSpace(entry.BirdID) == "" || strings.TrimSpace(captureID) == "" {
		return Invalid
	}

	s.mu.Lock()
	if _, seen := s.captureIDs[captureID]; seen {
		s.mu.Unlock()
		log.Printf("pokedex duplicate capture ignored: capture_id=%s bird_id=%s", captureID, entry.BirdID)
		return DuplicateCapture
	}
	if cur, ok := s.entries[entry.BirdID]; ok && cur.CapturedAt > entry.CapturedAt {
		s.mu.Unlock()
		log.Printf("pokedex stale capture ignored: capture_id=%s bird_id=%s existing=%d incoming=%d",
			captureID, entry.BirdID, cur.CapturedAt, entry.CapturedAt)
		return StaleCapture
	}

	s.entries[entry.BirdID] = entry
	s.captureIDs[captureID] = struct{}{}
	if err := s.persistLocked(); err != nil {
		log.Printf("pokedex persist failed: capture_id=%s err=%v", captureID, err)
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
	return Added
}

// AddEntry reports whether the commit changed the ledger.
func (s *Store) AddEntry(entry model.PokedexEntry, captureID string) bool {
	return s.Commit(entry, captureID) == Added
}

func (s *Store) Entry(birdID string) (model.PokedexEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[birdID]
	return e, ok
}

// Entries returns every entry, newest capture first.
func (s *Store) Entries() []model.PokedexEntry {
	s.mu.RLock()
	out := make([]model.PokedexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CapturedAt != out[j].CapturedAt {
			return out[i].CapturedAt > out[j].CapturedAt
		}
		return out[i].BirdID < out[j].BirdID
	})
	return out
}

func (s *Store) HasEntry(birdID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[birdID]
	return ok
}

func (s *Store) HasCaptureID(captureID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.captureIDs[captureID]
	return ok
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe registers fn to run after every added entry.
func (s *Store) Subscribe(fn func(model.PokedexEntry)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Reset drops every entry and consumed capture id.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]model.PokedexEntry)
	s.captureIDs = make(map[string]struct{})
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	entries := make([]model.PokedexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].BirdID < entries[j].BirdID })
	ids := make([]string, 0, len(s.captureIDs))
	for id := range s.captureIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return store.SaveJSONMany(s.st, map[string]any{
		entriesKey:    entries,
		captureIDsKey: ids,
	})
}

func (s *Store) listenersLocked() []func(model.PokedexEntry) {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(model.PokedexEntry), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}
