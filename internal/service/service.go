package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"birddex/internal/backup"
	"birddex/internal/bridge"
	"birddex/internal/capture"
	"birddex/internal/feeds"
	"birddex/internal/knowledge"
	"birddex/internal/model"
	"birddex/internal/spawn"
	"birddex/internal/store"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidSessionID  = errors.New("session id must be 1-64 letters, digits, '-' or '_'")
	ErrInvalidLocation   = errors.New("lat must be within [-90,90] and lng within [-180,180]")
	ErrQueryRequired     = errors.New("query parameter q is required")
	ErrBirdRequired      = errors.New("birdId and species are required")
	ErrBackupUnavailable = errors.New("snapshot export is not configured")
	ErrFeedUnavailable   = errors.New("external feed unavailable")
)

// SpeciesFeed is the live species source used for candidates and spawns.
type SpeciesFeed interface {
	NearbySpecies(ctx context.Context, loc model.Location) ([]model.Bird, error)
}

type Options struct {
	Feeds *feeds.Client
	// Species overrides Feeds as the live species source.
	Species  SpeciesFeed
	Images   feeds.ImageResolver
	Recorder capture.Recorder
	Gate     capture.GatePolicy
	Bridge   bridge.Config
	Exporter *backup.Exporter

	Locale         string
	AllowedSpecies []string
	Now            func() time.Time
}

type NearbyResponse struct {
	Birds []model.BirdSpawn `json:"birds"`
}

type DescriptionResponse struct {
	Description   string `json:"description"`
	DescriptionJa string `json:"descriptionJa"`
	WikipediaURL  string `json:"wikipediaUrl"`
}

type Service struct {
	store    store.Store
	feeds    *feeds.Client
	species  SpeciesFeed
	images   feeds.ImageResolver
	recorder capture.Recorder
	gate     capture.GatePolicy
	bridge   bridge.Config
	exporter *backup.Exporter
	locale   string
	allowed  []string
	now      func() time.Time

	sessionsMu sync.Mutex
	sessions   map[string]*Session

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(st store.Store, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := opts.Feeds
	if client == nil {
		client = feeds.NewClient(feeds.Config{})
	}
	species := opts.Species
	if species == nil {
		species = client
	}
	images := opts.Images
	if images == nil {
		images = client.ImageResolver()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = capture.LocalRecorder{Now: now}
	}
	gate := opts.Gate
	if gate == nil {
		gate = capture.FirstCaptureFree
	}
	allowed := opts.AllowedSpecies
	if len(allowed) == 0 {
		allowed = knowledge.NearbySpecies
	}
	seed := uint64(now().UnixNano())

	return &Service{
		store:    st,
		feeds:    client,
		species:  species,
		images:   images,
		recorder: recorder,
		gate:     gate,
		bridge:   opts.Bridge,
		exporter: opts.Exporter,
		locale:   opts.Locale,
		allowed:  allowed,
		now:      now,
		sessions: make(map[string]*Session),
		rng:      rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
	}
}

// RecordCapture is the backend capture endpoint: it validates a raw request
// body and mints the authoritative record.
func (s *Service) RecordCapture(raw []byte) (model.PokedexEntry, error) {
	req, err := capture.DecodeRequest(raw)
	if err != nil {
		return model.PokedexEntry{}, err
	}
	entry, err := capture.Mint(req, s.now())
	if err != nil {
		return model.PokedexEntry{}, err
	}
	log.Printf("capture minted: capture_id=%s bird_id=%s", req.CaptureID, req.BirdID)
	return entry, nil
}

// NearbyBirds generates throwaway spawns around a point.
func (s *Service) NearbyBirds(lat, lng float64) (NearbyResponse, error) {
	if err := validateLocation(lat, lng); err != nil {
		return NearbyResponse{}, err
	}
	s.rngMu.Lock()
	birds := spawn.Nearby(model.Location{Lat: lat, Lng: lng}, s.rng, s.now())
	s.rngMu.Unlock()
	return NearbyResponse{Birds: birds}, nil
}

func (s *Service) RecentObservations(ctx context.Context, lat, lng float64, distKm, backDays int) ([]feeds.Observation, error) {
	if err := validateLocation(lat, lng); err != nil {
		return nil, err
	}
	if distKm <= 0 {
		distKm = feeds.DefaultRecentDist
	}
	if backDays <= 0 {
		backDays = feeds.DefaultRecentBack
	}
	obs, err := s.feeds.RecentObservations(ctx, lat, lng, distKm, backDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	return obs, nil
}

// BirdImage always succeeds once q is present; the resolver chain ends in
// a placeholder.
func (s *Service) BirdImage(ctx context.Context, q, speciesCode string) (feeds.ImageResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return feeds.ImageResult{}, ErrQueryRequired
	}
	res, _ := s.images.ResolveImage(ctx, feeds.ImageQuery{Name: q, SpeciesCode: strings.TrimSpace(speciesCode)})
	if res.ImageURL == "" {
		res.ImageURL = knowledge.PlaceholderImage
	}
	return res, nil
}

func (s *Service) BirdDescription(ctx context.Context, q string) (DescriptionResponse, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return DescriptionResponse{}, ErrQueryRequired
	}
	desc, err := s.feeds.Describe(ctx, q)
	if err != nil {
		log.Printf("bird description failed: q=%s err=%v", q, err)
		return DescriptionResponse{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	return DescriptionResponse{
		Description:   desc.Description,
		DescriptionJa: desc.DescriptionJa,
		WikipediaURL:  desc.WikipediaURL,
	}, nil
}

func (s *Service) Geocode(ctx context.Context, lat, lng float64) (model.Region, error) {
	if err := validateLocation(lat, lng); err != nil {
		return model.Region{}, err
	}
	region, err := s.feeds.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		log.Printf("reverse geocode failed: lat=%.5f lng=%.5f err=%v", lat, lng, err)
		return model.Region{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	return region, nil
}

type CreateSessionRequest struct {
	// SessionID resumes the persisted state of an earlier session.
	SessionID string `json:"sessionId,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

type SessionInfo struct {
	SessionID string `json:"sessionId"`
	CreatedAt int64  `json:"createdAt"`
	Resumed   bool   `json:"resumed"`
}

// CreateSession opens a session, or returns the live one with the same id.
func (s *Service) CreateSession(req CreateSessionRequest) (*Session, bool, error) {
	id := strings.TrimSpace(req.SessionID)
	resumed := id != ""
	if id == "" {
		id = uuid.NewString()
	} else if !validSessionID(id) {
		return nil, false, ErrInvalidSessionID
	}

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, true, nil
	}
	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = s.locale
	}
	sess, err := s.newSession(id, locale)
	if err != nil {
		return nil, false, err
	}
	s.sessions[id] = sess
	log.Printf("session opened: session_id=%s resumed=%t", id, resumed)
	return sess, resumed, nil
}

func (s *Service) Session(id string) (*Session, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sess, ok := s.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) CloseSession(id string) error {
	s.sessionsMu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.close()
	log.Printf("session closed: session_id=%s", id)
	return nil
}

// SessionIDs lists the live sessions.
func (s *Service) SessionIDs() []string {
	s.sessionsMu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.sessionsMu.Unlock()
	sort.Strings(ids)
	return ids
}

func (s *Service) Close() {
	for _, id := range s.SessionIDs() {
		_ = s.CloseSession(id)
	}
}

// speciesPool is the live species list around loc, or the built-in birds
// when the feed is empty or down.
func (s *Service) speciesPool(ctx context.Context, loc model.Location) []model.Bird {
	pool, err := s.species.NearbySpecies(ctx, loc)
	if err != nil || len(pool) == 0 {
		return knowledge.FallbackBirds
	}
	return pool
}

func (s *Service) newRand() *rand.Rand {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return rand.New(rand.NewPCG(s.rng.Uint64(), s.rng.Uint64()))
}

func validateLocation(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrInvalidLocation
	}
	return nil
}

func validSessionID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
