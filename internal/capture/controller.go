// Package capture orchestrates a capture from the AR trigger to the pokedex
// commit, including the battle gate and the host-initiated request flow.
package capture

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/message"

	"birddex/internal/battle"
	"birddex/internal/feeds"
	"birddex/internal/model"
	"birddex/internal/pokedex"
	"birddex/internal/progression"
	"birddex/internal/protocol"
)

// BaseXP is awarded for every committed capture before the rarity multiplier.
const BaseXP = 50

const defaultBattleTTL = 10 * time.Minute

var (
	ErrBattleNotFound     = errors.New("battle not found")
	ErrCaptureNotFound    = errors.New("pending capture not found")
	ErrMissingDependency  = errors.New("missing controller dependency")
	ErrCaptureRejected    = errors.New("capture rejected by AR surface")
	errCommitInvalidEntry = errors.New("minted entry is not committable")
)

var tracer = otel.Tracer("birddex/internal/capture")

type Pokedex interface {
	Commit(entry model.PokedexEntry, captureID string) pokedex.CommitResult
	Count() int
	Entries() []model.PokedexEntry
}

type Levels interface {
	AddXP(base int, rarity model.Rarity) progression.LevelUp
	State() model.LevelState
}

// SpeciesFeed supplies live candidates near a location.
type SpeciesFeed interface {
	NearbySpecies(ctx context.Context, loc model.Location) ([]model.Bird, error)
}

type LocationSource interface {
	Location() model.Location
}

type SpawnSource interface {
	Spawns() []model.BirdSpawn
}

// Sender delivers a host message to the AR surface.
type Sender interface {
	Send(msg protocol.AppMessage) error
}

type Deps struct {
	Pokedex  Pokedex
	Levels   Levels
	Feed     SpeciesFeed
	Images   feeds.ImageResolver
	Recorder Recorder
	Gate     GatePolicy
	Location LocationSource
	Spawns   SpawnSource
	Sender   Sender
	Notifier Notifier
	Rand     *rand.Rand
	Now      func() time.Time
}

type Config struct {
	SessionID      string
	AllowedSpecies []string
	Locale         string
	BattleTTL      time.Duration
}

type OutcomeKind string

const (
	OutcomeAdded          OutcomeKind = "added"
	OutcomeDuplicate      OutcomeKind = "duplicate"
	OutcomeBattleRequired OutcomeKind = "battle_required"
	OutcomeNoCandidate    OutcomeKind = "no_candidate"
	OutcomeFailed         OutcomeKind = "failed"
	OutcomeCancelled      OutcomeKind = "cancelled"
	OutcomeUnknownBattle  OutcomeKind = "unknown_battle"
	OutcomeUnknownCapture OutcomeKind = "unknown_capture"
	OutcomePending        OutcomeKind = "pending"
)

// Outcome is the terminal (or suspended) result of one capture run.
type Outcome struct {
	Kind      OutcomeKind          `json:"kind"`
	CaptureID string               `json:"captureId,omitempty"`
	Entry     *model.PokedexEntry  `json:"entry,omitempty"`
	Commit    string               `json:"commit,omitempty"`
	Battle    *BattleTicket        `json:"battle,omitempty"`
	Fight     *battle.Battle       `json:"fight,omitempty"`
	LevelUp   *progression.LevelUp `json:"levelUp,omitempty"`
	Badges    []model.Badge        `json:"badges,omitempty"`
	Message   string               `json:"message,omitempty"`
	Err       error                `json:"-"`
}

// BattleTicket is a capture suspended at the battle gate.
type BattleTicket struct {
	ID        string         `json:"id"`
	CaptureID string         `json:"captureId"`
	Candidate model.Bird     `json:"candidate"`
	Location  model.Location `json:"location"`
	Roster    []model.Bird   `json:"roster"`
	CreatedAt int64          `json:"createdAt"`
}

type pendingBattle struct {
	ticket BattleTicket
	run    *run
}

type pendingCapture struct {
	candidate model.Bird
	location  model.Location
}

type Controller struct {
	pokedex  Pokedex
	levels   Levels
	feed     SpeciesFeed
	images   feeds.ImageResolver
	recorder Recorder
	gate     GatePolicy
	location LocationSource
	spawns   SpawnSource
	sender   Sender
	notifier Notifier
	now      func() time.Time
	cfg      Config
	printer  *message.Printer

	rndMu sync.Mutex
	rnd   *rand.Rand

	// commitMu serializes commits so badge diffs see every earlier commit.
	commitMu sync.Mutex

	mu      sync.Mutex
	battles map[string]*pendingBattle
	pending map[string]pendingCapture
}

func NewController(deps Deps, cfg Config) (*Controller, error) {
	if deps.Pokedex == nil || deps.Levels == nil {
		return nil, ErrMissingDependency
	}
	c := &Controller{
		pokedex:  deps.Pokedex,
		levels:   deps.Levels,
		feed:     deps.Feed,
		images:   deps.Images,
		recorder: deps.Recorder,
		gate:     deps.Gate,
		location: deps.Location,
		spawns:   deps.Spawns,
		sender:   deps.Sender,
		notifier: deps.Notifier,
		now:      deps.Now,
		rnd:      deps.Rand,
		cfg:      cfg,
		printer:  newPrinter(cfg.Locale),
		battles:  make(map[string]*pendingBattle),
		pending:  make(map[string]pendingCapture),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.recorder == nil {
		c.recorder = LocalRecorder{Now: c.now}
	}
	if c.gate == nil {
		c.gate = FirstCaptureFree
	}
	if c.rnd == nil {
		seed := uint64(c.now().UnixNano())
		c.rnd = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if c.cfg.BattleTTL <= 0 {
		c.cfg.BattleTTL = defaultBattleTTL
	}
	return c, nil
}

func NewCaptureID() string {
	return "capture-" + uuid.NewString()
}

// HandleBirdCaptured runs the capture flow for an AR capture trigger. The
// payload only starts the run; the candidate comes from the live feed or the
// pokedex.
func (c *Controller) HandleBirdCaptured(ctx context.Context, msg protocol.ArBirdCaptured) Outcome {
	return c.start(ctx, msg.BirdID, c.resolveCandidate)
}

// HandleRecognizedBird runs the capture flow for a bird the AR surface has
// already identified. The bird is the capture subject; the gate and the
// record steps are unchanged.
func (c *Controller) HandleRecognizedBird(ctx context.Context, bird model.Bird) Outcome {
	return c.start(ctx, bird.ID, func(context.Context, model.Location) (model.Bird, bool) {
		return bird, firstNonEmpty(bird.ID, bird.Species, bird.Name) != ""
	})
}

type candidateFunc func(ctx context.Context, loc model.Location) (model.Bird, bool)

func (c *Controller) start(ctx context.Context, triggerBirdID string, resolve candidateFunc) Outcome {
	ctx, span := tracer.Start(ctx, "capture.run")
	defer span.End()

	c.pruneBattles()
	r := newRun(NewCaptureID())
	span.SetAttributes(attribute.String("capture.id", r.captureID), attribute.String("capture.trigger_bird_id", triggerBirdID))
	r.step(ctx, evTrigger)

	requiresBattle := c.gate.RequiresBattle(GateInput{PokedexCount: c.pokedex.Count()})
	if requiresBattle {
		c.notify(Event{Kind: EventBattleLoading, CaptureID: r.captureID, Message: c.printer.Sprintf(keyBattleLoading)})
	}

	loc := c.currentLocation()
	candidate, ok := resolve(ctx, loc)
	if !ok {
		r.step(ctx, evAbort)
		log.Printf("capture skipped, no candidate: capture_id=%s lat=%f lng=%f", r.captureID, loc.Lat, loc.Lng)
		msg := c.printer.Sprintf(keyNoCandidate)
		c.notify(Event{Kind: EventCaptureSkipped, CaptureID: r.captureID, Message: msg})
		return c.finishSpan(span, Outcome{Kind: OutcomeNoCandidate, CaptureID: r.captureID, Message: msg})
	}

	if requiresBattle {
		r.step(ctx, evGateBattle)
		ticket := BattleTicket{
			ID:        uuid.NewString(),
			CaptureID: r.captureID,
			Candidate: candidate,
			Location:  loc,
			Roster:    battle.Roster(c.pokedex.Entries()),
			CreatedAt: c.now().UnixMilli(),
		}
		c.mu.Lock()
		c.battles[ticket.ID] = &pendingBattle{ticket: ticket, run: r}
		c.mu.Unlock()

		msg := c.printer.Sprintf(keyBattle, c.birdName(candidate))
		c.notify(Event{Kind: EventBattleRequired, CaptureID: r.captureID, Battle: &ticket, Message: msg})
		return c.finishSpan(span, Outcome{Kind: OutcomeBattleRequired, CaptureID: r.captureID, Battle: &ticket, Message: msg})
	}

	r.step(ctx, evGateDirect)
	return c.finishSpan(span, c.record(ctx, r, candidate, loc))
}

// HandleBattleVictory resumes a gated capture. The ticket is taken exactly
// once, so a repeated victory reports unknown_battle.
func (c *Controller) HandleBattleVictory(ctx context.Context, battleID string) Outcome {
	ctx, span := tracer.Start(ctx, "capture.battle_victory")
	defer span.End()

	pb, ok := c.takeBattle(battleID)
	if !ok {
		return c.finishSpan(span, Outcome{Kind: OutcomeUnknownBattle, Err: ErrBattleNotFound})
	}
	span.SetAttributes(attribute.String("capture.id", pb.run.captureID))
	return c.finishSpan(span, c.record(ctx, pb.run, pb.ticket.Candidate, pb.ticket.Location))
}

// CancelBattle discards a gated capture without touching any store.
func (c *Controller) CancelBattle(battleID string) bool {
	pb, ok := c.takeBattle(battleID)
	if !ok {
		return false
	}
	pb.run.step(context.Background(), evCancel)
	c.notify(Event{Kind: EventBattleCancelled, CaptureID: pb.run.captureID, Message: c.printer.Sprintf(keyCancelled)})
	return true
}

// FightBattle auto-resolves the battle with the chosen fighter. Winning
// records the capture; losing cancels it.
func (c *Controller) FightBattle(ctx context.Context, battleID, fighterID string) (Outcome, error) {
	c.mu.Lock()
	pb, ok := c.battles[battleID]
	c.mu.Unlock()
	if !ok {
		return Outcome{Kind: OutcomeUnknownBattle, Err: ErrBattleNotFound}, ErrBattleNotFound
	}
	player, err := battle.Pick(pb.ticket.Roster, fighterID)
	if err != nil {
		return Outcome{}, err
	}

	c.rndMu.Lock()
	fight := battle.AutoResolve(player, pb.ticket.Candidate, c.rnd)
	c.rndMu.Unlock()

	if fight.Result == battle.Victory {
		out := c.HandleBattleVictory(ctx, battleID)
		out.Fight = fight
		return out, nil
	}
	if !c.CancelBattle(battleID) {
		return Outcome{Kind: OutcomeUnknownBattle, Fight: fight, Err: ErrBattleNotFound}, nil
	}
	return Outcome{Kind: OutcomeCancelled, CaptureID: pb.ticket.CaptureID, Fight: fight, Message: c.printer.Sprintf(keyCancelled)}, nil
}

// Battles lists the captures waiting at the battle gate, oldest first.
func (c *Controller) Battles() []BattleTicket {
	c.pruneBattles()
	c.mu.Lock()
	out := make([]BattleTicket, 0, len(c.battles))
	for _, pb := range c.battles {
		out = append(out, pb.ticket)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RequestCapture starts a host-initiated capture: the AR surface is told
// about the attempt, the backend mints the record and the result is sent
// back. The commit happens when the AR surface confirms via
// HandleCaptureResult.
func (c *Controller) RequestCapture(ctx context.Context, birdID, species string) Outcome {
	ctx, span := tracer.Start(ctx, "capture.request")
	defer span.End()

	captureID := NewCaptureID()
	span.SetAttributes(attribute.String("capture.id", captureID), attribute.String("capture.bird_id", birdID))
	loc := c.currentLocation()
	candidate := c.spawnCandidate(birdID, species)

	c.mu.Lock()
	c.pending[captureID] = pendingCapture{candidate: candidate, location: loc}
	c.mu.Unlock()

	if err := c.send(protocol.AppCaptureRequest{CaptureID: captureID, BirdID: birdID}); err != nil {
		log.Printf("capture request send failed: capture_id=%s err=%v", captureID, err)
	}

	entry, err := c.recorder.Record(ctx, Request{
		CaptureID: captureID,
		BirdID:    birdID,
		Species:   species,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, captureID)
		c.mu.Unlock()
		log.Printf("capture request failed: capture_id=%s bird_id=%s err=%v", captureID, birdID, err)
		if sendErr := c.send(protocol.AppCaptureResult{CaptureResult: protocol.CaptureResult{
			CaptureID: captureID,
			OK:        false,
			Error:     "API request failed",
		}}); sendErr != nil {
			log.Printf("capture result send failed: capture_id=%s err=%v", captureID, sendErr)
		}
		msg := c.printer.Sprintf(keyFailed, err.Error())
		c.notify(Event{Kind: EventError, CaptureID: captureID, Message: msg})
		return c.finishSpan(span, Outcome{Kind: OutcomeFailed, CaptureID: captureID, Message: msg, Err: err})
	}

	if err := c.send(protocol.AppCaptureResult{CaptureResult: protocol.CaptureResult{
		CaptureID:    captureID,
		OK:           true,
		PokedexEntry: &entry,
	}}); err != nil {
		log.Printf("capture result send failed: capture_id=%s err=%v", captureID, err)
	}
	return c.finishSpan(span, Outcome{Kind: OutcomePending, CaptureID: captureID, Entry: &entry})
}

// HandleCaptureResult reconciles an AR capture result against the pending
// requests. Unknown capture ids are ignored.
func (c *Controller) HandleCaptureResult(res protocol.CaptureResult) Outcome {
	c.mu.Lock()
	pc, ok := c.pending[res.CaptureID]
	delete(c.pending, res.CaptureID)
	c.mu.Unlock()
	if !ok {
		log.Printf("capture result for unknown capture: capture_id=%s", res.CaptureID)
		return Outcome{Kind: OutcomeUnknownCapture, CaptureID: res.CaptureID, Err: ErrCaptureNotFound}
	}

	if !res.OK || res.PokedexEntry == nil {
		reason := strings.TrimSpace(res.Error)
		if reason == "" {
			reason = ErrCaptureRejected.Error()
		}
		log.Printf("capture rejected: capture_id=%s reason=%s", res.CaptureID, reason)
		msg := c.printer.Sprintf(keyFailed, reason)
		c.notify(Event{Kind: EventError, CaptureID: res.CaptureID, Message: msg})
		return Outcome{Kind: OutcomeFailed, CaptureID: res.CaptureID, Message: msg, Err: ErrCaptureRejected}
	}

	entry := MergeMetadata(*res.PokedexEntry, pc.candidate, res.CaptureID)
	if entry.Location == (model.Location{}) {
		entry.Location = pc.location
	}
	return c.commit(entry, res.CaptureID)
}

// HandleReady answers AR_READY with the session init and the current spawns.
func (c *Controller) HandleReady(version string) error {
	log.Printf("ar surface ready: session_id=%s version=%s", c.cfg.SessionID, version)
	species := c.cfg.AllowedSpecies
	if species == nil {
		species = []string{}
	}
	if err := c.send(protocol.AppInit{SessionID: c.cfg.SessionID, AllowedSpecies: species}); err != nil {
		return err
	}
	birds := []model.BirdSpawn{}
	if c.spawns != nil {
		birds = append(birds, c.spawns.Spawns()...)
	}
	return c.send(protocol.AppBirdList{Birds: birds})
}

// SendBirdList pushes the current spawns to the AR surface.
func (c *Controller) SendBirdList(birds []model.BirdSpawn) error {
	if birds == nil {
		birds = []model.BirdSpawn{}
	}
	return c.send(protocol.AppBirdList{Birds: birds})
}

// SetModel asks the AR surface to render a species model.
func (c *Controller) SetModel(species string) error {
	return c.send(protocol.AppSetModel{Species: species})
}

// MergeMetadata overlays locally known display metadata on a minted record.
// Fields the candidate does not know are left as minted.
func MergeMetadata(minted model.PokedexEntry, candidate model.Bird, captureID string) model.PokedexEntry {
	meta := make(map[string]any, len(minted.Meta)+7)
	for k, v := range minted.Meta {
		meta[k] = v
	}
	set := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			meta[key] = value
		}
	}
	set("name", candidate.Name)
	set("nameJa", candidate.NameJa)
	set("rarity", string(candidate.Rarity))
	set("imageUrl", candidate.ImageURL)
	set("description", candidate.Description)
	set("habitat", candidate.Habitat)
	set("captureId", captureID)

	out := minted
	out.Meta = meta
	if out.Species == "" {
		out.Species = firstNonEmpty(candidate.Species, candidate.Name)
	}
	return out
}

func (c *Controller) record(ctx context.Context, r *run, candidate model.Bird, loc model.Location) Outcome {
	minted, err := c.recorder.Record(ctx, Request{
		CaptureID: r.captureID,
		BirdID:    candidate.ID,
		Species:   firstNonEmpty(candidate.Species, candidate.Name),
		Lat:       loc.Lat,
		Lng:       loc.Lng,
	})
	if err != nil {
		r.step(ctx, evAbort)
		log.Printf("capture record failed: capture_id=%s bird_id=%s err=%v", r.captureID, candidate.ID, err)
		msg := c.printer.Sprintf(keyFailed, err.Error())
		c.notify(Event{Kind: EventError, CaptureID: r.captureID, Message: msg})
		return Outcome{Kind: OutcomeFailed, CaptureID: r.captureID, Message: msg, Err: err}
	}

	r.step(ctx, evReconcile)
	out := c.commit(MergeMetadata(minted, candidate, r.captureID), r.captureID)
	r.step(ctx, evFinish)
	return out
}

func (c *Controller) commit(entry model.PokedexEntry, captureID string) Outcome {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	before := progression.Badges(c.pokedex.Entries(), c.levels.State().Level)

	switch res := c.pokedex.Commit(entry, captureID); res {
	case pokedex.Added:
	case pokedex.Invalid:
		log.Printf("capture commit invalid: capture_id=%s bird_id=%s", captureID, entry.BirdID)
		msg := c.printer.Sprintf(keyFailed, errCommitInvalidEntry.Error())
		c.notify(Event{Kind: EventError, CaptureID: captureID, Message: msg})
		return Outcome{Kind: OutcomeFailed, CaptureID: captureID, Commit: res.String(), Message: msg, Err: errCommitInvalidEntry}
	default:
		return Outcome{Kind: OutcomeDuplicate, CaptureID: captureID, Entry: &entry, Commit: res.String()}
	}

	lvl := c.levels.AddXP(BaseXP, entry.Rarity())
	c.notify(Event{
		Kind:      EventCaptureCommitted,
		CaptureID: captureID,
		Entry:     &entry,
		Message:   c.printer.Sprintf(keyCaptured, c.birdName(model.BirdFromEntry(entry))),
	})
	if lvl.LeveledUp {
		c.notify(Event{Kind: EventLevelUp, CaptureID: captureID, LevelUp: &lvl, Message: c.printer.Sprintf(keyLevelUp, lvl.NewLevel)})
	}

	after := progression.Badges(c.pokedex.Entries(), c.levels.State().Level)
	unlocked := progression.NewlyUnlocked(before, after)
	for i := range unlocked {
		badge := unlocked[i]
		c.notify(Event{Kind: EventBadgeUnlocked, CaptureID: captureID, Badge: &badge, Message: c.printer.Sprintf(keyBadge, badge.Name)})
	}
	return Outcome{Kind: OutcomeAdded, CaptureID: captureID, Entry: &entry, Commit: pokedex.Added.String(), LevelUp: &lvl, Badges: unlocked}
}

// resolveCandidate prefers a random live species, enriched with an image,
// and falls back to a random bird already in the pokedex.
func (c *Controller) resolveCandidate(ctx context.Context, loc model.Location) (model.Bird, bool) {
	if c.feed != nil {
		pool, err := c.feed.NearbySpecies(ctx, loc)
		switch {
		case err != nil:
			log.Printf("capture candidate feed failed: lat=%f lng=%f err=%v", loc.Lat, loc.Lng, err)
		case len(pool) > 0:
			return c.enrich(ctx, pool[c.intN(len(pool))]), true
		}
	}
	entries := c.pokedex.Entries()
	if len(entries) == 0 {
		return model.Bird{}, false
	}
	return model.BirdFromEntry(entries[c.intN(len(entries))]), true
}

func (c *Controller) enrich(ctx context.Context, b model.Bird) model.Bird {
	if c.images == nil {
		return b
	}
	img, _ := c.images.ResolveImage(ctx, feeds.ImageQuery{Name: firstNonEmpty(b.Species, b.Name), SpeciesCode: b.ID})
	if img.ImageURL != "" {
		b.ImageURL = img.ImageURL
	}
	if b.NameJa == "" {
		b.NameJa = img.NameJa
	}
	return b
}

// spawnCandidate looks up display data for a host-requested bird among the
// live spawns.
func (c *Controller) spawnCandidate(birdID, species string) model.Bird {
	b := model.Bird{ID: birdID, Species: species}
	if c.spawns == nil {
		return b
	}
	for _, s := range c.spawns.Spawns() {
		if s.BirdID == birdID {
			b.Species = firstNonEmpty(species, s.Species)
			break
		}
	}
	return b
}

func (c *Controller) takeBattle(battleID string) (*pendingBattle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pb, ok := c.battles[battleID]
	if ok {
		delete(c.battles, battleID)
	}
	return pb, ok
}

func (c *Controller) pruneBattles() {
	cutoff := c.now().Add(-c.cfg.BattleTTL).UnixMilli()
	var expired []*pendingBattle
	c.mu.Lock()
	for id, pb := range c.battles {
		if pb.ticket.CreatedAt < cutoff {
			expired = append(expired, pb)
			delete(c.battles, id)
		}
	}
	c.mu.Unlock()
	for _, pb := range expired {
		log.Printf("battle expired: battle_id=%s capture_id=%s", pb.ticket.ID, pb.ticket.CaptureID)
		pb.run.step(context.Background(), evCancel)
	}
}

func (c *Controller) currentLocation() model.Location {
	if c.location == nil {
		return model.Location{}
	}
	return c.location.Location()
}

func (c *Controller) intN(n int) int {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.rnd.IntN(n)
}

func (c *Controller) send(msg protocol.AppMessage) error {
	if c.sender == nil {
		return nil
	}
	return c.sender.Send(msg)
}

func (c *Controller) notify(ev Event) {
	if c.notifier == nil {
		return
	}
	ev.At = c.now().UnixMilli()
	c.notifier.Notify(ev)
}

func (c *Controller) birdName(b model.Bird) string {
	if strings.HasPrefix(strings.ToLower(c.cfg.Locale), "en") {
		return firstNonEmpty(b.Name, b.NameJa, b.Species, b.ID)
	}
	return firstNonEmpty(b.NameJa, b.Name, b.Species, b.ID)
}

func (c *Controller) finishSpan(span trace.Span, out Outcome) Outcome {
	span.SetAttributes(attribute.String("capture.outcome", string(out.Kind)))
	if out.Kind == OutcomeFailed && out.Err != nil {
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
