package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"birddex/internal/backup"
	"birddex/internal/bridge"
	"birddex/internal/capture"
	"birddex/internal/model"
	"birddex/internal/pokedex"
	"birddex/internal/progression"
	"birddex/internal/protocol"
	"birddex/internal/spawn"
	"birddex/internal/store"
)

const (
	maxQueuedFrames = 256
	maxQueuedEvents = 100
)

// Frame is one outbound item for the relaying page: either a message to
// post to the AR frame or a UI event.
type Frame struct {
	TargetOrigin string          `json:"targetOrigin,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Event        *capture.Event  `json:"event,omitempty"`
}

// FrameSink pushes frames to a live connection.
type FrameSink func(Frame) error

// Session hosts one player's capture pipeline and persisted state.
type Session struct {
	ID        string
	CreatedAt time.Time

	svc     *Service
	pokedex *pokedex.Store
	levels  *progression.Levels
	field   *spawn.Field
	ctrl    *capture.Controller
	bridge  *bridge.Bridge

	mu     sync.Mutex
	outbox []Frame
	events []capture.Event
	sink   FrameSink
	sinkID int
}

func (s *Service) newSession(id, locale string) (*Session, error) {
	kv := store.Namespace(s.store, id)
	sess := &Session{
		ID:        id,
		CreatedAt: s.now(),
		svc:       s,
		pokedex:   pokedex.New(kv),
		levels:    progression.NewLevels(kv),
		field:     spawn.NewField(kv, spawn.WithClock(s.now), spawn.WithRand(s.newRand())),
		bridge:    bridge.New(s.bridge),
	}
	ctrl, err := capture.NewController(capture.Deps{
		Pokedex:  sess.pokedex,
		Levels:   sess.levels,
		Feed:     s.species,
		Images:   s.images,
		Recorder: s.recorder,
		Gate:     s.gate,
		Location: sess.field,
		Spawns:   sess.field,
		Sender:   sessionPort{sess},
		Notifier: sessionPort{sess},
		Rand:     s.newRand(),
		Now:      s.now,
	}, capture.Config{
		SessionID:      id,
		AllowedSpecies: s.allowed,
		Locale:         locale,
	})
	if err != nil {
		return nil, err
	}
	sess.ctrl = ctrl
	return sess, nil
}

// sessionPort adapts a session to the controller's outbound ports and to
// the bridge channel.
type sessionPort struct{ s *Session }

func (p sessionPort) Send(msg protocol.AppMessage) error {
	return p.s.bridge.SendToAr(p, msg)
}

func (p sessionPort) Notify(ev capture.Event) {
	p.s.pushEvent(ev)
}

func (p sessionPort) Ready() bool { return true }

func (p sessionPort) PostMessage(data []byte, targetOrigin string) error {
	p.s.deliver(Frame{TargetOrigin: targetOrigin, Data: json.RawMessage(data)})
	return nil
}

type ReceiveResult struct {
	Handled bool             `json:"handled"`
	Legacy  bool             `json:"legacy"`
	Type    string           `json:"type,omitempty"`
	Outcome *capture.Outcome `json:"outcome,omitempty"`
}

// Receive routes one event relayed from the AR frame. The legacy format is
// tried only when the current format was not handled.
func (s *Session) Receive(ctx context.Context, ev bridge.Event) ReceiveResult {
	d := &dispatcher{s: s, ctx: ctx}
	if s.bridge.ReceiveFromAr(ev, d) {
		return ReceiveResult{Handled: true, Type: d.msgType, Outcome: d.outcome}
	}
	if s.bridge.ReceiveLegacy(ev, d) {
		return ReceiveResult{Handled: true, Legacy: true, Type: d.msgType, Outcome: d.outcome}
	}
	return ReceiveResult{}
}

func (s *Session) RequestCapture(ctx context.Context, birdID, species string) (capture.Outcome, error) {
	birdID, species = strings.TrimSpace(birdID), strings.TrimSpace(species)
	if birdID == "" || species == "" {
		return capture.Outcome{}, ErrBirdRequired
	}
	return s.ctrl.RequestCapture(ctx, birdID, species), nil
}

func (s *Session) BattleVictory(ctx context.Context, battleID string) (capture.Outcome, error) {
	out := s.ctrl.HandleBattleVictory(ctx, battleID)
	if out.Kind == capture.OutcomeUnknownBattle {
		return out, capture.ErrBattleNotFound
	}
	return out, nil
}

func (s *Session) CancelBattle(battleID string) error {
	if !s.ctrl.CancelBattle(battleID) {
		return capture.ErrBattleNotFound
	}
	return nil
}

func (s *Session) FightBattle(ctx context.Context, battleID, fighterID string) (capture.Outcome, error) {
	return s.ctrl.FightBattle(ctx, battleID, strings.TrimSpace(fighterID))
}

func (s *Session) Battles() []capture.BattleTicket {
	return s.ctrl.Battles()
}

func (s *Session) SetModel(species string) error {
	species = strings.TrimSpace(species)
	if species == "" {
		return ErrBirdRequired
	}
	return s.ctrl.SetModel(species)
}

// UpdateLocation feeds a position fix to the movement accumulator and
// pushes the bird list to the AR frame when new birds spawned.
func (s *Session) UpdateLocation(ctx context.Context, loc model.Location) (spawn.MoveResult, error) {
	if err := validateLocation(loc.Lat, loc.Lng); err != nil {
		return spawn.MoveResult{}, err
	}
	res := s.field.UpdateLocation(loc, s.svc.speciesPool(ctx, loc))
	if len(res.Spawned) > 0 {
		if err := s.ctrl.SendBirdList(s.field.Spawns()); err != nil {
			log.Printf("bird list push failed: session_id=%s err=%v", s.ID, err)
		}
	}
	return res, nil
}

// Spawns returns the live spawns, generating a first batch when none are left.
func (s *Session) Spawns(ctx context.Context) []model.BirdSpawn {
	if live := s.field.Spawns(); len(live) > 0 {
		return live
	}
	return s.field.Ensure(s.svc.speciesPool(ctx, s.field.Location()))
}

func (s *Session) Pokedex() []model.PokedexEntry {
	return s.pokedex.Entries()
}

type LevelResponse struct {
	model.LevelState
	Progress model.XPProgress `json:"progress"`
}

func (s *Session) Level() LevelResponse {
	return LevelResponse{LevelState: s.levels.State(), Progress: s.levels.Progress()}
}

func (s *Session) Badges() []model.Badge {
	return progression.Badges(s.pokedex.Entries(), s.levels.State().Level)
}

// Export uploads a snapshot of the session's pokedex and level.
func (s *Session) Export(ctx context.Context) (string, error) {
	if !s.svc.exporter.Enabled() {
		return "", ErrBackupUnavailable
	}
	url, err := s.svc.exporter.Export(ctx, backup.Snapshot{
		SessionID:  s.ID,
		ExportedAt: s.svc.now().UnixMilli(),
		Entries:    s.pokedex.Entries(),
		Level:      s.levels.State(),
		Badges:     s.Badges(),
	})
	if err != nil {
		log.Printf("snapshot export failed: session_id=%s err=%v", s.ID, err)
		return "", err
	}
	return url, nil
}

// Attach routes outbound frames to sink, flushing anything queued. The
// returned func detaches it again.
func (s *Session) Attach(sink FrameSink) (detach func()) {
	s.mu.Lock()
	s.sinkID++
	id := s.sinkID
	s.sink = sink
	queued := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	for i, f := range queued {
		if err := sink(f); err != nil {
			log.Printf("frame flush failed: session_id=%s err=%v", s.ID, err)
			s.mu.Lock()
			s.outbox = append(queued[i:], s.outbox...)
			s.mu.Unlock()
			break
		}
	}
	return func() {
		s.mu.Lock()
		if s.sinkID == id {
			s.sink = nil
		}
		s.mu.Unlock()
	}
}

// DrainOutbox returns and clears the messages queued for the AR frame.
func (s *Session) DrainOutbox() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	if out == nil {
		out = []Frame{}
	}
	return out
}

// DrainEvents returns and clears the UI events.
func (s *Session) DrainEvents() []capture.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	if out == nil {
		out = []capture.Event{}
	}
	return out
}

func (s *Session) deliver(f Frame) {
	s.mu.Lock()
	sink := s.sink
	if sink == nil {
		s.queueLocked(f)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := sink(f); err != nil {
		log.Printf("frame push failed, queued: session_id=%s err=%v", s.ID, err)
		s.mu.Lock()
		s.queueLocked(f)
		s.mu.Unlock()
	}
}

func (s *Session) queueLocked(f Frame) {
	if f.Event != nil {
		return
	}
	if len(s.outbox) >= maxQueuedFrames {
		log.Printf("outbox full, dropping oldest frame: session_id=%s", s.ID)
		s.outbox = s.outbox[1:]
	}
	s.outbox = append(s.outbox, f)
}

func (s *Session) pushEvent(ev capture.Event) {
	s.mu.Lock()
	if len(s.events) >= maxQueuedEvents {
		s.events = s.events[1:]
	}
	s.events = append(s.events, ev)
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		if err := sink(Frame{Event: &ev}); err != nil {
			log.Printf("event push failed: session_id=%s kind=%s err=%v", s.ID, ev.Kind, err)
		}
	}
}

func (s *Session) close() {
	s.mu.Lock()
	s.sink = nil
	s.sinkID++
	s.mu.Unlock()
}

// dispatcher handles one relayed AR event in both wire formats.
type dispatcher struct {
	s       *Session
	ctx     context.Context
	msgType string
	outcome *capture.Outcome
}

func (d *dispatcher) OnReady(m protocol.ArReady) {
	d.msgType = protocol.TypeArReady
	if err := d.s.ctrl.HandleReady(m.Version); err != nil {
		log.Printf("ar init failed: session_id=%s err=%v", d.s.ID, err)
	}
}

func (d *dispatcher) OnBirdSpawned(m protocol.ArBirdSpawned) {
	d.msgType = protocol.TypeArBirdSpawned
	log.Printf("ar bird spawned: session_id=%s bird_id=%s species=%s", d.s.ID, m.BirdID, m.Species)
}

func (d *dispatcher) OnBirdRecognized(m protocol.ArBirdRecognized) {
	d.msgType = protocol.TypeArBirdRecognized
	log.Printf("ar bird recognized: session_id=%s bird_id=%s confidence=%.2f", d.s.ID, m.BirdID, m.Confidence)
}

func (d *dispatcher) OnCaptureResult(m protocol.ArCaptureResult) {
	d.msgType = protocol.TypeArCaptureResult
	out := d.s.ctrl.HandleCaptureResult(m.CaptureResult)
	d.outcome = &out
}

func (d *dispatcher) OnBirdCaptured(m protocol.ArBirdCaptured) {
	d.msgType = protocol.TypeArBirdCaptured
	out := d.s.ctrl.HandleBirdCaptured(d.ctx, m)
	d.outcome = &out
}

func (d *dispatcher) OnLegacyBirdCaptured(bird model.Bird, confidence float64, loc model.Location) {
	d.msgType = bridge.LegacyBirdCaptured
	log.Printf("legacy bird captured: session_id=%s bird_id=%s rarity=%s confidence=%.2f", d.s.ID, bird.ID, bird.Rarity, confidence)
	if validateLocation(loc.Lat, loc.Lng) == nil {
		d.s.field.UpdateLocation(loc, d.s.svc.speciesPool(d.ctx, loc))
	}
	out := d.s.ctrl.HandleRecognizedBird(d.ctx, bird)
	d.outcome = &out
}

func (d *dispatcher) OnLegacyLocation(loc model.Location) {
	d.msgType = bridge.LegacyLocationUpdate
	if _, err := d.s.UpdateLocation(d.ctx, loc); err != nil {
		log.Printf("legacy location rejected: session_id=%s err=%v", d.s.ID, err)
	}
}

func (d *dispatcher) OnLegacyError(message string) {
	d.msgType = bridge.LegacyError
	log.Printf("legacy ar error: session_id=%s error=%s", d.s.ID, message)
	d.s.pushEvent(capture.Event{Kind: capture.EventError, Message: message, At: d.s.svc.now().UnixMilli()})
}

func (d *dispatcher) OnLegacyReady() {
	d.msgType = bridge.LegacyReady
	if err := d.s.ctrl.HandleReady("legacy"); err != nil {
		log.Printf("ar init failed: session_id=%s err=%v", d.s.ID, err)
	}
}
