package bridge_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birddex/internal/bridge"
	"birddex/internal/model"
	"birddex/internal/protocol"
)

const arOrigin = "https://ar.example.com"

type fakeChannel struct {
	ready   bool
	err     error
	posted  [][]byte
	origins []string
}

func (c *fakeChannel) Ready() bool { return c.ready }

func (c *fakeChannel) PostMessage(data []byte, targetOrigin string) error {
	if c.err != nil {
		return c.err
	}
	c.posted = append(c.posted, data)
	c.origins = append(c.origins, targetOrigin)
	return nil
}

type countingHandler struct {
	captured []protocol.ArBirdCaptured
	ready    int
	panicOn  string
}

func (h *countingHandler) OnReady(protocol.ArReady) {
	h.ready++
	if h.panicOn == protocol.TypeArReady {
		panic("boom")
	}
}
func (h *countingHandler) OnBirdSpawned(protocol.ArBirdSpawned)       {}
func (h *countingHandler) OnBirdRecognized(protocol.ArBirdRecognized) {}
func (h *countingHandler) OnCaptureResult(protocol.ArCaptureResult)   {}
func (h *countingHandler) OnBirdCaptured(msg protocol.ArBirdCaptured) {
	h.captured = append(h.captured, msg)
}

func capturedEvent(origin string) bridge.Event {
	return bridge.Event{
		Origin: origin,
		Data:   json.RawMessage(`{"type":"AR_BIRD_CAPTURED","payload":{"birdId":"b1","species":"owl","capturedAt":10}}`),
	}
}

func TestReceiveFromArRejectsWrongOrigin(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{TargetOrigin: arOrigin})
	h := &countingHandler{}

	assert.False(t, b.ReceiveFromAr(capturedEvent("https://evil.example.com"), h))
	assert.Empty(t, h.captured)
}

func TestReceiveFromArChecksOriginBeforeParsing(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{AllowedOrigin: arOrigin})
	h := &countingHandler{}

	ev := bridge.Event{Origin: "https://evil.example.com", Data: json.RawMessage(`not json`)}
	assert.False(t, b.ReceiveFromAr(ev, h))
}

func TestReceiveFromArDispatchesValidMessage(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{AllowedOrigin: arOrigin})
	h := &countingHandler{}

	require.True(t, b.ReceiveFromAr(capturedEvent(arOrigin), h))
	require.Len(t, h.captured, 1)
	assert.Equal(t, "b1", h.captured[0].BirdID)
}

func TestReceiveFromArWildcardAcceptsAnyOrigin(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{})
	h := &countingHandler{}

	assert.True(t, b.ReceiveFromAr(capturedEvent("https://anything.example.com"), h))
	assert.True(t, b.ReceiveFromAr(capturedEvent(""), h))
	assert.Len(t, h.captured, 2)
}

func TestReceiveFromArRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{AllowedOrigin: arOrigin})
	h := &countingHandler{}

	ev := bridge.Event{Origin: arOrigin, Data: json.RawMessage(`{"type":"AR_BIRD_CAPTURED","payload":{"birdId":"b1"}}`)}
	assert.False(t, b.ReceiveFromAr(ev, h))
	assert.Empty(t, h.captured)
}

func TestReceiveFromArRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{AllowedOrigin: arOrigin})
	h := &countingHandler{panicOn: protocol.TypeArReady}

	ev := bridge.Event{Origin: arOrigin, Data: json.RawMessage(`{"type":"AR_READY","payload":{"version":"1"}}`)}
	assert.NotPanics(t, func() {
		assert.False(t, b.ReceiveFromAr(ev, h))
	})
	assert.Equal(t, 1, h.ready)
}

func TestSendToArScopesTargetOrigin(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{TargetOrigin: arOrigin + "/"})
	ch := &fakeChannel{ready: true}

	require.NoError(t, b.SendToAr(ch, protocol.AppSetModel{Species: "owl"}))
	require.Len(t, ch.posted, 1)
	assert.Equal(t, arOrigin, ch.origins[0])
	assert.JSONEq(t, `{"type":"APP_SET_MODEL","payload":{"species":"owl"}}`, string(ch.posted[0]))
}

func TestSendToArWithoutTargetUsesWildcard(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{})
	ch := &fakeChannel{ready: true}

	require.NoError(t, b.SendToAr(ch, protocol.AppSetModel{Species: "owl"}))
	assert.Equal(t, []string{bridge.Wildcard}, ch.origins)
}

func TestSendToArNotReady(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{TargetOrigin: arOrigin})

	assert.ErrorIs(t, b.SendToAr(&fakeChannel{}, protocol.AppSetModel{Species: "owl"}), bridge.ErrChannelNotReady)
	assert.ErrorIs(t, b.SendToAr(nil, protocol.AppSetModel{Species: "owl"}), bridge.ErrChannelNotReady)
}

func TestSendToArRejectsInvalidMessage(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{TargetOrigin: arOrigin})
	ch := &fakeChannel{ready: true}

	err := b.SendToAr(ch, protocol.AppCaptureRequest{BirdID: "b1"})
	assert.ErrorIs(t, err, protocol.ErrSchemaViolation)
	assert.Empty(t, ch.posted)
}

func TestSendToArWrapsPostFailure(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{TargetOrigin: arOrigin})
	postErr := errors.New("socket closed")
	ch := &fakeChannel{ready: true, err: postErr}

	assert.ErrorIs(t, b.SendToAr(ch, protocol.AppSetModel{Species: "owl"}), postErr)
}

func TestValidateOrigin(t *testing.T) {
	t.Parallel()

	assert.True(t, bridge.New(bridge.Config{}).ValidateOrigin("https://any.example.com"))

	b := bridge.New(bridge.Config{AppOrigin: "https://app.example.com"})
	assert.True(t, b.ValidateOrigin("https://app.example.com"))
	assert.False(t, b.ValidateOrigin("https://other.example.com"))
}

type legacyRecorder struct {
	birds     []model.Bird
	locations []model.Location
	errors    []string
	ready     int
}

func (r *legacyRecorder) OnLegacyBirdCaptured(bird model.Bird, _ float64, loc model.Location) {
	r.birds = append(r.birds, bird)
	r.locations = append(r.locations, loc)
}
func (r *legacyRecorder) OnLegacyLocation(loc model.Location) { r.locations = append(r.locations, loc) }
func (r *legacyRecorder) OnLegacyError(message string)        { r.errors = append(r.errors, message) }
func (r *legacyRecorder) OnLegacyReady()                      { r.ready++ }

func TestReceiveLegacyBirdCaptured(t *testing.T) {
	t.Parallel()

	legacyOrigin := "https://legacy.example.com"
	b := bridge.New(bridge.Config{AllowedOrigin: arOrigin, LegacyOrigin: legacyOrigin})
	rec := &legacyRecorder{}

	ev := bridge.Event{
		Origin: legacyOrigin,
		Data:   json.RawMessage(`{"type":"birdCaptured","birdData":{"comName":"sparrow","sciName":"Passer montanus","confidence":0.95},"location":{"lat":35,"lng":139}}`),
	}
	assert.False(t, b.ReceiveFromAr(ev, &countingHandler{}))
	require.True(t, b.ReceiveLegacy(ev, rec))
	require.Len(t, rec.birds, 1)

	bird := rec.birds[0]
	assert.Equal(t, "sparrow", bird.Name)
	assert.Equal(t, "スズメ", bird.NameJa)
	assert.Equal(t, "Passer montanus", bird.Species)
	assert.Equal(t, model.RarityCommon, bird.Rarity)
	assert.Equal(t, "/placeholder.jpg", bird.ImageURL)
	assert.Equal(t, model.Location{Lat: 35, Lng: 139}, rec.locations[0])
}

func TestReceiveLegacyRejectsForeignOriginAndIncompleteMessages(t *testing.T) {
	t.Parallel()

	b := bridge.New(bridge.Config{LegacyOrigin: "https://legacy.example.com"})
	rec := &legacyRecorder{}

	assert.False(t, b.ReceiveLegacy(bridge.Event{Origin: "https://evil.example.com", Data: json.RawMessage(`{"type":"ready"}`)}, rec))
	assert.False(t, b.ReceiveLegacy(bridge.Event{Origin: "https://legacy.example.com", Data: json.RawMessage(`{"type":"birdCaptured","birdData":{}}`)}, rec))
	assert.False(t, b.ReceiveLegacy(bridge.Event{Origin: "https://legacy.example.com", Data: json.RawMessage(`{"type":"error"}`)}, rec))
	assert.True(t, b.ReceiveLegacy(bridge.Event{Origin: "https://legacy.example.com", Data: json.RawMessage(`{"type":"error","error":"camera denied"}`)}, rec))
	assert.Equal(t, []string{"camera denied"}, rec.errors)
}

func TestNormalizeLegacyBirdRarityBuckets(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000000000)
	cases := []struct {
		confidence float64
		want       model.Rarity
	}{
		{0.95, model.RarityCommon},
		{0.75, model.RarityUncommon},
		{0.55, model.RarityRare},
		{0.2, model.RarityLegendary},
	}
	for _, tc := range cases {
		c := tc.confidence
		bird, got := bridge.NormalizeLegacyBird(bridge.LegacyBird{Confidence: &c}, now)
		assert.Equal(t, tc.want, bird.Rarity)
		assert.Equal(t, c, got)
	}

	bird, confidence := bridge.NormalizeLegacyBird(bridge.LegacyBird{Rarity: "legendary"}, now)
	assert.Equal(t, model.RarityLegendary, bird.Rarity)
	assert.Equal(t, 0.8, confidence)
	assert.Equal(t, "ar-1700000000000", bird.ID)
	assert.Equal(t, "Unknown Bird", bird.Name)
}
