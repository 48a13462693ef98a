package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"birddex/internal/bridge"
	"birddex/internal/capture"
	"birddex/internal/feeds"
	"birddex/internal/knowledge"
	"birddex/internal/model"
	"birddex/internal/protocol"
	"birddex/internal/service"
	"birddex/internal/store"
)

const testAROrigin = "https://ar.example"

type stubSpecies []model.Bird

func (s stubSpecies) NearbySpecies(context.Context, model.Location) ([]model.Bird, error) {
	return s, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.NewJSONStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	svc := service.New(st, service.Options{
		Species: stubSpecies{{ID: "houspa", Name: "House Sparrow", Species: "Passer domesticus", Rarity: model.RarityUncommon}},
		Images: feeds.ImageResolverFunc(func(context.Context, feeds.ImageQuery) (feeds.ImageResult, bool) {
			return feeds.ImageResult{}, false
		}),
		Bridge: bridge.Config{AllowedOrigin: testAROrigin, TargetOrigin: testAROrigin},
	})
	t.Cleanup(svc.Close)
	return NewRouter(NewHandler(svc))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body error = %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response error = %v, body=%s", err, rec.Body.String())
	}
}

func createTestSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d, body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var info service.SessionInfo
	decodeBody(t, rec, &info)
	if strings.TrimSpace(info.SessionID) == "" {
		t.Fatalf("expected sessionId in response, got %s", rec.Body.String())
	}
	return info.SessionID
}

func arFrame(t *testing.T, msg protocol.ArMessage) bridge.Event {
	t.Helper()
	data, err := protocol.EncodeAr(msg)
	if err != nil {
		t.Fatalf("EncodeAr() error = %v", err)
	}
	return bridge.Event{Origin: testAROrigin, Data: data}
}

func TestRecordCaptureReturnsEntry(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/pokedex/capture", map[string]any{
		"captureId": "capture-1",
		"birdId":    "bird-1",
		"species":   "sparrow",
		"lat":       35.6,
		"lng":       139.7,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d, body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var entry model.PokedexEntry
	decodeBody(t, rec, &entry)
	if entry.BirdID != "bird-1" || entry.Species != "sparrow" || entry.CapturedAt == 0 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.MetaString("captureId") != "capture-1" {
		t.Fatalf("expected captureId meta, got %+v", entry.Meta)
	}
}

func TestRecordCaptureInvalidRequest(t *testing.T) {
	h := newTestRouter(t)

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "malformed", body: `{"captureId":`, field: "body"},
		{name: "missing species", body: `{"captureId":"c","birdId":"b","lat":1,"lng":2}`, field: "species"},
		{name: "wrong type", body: `{"captureId":"c","birdId":"b","species":"s","lat":"1","lng":2}`, field: "lat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/pokedex/capture", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d, body=%s", http.StatusBadRequest, rec.Code, rec.Body.String())
			}
			var resp struct {
				Error   string               `json:"error"`
				Details []capture.FieldError `json:"details"`
			}
			decodeBody(t, rec, &resp)
			if resp.Error != "Invalid request" {
				t.Fatalf("expected 'Invalid request', got %q", resp.Error)
			}
			found := false
			for _, d := range resp.Details {
				if d.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected detail for %s, got %+v", tc.field, resp.Details)
			}
		})
	}
}

func TestSessionCaptureOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	id := createTestSession(t, h)
	base := "/api/v1/sessions/" + id

	rec := doJSON(t, h, http.MethodPost, base+"/messages", arFrame(t, protocol.ArBirdCaptured{BirdID: "x", Species: "crow", CapturedAt: 1}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d, body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var first service.ReceiveResult
	decodeBody(t, rec, &first)
	if !first.Handled || first.Outcome == nil || first.Outcome.Kind != capture.OutcomeAdded {
		t.Fatalf("expected first capture added, got %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, base+"/messages", arFrame(t, protocol.ArBirdCaptured{BirdID: "x", Species: "crow", CapturedAt: 2}))
	var second service.ReceiveResult
	decodeBody(t, rec, &second)
	if second.Outcome == nil || second.Outcome.Kind != capture.OutcomeBattleRequired || second.Outcome.Battle == nil {
		t.Fatalf("expected battle gate, got %s", rec.Body.String())
	}
	battleID := second.Outcome.Battle.ID

	rec = doJSON(t, h, http.MethodGet, base+"/battles", nil)
	var pending struct {
		Battles []capture.BattleTicket `json:"battles"`
	}
	decodeBody(t, rec, &pending)
	if len(pending.Battles) != 1 || pending.Battles[0].ID != battleID {
		t.Fatalf("expected pending battle %s, got %s", battleID, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, base+"/battles/"+battleID+"/victory", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d, body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPost, base+"/battles/"+battleID+"/victory", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected replayed victory to 404, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, base+"/pokedex", nil)
	var dex struct {
		Entries []model.PokedexEntry `json:"entries"`
	}
	decodeBody(t, rec, &dex)
	if len(dex.Entries) != 2 {
		t.Fatalf("expected 2 pokedex entries, got %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, base+"/level", nil)
	var lvl service.LevelResponse
	decodeBody(t, rec, &lvl)
	if lvl.TotalXP != 150 || lvl.Level != 1 {
		t.Fatalf("unexpected level: %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, base+"/events", nil)
	var events struct {
		Events []capture.Event `json:"events"`
	}
	decodeBody(t, rec, &events)
	if len(events.Events) == 0 {
		t.Fatalf("expected UI events, got %s", rec.Body.String())
	}
}

func TestSessionRoutesNotFound(t *testing.T) {
	h := newTestRouter(t)

	for _, path := range []string{"/api/v1/sessions/missing/pokedex", "/api/v1/sessions/missing/level"} {
		rec := doJSON(t, h, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}

	id := createTestSession(t, h)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/battles/nope/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected unknown battle to 404, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected close to succeed, got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions/"+id+"/pokedex", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected closed session to 404, got %d", rec.Code)
	}
}

func TestCreateSessionRejectsBadID(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", map[string]string{"sessionId": "../etc"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d, body=%s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}

func TestRequestCaptureRequiresBird(t *testing.T) {
	h := newTestRouter(t)
	id := createTestSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/capture", map[string]string{"birdId": "b1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestExportUnavailableReturns503(t *testing.T) {
	h := newTestRouter(t)
	id := createTestSession(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/export", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d, body=%s", http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	}
}

func TestQueryValidation(t *testing.T) {
	h := newTestRouter(t)

	cases := []struct {
		path   string
		status int
	}{
		{"/api/v1/geocode?lat=35.6", http.StatusBadRequest},
		{"/api/v1/geocode?lat=abc&lng=1", http.StatusBadRequest},
		{"/api/v1/birds/nearby", http.StatusBadRequest},
		{"/api/v1/birds/nearby?lat=95&lng=0", http.StatusBadRequest},
		{"/api/v1/bird-image", http.StatusBadRequest},
		{"/api/v1/bird-description?q=", http.StatusBadRequest},
		{"/api/v1/ebird/recent?dist=far", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := doJSON(t, h, http.MethodGet, tc.path, nil)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d, body=%s", tc.path, tc.status, rec.Code, rec.Body.String())
		}
	}
}

func TestNearbyBirdsAndImage(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/birds/nearby?lat=35.68&lng=139.76", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var nearby service.NearbyResponse
	decodeBody(t, rec, &nearby)
	if len(nearby.Birds) != 5 {
		t.Fatalf("expected 5 spawns, got %d", len(nearby.Birds))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/bird-image?q=Crow", nil)
	var img feeds.ImageResult
	decodeBody(t, rec, &img)
	if img.ImageURL != knowledge.PlaceholderImage {
		t.Fatalf("expected placeholder image, got %+v", img)
	}
}

func TestWebsocketRelay(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("create session error = %v", err)
	}
	var info service.SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode session error = %v", err)
	}
	_ = resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + info.SessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(arFrame(t, protocol.ArReady{Version: "1.0"})); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var types []string
	for len(types) < 2 {
		var f service.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if f.Data == nil {
			continue
		}
		if f.TargetOrigin != testAROrigin {
			t.Fatalf("expected target origin %s, got %s", testAROrigin, f.TargetOrigin)
		}
		msg, err := protocol.DecodeApp(f.Data)
		if err != nil {
			t.Fatalf("DecodeApp() error = %v", err)
		}
		types = append(types, msg.MessageType())
	}
	if types[0] != protocol.TypeAppInit || types[1] != protocol.TypeAppBirdList {
		t.Fatalf("expected INIT then BIRD_LIST, got %v", types)
	}
}
