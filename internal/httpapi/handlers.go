package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"birddex/internal/battle"
	"birddex/internal/bridge"
	"birddex/internal/capture"
	"birddex/internal/feeds"
	"birddex/internal/model"
	"birddex/internal/service"
)

const maxBodyBytes = 1 << 20

var errCoordinatesRequired = errors.New("lat and lng are required")

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordCapture is the backend capture endpoint. Its error bodies are part
// of the AR contract: "Invalid request" with field details, or a bare 500.
func (h *Handler) recordCapture(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Printf("recordCapture read error: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid request",
			"details": []capture.FieldError{{Field: "body", Message: "unreadable body"}},
		})
		return
	}

	entry, err := h.svc.RecordCapture(raw)
	if err != nil {
		var verr *capture.ValidationError
		if errors.As(err, &verr) {
			log.Printf("recordCapture bad request: err=%v", err)
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Invalid request",
				"details": verr.Details,
			})
			return
		}
		log.Printf("recordCapture internal error: err=%v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) nearbyBirds(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := requiredCoordinates(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.svc.NearbyBirds(lat, lng)
	if err != nil {
		writeServiceError(w, "nearbyBirds", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) recentObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := floatParam(q.Get("lat"), feeds.DefaultRecentLat)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat must be a number")
		return
	}
	lng, err := floatParam(q.Get("lng"), feeds.DefaultRecentLng)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lng must be a number")
		return
	}
	dist, err := intParam(q.Get("dist"), feeds.DefaultRecentDist)
	if err != nil {
		writeError(w, http.StatusBadRequest, "dist must be an integer")
		return
	}
	back, err := intParam(q.Get("back"), feeds.DefaultRecentBack)
	if err != nil {
		writeError(w, http.StatusBadRequest, "back must be an integer")
		return
	}

	obs, err := h.svc.RecentObservations(r.Context(), lat, lng, dist, back)
	if err != nil {
		writeServiceError(w, "recentObservations", err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (h *Handler) birdImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.BirdImage(r.Context(), q.Get("q"), q.Get("speciesCode"))
	if err != nil {
		writeServiceError(w, "birdImage", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) birdDescription(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.BirdDescription(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, "birdDescription", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) geocode(w http.ResponseWriter, r *http.Request) {
	lat, lng, err := requiredCoordinates(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	region, err := h.svc.Geocode(r.Context(), lat, lng)
	if err != nil {
		writeServiceError(w, "geocode", err)
		return
	}
	writeJSON(w, http.StatusOK, region)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSessionRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		log.Printf("createSession decode error: %v", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, resumed, err := h.svc.CreateSession(req)
	if err != nil {
		writeServiceError(w, "createSession", err)
		return
	}
	writeJSON(w, http.StatusOK, service.SessionInfo{
		SessionID: sess.ID,
		CreatedAt: sess.CreatedAt.UnixMilli(),
		Resumed:   resumed,
	})
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.svc.CloseSession(id); err != nil {
		writeServiceError(w, "closeSession", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) receiveMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var ev bridge.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ev); err != nil {
		log.Printf("receiveMessage decode error: session_id=%s err=%v", sess.ID, err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, sess.Receive(r.Context(), ev))
}

func (h *Handler) outbox(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": sess.DrainOutbox()})
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": sess.DrainEvents()})
}

type captureRequest struct {
	BirdID  string `json:"birdId"`
	Species string `json:"species"`
}

func (h *Handler) requestCapture(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("requestCapture decode error: session_id=%s err=%v", sess.ID, err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := sess.RequestCapture(r.Context(), req.BirdID, req.Species)
	if err != nil {
		writeServiceError(w, "requestCapture", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) setModel(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Species string `json:"species"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sess.SetModel(req.Species); err != nil {
		writeServiceError(w, "setModel", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) battles(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"battles": sess.Battles()})
}

func (h *Handler) battleVictory(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	out, err := sess.BattleVictory(r.Context(), mux.Vars(r)["battleId"])
	if err != nil {
		writeServiceError(w, "battleVictory", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) cancelBattle(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.CancelBattle(mux.Vars(r)["battleId"]); err != nil {
		writeServiceError(w, "cancelBattle", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) fightBattle(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		FighterID string `json:"fighterId"`
	}
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := sess.FightBattle(r.Context(), mux.Vars(r)["battleId"], req.FighterID)
	if err != nil {
		writeServiceError(w, "fightBattle", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var loc model.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := sess.UpdateLocation(r.Context(), loc)
	if err != nil {
		writeServiceError(w, "updateLocation", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) sessionPokedex(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.ID,
		"entries":   sess.Pokedex(),
	})
}

func (h *Handler) level(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Level())
}

func (h *Handler) badges(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": sess.Badges()})
}

func (h *Handler) spawns(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"birds": sess.Spawns(r.Context())})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	url, err := sess.Export(r.Context())
	if err != nil {
		writeServiceError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, err := h.svc.Session(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, "session", err)
		return nil, false
	}
	return sess, true
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, capture.ErrBattleNotFound):
		log.Printf("%s not found: err=%v", op, err)
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidSessionID),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrQueryRequired),
		errors.Is(err, service.ErrBirdRequired),
		errors.Is(err, battle.ErrUnknownFighter):
		log.Printf("%s bad request: err=%v", op, err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, battle.ErrFinished):
		log.Printf("%s conflict: err=%v", op, err)
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrFeedUnavailable):
		log.Printf("%s upstream error: err=%v", op, err)
		writeError(w, http.StatusBadGateway, service.ErrFeedUnavailable.Error())
	case errors.Is(err, service.ErrBackupUnavailable):
		log.Printf("%s unavailable: err=%v", op, err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("%s internal error: err=%v", op, err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func requiredCoordinates(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()
	latRaw, lngRaw := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lng"))
	if latRaw == "" || lngRaw == "" {
		return 0, 0, errCoordinatesRequired
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return 0, 0, errors.New("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return 0, 0, errors.New("lng must be a number")
	}
	return lat, lng, nil
}

func floatParam(raw string, fallback float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// decodeOptionalBody decodes a JSON body when one was sent.
func decodeOptionalBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
