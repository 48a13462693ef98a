package httpapi

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func NewRouter(handler *Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", handler.healthz).Methods(http.MethodGet)
	r.HandleFunc("/docs", handler.swaggerUI).Methods(http.MethodGet)
	r.HandleFunc("/docs/", handler.swaggerUI).Methods(http.MethodGet)
	r.HandleFunc("/docs/openapi.json", handler.swaggerSpec).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/pokedex/capture", handler.recordCapture).Methods(http.MethodPost)
	api.HandleFunc("/birds/nearby", handler.nearbyBirds).Methods(http.MethodGet)
	api.HandleFunc("/ebird/recent", handler.recentObservations).Methods(http.MethodGet)
	api.HandleFunc("/bird-image", handler.birdImage).Methods(http.MethodGet)
	api.HandleFunc("/bird-description", handler.birdDescription).Methods(http.MethodGet)
	api.HandleFunc("/geocode", handler.geocode).Methods(http.MethodGet)

	api.HandleFunc("/sessions", handler.createSession).Methods(http.MethodPost)
	sess := api.PathPrefix("/sessions/{id}").Subrouter()
	sess.HandleFunc("", handler.closeSession).Methods(http.MethodDelete)
	sess.HandleFunc("/ws", handler.relay).Methods(http.MethodGet)
	sess.HandleFunc("/messages", handler.receiveMessage).Methods(http.MethodPost)
	sess.HandleFunc("/outbox", handler.outbox).Methods(http.MethodGet)
	sess.HandleFunc("/events", handler.events).Methods(http.MethodGet)
	sess.HandleFunc("/capture", handler.requestCapture).Methods(http.MethodPost)
	sess.HandleFunc("/model", handler.setModel).Methods(http.MethodPost)
	sess.HandleFunc("/battles", handler.battles).Methods(http.MethodGet)
	sess.HandleFunc("/battles/{battleId}/victory", handler.battleVictory).Methods(http.MethodPost)
	sess.HandleFunc("/battles/{battleId}/cancel", handler.cancelBattle).Methods(http.MethodPost)
	sess.HandleFunc("/battles/{battleId}/fight", handler.fightBattle).Methods(http.MethodPost)
	sess.HandleFunc("/location", handler.updateLocation).Methods(http.MethodPost)
	sess.HandleFunc("/pokedex", handler.sessionPokedex).Methods(http.MethodGet)
	sess.HandleFunc("/level", handler.level).Methods(http.MethodGet)
	sess.HandleFunc("/badges", handler.badges).Methods(http.MethodGet)
	sess.HandleFunc("/spawns", handler.spawns).Methods(http.MethodGet)
	sess.HandleFunc("/export", handler.export).Methods(http.MethodPost)

	return withRequestLogging(withCORS(withJSONContentType(r)))
}

func withJSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("%s %s -> %d (%s) from %s", r.Method, r.URL.RequestURI(), rec.status, time.Since(start).Truncate(time.Millisecond), r.RemoteAddr)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
