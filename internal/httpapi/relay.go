package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"birddex/internal/bridge"
	"birddex/internal/service"
)

const relayWriteWait = 10 * time.Second

// The AR payload origin is checked by the bridge, not the socket origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// relay bridges the host page and a session over a websocket. Inbound
// frames are AR events {origin, data}; outbound frames are messages for
// the AR frame {targetOrigin, data} and UI events {event}.
func (h *Handler) relay(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay upgrade failed: session_id=%s err=%v", sess.ID, err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	detach := sess.Attach(func(f service.Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
		return conn.WriteJSON(f)
	})
	defer detach()
	log.Printf("relay connected: session_id=%s from=%s", sess.ID, r.RemoteAddr)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("relay read error: session_id=%s err=%v", sess.ID, err)
			}
			log.Printf("relay closed: session_id=%s", sess.ID)
			return
		}
		var ev bridge.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("relay frame ignored: session_id=%s err=%v", sess.ID, err)
			continue
		}
		sess.Receive(r.Context(), ev)
	}
}
