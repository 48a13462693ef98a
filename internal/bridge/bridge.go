package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"birddex/internal/protocol"
)

const Wildcard = "*"

var ErrChannelNotReady = errors.New("ar channel not ready")

type Config struct {
	// AllowedOrigin is the only origin accepted on receive. Empty or "*"
	// accepts any origin; it falls back to TargetOrigin when unset.
	AllowedOrigin string
	// TargetOrigin scopes every send to the AR surface.
	TargetOrigin string
	// AppOrigin is the origin of the host page itself.
	AppOrigin string
	// LegacyOrigin is the fixed origin of the older AR integration.
	LegacyOrigin string
}

// Channel delivers serialized messages to the AR surface, mirroring
// window.postMessage on the embedded frame.
type Channel interface {
	Ready() bool
	PostMessage(data []byte, targetOrigin string) error
}

// Event is one message received from the AR surface.
type Event struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

type Bridge struct {
	allowedOrigin string
	targetOrigin  string
	appOrigin     string
	legacyOrigin  string

	warnTarget sync.Once
	warnAllow  sync.Once
}

func New(cfg Config) *Bridge {
	allowed := strings.TrimSpace(cfg.AllowedOrigin)
	if allowed == "" {
		allowed = strings.TrimSpace(cfg.TargetOrigin)
	}
	return &Bridge{
		allowedOrigin: normalizeOrigin(allowed),
		targetOrigin:  normalizeOrigin(cfg.TargetOrigin),
		appOrigin:     normalizeOrigin(cfg.AppOrigin),
		legacyOrigin:  strings.TrimSpace(cfg.LegacyOrigin),
	}
}

// SendToAr validates msg and posts it to the channel scoped to the target
// origin. Failures are logged and returned; nothing is sent on failure.
func (b *Bridge) SendToAr(ch Channel, msg protocol.AppMessage) error {
	if ch == nil || !ch.Ready() {
		log.Printf("ar bridge: channel not ready, dropping message")
		return ErrChannelNotReady
	}
	data, err := protocol.EncodeApp(msg)
	if err != nil {
		log.Printf("ar bridge: outbound validation failed: err=%v", err)
		return err
	}
	target := b.targetOrigin
	if target == Wildcard {
		b.warnTarget.Do(func() {
			log.Printf("ar bridge: target origin not configured, posting with wildcard (development only)")
		})
	}
	if err := ch.PostMessage(data, target); err != nil {
		log.Printf("ar bridge: post failed: type=%s err=%v", msg.MessageType(), err)
		return fmt.Errorf("post %s: %w", msg.MessageType(), err)
	}
	return nil
}

// ReceiveFromAr checks the origin, validates the payload and dispatches it.
// It reports whether h was invoked and never panics, so callers can fall
// back to the legacy format.
func (b *Bridge) ReceiveFromAr(ev Event, h protocol.ArHandler) (handled bool) {
	if !b.originAllowed(ev.Origin) {
		log.Printf("ar bridge: origin mismatch: expected=%s got=%s", b.allowedOrigin, ev.Origin)
		return false
	}
	msg, err := protocol.ValidateIncoming(ev.Data)
	if err != nil {
		log.Printf("ar bridge: inbound validation failed: origin=%s err=%v", ev.Origin, err)
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("ar bridge: handler panic: type=%s panic=%v", msg.MessageType(), rec)
			handled = false
		}
	}()
	msg.Dispatch(h)
	return true
}

// ValidateOrigin reports whether origin matches the host page origin.
func (b *Bridge) ValidateOrigin(origin string) bool {
	if b.appOrigin == Wildcard {
		return true
	}
	return origin == b.appOrigin
}

func (b *Bridge) originAllowed(origin string) bool {
	if b.allowedOrigin == Wildcard {
		b.warnAllow.Do(func() {
			log.Printf("ar bridge: allowed origin not configured, accepting any origin (development only)")
		})
		return true
	}
	return origin == b.allowedOrigin
}

func normalizeOrigin(origin string) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return Wildcard
	}
	return origin
}
