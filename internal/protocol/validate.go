package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"birddex/internal/model"
)

var ErrSchemaViolation = errors.New("schema violation")

type SchemaError struct {
	Type   string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Type == "" && e.Field == "":
		return "schema violation: " + e.Reason
	case e.Field == "":
		return fmt.Sprintf("schema violation: %s: %s", e.Type, e.Reason)
	case e.Type == "":
		return fmt.Sprintf("schema violation: %s %s", e.Field, e.Reason)
	default:
		return fmt.Sprintf("schema violation: %s: %s %s", e.Type, e.Field, e.Reason)
	}
}

func (e *SchemaError) Unwrap() error {
	return ErrSchemaViolation
}

// ValidateIncoming parses and validates a raw message from the AR surface.
func ValidateIncoming(raw []byte) (ArMessage, error) {
	return DecodeAr(raw)
}

// ValidateOutgoing checks a host message against the same rules the AR side
// applies on receive and returns the normalized message.
func ValidateOutgoing(msg AppMessage) (AppMessage, error) {
	if msg == nil {
		return nil, &SchemaError{Reason: "message is nil"}
	}
	data, err := marshalEnvelope(msg.MessageType(), msg)
	if err != nil {
		return nil, err
	}
	return DecodeApp(data)
}

// EncodeApp validates msg and returns its wire form.
func EncodeApp(msg AppMessage) ([]byte, error) {
	validated, err := ValidateOutgoing(msg)
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(validated.MessageType(), validated)
}

// EncodeAr validates msg and returns its wire form.
func EncodeAr(msg ArMessage) ([]byte, error) {
	if msg == nil {
		return nil, &SchemaError{Reason: "message is nil"}
	}
	data, err := marshalEnvelope(msg.MessageType(), msg)
	if err != nil {
		return nil, err
	}
	if _, err := DecodeAr(data); err != nil {
		return nil, err
	}
	return data, nil
}

func DecodeAr(raw []byte) (ArMessage, error) {
	typ, payload, err := splitEnvelope(raw)
	if err != nil {
		return nil, err
	}
	decode, ok := arDecoders[typ]
	if !ok {
		return nil, &SchemaError{Type: typ, Field: "type", Reason: "is not a known AR message type"}
	}
	r := &reader{typ: typ, lenient: true}
	msg := decode(r, payload)
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

func DecodeApp(raw []byte) (AppMessage, error) {
	typ, payload, err := splitEnvelope(raw)
	if err != nil {
		return nil, err
	}
	decode, ok := appDecoders[typ]
	if !ok {
		return nil, &SchemaError{Type: typ, Field: "type", Reason: "is not a known app message type"}
	}
	r := &reader{typ: typ}
	msg := decode(r, payload)
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

var arDecoders = map[string]func(*reader, fields) ArMessage{
	TypeArReady: func(r *reader, f fields) ArMessage {
		return ArReady{Version: r.str(f, "payload", "version")}
	},
	TypeArBirdSpawned: func(r *reader, f fields) ArMessage {
		return ArBirdSpawned{BirdSpawn: r.birdSpawn(f, "payload")}
	},
	TypeArBirdRecognized: func(r *reader, f fields) ArMessage {
		msg := ArBirdRecognized{
			BirdID:       r.str(f, "payload", "birdId"),
			Confidence:   r.num(f, "payload", "confidence"),
			RecognizedAt: r.integer(f, "payload", "recognizedAt"),
		}
		if msg.Confidence < 0 || msg.Confidence > 1 {
			r.fail("payload.confidence", "must be between 0 and 1")
		}
		return msg
	},
	TypeArCaptureResult: func(r *reader, f fields) ArMessage {
		return ArCaptureResult{CaptureResult: r.captureResult(f, "payload")}
	},
	TypeArBirdCaptured: func(r *reader, f fields) ArMessage {
		return ArBirdCaptured{
			BirdID:     r.str(f, "payload", "birdId"),
			Species:    r.str(f, "payload", "species"),
			CapturedAt: r.integer(f, "payload", "capturedAt"),
		}
	},
}

var appDecoders = map[string]func(*reader, fields) AppMessage{
	TypeAppInit: func(r *reader, f fields) AppMessage {
		return AppInit{
			SessionID:      r.str(f, "payload", "sessionId"),
			AllowedSpecies: r.strings(f, "payload", "allowedSpecies"),
		}
	},
	TypeAppBirdList: func(r *reader, f fields) AppMessage {
		items := r.objects(f, "payload", "birds")
		birds := make([]model.BirdSpawn, 0, len(items))
		for i, item := range items {
			birds = append(birds, r.birdSpawn(item, fmt.Sprintf("payload.birds[%d]", i)))
		}
		return AppBirdList{Birds: birds}
	},
	TypeAppCaptureRequest: func(r *reader, f fields) AppMessage {
		return AppCaptureRequest{
			CaptureID: r.str(f, "payload", "captureId"),
			BirdID:    r.str(f, "payload", "birdId"),
		}
	},
	TypeAppSetModel: func(r *reader, f fields) AppMessage {
		return AppSetModel{Species: r.str(f, "payload", "species")}
	},
	TypeAppCaptureResult: func(r *reader, f fields) AppMessage {
		return AppCaptureResult{CaptureResult: r.captureResult(f, "payload")}
	},
}

func marshalEnvelope(typ string, msg any) ([]byte, error) {
	data, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: typ, Payload: payloadOf(msg)})
	if err != nil {
		return nil, &SchemaError{Type: typ, Reason: "payload is not serializable: " + err.Error()}
	}
	return data, nil
}

func splitEnvelope(raw []byte) (string, fields, error) {
	r := &reader{}
	root := r.object(raw, "message")
	if r.err != nil {
		return "", nil, r.err
	}
	typ := r.str(root, "", "type")
	if r.err != nil {
		return "", nil, r.err
	}
	r.typ = typ
	payload := r.obj(root, "", "payload")
	if r.err != nil {
		return "", nil, r.err
	}
	return typ, payload, nil
}

type fields map[string]json.RawMessage

// reader decodes JSON fields by type and keeps the first violation.
// Messages from the AR surface are read leniently: empty strings pass and
// timestamps may carry a fraction, which is truncated. Host messages must
// carry non-empty strings and whole timestamps.
type reader struct {
	typ     string
	lenient bool
	err     error
}

func (r *reader) fail(field, reason string) {
	if r.err == nil {
		r.err = &SchemaError{Type: r.typ, Field: field, Reason: reason}
	}
}

func (r *reader) object(raw json.RawMessage, path string) fields {
	if leading(raw) != '{' {
		r.fail(path, "must be an object")
		return fields{}
	}
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		r.fail(path, "must be an object")
		return fields{}
	}
	return f
}

func (r *reader) field(f fields, path, key string, required bool) (json.RawMessage, bool) {
	raw, ok := f[key]
	if !ok {
		if required {
			r.fail(join(path, key), "is required")
		}
		return nil, false
	}
	if leading(raw) == 'n' {
		r.fail(join(path, key), "must not be null")
		return nil, false
	}
	return raw, true
}

// str reads a required string, non-empty unless the reader is lenient.
func (r *reader) str(f fields, path, key string) string {
	raw, ok := r.field(f, path, key, true)
	if !ok {
		return ""
	}
	v, ok := r.decodeString(raw, join(path, key))
	if ok && v == "" && !r.lenient {
		r.fail(join(path, key), "must not be empty")
	}
	return v
}

func (r *reader) optString(f fields, path, key string) string {
	raw, ok := r.field(f, path, key, false)
	if !ok {
		return ""
	}
	v, _ := r.decodeString(raw, join(path, key))
	return v
}

func (r *reader) decodeString(raw json.RawMessage, path string) (string, bool) {
	var v string
	if leading(raw) != '"' || json.Unmarshal(raw, &v) != nil {
		r.fail(path, "must be a string")
		return "", false
	}
	return v, true
}

func (r *reader) num(f fields, path, key string) float64 {
	raw, ok := r.field(f, path, key, true)
	if !ok {
		return 0
	}
	var v float64
	if !isNumber(raw) || json.Unmarshal(raw, &v) != nil {
		r.fail(join(path, key), "must be a number")
	}
	return v
}

// integer reads a required whole number, such as a millisecond timestamp.
func (r *reader) integer(f fields, path, key string) int64 {
	raw, ok := r.field(f, path, key, true)
	if !ok {
		return 0
	}
	if !isNumber(raw) {
		r.fail(join(path, key), "must be a number")
		return 0
	}
	n := json.Number(bytes.TrimSpace(raw))
	if v, err := n.Int64(); err == nil {
		return v
	}
	if !r.lenient {
		r.fail(join(path, key), "must be a whole number")
		return 0
	}
	f64, err := n.Float64()
	if err != nil || math.IsNaN(f64) || math.Abs(f64) >= math.MaxInt64 {
		r.fail(join(path, key), "is out of range")
		return 0
	}
	return int64(math.Trunc(f64))
}

func (r *reader) boolean(f fields, path, key string) bool {
	raw, ok := r.field(f, path, key, true)
	if !ok {
		return false
	}
	var v bool
	if c := leading(raw); (c != 't' && c != 'f') || json.Unmarshal(raw, &v) != nil {
		r.fail(join(path, key), "must be a boolean")
	}
	return v
}

func (r *reader) obj(f fields, path, key string) fields {
	raw, ok := r.field(f, path, key, true)
	if !ok {
		return fields{}
	}
	return r.object(raw, join(path, key))
}

func (r *reader) array(f fields, path, key string) []json.RawMessage {
	raw, ok := r.field(f, path, key, true)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if leading(raw) != '[' || json.Unmarshal(raw, &items) != nil {
		r.fail(join(path, key), "must be an array")
		return nil
	}
	return items
}

func (r *reader) strings(f fields, path, key string) []string {
	items := r.array(f, path, key)
	out := make([]string, 0, len(items))
	for i, item := range items {
		v, _ := r.decodeString(item, fmt.Sprintf("%s[%d]", join(path, key), i))
		out = append(out, v)
	}
	return out
}

func (r *reader) objects(f fields, path, key string) []fields {
	items := r.array(f, path, key)
	out := make([]fields, 0, len(items))
	for i, item := range items {
		out = append(out, r.object(item, fmt.Sprintf("%s[%d]", join(path, key), i)))
	}
	return out
}

func (r *reader) birdSpawn(f fields, path string) model.BirdSpawn {
	return model.BirdSpawn{
		BirdID:    r.str(f, path, "birdId"),
		Species:   r.str(f, path, "species"),
		Lat:       r.num(f, path, "lat"),
		Lng:       r.num(f, path, "lng"),
		SpawnedAt: r.integer(f, path, "spawnedAt"),
		ModelKey:  r.str(f, path, "modelKey"),
	}
}

func (r *reader) pokedexEntry(f fields, path string) model.PokedexEntry {
	entry := model.PokedexEntry{
		BirdID:     r.str(f, path, "birdId"),
		Species:    r.str(f, path, "species"),
		CapturedAt: r.integer(f, path, "capturedAt"),
	}
	loc := r.obj(f, path, "location")
	entry.Location = model.Location{
		Lat: r.num(loc, join(path, "location"), "lat"),
		Lng: r.num(loc, join(path, "location"), "lng"),
	}
	if raw, ok := r.field(f, path, "meta", false); ok {
		if leading(raw) != '{' || json.Unmarshal(raw, &entry.Meta) != nil {
			r.fail(join(path, "meta"), "must be an object")
		}
	}
	return entry
}

func (r *reader) captureResult(f fields, path string) CaptureResult {
	res := CaptureResult{
		CaptureID: r.str(f, path, "captureId"),
		OK:        r.boolean(f, path, "ok"),
		Error:     r.optString(f, path, "error"),
	}
	if raw, ok := r.field(f, path, "pokedexEntry", false); ok {
		entry := r.pokedexEntry(r.object(raw, join(path, "pokedexEntry")), join(path, "pokedexEntry"))
		res.PokedexEntry = &entry
	}
	return res
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func leading(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func isNumber(raw json.RawMessage) bool {
	c := leading(raw)
	return c == '-' || (c >= '0' && c <= '9')
}
