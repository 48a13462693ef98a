package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"birddex/internal/model"
)

var ErrInvalidRequest = errors.New("invalid capture request")

// Request is the body of a capture record call.
type Request struct {
	CaptureID string  `json:"captureId"`
	BirdID    string  `json:"birdId"`
	Species   string  `json:"species"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// DecodeRequest parses a capture request body. Every field is required and
// must carry the right JSON type; nothing is coerced.
func DecodeRequest(raw []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Request{}, &ValidationError{Details: []FieldError{{Field: "body", Message: "malformed JSON object"}}}
	}

	var req Request
	var details []FieldError
	str := func(key string, dst *string) {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			details = append(details, FieldError{Field: key, Message: "required"})
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			details = append(details, FieldError{Field: key, Message: "expected string"})
		}
	}
	num := func(key string, dst *float64) {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			details = append(details, FieldError{Field: key, Message: "required"})
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			details = append(details, FieldError{Field: key, Message: "expected number"})
		}
	}
	str("captureId", &req.CaptureID)
	str("birdId", &req.BirdID)
	str("species", &req.Species)
	num("lat", &req.Lat)
	num("lng", &req.Lng)
	if len(details) > 0 {
		return Request{}, &ValidationError{Details: details}
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (r Request) Validate() error {
	var details []FieldError
	for _, f := range []struct{ name, value string }{
		{"captureId", r.CaptureID},
		{"birdId", r.BirdID},
		{"species", r.Species},
	} {
		if strings.TrimSpace(f.value) == "" {
			details = append(details, FieldError{Field: f.name, Message: "must not be empty"})
		}
	}
	if r.Lat < -90 || r.Lat > 90 {
		details = append(details, FieldError{Field: "lat", Message: "out of range"})
	}
	if r.Lng < -180 || r.Lng > 180 {
		details = append(details, FieldError{Field: "lng", Message: "out of range"})
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// Mint turns a valid request into the authoritative capture record,
// stamping capturedAt with now.
func Mint(req Request, now time.Time) (model.PokedexEntry, error) {
	if err := req.Validate(); err != nil {
		return model.PokedexEntry{}, err
	}
	return model.PokedexEntry{
		BirdID:     req.BirdID,
		Species:    req.Species,
		CapturedAt: now.UnixMilli(),
		Location:   model.Location{Lat: req.Lat, Lng: req.Lng},
		Meta:       map[string]any{"captureId": req.CaptureID},
	}, nil
}
