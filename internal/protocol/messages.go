// Package protocol defines the messages exchanged between the host and the
// embedded AR surface, one closed union per direction.
//
// Each union is a sealed interface. Handling a message goes through a
// handler interface with one method per variant, so adding a variant breaks
// every handler at compile time instead of falling into a default branch.
package protocol

import "birddex/internal/model"

const (
	TypeAppInit           = "APP_INIT"
	TypeAppBirdList       = "APP_BIRD_LIST"
	TypeAppCaptureRequest = "APP_CAPTURE_REQUEST"
	TypeAppSetModel       = "APP_SET_MODEL"
	TypeAppCaptureResult  = "APP_CAPTURE_RESULT"

	TypeArReady          = "AR_READY"
	TypeArBirdSpawned    = "AR_BIRD_SPAWNED"
	TypeArBirdRecognized = "AR_BIRD_RECOGNIZED"
	TypeArCaptureResult  = "AR_CAPTURE_RESULT"
	TypeArBirdCaptured   = "AR_BIRD_CAPTURED"
)

// ArMessage is a message sent by the AR surface to the host.
type ArMessage interface {
	MessageType() string
	Dispatch(h ArHandler)
	isArMessage()
}

// ArHandler receives exactly one call per dispatched ArMessage.
type ArHandler interface {
	OnReady(msg ArReady)
	OnBirdSpawned(msg ArBirdSpawned)
	OnBirdRecognized(msg ArBirdRecognized)
	OnCaptureResult(msg ArCaptureResult)
	OnBirdCaptured(msg ArBirdCaptured)
}

// AppMessage is a message sent by the host to the AR surface.
type AppMessage interface {
	MessageType() string
	Dispatch(h AppHandler)
	isAppMessage()
}

type AppHandler interface {
	OnInit(msg AppInit)
	OnBirdList(msg AppBirdList)
	OnCaptureRequest(msg AppCaptureRequest)
	OnSetModel(msg AppSetModel)
	OnCaptureResult(msg AppCaptureResult)
}

type ArReady struct {
	Version string `json:"version"`
}

type ArBirdSpawned struct {
	model.BirdSpawn
}

type ArBirdRecognized struct {
	BirdID       string  `json:"birdId"`
	Confidence   float64 `json:"confidence"`
	RecognizedAt int64   `json:"recognizedAt"`
}

// CaptureResult is shared by both directions.
type CaptureResult struct {
	CaptureID    string              `json:"captureId"`
	OK           bool                `json:"ok"`
	PokedexEntry *model.PokedexEntry `json:"pokedexEntry,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type ArCaptureResult struct {
	CaptureResult
}

type ArBirdCaptured struct {
	BirdID     string `json:"birdId"`
	Species    string `json:"species"`
	CapturedAt int64  `json:"capturedAt"`
}

type AppInit struct {
	SessionID      string   `json:"sessionId"`
	AllowedSpecies []string `json:"allowedSpecies"`
}

type AppBirdList struct {
	Birds []model.BirdSpawn `json:"birds"`
}

type AppCaptureRequest struct {
	CaptureID string `json:"captureId"`
	BirdID    string `json:"birdId"`
}

type AppSetModel struct {
	Species string `json:"species"`
}

type AppCaptureResult struct {
	CaptureResult
}

func (ArReady) MessageType() string          { return TypeArReady }
func (ArBirdSpawned) MessageType() string    { return TypeArBirdSpawned }
func (ArBirdRecognized) MessageType() string { return TypeArBirdRecognized }
func (ArCaptureResult) MessageType() string  { return TypeArCaptureResult }
func (ArBirdCaptured) MessageType() string   { return TypeArBirdCaptured }

func (m ArReady) Dispatch(h ArHandler)          { h.OnReady(m) }
func (m ArBirdSpawned) Dispatch(h ArHandler)    { h.OnBirdSpawned(m) }
func (m ArBirdRecognized) Dispatch(h ArHandler) { h.OnBirdRecognized(m) }
func (m ArCaptureResult) Dispatch(h ArHandler)  { h.OnCaptureResult(m) }
func (m ArBirdCaptured) Dispatch(h ArHandler)   { h.OnBirdCaptured(m) }

func (ArReady) isArMessage()          {}
func (ArBirdSpawned) isArMessage()    {}
func (ArBirdRecognized) isArMessage() {}
func (ArCaptureResult) isArMessage()  {}
func (ArBirdCaptured) isArMessage()   {}

func (AppInit) MessageType() string           { return TypeAppInit }
func (AppBirdList) MessageType() string       { return TypeAppBirdList }
func (AppCaptureRequest) MessageType() string { return TypeAppCaptureRequest }
func (AppSetModel) MessageType() string       { return TypeAppSetModel }
func (AppCaptureResult) MessageType() string  { return TypeAppCaptureResult }

func (m AppInit) Dispatch(h AppHandler)           { h.OnInit(m) }
func (m AppBirdList) Dispatch(h AppHandler)       { h.OnBirdList(m) }
func (m AppCaptureRequest) Dispatch(h AppHandler) { h.OnCaptureRequest(m) }
func (m AppSetModel) Dispatch(h AppHandler)       { h.OnSetModel(m) }
func (m AppCaptureResult) Dispatch(h AppHandler)  { h.OnCaptureResult(m) }

func (AppInit) isAppMessage()           {}
func (AppBirdList) isAppMessage()       {}
func (AppCaptureRequest) isAppMessage() {}
func (AppSetModel) isAppMessage()       {}
func (AppCaptureResult) isAppMessage()  {}

// payload returns the value serialized under "payload", with nil slices
// normalized so they encode as empty arrays.
func payloadOf(msg any) any {
	switch m := msg.(type) {
	case AppInit:
		if m.AllowedSpecies == nil {
			m.AllowedSpecies = []string{}
		}
		return m
	case AppBirdList:
		if m.Birds == nil {
			m.Birds = []model.BirdSpawn{}
		}
		return m
	default:
		return m
	}
}
