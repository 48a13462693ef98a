package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"birddex/internal/knowledge"
	"birddex/internal/model"
)

const (
	LegacyBirdCaptured   = "birdCaptured"
	LegacyLocationUpdate = "locationUpdate"
	LegacyError          = "error"
	LegacyReady          = "ready"
)

// LegacyBird is the loosely typed bird payload of the older AR integration.
// Several aliases exist for most fields.
type LegacyBird struct {
	ID               string   `json:"id"`
	SpeciesCode      string   `json:"speciesCode"`
	Name             string   `json:"name"`
	ComName          string   `json:"comName"`
	SpeciesName      string   `json:"speciesName"`
	NameJa           string   `json:"nameJa"`
	JapaneseName     string   `json:"japaneseName"`
	Species          string   `json:"species"`
	SciName          string   `json:"sciName"`
	ScientificName   string   `json:"scientificName"`
	Rarity           string   `json:"rarity"`
	ImageURL         string   `json:"imageUrl"`
	Image            string   `json:"image"`
	Description      string   `json:"description"`
	Habitat          string   `json:"habitat"`
	Confidence       *float64 `json:"confidence"`
	RecognitionScore *float64 `json:"recognitionScore"`
}

type LegacyLocation struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

type legacyMessage struct {
	Type     string          `json:"type"`
	BirdData *LegacyBird     `json:"birdData"`
	Location *LegacyLocation `json:"location"`
	Error    string          `json:"error"`
}

type LegacyHandler interface {
	OnLegacyBirdCaptured(bird model.Bird, confidence float64, loc model.Location)
	OnLegacyLocation(loc model.Location)
	OnLegacyError(message string)
	OnLegacyReady()
}

// ReceiveLegacy decodes the older message format. It is meant to run only
// after ReceiveFromAr declined the event.
func (b *Bridge) ReceiveLegacy(ev Event, h LegacyHandler) (handled bool) {
	if b.legacyOrigin != "" && b.legacyOrigin != Wildcard && ev.Origin != b.legacyOrigin {
		return false
	}
	var msg legacyMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("ar bridge: legacy handler panic: type=%s panic=%v", msg.Type, rec)
			handled = false
		}
	}()
	switch msg.Type {
	case LegacyBirdCaptured:
		if msg.BirdData == nil || msg.Location == nil {
			return false
		}
		bird, confidence := NormalizeLegacyBird(*msg.BirdData, time.Now())
		h.OnLegacyBirdCaptured(bird, confidence, model.Location{Lat: msg.Location.Lat, Lng: msg.Location.Lng})
		return true
	case LegacyLocationUpdate:
		if msg.Location == nil {
			return false
		}
		h.OnLegacyLocation(model.Location{Lat: msg.Location.Lat, Lng: msg.Location.Lng})
		return true
	case LegacyError:
		if msg.Error == "" {
			return false
		}
		h.OnLegacyError(msg.Error)
		return true
	case LegacyReady:
		h.OnLegacyReady()
		return true
	default:
		return false
	}
}

// NormalizeLegacyBird fills the gaps of a legacy payload and returns the
// bird with its recognition confidence.
func NormalizeLegacyBird(raw LegacyBird, now time.Time) (model.Bird, float64) {
	confidence := 0.8
	switch {
	case raw.Confidence != nil && *raw.Confidence != 0:
		confidence = *raw.Confidence
	case raw.RecognitionScore != nil && *raw.RecognitionScore != 0:
		confidence = *raw.RecognitionScore
	}

	name := firstNonEmpty(raw.Name, raw.ComName, raw.SpeciesName)
	if name == "" {
		name = "Unknown Bird"
	}
	rarity := legacyRarity(raw.Rarity, confidence)

	bird := model.Bird{
		ID:          firstNonEmpty(raw.ID, raw.SpeciesCode, fmt.Sprintf("ar-%d", now.UnixMilli())),
		Name:        name,
		NameJa:      firstNonEmpty(raw.NameJa, raw.JapaneseName, knowledge.JapaneseName(firstNonEmpty(raw.Name, raw.ComName))),
		Species:     firstNonEmpty(raw.Species, raw.SciName, raw.ScientificName),
		Rarity:      rarity,
		ImageURL:    firstNonEmpty(raw.ImageURL, raw.Image, knowledge.PlaceholderImage),
		Description: firstNonEmpty(raw.Description, knowledge.DescribeRarity(firstNonEmpty(raw.Name, raw.ComName), rarity)),
		Habitat:     firstNonEmpty(raw.Habitat, knowledge.InferHabitat(firstNonEmpty(raw.Name, raw.ComName))),
	}
	return bird, confidence
}

func legacyRarity(explicit string, confidence float64) model.Rarity {
	if r := model.Rarity(explicit); r.Valid() {
		return r
	}
	switch {
	case confidence >= 0.9:
		return model.RarityCommon
	case confidence >= 0.7:
		return model.RarityUncommon
	case confidence >= 0.5:
		return model.RarityRare
	default:
		return model.RarityLegendary
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
