package model

import "strings"

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
)

// Rarities lists every rarity from most to least common.
var Rarities = []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityLegendary}

func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityLegendary:
		return true
	default:
		return false
	}
}

// ParseRarity maps free-form input to a rarity, defaulting to common.
func ParseRarity(v string) Rarity {
	r := Rarity(strings.ToLower(strings.TrimSpace(v)))
	if r.Valid() {
		return r
	}
	return RarityCommon
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BirdSpawn is a location-anchored spawn shown to the player for a limited time.
type BirdSpawn struct {
	BirdID    string  `json:"birdId"`
	Species   string  `json:"species"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	SpawnedAt int64   `json:"spawnedAt"`
	ModelKey  string  `json:"modelKey"`
}

type PokedexEntry struct {
	BirdID     string         `json:"birdId"`
	Species    string         `json:"species"`
	CapturedAt int64          `json:"capturedAt"`
	Location   Location       `json:"location"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// MetaString returns a string meta field or "" when absent or not a string.
func (e PokedexEntry) MetaString(key string) string {
	if e.Meta == nil {
		return ""
	}
	v, _ := e.Meta[key].(string)
	return v
}

func (e PokedexEntry) Rarity() Rarity {
	return ParseRarity(e.MetaString("rarity"))
}

// Bird is a capture candidate with its display metadata.
type Bird struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	NameJa      string `json:"nameJa"`
	Species     string `json:"species"`
	Rarity      Rarity `json:"rarity"`
	ImageURL    string `json:"imageUrl"`
	Description string `json:"description"`
	Habitat     string `json:"habitat"`
}

// BirdFromEntry rebuilds a candidate from a pokedex entry and its display meta.
func BirdFromEntry(e PokedexEntry) Bird {
	name := e.MetaString("name")
	if name == "" {
		name = e.Species
	}
	return Bird{
		ID:          e.BirdID,
		Name:        name,
		NameJa:      e.MetaString("nameJa"),
		Species:     e.Species,
		Rarity:      e.Rarity(),
		ImageURL:    e.MetaString("imageUrl"),
		Description: e.MetaString("description"),
		Habitat:     e.MetaString("habitat"),
	}
}

type LevelState struct {
	XP      int `json:"xp"`
	Level   int `json:"level"`
	TotalXP int `json:"totalXp"`
}

type XPProgress struct {
	Current    int `json:"current"`
	Required   int `json:"required"`
	Percentage int `json:"percentage"`
}

type UserMovement struct {
	TotalDistance  float64   `json:"totalDistance"`
	LastPosition   *Location `json:"lastPosition"`
	LastUpdateTime int64     `json:"lastUpdateTime"`
}

type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Color       string `json:"color,omitempty"`
	Unlocked    bool   `json:"unlocked"`
	Progress    int    `json:"progress"`
	Target      int    `json:"target"`
}

// Region is a best-effort reverse geocoding result; nil fields are unknown.
type Region struct {
	State *string `json:"state"`
	City  *string `json:"city"`
}
