package feeds

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"strings"

	"birddex/internal/knowledge"
	"birddex/internal/model"
)

const (
	DefaultRecentLat  = 35.681236
	DefaultRecentLng  = 139.767125
	DefaultRecentDist = 10
	DefaultRecentBack = 7

	// candidate pool used by capture runs
	nearbySpeciesDist = 50
	nearbySpeciesBack = 30
)

type Observation struct {
	SpeciesCode string  `json:"speciesCode"`
	ComName     string  `json:"comName"`
	SciName     string  `json:"sciName"`
	LocName     string  `json:"locName,omitempty"`
	ObsDt       string  `json:"obsDt,omitempty"`
	HowMany     int     `json:"howMany,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lng         float64 `json:"lng,omitempty"`
}

// RecentObservations lists eBird observations within distKm of the point
// over the last backDays days.
func (c *Client) RecentObservations(ctx context.Context, lat, lng float64, distKm, backDays int) ([]Observation, error) {
	if c.ebirdAPIKey == "" {
		return nil, ErrNotConfigured
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("dist", strconv.Itoa(distKm))
	q.Set("back", strconv.Itoa(backDays))

	var out []Observation
	err := c.getJSON(ctx, "ebird.recent", c.ebirdBaseURL+"/data/obs/geo/recent?"+q.Encode(),
		map[string]string{"X-eBirdApiToken": c.ebirdAPIKey}, &out)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Observation{}
	}
	return out, nil
}

// NearbySpecies returns one candidate per species observed near loc.
func (c *Client) NearbySpecies(ctx context.Context, loc model.Location) ([]model.Bird, error) {
	obs, err := c.RecentObservations(ctx, loc.Lat, loc.Lng, nearbySpeciesDist, nearbySpeciesBack)
	if err != nil {
		log.Printf("nearby species lookup failed: lat=%.5f lng=%.5f err=%v", loc.Lat, loc.Lng, err)
		return nil, err
	}
	seen := make(map[string]struct{}, len(obs))
	birds := make([]model.Bird, 0, len(obs))
	for _, o := range obs {
		code := strings.TrimSpace(o.SpeciesCode)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		birds = append(birds, MapObservation(o))
	}
	return birds, nil
}

func MapObservation(o Observation) model.Bird {
	name := strings.TrimSpace(o.ComName)
	nameJa := knowledge.JapaneseName(name)
	if nameJa == "" {
		nameJa = name
	}
	rarity := InferRarityFromSpeciesCode(o.SpeciesCode)
	return model.Bird{
		ID:          o.SpeciesCode,
		Name:        name,
		NameJa:      nameJa,
		Species:     o.SciName,
		Rarity:      rarity,
		ImageURL:    knowledge.PlaceholderImage,
		Description: knowledge.DescribeRarity(name, rarity),
		Habitat:     knowledge.InferHabitat(name),
	}
}

// InferRarityFromSpeciesCode buckets eBird species codes by length; longer
// codes tend to belong to less common taxa.
func InferRarityFromSpeciesCode(code string) model.Rarity {
	n := len(strings.TrimSpace(code))
	switch {
	case n <= 5:
		return model.RarityCommon
	case n <= 7:
		return model.RarityUncommon
	case n <= 9:
		return model.RarityRare
	default:
		return model.RarityLegendary
	}
}
