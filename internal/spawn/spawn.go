// Package spawn places birds around the player and tracks how far the
// player has walked so that fresh birds appear on the move.
package spawn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"birddex/internal/knowledge"
	"birddex/internal/model"
)

const (
	TTL               = 30 * time.Minute
	InitialCount      = 5
	MoveCount         = 3
	MoveThresholdM    = 50.0
	spawnRadiusDeg    = 0.001
	earthRadiusMeters = 6371e3
)

var DefaultLocation = model.Location{Lat: 35.6762, Lng: 139.6503}

var rarityBuckets = []struct {
	rarity model.Rarity
	below  float64
}{
	{model.RarityCommon, 0.5},
	{model.RarityUncommon, 0.8},
	{model.RarityRare, 0.95},
	{model.RarityLegendary, 1.0},
}

// Generate draws count rarity-weighted spawns from pool scattered around
// center. A roll that lands on an empty rarity falls through to the next
// one; a roll that falls off the end yields no spawn.
func Generate(center model.Location, count int, pool []model.Bird, rnd *rand.Rand, now time.Time) []model.BirdSpawn {
	byRarity := make(map[model.Rarity][]model.Bird, len(model.Rarities))
	for _, b := range pool {
		r := b.Rarity
		if !r.Valid() {
			r = model.RarityCommon
		}
		byRarity[r] = append(byRarity[r], b)
	}

	spawns := make([]model.BirdSpawn, 0, count)
	for i := 0; i < count; i++ {
		roll := rnd.Float64()
		var picked *model.Bird
		for _, bucket := range rarityBuckets {
			candidates := byRarity[bucket.rarity]
			if roll < bucket.below && len(candidates) > 0 {
				picked = &candidates[rnd.IntN(len(candidates))]
				break
			}
		}
		if picked == nil {
			continue
		}
		spawns = append(spawns, model.BirdSpawn{
			BirdID:    picked.ID,
			Species:   firstNonEmpty(picked.Species, picked.Name),
			Lat:       center.Lat + (rnd.Float64()-0.5)*spawnRadiusDeg,
			Lng:       center.Lng + (rnd.Float64()-0.5)*spawnRadiusDeg,
			SpawnedAt: now.UnixMilli(),
			ModelKey:  modelKey(*picked),
		})
	}
	return spawns
}

// Nearby returns one spawn per starter species evenly spread on a ring
// 100-300 m around center.
func Nearby(center model.Location, rnd *rand.Rand, now time.Time) []model.BirdSpawn {
	species := knowledge.NearbySpecies
	birds := make([]model.BirdSpawn, 0, len(species))
	for i, s := range species {
		angle := math.Pi * 2 * float64(i) / float64(len(species))
		distance := 0.001 + rnd.Float64()*0.002
		birds = append(birds, model.BirdSpawn{
			BirdID:    fmt.Sprintf("bird-%d-%d", now.UnixMilli(), i),
			Species:   s,
			Lat:       center.Lat + distance*math.Cos(angle),
			Lng:       center.Lng + distance*math.Sin(angle),
			SpawnedAt: now.UnixMilli(),
			ModelKey:  s,
		})
	}
	return birds
}

// Expired reports whether s has outlived TTL at now.
func Expired(s model.BirdSpawn, now time.Time) bool {
	return now.UnixMilli() >= s.SpawnedAt+TTL.Milliseconds()
}

// Distance is the haversine distance in meters.
func Distance(a, b model.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func modelKey(b model.Bird) string {
	key := strings.ToLower(strings.TrimSpace(b.Name))
	if key == "" {
		key = strings.ToLower(strings.TrimSpace(b.Species))
	}
	return key
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
