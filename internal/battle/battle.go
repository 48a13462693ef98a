// Package battle resolves the duel a player must win before a repeat
// capture is recorded.
package battle

import (
	"errors"
	"math/rand/v2"

	"birddex/internal/model"
)

var (
	ErrFinished       = errors.New("battle already finished")
	ErrUnknownFighter = errors.New("fighter not in roster")
)

const maxRounds = 100

type Stats struct {
	HP     int `json:"hp"`
	Attack int `json:"attack"`
}

var rarityStats = map[model.Rarity]Stats{
	model.RarityCommon:    {HP: 100, Attack: 20},
	model.RarityUncommon:  {HP: 120, Attack: 25},
	model.RarityRare:      {HP: 150, Attack: 30},
	model.RarityLegendary: {HP: 200, Attack: 40},
}

func StatsFor(r model.Rarity) Stats {
	if s, ok := rarityStats[r]; ok {
		return s
	}
	return rarityStats[model.RarityCommon]
}

type Fighter struct {
	BirdID string       `json:"birdId"`
	Name   string       `json:"name"`
	NameJa string       `json:"nameJa,omitempty"`
	Rarity model.Rarity `json:"rarity"`
	MaxHP  int          `json:"maxHp"`
	HP     int          `json:"hp"`
	Attack int          `json:"attack"`
}

func NewFighter(b model.Bird) Fighter {
	s := StatsFor(b.Rarity)
	return Fighter{
		BirdID: b.ID,
		Name:   b.Name,
		NameJa: b.NameJa,
		Rarity: b.Rarity,
		MaxHP:  s.HP,
		HP:     s.HP,
		Attack: s.Attack,
	}
}

type Result string

const (
	Ongoing Result = "ongoing"
	Victory Result = "victory"
	Defeat  Result = "defeat"
)

type Turn struct {
	PlayerDamage int `json:"playerDamage"`
	EnemyDamage  int `json:"enemyDamage,omitempty"`
	PlayerHP     int `json:"playerHp"`
	EnemyHP      int `json:"enemyHp"`
}

type Battle struct {
	Player Fighter `json:"player"`
	Enemy  Fighter `json:"enemy"`
	Turns  []Turn  `json:"turns"`
	Result Result  `json:"result"`
}

func New(player, enemy model.Bird) *Battle {
	return &Battle{
		Player: NewFighter(player),
		Enemy:  NewFighter(enemy),
		Turns:  []Turn{},
		Result: Ongoing,
	}
}

// Attack plays one round: the player strikes first and the enemy counters
// only if it is still standing.
func (b *Battle) Attack(rnd *rand.Rand) (Turn, error) {
	if b.Result != Ongoing {
		return Turn{}, ErrFinished
	}
	var turn Turn
	turn.PlayerDamage = roll(b.Player.Attack, rnd)
	b.Enemy.HP = max(0, b.Enemy.HP-turn.PlayerDamage)
	if b.Enemy.HP == 0 {
		b.Result = Victory
	} else {
		turn.EnemyDamage = roll(b.Enemy.Attack, rnd)
		b.Player.HP = max(0, b.Player.HP-turn.EnemyDamage)
		if b.Player.HP == 0 {
			b.Result = Defeat
		}
	}
	turn.PlayerHP = b.Player.HP
	turn.EnemyHP = b.Enemy.HP
	b.Turns = append(b.Turns, turn)
	return turn, nil
}

// AutoResolve plays rounds until one side faints.
func AutoResolve(player, enemy model.Bird, rnd *rand.Rand) *Battle {
	b := New(player, enemy)
	for i := 0; i < maxRounds && b.Result == Ongoing; i++ {
		_, _ = b.Attack(rnd)
	}
	return b
}

// Roster lists the birds a player can send into battle.
func Roster(entries []model.PokedexEntry) []model.Bird {
	out := make([]model.Bird, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.BirdFromEntry(e))
	}
	return out
}

// Pick finds birdID in the roster, or the first bird when birdID is empty.
func Pick(roster []model.Bird, birdID string) (model.Bird, error) {
	for _, b := range roster {
		if birdID == "" || b.ID == birdID {
			return b, nil
		}
	}
	return model.Bird{}, ErrUnknownFighter
}

// roll is attack +/- 5.
func roll(attack int, rnd *rand.Rand) int {
	return attack + rnd.IntN(10) - 5
}
