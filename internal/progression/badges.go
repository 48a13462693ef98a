package progression

import (
	_ "embed"
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"birddex/internal/model"
)

const (
	KindSpeciesCount = "species_count"
	KindRarityCount  = "rarity_count"
	KindKeyword      = "keyword"
	KindLevel        = "level"
)

var (
	//go:embed badge_rules.json
	badgeRulesRawJSON []byte

	badgeTokenCleaner = regexp.MustCompile(`[\s_\-·()\[\],.:;/]+`)

	badgeRules = loadBadgeRules()
)

type badgeRule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Kind        string   `json:"kind"`
	Rarity      string   `json:"rarity,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Target      int      `json:"target"`
	Color       string   `json:"color"`
}

type badgeRuleCatalog struct {
	Badges []badgeRule `json:"badges"`
}

func loadBadgeRules() []badgeRule {
	var catalog badgeRuleCatalog
	if err := json.Unmarshal(badgeRulesRawJSON, &catalog); err != nil {
		log.Printf("badge rules unreadable: err=%v", err)
		return nil
	}
	rules := make([]badgeRule, 0, len(catalog.Badges))
	for _, rule := range catalog.Badges {
		rule.ID = strings.TrimSpace(rule.ID)
		if rule.ID == "" {
			continue
		}
		if rule.Target <= 0 {
			rule.Target = 1
		}
		rules = append(rules, rule)
	}
	return rules
}

// Badges evaluates every badge rule against the pokedex and current level.
func Badges(entries []model.PokedexEntry, level int) []model.Badge {
	badges := make([]model.Badge, 0, len(badgeRules))
	for _, rule := range badgeRules {
		progress := badgeProgress(rule, entries, level)
		badges = append(badges, model.Badge{
			ID:          rule.ID,
			Name:        rule.Name,
			Description: rule.Description,
			Kind:        rule.Kind,
			Color:       rule.Color,
			Unlocked:    progress >= rule.Target,
			Progress:    min(progress, rule.Target),
			Target:      rule.Target,
		})
	}
	return badges
}

// NewlyUnlocked lists badges locked in before and unlocked in after.
func NewlyUnlocked(before, after []model.Badge) []model.Badge {
	was := make(map[string]bool, len(before))
	for _, b := range before {
		was[b.ID] = b.Unlocked
	}
	out := make([]model.Badge, 0)
	for _, b := range after {
		if b.Unlocked && !was[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

func badgeProgress(rule badgeRule, entries []model.PokedexEntry, level int) int {
	switch rule.Kind {
	case KindLevel:
		return level
	case KindRarityCount:
		want := model.ParseRarity(rule.Rarity)
		n := 0
		for _, e := range entries {
			if e.Rarity() == want {
				n++
			}
		}
		return n
	case KindKeyword:
		matched := make(map[string]struct{})
		for _, e := range entries {
			if matchBadgeKeywords(rule.Keywords, e.Species, e.MetaString("name"), e.MetaString("nameJa")) {
				matched[normalizeBadgeToken(e.Species)] = struct{}{}
			}
		}
		return len(matched)
	default:
		species := make(map[string]struct{})
		for _, e := range entries {
			if token := normalizeBadgeToken(e.Species); token != "" {
				species[token] = struct{}{}
			}
		}
		return len(species)
	}
}

func matchBadgeKeywords(keywords []string, values ...string) bool {
	for _, keyword := range keywords {
		token := normalizeBadgeToken(keyword)
		if token == "" {
			continue
		}
		for _, v := range values {
			if candidate := normalizeBadgeToken(v); candidate != "" && strings.Contains(candidate, token) {
				return true
			}
		}
	}
	return false
}

func normalizeBadgeToken(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	return badgeTokenCleaner.ReplaceAllString(value, "")
}
