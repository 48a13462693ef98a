package knowledge

import (
	"strings"

	"birddex/internal/model"
)

const PlaceholderImage = "/placeholder.jpg"

// FallbackBirds is used as the spawn pool when the live species feed is unavailable.
var FallbackBirds = []model.Bird{
	{
		ID:          "fallback-1",
		Name:        "Sparrow",
		NameJa:      "スズメ",
		Species:     "Passer montanus",
		Rarity:      model.RarityCommon,
		ImageURL:    PlaceholderImage,
		Description: "一般的な小鳥",
		Habitat:     "都市、農地",
	},
	{
		ID:          "fallback-2",
		Name:        "Crow",
		NameJa:      "カラス",
		Species:     "Corvus corone",
		Rarity:      model.RarityCommon,
		ImageURL:    PlaceholderImage,
		Description: "都市部でよく見られる鳥",
		Habitat:     "都市、森林",
	},
	{
		ID:          "fallback-3",
		Name:        "Coal Tit",
		NameJa:      "ヒガラ",
		Species:     "Periparus ater",
		Rarity:      model.RarityUncommon,
		ImageURL:    PlaceholderImage,
		Description: "針葉樹林を好む小さなカラの仲間",
		Habitat:     "森林",
	},
}

// NearbySpecies are the model keys the AR surface can render.
var NearbySpecies = []string{"sparrow", "eagle", "owl", "crow", "robin"}

var japaneseNames = map[string]string{
	"sparrow":    "スズメ",
	"crow":       "カラス",
	"pigeon":     "ハト",
	"robin":      "コマドリ",
	"eagle":      "ワシ",
	"hawk":       "タカ",
	"owl":        "フクロウ",
	"duck":       "カモ",
	"swan":       "ハクチョウ",
	"heron":      "サギ",
	"kingfisher": "カワセミ",
	"woodpecker": "キツツキ",
	"magpie":     "カササギ",
	"jay":        "カケス",
	"tit":        "シジュウカラ",
	"finch":      "アトリ",
	"warbler":    "ウグイス",
	"thrush":     "ツグミ",
	"starling":   "ムクドリ",
	"swallow":    "ツバメ",
}

// JapaneseName translates a common English bird name, returning the input when unknown.
func JapaneseName(name string) string {
	if ja, ok := japaneseNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return ja
	}
	return name
}

func InferHabitat(name string) string {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "sparrow", "pigeon", "crow"):
		return "都市、公園、農地"
	case containsAny(lower, "eagle", "hawk"):
		return "山岳、森林、草原"
	case containsAny(lower, "duck", "swan", "heron"):
		return "湖、川、湿地"
	case containsAny(lower, "woodpecker", "owl"):
		return "森林、樹木"
	default:
		return "様々な環境"
	}
}

func DescribeRarity(name string, rarity model.Rarity) string {
	if strings.TrimSpace(name) == "" {
		name = "この鳥"
	}
	switch rarity {
	case model.RarityCommon:
		return name + "は一般的な鳥で、多くの場所で見ることができます。"
	case model.RarityUncommon:
		return name + "は比較的珍しい鳥で、特定の環境で見ることができます。"
	case model.RarityRare:
		return name + "は珍しい鳥で、特別な条件でしか見ることができません。"
	case model.RarityLegendary:
		return name + "は非常に珍しい伝説的な鳥です！"
	default:
		return name + "についての詳細な情報はまだありません。"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
