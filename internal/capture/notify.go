package capture

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"birddex/internal/model"
	"birddex/internal/progression"
)

type EventKind string

const (
	EventBattleLoading    EventKind = "battle_loading"
	EventBattleRequired   EventKind = "battle_required"
	EventBattleCancelled  EventKind = "battle_cancelled"
	EventCaptureCommitted EventKind = "capture_committed"
	EventCaptureSkipped   EventKind = "capture_skipped"
	EventLevelUp          EventKind = "level_up"
	EventBadgeUnlocked    EventKind = "badge_unlocked"
	EventError            EventKind = "error"
	EventInfo             EventKind = "info"
)

// Event is a UI-facing side effect of the capture flow.
type Event struct {
	Kind      EventKind            `json:"kind"`
	Message   string               `json:"message,omitempty"`
	CaptureID string               `json:"captureId,omitempty"`
	Entry     *model.PokedexEntry  `json:"entry,omitempty"`
	Battle    *BattleTicket        `json:"battle,omitempty"`
	LevelUp   *progression.LevelUp `json:"levelUp,omitempty"`
	Badge     *model.Badge         `json:"badge,omitempty"`
	At        int64                `json:"at"`
}

type Notifier interface {
	Notify(ev Event)
}

type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

const (
	keyCaptured      = "capture.added"
	keyDuplicate     = "capture.duplicate"
	keyFailed        = "capture.failed"
	keyNoCandidate   = "capture.no_candidate"
	keyBattleLoading = "battle.loading"
	keyBattle        = "battle.required"
	keyCancelled     = "battle.cancelled"
	keyLevelUp       = "level.up"
	keyBadge         = "badge.unlocked"
	keyLocation      = "location.unavailable"
)

var supportedLocales = []language.Tag{language.Japanese, language.English}

func init() {
	ja := map[string]string{
		keyCaptured:      "%sを図鑑に登録しました",
		keyDuplicate:     "この捕獲はすでに記録されています",
		keyFailed:        "捕獲処理に失敗しました: %s",
		keyNoCandidate:   "近くに鳥が見つかりませんでした",
		keyBattleLoading: "バトルの準備中...",
		keyBattle:        "%sとのバトルに勝って捕獲しよう！",
		keyCancelled:     "バトルをキャンセルしました",
		keyLevelUp:       "レベル%dにアップ！",
		keyBadge:         "バッジ「%s」を獲得しました",
		keyLocation:      "位置情報が取得できません",
	}
	en := map[string]string{
		keyCaptured:      "%s was added to your pokedex",
		keyDuplicate:     "This capture was already recorded",
		keyFailed:        "Capture failed: %s",
		keyNoCandidate:   "No birds found nearby",
		keyBattleLoading: "Preparing battle...",
		keyBattle:        "Win a battle against %s to capture it!",
		keyCancelled:     "Battle cancelled",
		keyLevelUp:       "Level up! You reached level %d",
		keyBadge:         "Badge unlocked: %s",
		keyLocation:      "Location unavailable",
	}
	for key, msg := range ja {
		_ = message.SetString(language.Japanese, key, msg)
	}
	for key, msg := range en {
		_ = message.SetString(language.English, key, msg)
	}
}

// newPrinter picks the closest supported locale, Japanese by default.
func newPrinter(locale string) *message.Printer {
	tag := language.Japanese
	if locale != "" {
		matcher := language.NewMatcher(supportedLocales)
		_, idx, conf := matcher.Match(language.Make(locale))
		if conf != language.No {
			tag = supportedLocales[idx]
		}
	}
	return message.NewPrinter(tag)
}
