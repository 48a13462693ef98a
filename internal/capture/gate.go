package capture

// GateInput is what a gate policy may look at.
type GateInput struct {
	PokedexCount int
}

// GatePolicy decides whether a capture must be earned in battle first.
type GatePolicy interface {
	RequiresBattle(in GateInput) bool
}

type GateFunc func(in GateInput) bool

func (f GateFunc) RequiresBattle(in GateInput) bool { return f(in) }

// FirstCaptureFree lets a player with an empty pokedex capture without a
// battle; every later capture needs one.
var FirstCaptureFree GatePolicy = GateFunc(func(in GateInput) bool {
	return in.PokedexCount > 0
})

var (
	NeverBattle  GatePolicy = GateFunc(func(GateInput) bool { return false })
	AlwaysBattle GatePolicy = GateFunc(func(GateInput) bool { return true })
)

// GateByName maps a configured policy name to a policy.
func GateByName(name string) GatePolicy {
	switch name {
	case "never":
		return NeverBattle
	case "always":
		return AlwaysBattle
	default:
		return FirstCaptureFree
	}
}
