package market

import "fmt"

// CardType selects one of the five fixed price transforms.
type CardType int

const (
	CardType1 CardType = iota + 1
	CardType2
	CardType3
	CardType4
	CardType5
)

// CardTypes lists every card type in order.
var CardTypes = []CardType{CardType1, CardType2, CardType3, CardType4, CardType5}

// Valid reports whether t is one of the five card types.
func (t CardType) Valid() bool {
	return t >= CardType1 && t <= CardType5
}

func (t CardType) String() string {
	return fmt.Sprintf("T%d", int(t))
}

// Describe returns a short human-readable summary of the card effect.
func (t CardType) Describe() string {
	e, ok := effects[t]
	if !ok {
		return "unknown"
	}
	desc := "determined " + e.determined.String()
	if e.chosen != nil {
		desc += ", chosen " + e.chosen.String()
	}
	if e.others != nil {
		desc += ", others " + e.others.String()
	}
	return desc
}

type opKind int

const (
	opAdd opKind = iota
	opMul
	opDiv
)

type op struct {
	kind opKind
	n    int
}

func (o *op) apply(price int) int {
	switch o.kind {
	case opMul:
		return roundPrice(float64(price) * float64(o.n))
	case opDiv:
		return roundPrice(float64(price) / float64(o.n))
	default:
		return roundPrice(float64(price + o.n))
	}
}

func (o *op) String() string {
	switch o.kind {
	case opMul:
		return fmt.Sprintf("×%d", o.n)
	case opDiv:
		return fmt.Sprintf("÷%d", o.n)
	default:
		return fmt.Sprintf("%+d", o.n)
	}
}

type effect struct {
	determined *op
	chosen     *op // nil leaves the chosen stock unchanged
	others     *op // nil leaves the remaining stocks unchanged
}

var effects = map[CardType]effect{
	CardType1: {determined: &op{opAdd, 60}, chosen: &op{opAdd, -30}},
	CardType2: {determined: &op{opAdd, -50}, chosen: &op{opAdd, 40}},
	CardType3: {determined: &op{opAdd, 100}, others: &op{opAdd, -10}},
	CardType4: {determined: &op{opMul, 2}, chosen: &op{opDiv, 2}},
	CardType5: {determined: &op{opDiv, 2}, chosen: &op{opMul, 2}},
}
