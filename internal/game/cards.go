package game

import "github.com/lox/borsa/internal/market"

// Card is a single market-manipulation card in a player's hand.
type Card struct {
	ID   string          `json:"id"`
	Type market.CardType `json:"type"`
}

// Rand is the randomness a room needs. Both *rand.Rand and
// *randutil.Source satisfy it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// IDSource hands out unique player and card identifiers.
type IDSource interface {
	ID() string
}

// baseHand is dealt to every player at game start.
var baseHand = []market.CardType{
	market.CardType1,
	market.CardType2, market.CardType2,
	market.CardType3,
	market.CardType4,
	market.CardType5,
}

// extraCards are drawn uniformly from all types on top of the base hand.
const extraCards = 2

// HandSize is the number of cards dealt to each player.
const HandSize = 8

// DealHand builds a fresh shuffled starting hand.
func DealHand(rng Rand, ids IDSource) []Card {
	types := make([]market.CardType, 0, HandSize)
	types = append(types, baseHand...)
	for i := 0; i < extraCards; i++ {
		types = append(types, market.CardTypes[rng.IntN(len(market.CardTypes))])
	}
	rng.Shuffle(len(types), func(i, j int) { types[i], types[j] = types[j], types[i] })

	hand := make([]Card, len(types))
	for i, t := range types {
		hand[i] = Card{ID: ids.ID(), Type: t}
	}
	return hand
}
