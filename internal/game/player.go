package game

import (
	"fmt"
	"strings"

	"github.com/lox/borsa/internal/market"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide validates a trade direction.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	}
	return "", Validationf("invalid side %q, expected buy or sell", s)
}

// TurnState is reset at the start of every turn. It records whether the
// player's one card has been played and which direction each stock has been
// traded in.
type TurnState struct {
	CardPlayed bool
	Locks      map[market.StockID]Side
}

func (ts *TurnState) reset() {
	ts.CardPlayed = false
	clear(ts.Locks)
}

// Player represents a player in a room
type Player struct {
	ID        string
	Name      string
	Cash      int
	Holdings  map[market.StockID]int
	Hand      []Card
	Connected bool
	Turn      TurnState
}

func newPlayer(id, name string, stocks []market.StockID) *Player {
	p := &Player{
		ID:        id,
		Name:      name,
		Holdings:  make(map[market.StockID]int, len(stocks)),
		Connected: true,
		Turn:      TurnState{Locks: make(map[market.StockID]Side, len(stocks))},
	}
	for _, id := range stocks {
		p.Holdings[id] = 0
	}
	return p
}

// Shares implements market.Holder.
func (p *Player) Shares(id market.StockID) int { return p.Holdings[id] }

// Credit implements market.Holder.
func (p *Player) Credit(amount int) { p.Cash += amount }

// Confiscate implements market.Holder.
func (p *Player) Confiscate(id market.StockID) int {
	n := p.Holdings[id]
	p.Holdings[id] = 0
	return n
}

// cardIndex returns the position of cardID in the hand, or -1.
func (p *Player) cardIndex(cardID string) int {
	for i, c := range p.Hand {
		if c.ID == cardID {
			return i
		}
	}
	return -1
}

// removeCard takes the card at index i out of the hand, keeping order.
func (p *Player) removeCard(i int) Card {
	c := p.Hand[i]
	p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
	return c
}

// StockValue marks holdings to market.
func (p *Player) StockValue(stocks []market.Stock) int {
	total := 0
	for _, s := range stocks {
		total += p.Holdings[s.ID] * s.Price
	}
	return total
}

// NormalizeName trims a display name and caps it at maxLen runes.
func NormalizeName(name string, maxLen int) (string, error) {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxLen {
		name = strings.TrimSpace(string(r[:maxLen]))
	}
	if name == "" {
		return "", Validationf("name is required")
	}
	return name, nil
}

func (p *Player) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}
