package game

import (
	"fmt"

	"github.com/lox/borsa/internal/market"
)

// Rules holds the tunables of a room. The zero value is not usable; start
// from DefaultRules.
type Rules struct {
	MaxRounds     int
	MinPlayers    int
	MaxPlayers    int
	StartingCash  int
	LogWindow     int // entries included in a snapshot
	LogCapacity   int // entries retained by the room
	MaxNameLength int
	Market        market.Config
}

// DefaultRules returns the reference game: six rounds, two to eight players,
// $300 each and four stocks at $100.
func DefaultRules() Rules {
	return Rules{
		MaxRounds:     6,
		MinPlayers:    2,
		MaxPlayers:    8,
		StartingCash:  300,
		LogWindow:     80,
		LogCapacity:   512,
		MaxNameLength: 24,
		Market:        market.DefaultConfig(),
	}
}

// Validate checks the rules are internally consistent.
func (r Rules) Validate() error {
	if r.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be positive, got %d", r.MaxRounds)
	}
	if r.MinPlayers < 1 || r.MaxPlayers < r.MinPlayers {
		return fmt.Errorf("invalid player range [%d, %d]", r.MinPlayers, r.MaxPlayers)
	}
	if r.StartingCash < 0 {
		return fmt.Errorf("starting cash must not be negative, got %d", r.StartingCash)
	}
	if r.LogWindow < 1 || r.LogCapacity < r.LogWindow {
		return fmt.Errorf("log capacity %d must be at least the log window %d", r.LogCapacity, r.LogWindow)
	}
	if r.MaxNameLength < 1 {
		return fmt.Errorf("max name length must be positive, got %d", r.MaxNameLength)
	}
	return r.Market.Validate()
}
