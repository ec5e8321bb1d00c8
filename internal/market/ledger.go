// Package market holds the shared price ledger of a room and the card
// effects that move it.
//
// Prices are integers. After every card effect the ledger runs a boundary
// pass: a price above the ceiling pays its excess to every holder as a
// per-share dividend, a price below the floor wipes out every holder's
// position. Either way the price is then reset to the bound it crossed, so
// outside of ApplyCard every price lies within [Floor, Ceiling].
package market

import (
	"errors"
	"fmt"
	"math"
)

// StockID identifies a tradable instrument.
type StockID string

// Stock is an instrument and its current price.
type Stock struct {
	ID    StockID `json:"id"`
	Name  string  `json:"name"`
	Price int     `json:"price"`
}

// Default bounds and opening price.
const (
	DefaultFloor        = 10
	DefaultCeiling      = 250
	DefaultInitialPrice = 100
)

var (
	ErrUnknownStock    = errors.New("unknown stock")
	ErrSameStock       = errors.New("determined and chosen stock must differ")
	ErrUnknownCardType = errors.New("unknown card type")
)

// DefaultStocks returns the four instruments of the reference game.
func DefaultStocks() []Stock {
	return []Stock{
		{ID: "BP", Name: "British Petroleum"},
		{ID: "VOW", Name: "Volkswagen"},
		{ID: "DB", Name: "Deutsche Bank"},
		{ID: "IBM", Name: "IBM"},
	}
}

// Config parameterizes a Ledger.
type Config struct {
	Stocks       []Stock
	InitialPrice int
	Floor        int
	Ceiling      int
}

// DefaultConfig returns the reference game configuration.
func DefaultConfig() Config {
	return Config{
		Stocks:       DefaultStocks(),
		InitialPrice: DefaultInitialPrice,
		Floor:        DefaultFloor,
		Ceiling:      DefaultCeiling,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if len(c.Stocks) < 2 {
		return fmt.Errorf("at least two stocks are required, got %d", len(c.Stocks))
	}
	seen := make(map[StockID]bool, len(c.Stocks))
	for _, s := range c.Stocks {
		if s.ID == "" {
			return fmt.Errorf("stock id must not be empty")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate stock id %s", s.ID)
		}
		seen[s.ID] = true
	}
	if c.Floor <= 0 || c.Ceiling <= c.Floor {
		return fmt.Errorf("invalid price bounds [%d, %d]", c.Floor, c.Ceiling)
	}
	if c.InitialPrice < c.Floor || c.InitialPrice > c.Ceiling {
		return fmt.Errorf("initial price %d outside bounds [%d, %d]", c.InitialPrice, c.Floor, c.Ceiling)
	}
	return nil
}

// Ledger tracks the price of every instrument in a room. It is not safe for
// concurrent use; the owning room serializes access.
type Ledger struct {
	cfg    Config
	stocks []Stock
	index  map[StockID]int
}

// NewLedger creates a ledger with every price at the initial price.
func NewLedger(cfg Config) *Ledger {
	l := &Ledger{
		cfg:    cfg,
		stocks: make([]Stock, len(cfg.Stocks)),
		index:  make(map[StockID]int, len(cfg.Stocks)),
	}
	for i, s := range cfg.Stocks {
		l.stocks[i] = Stock{ID: s.ID, Name: s.Name}
		l.index[s.ID] = i
	}
	l.Reset()
	return l
}

// Reset puts every instrument back at the initial price.
func (l *Ledger) Reset() {
	for i := range l.stocks {
		l.stocks[i].Price = l.cfg.InitialPrice
	}
}

// Floor returns the lowest allowed price.
func (l *Ledger) Floor() int { return l.cfg.Floor }

// Ceiling returns the highest allowed price.
func (l *Ledger) Ceiling() int { return l.cfg.Ceiling }

// IDs returns instrument ids in enumeration order.
func (l *Ledger) IDs() []StockID {
	ids := make([]StockID, len(l.stocks))
	for i, s := range l.stocks {
		ids[i] = s.ID
	}
	return ids
}

// Stocks returns a copy of every instrument in enumeration order.
func (l *Ledger) Stocks() []Stock {
	out := make([]Stock, len(l.stocks))
	copy(out, l.stocks)
	return out
}

// Stock looks up a single instrument.
func (l *Ledger) Stock(id StockID) (Stock, error) {
	i, ok := l.index[id]
	if !ok {
		return Stock{}, fmt.Errorf("%w: %s", ErrUnknownStock, id)
	}
	return l.stocks[i], nil
}

// Price returns the current price of id.
func (l *Ledger) Price(id StockID) (int, error) {
	s, err := l.Stock(id)
	if err != nil {
		return 0, err
	}
	return s.Price, nil
}

// SetPrice overrides a price without running the boundary pass. It exists
// for scenario setup; game code moves prices through ApplyCard only.
func (l *Ledger) SetPrice(id StockID, price int) error {
	i, ok := l.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStock, id)
	}
	l.stocks[i].Price = price
	return nil
}

// ValidatePair checks that determined and chosen name two distinct known
// instruments.
func (l *Ledger) ValidatePair(determined, chosen StockID) error {
	if _, err := l.Stock(determined); err != nil {
		return err
	}
	if _, err := l.Stock(chosen); err != nil {
		return err
	}
	if determined == chosen {
		return ErrSameStock
	}
	return nil
}

// ApplyCard runs the transform for cardType without the boundary pass.
// Callers follow it with Settle.
func (l *Ledger) ApplyCard(cardType CardType, determined, chosen StockID) error {
	if err := l.ValidatePair(determined, chosen); err != nil {
		return err
	}
	effect, ok := effects[cardType]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCardType, cardType)
	}

	det := &l.stocks[l.index[determined]]
	cho := &l.stocks[l.index[chosen]]

	det.Price = effect.determined.apply(det.Price)
	if effect.chosen != nil {
		cho.Price = effect.chosen.apply(cho.Price)
	}
	if effect.others != nil {
		for i := range l.stocks {
			if id := l.stocks[i].ID; id != determined && id != chosen {
				l.stocks[i].Price = effect.others.apply(l.stocks[i].Price)
			}
		}
	}
	return nil
}

// roundPrice rounds half away from zero and never goes below zero.
func roundPrice(x float64) int {
	return max(0, int(math.Round(x)))
}
