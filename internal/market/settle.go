package market

// Holder is anything that can own shares and receive cash. Players implement
// it so the boundary pass can pay dividends and confiscate positions.
type Holder interface {
	Shares(id StockID) int
	Credit(amount int)
	Confiscate(id StockID) int
}

// CorrectionKind tells which bound a price crossed.
type CorrectionKind string

const (
	Dividend     CorrectionKind = "dividend"
	Confiscation CorrectionKind = "confiscation"
)

// Correction reports one boundary event produced by Settle.
type Correction struct {
	Kind      CorrectionKind
	Stock     Stock // price is the post-reset price
	RawPrice  int   // price before the reset
	PerShare  int   // dividend per share, zero for confiscations
	TotalPaid int
	Shares    int // shares paid on or confiscated
}

// Settle runs the boundary pass over every instrument in enumeration order
// and returns what it did. Each correction only touches its own stock, so the
// order never changes the outcome.
func (l *Ledger) Settle(holders []Holder) []Correction {
	var out []Correction
	for i := range l.stocks {
		s := &l.stocks[i]
		switch {
		case s.Price > l.cfg.Ceiling:
			c := Correction{Kind: Dividend, RawPrice: s.Price, PerShare: s.Price - l.cfg.Ceiling}
			for _, h := range holders {
				if n := h.Shares(s.ID); n > 0 {
					pay := n * c.PerShare
					h.Credit(pay)
					c.TotalPaid += pay
					c.Shares += n
				}
			}
			s.Price = l.cfg.Ceiling
			c.Stock = *s
			out = append(out, c)
		case s.Price < l.cfg.Floor:
			c := Correction{Kind: Confiscation, RawPrice: s.Price}
			for _, h := range holders {
				c.Shares += h.Confiscate(s.ID)
			}
			s.Price = l.cfg.Floor
			c.Stock = *s
			out = append(out, c)
		}
	}
	return out
}
