package game

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"

	"github.com/lox/borsa/internal/market"
)

// Phase is the position of a room in its lifecycle.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhaseEnded   Phase = "ended"
)

// Env carries the collaborators a room draws on. Rooms never create their
// own randomness or read the wall clock directly.
type Env struct {
	Rand  Rand
	IDs   IDSource
	Clock quartz.Clock
}

// Standing is one line of the final ranking.
type Standing struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Cash       int    `json:"cash"`
	StockValue int    `json:"stockValue"`
	Total      int    `json:"total"`
}

// Room is one isolated game session. A Room is not safe for concurrent use:
// the registry serializes every action on it.
type Room struct {
	Code      string
	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
	Phase     Phase
	HostID    string
	TurnOrder []string
	TurnIndex int
	Round     int
	Standings []Standing

	rules   Rules
	env     Env
	ledger  *market.Ledger
	players map[string]*Player
	joined  []string // player ids in join order
	log     *EventLog
}

// NewRoom creates an empty room in the lobby phase.
func NewRoom(code string, rules Rules, env Env) *Room {
	return &Room{
		Code:      code,
		CreatedAt: env.Clock.Now(),
		Phase:     PhaseLobby,
		rules:     rules,
		env:       env,
		ledger:    market.NewLedger(rules.Market),
		players:   make(map[string]*Player),
		log:       NewEventLog(rules.LogCapacity),
	}
}

// Rules returns the rules the room was created with.
func (r *Room) Rules() Rules { return r.rules }

// Ledger exposes the room's price ledger.
func (r *Room) Ledger() *market.Ledger { return r.ledger }

// Log exposes the room's event log.
func (r *Room) Log() *EventLog { return r.log }

// Player looks up a player by id.
func (r *Room) Player(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Players returns every player in join order.
func (r *Room) Players() []*Player {
	out := make([]*Player, 0, len(r.joined))
	for _, id := range r.joined {
		out = append(out, r.players[id])
	}
	return out
}

// PlayerCount returns the number of players in the room.
func (r *Room) PlayerCount() int { return len(r.joined) }

// ConnectedCount returns the number of players currently connected.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// CurrentPlayerID returns the id of the player whose turn it is, or "" when
// the room is not playing.
func (r *Room) CurrentPlayerID() string {
	if r.Phase != PhasePlaying || len(r.TurnOrder) == 0 {
		return ""
	}
	return r.TurnOrder[r.TurnIndex]
}

func (r *Room) logf(format string, args ...any) {
	r.log.Append(r.env.Clock.Now(), format, args...)
}

// Join adds a player to a lobby. The first player to join becomes host.
func (r *Room) Join(name string) (*Player, error) {
	name, err := NormalizeName(name, r.rules.MaxNameLength)
	if err != nil {
		return nil, err
	}
	if r.Phase != PhaseLobby {
		return nil, Validationf("game already started")
	}
	if len(r.joined) >= r.rules.MaxPlayers {
		return nil, Validationf("lobby is full (%d players)", r.rules.MaxPlayers)
	}

	p := newPlayer(r.env.IDs.ID(), name, r.ledger.IDs())
	r.players[p.ID] = p
	r.joined = append(r.joined, p.ID)

	if r.HostID == "" {
		r.HostID = p.ID
		r.logf("%s created the lobby.", p.Name)
	} else {
		r.logf("%s joined the lobby.", p.Name)
	}
	return p, nil
}

// Disconnect flags a player as no longer connected. Players are never
// removed and the turn is not skipped.
func (r *Room) Disconnect(playerID string) {
	p, ok := r.players[playerID]
	if !ok || !p.Connected {
		return
	}
	p.Connected = false
	r.logf("%s disconnected.", p.Name)
}

// Start moves the room from lobby to playing. Only the host may start.
func (r *Room) Start(playerID string) error {
	if playerID != r.HostID {
		return newError(KindState, "only the host can start the game")
	}
	if r.Phase != PhaseLobby {
		return newError(KindState, "game already started")
	}
	if n := len(r.joined); n < r.rules.MinPlayers || n > r.rules.MaxPlayers {
		return newError(KindState, "need %d-%d players to start, have %d", r.rules.MinPlayers, r.rules.MaxPlayers, n)
	}

	order := make([]string, len(r.joined))
	copy(order, r.joined)
	r.env.Rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	r.Phase = PhasePlaying
	r.StartedAt = r.env.Clock.Now()
	r.TurnOrder = order
	r.TurnIndex = 0
	r.Round = 0
	r.Standings = nil
	r.ledger.Reset()

	for _, id := range order {
		p := r.players[id]
		p.Cash = r.rules.StartingCash
		for stock := range p.Holdings {
			p.Holdings[stock] = 0
		}
		p.Hand = DealHand(r.env.Rand, r.env.IDs)
		p.Turn.reset()
	}

	names := make([]string, len(order))
	for i, id := range order {
		names[i] = r.players[id].Name
	}
	r.logf("Game started. Turn order: %s", strings.Join(names, " → "))
	return nil
}

// actor checks the room is playing and that playerID holds the turn.
func (r *Room) actor(playerID string) (*Player, error) {
	if r.Phase != PhasePlaying {
		return nil, newError(KindState, "game is not in progress")
	}
	p, ok := r.players[playerID]
	if !ok {
		return nil, NotFoundf("player %s not in room", playerID)
	}
	if r.TurnOrder[r.TurnIndex] != playerID {
		return nil, newError(KindTurnOrder, "it is not your turn")
	}
	return p, nil
}

// CheckTurn reports whether playerID may act right now.
func (r *Room) CheckTurn(playerID string) error {
	_, err := r.actor(playerID)
	return err
}

// PlayCard consumes a card from the current player's hand and applies its
// effect to the ledger, followed by the boundary pass.
func (r *Room) PlayCard(playerID, cardID string, determined, chosen market.StockID) error {
	p, err := r.actor(playerID)
	if err != nil {
		return err
	}
	if p.Turn.CardPlayed {
		return newError(KindState, "you already played a card this turn")
	}
	idx := p.cardIndex(cardID)
	if idx < 0 {
		return newError(KindNotOwned, "card %s is not in your hand", cardID)
	}
	if err := r.ledger.ValidatePair(determined, chosen); err != nil {
		return Validationf("%v", err)
	}

	card := p.removeCard(idx)
	before := r.ledger.Stocks()

	if err := r.ledger.ApplyCard(card.Type, determined, chosen); err != nil {
		// Unreachable once the pair and card type are validated.
		return Validationf("%v", err)
	}
	for _, c := range r.ledger.Settle(r.holders()) {
		r.logCorrection(c)
	}

	det, _ := r.ledger.Stock(determined)
	cho, _ := r.ledger.Stock(chosen)
	r.logf("%s played card %s: %s (determined) & %s (chosen). Prices: %s → %s",
		p.Name, card.Type, det.Name, cho.Name, formatPrices(before), formatPrices(r.ledger.Stocks()))

	p.Turn.CardPlayed = true
	return nil
}

func (r *Room) holders() []market.Holder {
	out := make([]market.Holder, 0, len(r.joined))
	for _, id := range r.joined {
		out = append(out, r.players[id])
	}
	return out
}

func (r *Room) logCorrection(c market.Correction) {
	switch c.Kind {
	case market.Dividend:
		r.logf("DIVIDEND %s: +$%d/share (total paid $%d). Price reset to $%d.",
			c.Stock.Name, c.PerShare, c.TotalPaid, c.Stock.Price)
	case market.Confiscation:
		r.logf("CONFISCATION %s: price below $%d. %d shares confiscated. Price reset to $%d.",
			c.Stock.Name, r.ledger.Floor(), c.Shares, c.Stock.Price)
	}
}

// Trade buys or sells shares at the current price. A stock can only be
// traded in one direction per turn.
func (r *Room) Trade(playerID string, side Side, stockID market.StockID, qty int) error {
	p, err := r.actor(playerID)
	if err != nil {
		return err
	}
	if _, err := ParseSide(string(side)); err != nil {
		return err
	}
	if qty <= 0 {
		return Validationf("quantity must be a positive integer, got %d", qty)
	}
	stock, err := r.ledger.Stock(stockID)
	if err != nil {
		return Validationf("%v", err)
	}
	if locked, ok := p.Turn.Locks[stockID]; ok && locked != side {
		return Validationf("you cannot buy and sell %s in the same turn", stock.Name)
	}

	amount := stock.Price * qty
	switch side {
	case Buy:
		if amount > p.Cash {
			return newError(KindInsufficientFunds, "insufficient cash: need $%d, have $%d", amount, p.Cash)
		}
		p.Cash -= amount
		p.Holdings[stockID] += qty
		r.logf("%s BUYS %d %s @ $%d (spent $%d).", p.Name, qty, stock.Name, stock.Price, amount)
	case Sell:
		if held := p.Holdings[stockID]; held < qty {
			return newError(KindInsufficientShares, "insufficient shares: have %d %s, tried to sell %d", held, stock.Name, qty)
		}
		p.Holdings[stockID] -= qty
		p.Cash += amount
		r.logf("%s SELLS %d %s @ $%d (received $%d).", p.Name, qty, stock.Name, stock.Price, amount)
	}
	p.Turn.Locks[stockID] = side
	return nil
}

// EndTurn passes the turn to the next player. A full cycle of turns
// completes a round; after the last round the game ends.
func (r *Room) EndTurn(playerID string) error {
	p, err := r.actor(playerID)
	if err != nil {
		return err
	}
	if !p.Turn.CardPlayed {
		return Validationf("you must play exactly one card before ending your turn")
	}

	p.Turn.reset()
	r.TurnIndex++

	if r.TurnIndex >= len(r.TurnOrder) {
		r.TurnIndex = 0
		r.Round++
		r.logf("--- End of round %d / %d ---", r.Round, r.rules.MaxRounds)
	}

	if r.Round >= r.rules.MaxRounds {
		r.finish()
	}
	return nil
}

// finish freezes the room and records the final standings.
func (r *Room) finish() {
	r.Phase = PhaseEnded
	r.EndedAt = r.env.Clock.Now()
	r.Standings = r.standings()

	if len(r.Standings) > 0 {
		w := r.Standings[0]
		r.logf("GAME OVER. %s wins with $%d (cash $%d, stocks $%d).", w.Name, w.Total, w.Cash, w.StockValue)
	}
}

// standings ranks players by cash plus holdings at current prices. Ties keep
// join order.
func (r *Room) standings() []Standing {
	stocks := r.ledger.Stocks()
	out := make([]Standing, 0, len(r.joined))
	for _, id := range r.joined {
		p := r.players[id]
		value := p.StockValue(stocks)
		out = append(out, Standing{
			ID:         p.ID,
			Name:       p.Name,
			Cash:       p.Cash,
			StockValue: value,
			Total:      p.Cash + value,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

func formatPrices(stocks []market.Stock) string {
	parts := make([]string, len(stocks))
	for i, s := range stocks {
		parts[i] = string(s.ID) + " $" + strconv.Itoa(s.Price)
	}
	return strings.Join(parts, ", ")
}
