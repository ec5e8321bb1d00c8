package game

import "github.com/lox/borsa/internal/market"

// PlayerView is one player as seen by a particular viewer.
type PlayerView struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Cash      int                    `json:"cash"`
	Holdings  map[market.StockID]int `json:"holdings"`
	Cards     []Card                 `json:"cards"` // null unless this is the viewer
	CardCount int                    `json:"cardCount"`
	Connected bool                   `json:"connected"`
	IsHost    bool                   `json:"isHost"`
}

// Snapshot is the redacted room state sent to one viewer.
type Snapshot struct {
	Code            string         `json:"code"`
	Phase           Phase          `json:"phase"`
	HostPlayerID    string         `json:"hostPlayerId"`
	TurnOrder       []string       `json:"turnOrder"`
	TurnIndex       int            `json:"turnIndex"`
	CurrentPlayerID string         `json:"currentPlayerId,omitempty"`
	Round           int            `json:"round"`
	MaxRounds       int            `json:"maxRounds"`
	Stocks          []market.Stock `json:"stocks"`
	Players         []PlayerView   `json:"players"`
	Logs            []LogEntry     `json:"logs"`
	FinalStandings  []Standing     `json:"finalStandings,omitempty"`
}

// Snapshot projects the room for viewerID. Only the viewer's own hand is
// included; everyone else shows a card count. The log is cut to the most
// recent window. Nothing in the returned value aliases room state.
func (r *Room) Snapshot(viewerID string) Snapshot {
	players := make([]PlayerView, 0, len(r.joined))
	for _, id := range r.joined {
		p := r.players[id]
		holdings := make(map[market.StockID]int, len(p.Holdings))
		for k, v := range p.Holdings {
			holdings[k] = v
		}
		view := PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Cash:      p.Cash,
			Holdings:  holdings,
			CardCount: len(p.Hand),
			Connected: p.Connected,
			IsHost:    p.ID == r.HostID,
		}
		if p.ID == viewerID {
			view.Cards = append(make([]Card, 0, len(p.Hand)), p.Hand...)
		}
		players = append(players, view)
	}

	turnOrder := make([]string, len(r.TurnOrder))
	copy(turnOrder, r.TurnOrder)

	var standings []Standing
	if r.Phase == PhaseEnded {
		standings = append([]Standing{}, r.Standings...)
	}

	return Snapshot{
		Code:            r.Code,
		Phase:           r.Phase,
		HostPlayerID:    r.HostID,
		TurnOrder:       turnOrder,
		TurnIndex:       r.TurnIndex,
		CurrentPlayerID: r.CurrentPlayerID(),
		Round:           r.Round,
		MaxRounds:       r.rules.MaxRounds,
		Stocks:          r.ledger.Stocks(),
		Players:         players,
		Logs:            r.log.Recent(r.rules.LogWindow),
		FinalStandings:  standings,
	}
}
