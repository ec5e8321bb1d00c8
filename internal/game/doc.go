// Package game implements the room state machine of La Borsa, a turn-based
// stock market card game.
//
// The main type is Room, which owns the players, the turn order, the round
// counter and a market.Ledger of stock prices. A room moves through three
// phases:
//
//	lobby → playing → ended
//
// Players join while the room is in the lobby. The host starts the game,
// which shuffles the turn order, resets prices and deals every player a fresh
// hand of eight cards. On their turn a player plays exactly one card, may
// trade any number of times (one direction per stock), and then ends the
// turn. Once every player has ended a turn the round counter advances; after
// the last round the room computes final standings and freezes.
//
// # Basic Usage
//
//	env := game.Env{Rand: randutil.NewSource(1), IDs: gameid.NewGenerator(nil), Clock: quartz.NewReal()}
//	room := game.NewRoom("AB12CD", game.DefaultRules(), env)
//	host, _ := room.Join("Alice")
//	bob, _ := room.Join("Bob")
//	_ = room.Start(host.ID)
//
//	current, _ := room.Player(room.CurrentPlayerID())
//	_ = room.PlayCard(current.ID, current.Hand[0].ID, "BP", "VOW")
//	_ = room.Trade(current.ID, game.Buy, "BP", 1)
//	_ = room.EndTurn(current.ID)
//
// # Errors
//
// Every operation returns a *Error whose Kind tells the transport what went
// wrong. A failing operation never modifies the room.
//
// # Concurrency
//
// Room is not safe for concurrent use. The registry package serializes all
// access to a room while letting different rooms proceed in parallel.
package game
