package game

import (
	"testing"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/lox/borsa/internal/gameid"
	"github.com/lox/borsa/internal/market"
	"github.com/lox/borsa/internal/randutil"
)

// TestRoomOption configures test room creation
type TestRoomOption func(*testRoomBuilder)

type testRoomBuilder struct {
	seed    int64
	rules   Rules
	players []string
	start   bool
}

func WithSeed(seed int64) TestRoomOption {
	return func(b *testRoomBuilder) { b.seed = seed }
}

func WithPlayers(names ...string) TestRoomOption {
	return func(b *testRoomBuilder) { b.players = names }
}

func WithRules(fn func(*Rules)) TestRoomOption {
	return func(b *testRoomBuilder) { fn(&b.rules) }
}

func Started() TestRoomOption {
	return func(b *testRoomBuilder) { b.start = true }
}

// newTestRoom creates a room with a mock clock and deterministic randomness.
func newTestRoom(t *testing.T, opts ...TestRoomOption) (*Room, *quartz.Mock) {
	t.Helper()

	b := &testRoomBuilder{
		seed:    42,
		rules:   DefaultRules(),
		players: []string{"Alice", "Bob"},
	}
	for _, opt := range opts {
		opt(b)
	}

	clock := quartz.NewMock(t)
	src := randutil.NewSource(b.seed)
	env := Env{Rand: src, IDs: gameid.NewGeneratorWithClock(src, clock), Clock: clock}

	room := NewRoom("TEST01", b.rules, env)
	for _, name := range b.players {
		_, err := room.Join(name)
		require.NoError(t, err)
	}
	if b.start {
		require.NoError(t, room.Start(room.HostID))
	}
	return room, clock
}

// current returns the player whose turn it is.
func current(t *testing.T, room *Room) *Player {
	t.Helper()
	p, ok := room.Player(room.CurrentPlayerID())
	require.True(t, ok, "no current player")
	return p
}

// notCurrent returns any player other than the one whose turn it is.
func notCurrent(t *testing.T, room *Room) *Player {
	t.Helper()
	for _, p := range room.Players() {
		if p.ID != room.CurrentPlayerID() {
			return p
		}
	}
	t.Fatal("every player is current")
	return nil
}

// cardOfType finds a card of the given type in the player's hand.
func cardOfType(t *testing.T, p *Player, ct market.CardType) Card {
	t.Helper()
	for _, c := range p.Hand {
		if c.Type == ct {
			return c
		}
	}
	t.Fatalf("%s holds no %s card", p.Name, ct)
	return Card{}
}

// playAnyCard plays the first card in the current player's hand on BP/VOW.
func playAnyCard(t *testing.T, room *Room) *Player {
	t.Helper()
	p := current(t, room)
	require.NotEmpty(t, p.Hand)
	require.NoError(t, room.PlayCard(p.ID, p.Hand[0].ID, "BP", "VOW"))
	return p
}

func price(t *testing.T, room *Room, id market.StockID) int {
	t.Helper()
	v, err := room.Ledger().Price(id)
	require.NoError(t, err)
	return v
}
