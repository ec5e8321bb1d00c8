package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/market"
	"github.com/lox/borsa/internal/protocol"
)

func TestServerHealth(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Rooms)
}

func TestHelloCarriesServerTime(t *testing.T) {
	t.Parallel()
	_, ts, clock := newTestServer(t)

	c := dialClient(t, ts)
	assert.Equal(t, clock.Now().UnixMilli(), c.hello.ServerTime)
}

func TestHelloIsFirstFrame(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Write before reading anything back.
	c := &wsClient{t: t, conn: conn}
	c.send(protocol.TypeCreateLobby, protocol.CreateLobby{Name: "Alice"})

	c.expect(protocol.TypeHello)
	assert.Len(t, c.joined().RoomCode, 6)
}

func TestCreateAndJoinLobby(t *testing.T) {
	t.Parallel()
	srv, ts, _ := newTestServer(t)

	alice := dialClient(t, ts)
	alice.send(protocol.TypeCreateLobby, protocol.CreateLobby{Name: "  Alice "})
	aj := alice.joined()
	assert.True(t, aj.IsHost)
	assert.Len(t, aj.RoomCode, 6)

	s := alice.state()
	assert.Equal(t, game.PhaseLobby, s.Phase)
	assert.Equal(t, aj.PlayerID, s.HostPlayerID)
	require.Len(t, s.Players, 1)
	assert.Equal(t, "Alice", s.Players[0].Name)

	bob := dialClient(t, ts)
	bob.send(protocol.TypeJoinLobby, protocol.JoinLobby{Code: aj.RoomCode, Name: "Bob"})
	bj := bob.joined()
	assert.False(t, bj.IsHost)
	assert.Equal(t, aj.RoomCode, bj.RoomCode)

	assert.Len(t, bob.state().Players, 2)
	assert.Len(t, alice.state().Players, 2, "existing members see the newcomer")
	assert.Equal(t, 1, srv.registry.Len())
}

func TestJoinErrors(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t)

	c := dialClient(t, ts)
	c.send(protocol.TypeJoinLobby, protocol.JoinLobby{Code: "ZZZZZZ", Name: "Bob"})
	assert.Equal(t, "not_found", c.errorCode())

	c.send(protocol.TypeJoinLobby, protocol.JoinLobby{Code: "", Name: "Bob"})
	assert.Equal(t, "validation", c.errorCode())

	c.send(protocol.TypeJoinLobby, protocol.JoinLobby{Code: "AB-12!", Name: "Bob"})
	assert.Equal(t, "validation", c.errorCode())

	c.send(protocol.TypeCreateLobby, protocol.CreateLobby{Name: "   "})
	assert.Equal(t, "validation", c.errorCode())
}

func TestMalformedAndUnknownMessages(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t)
	c := dialClient(t, ts)

	c.sendRaw(`not json`)
	assert.Equal(t, "validation", c.errorCode())

	c.sendRaw(`{"type":"SELL_EVERYTHING"}`)
	assert.Equal(t, "validation", c.errorCode())

	c.sendRaw(`{"type":"CREATE_LOBBY","payload":[1]}`)
	assert.Equal(t, "validation", c.errorCode())
}

func TestActionsRequireRoom(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t)
	c := dialClient(t, ts)

	for _, typ := range []protocol.MessageType{protocol.TypeStartGame, protocol.TypeEndTurn, protocol.TypePlayCard} {
		c.send(typ, nil)
		assert.Equal(t, "state", c.errorCode(), string(typ))
	}
}

func TestStartGame(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t)
	alice, bob, aliceID, bobID, _ := lobby(t, ts)

	bob.send(protocol.TypeStartGame, nil)
	assert.Equal(t, "state", bob.errorCode(), "only the host may start")

	alice.send(protocol.TypeStartGame, nil)
	as := alice.state()
	bs := bob.state()

	assert.Equal(t, game.PhasePlaying, as.Phase)
	assert.ElementsMatch(t, []string{aliceID, bobID}, as.TurnOrder)
	assert.Equal(t, as.TurnOrder, bs.TurnOrder)

	assert.Len(t, me(t, as, aliceID).Cards, game.HandSize)
	assert.Empty(t, me(t, as, bobID).Cards, "hands of others are hidden")
	assert.Equal(t, game.HandSize, me(t, as, bobID).CardCount)
	assert.Len(t, me(t, bs, bobID).Cards, game.HandSize)
	assert.Equal(t, 300, me(t, bs, bobID).Cash)

	alice.send(protocol.TypeStartGame, nil)
	assert.Equal(t, "state", alice.errorCode())
}

func TestTurnFlow(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t)
	alice, bob, aliceID, bobID, _ := lobby(t, ts)

	alice.send(protocol.TypeStartGame, nil)
	s := alice.state()
	bob.state()

	clients := map[string]*wsClient{aliceID: alice, bobID: bob}
	curID := s.CurrentPlayerID
	cur := clients[curID]
	other := alice
	if cur == alice {
		other = bob
	}

	other.send(protocol.TypeEndTurn, nil)
	assert.Equal(t, "turn_order", other.errorCode())

	other.send(protocol.TypeTrade, map[string]any{"side": "buy", "stockId": "BP", "qty": 2.5})
	assert.Equal(t, "turn_order", other.errorCode(), "turn order is checked before input")

	cur.send(protocol.TypeEndTurn, nil)
	assert.Equal(t, "validation", cur.errorCode(), "a card must be played first")

	hand := me(t, cur.last, curID).Cards
	require.NotEmpty(t, hand)

	cur.send(protocol.TypePlayCard, protocol.PlayCard{CardID: hand[0].ID, DeterminedStockID: "BP", ChosenStockID: "BP"})
	assert.Equal(t, "validation", cur.errorCode())

	cur.send(protocol.TypePlayCard, protocol.PlayCard{CardID: "missing", DeterminedStockID: "BP", ChosenStockID: "VOW"})
	assert.Equal(t, "not_owned", cur.errorCode())

	cur.send(protocol.TypePlayCard, protocol.PlayCard{CardID: hand[0].ID, DeterminedStockID: "BP", ChosenStockID: "VOW"})
	after := cur.state()
	other.state()
	assert.Equal(t, game.HandSize-1, me(t, after, curID).CardCount)

	cur.send(protocol.TypePlayCard, protocol.PlayCard{CardID: hand[1].ID, DeterminedStockID: "BP", ChosenStockID: "VOW"})
	assert.Equal(t, "state", cur.errorCode(), "one card per turn")

	cur.send(protocol.TypeTrade, map[string]any{"side": "buy", "stockId": "DB", "qty": 2.5})
	assert.Equal(t, "validation", cur.errorCode())

	cur.send(protocol.TypeTrade, map[string]any{"side": "hold", "stockId": "DB", "qty": 1})
	assert.Equal(t, "validation", cur.errorCode())

	cur.send(protocol.TypeTrade, map[string]any{"side": "sell", "stockId": "DB", "qty": 1})
	assert.Equal(t, "insufficient_shares", cur.errorCode())

	cur.send(protocol.TypeTrade, map[string]any{"side": "buy", "stockId": "DB", "qty": 1000})
	assert.Equal(t, "insufficient_funds", cur.errorCode())

	cur.send(protocol.TypeTrade, map[string]any{"side": "buy", "stockId": "DB", "qty": 1})
	bought := cur.state()
	other.state()
	assert.Equal(t, 1, me(t, bought, curID).Holdings["DB"])
	assert.Equal(t, 300-stockPrice(t, after, "DB"), me(t, bought, curID).Cash)

	cur.send(protocol.TypeTrade, map[string]any{"side": "sell", "stockId": "DB", "qty": 1})
	assert.Equal(t, "validation", cur.errorCode(), "direction is locked for the turn")

	cur.send(protocol.TypeEndTurn, nil)
	ended := other.state()
	cur.state()
	assert.NotEqual(t, curID, ended.CurrentPlayerID)
	assert.Equal(t, 1, ended.TurnIndex)
}

func TestLeaveAndCloseMarkDisconnected(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t)
	alice, bob, _, bobID, code := lobby(t, ts)

	carol := dialClient(t, ts)
	carol.send(protocol.TypeJoinLobby, protocol.JoinLobby{Code: code, Name: "Carol"})
	carolID := carol.joined().PlayerID
	carol.state()
	alice.state()
	bob.state()

	bob.send(protocol.TypeLeave, nil)
	s := alice.state()
	assert.False(t, me(t, s, bobID).Connected)
	assert.Len(t, s.Players, 3, "players are never removed")
	carol.state()

	require.NoError(t, carol.conn.Close())
	s = alice.state()
	assert.False(t, me(t, s, carolID).Connected)
}

func TestRejoinAnotherRoomDisconnectsPrevious(t *testing.T) {
	t.Parallel()
	_, ts, _ := newTestServer(t)
	alice, bob, _, bobID, _ := lobby(t, ts)

	bob.send(protocol.TypeCreateLobby, protocol.CreateLobby{Name: "Bob"})
	s := alice.state()
	assert.False(t, me(t, s, bobID).Connected)

	bj := bob.joined()
	assert.True(t, bj.IsHost)
	assert.Len(t, bob.state().Players, 1)
}

func TestFullGameIsArchived(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, ts, _ := newTestServer(t, WithArchiveDir(dir), WithTestRules(func(r *game.Rules) { r.MaxRounds = 1 }))
	alice, bob, aliceID, bobID, code := lobby(t, ts)

	alice.send(protocol.TypeStartGame, nil)
	s := alice.state()
	bob.state()

	clients := map[string]*wsClient{aliceID: alice, bobID: bob}
	for s.Phase == game.PhasePlaying {
		cur := clients[s.CurrentPlayerID]
		hand := me(t, cur.last, s.CurrentPlayerID).Cards
		require.NotEmpty(t, hand)

		cur.send(protocol.TypePlayCard, protocol.PlayCard{CardID: hand[0].ID, DeterminedStockID: "IBM", ChosenStockID: "DB"})
		alice.state()
		bob.state()

		cur.send(protocol.TypeEndTurn, nil)
		s = alice.state()
		bob.state()
	}

	assert.Equal(t, game.PhaseEnded, s.Phase)
	require.Len(t, s.FinalStandings, 2)
	assert.GreaterOrEqual(t, s.FinalStandings[0].Total, s.FinalStandings[1].Total)

	var files []string
	require.Eventually(t, func() bool {
		files, _ = filepath.Glob(filepath.Join(dir, code+"-*.json"))
		return len(files) == 1
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var rec ArchiveRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, code, rec.Code)
	assert.Equal(t, s.FinalStandings, rec.Standings)
	assert.NotEmpty(t, rec.Log)

	alice.send(protocol.TypeEndTurn, nil)
	assert.Equal(t, "state", alice.errorCode(), "ended rooms accept no actions")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func stockPrice(t *testing.T, s game.Snapshot, id market.StockID) int {
	t.Helper()
	for _, st := range s.Stocks {
		if st.ID == id {
			return st.Price
		}
	}
	t.Fatalf("stock %s not in snapshot", id)
	return 0
}
