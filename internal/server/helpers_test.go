package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/gameid"
	"github.com/lox/borsa/internal/protocol"
	"github.com/lox/borsa/internal/randutil"
	"github.com/lox/borsa/internal/registry"
)

// testLogger creates a logger that discards output for tests
func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type testServerConfig struct {
	rules      game.Rules
	archiveDir string
}

// TestServerOption configures newTestServer
type TestServerOption func(*testServerConfig)

func WithTestRules(fn func(*game.Rules)) TestServerOption {
	return func(c *testServerConfig) { fn(&c.rules) }
}

func WithArchiveDir(dir string) TestServerOption {
	return func(c *testServerConfig) { c.archiveDir = dir }
}

// newTestServer starts the handler behind httptest with a mock clock.
func newTestServer(t *testing.T, opts ...TestServerOption) (*Server, *httptest.Server, *quartz.Mock) {
	t.Helper()

	cfg := &testServerConfig{rules: game.DefaultRules()}
	for _, opt := range opts {
		opt(cfg)
	}

	clock := quartz.NewMock(t)
	src := randutil.NewSource(42)
	ids := gameid.NewGeneratorWithClock(src, clock)
	logger := testLogger()

	reg := registry.New(cfg.rules, game.Env{Rand: src, IDs: ids, Clock: clock}, ids, logger)
	srv := NewServer(reg, logger, Options{Clock: clock, ArchiveDir: cfg.archiveDir})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, clock
}

// wsClient is a raw websocket peer speaking the envelope protocol.
type wsClient struct {
	t     *testing.T
	conn  *websocket.Conn
	hello protocol.Hello
	last  game.Snapshot // most recent ROOM_STATE received
}

func dialClient(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "failed to dial %s", url)
	t.Cleanup(func() { _ = conn.Close() })

	c := &wsClient{t: t, conn: conn}
	require.NoError(t, c.expect(protocol.TypeHello).DecodePayload(&c.hello))
	return c
}

func (c *wsClient) send(typ protocol.MessageType, payload any) {
	c.t.Helper()
	frame, err := protocol.Encode(typ, payload)
	require.NoError(c.t, err)
	c.sendRaw(string(frame))
}

func (c *wsClient) sendRaw(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (c *wsClient) read() *protocol.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	env, err := protocol.Decode(data)
	require.NoError(c.t, err)
	return env
}

func (c *wsClient) expect(typ protocol.MessageType) *protocol.Envelope {
	c.t.Helper()
	env := c.read()
	require.Equal(c.t, typ, env.Type, "payload: %s", env.Payload)
	return env
}

func (c *wsClient) joined() protocol.Joined {
	c.t.Helper()
	var j protocol.Joined
	require.NoError(c.t, c.expect(protocol.TypeJoined).DecodePayload(&j))
	return j
}

func (c *wsClient) state() game.Snapshot {
	c.t.Helper()
	var s game.Snapshot
	require.NoError(c.t, c.expect(protocol.TypeRoomState).DecodePayload(&s))
	c.last = s
	return s
}

func (c *wsClient) errorCode() string {
	c.t.Helper()
	var e protocol.Error
	require.NoError(c.t, c.expect(protocol.TypeError).DecodePayload(&e))
	require.NotEmpty(c.t, e.Message)
	return e.Code
}

// me returns the viewer's own entry in a snapshot.
func me(t *testing.T, s game.Snapshot, playerID string) game.PlayerView {
	t.Helper()
	for _, p := range s.Players {
		if p.ID == playerID {
			return p
		}
	}
	t.Fatalf("player %s not in snapshot", playerID)
	return game.PlayerView{}
}

// lobby opens a room with alice as host and bob as guest, draining the
// create and join broadcasts.
func lobby(t *testing.T, ts *httptest.Server) (alice, bob *wsClient, aliceID, bobID, code string) {
	t.Helper()

	alice = dialClient(t, ts)
	alice.send(protocol.TypeCreateLobby, protocol.CreateLobby{Name: "Alice"})
	aj := alice.joined()
	alice.state()

	bob = dialClient(t, ts)
	bob.send(protocol.TypeJoinLobby, protocol.JoinLobby{Code: strings.ToLower(aj.RoomCode), Name: "Bob"})
	bj := bob.joined()
	bob.state()
	alice.state()

	return alice, bob, aj.PlayerID, bj.PlayerID, aj.RoomCode
}
