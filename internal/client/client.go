package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/market"
	"github.com/lox/borsa/internal/protocol"
)

// Client represents a WebSocket client for a La Borsa server
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan []byte
	receive   chan *protocol.Envelope
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	connected bool
	roomCode  string
	playerID  string
	state     *game.Snapshot
	closeOnce sync.Once

	// Event handlers
	eventHandlers map[protocol.MessageType][]EventHandler
}

// EventHandler is a function that handles incoming events
type EventHandler func(*protocol.Envelope)

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		serverURL:     serverURL,
		send:          make(chan []byte, 256),
		receive:       make(chan *protocol.Envelope, 256),
		logger:        logger.WithPrefix("client"),
		ctx:           ctx,
		cancel:        cancel,
		eventHandlers: make(map[protocol.MessageType][]EventHandler),
	}
	c.AddEventHandler(protocol.TypeJoined, c.onJoined)
	c.AddEventHandler(protocol.TypeRoomState, c.onRoomState)
	return c
}

// WebSocketURL turns an http(s) or ws(s) base URL into the /ws endpoint
func WebSocketURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	wsURL, err := WebSocketURL(c.serverURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	go c.eventProcessor()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close() // Ignore close errors during shutdown
			c.connected = false
		}

		c.logger.Info("Disconnected from server")
	})
	return nil
}

// Done is closed once the client has been disconnected
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SendMessage frames payload and queues it for the server
func (c *Client) SendMessage(t protocol.MessageType, payload any) error {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return fmt.Errorf("send buffer full")
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		_ = c.Disconnect()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Dropping malformed message", "error", err)
			continue
		}
		c.logger.Debug("Received message", "type", env.Type)

		select {
		case c.receive <- env:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// eventProcessor dispatches incoming messages in arrival order
func (c *Client) eventProcessor() {
	for {
		select {
		case env := <-c.receive:
			c.handleMessage(env)
		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage dispatches messages to registered handlers
func (c *Client) handleMessage(env *protocol.Envelope) {
	c.mu.RLock()
	handlers := append([]EventHandler(nil), c.eventHandlers[env.Type]...)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("No handler for message type", "type", env.Type)
		return
	}
	for _, handler := range handlers {
		handler(env)
	}
}

// AddEventHandler adds an event handler for a specific message type
func (c *Client) AddEventHandler(messageType protocol.MessageType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventHandlers[messageType] = append(c.eventHandlers[messageType], handler)
}

func (c *Client) onJoined(env *protocol.Envelope) {
	var j protocol.Joined
	if err := env.DecodePayload(&j); err != nil {
		c.logger.Warn("Bad JOINED payload", "error", err)
		return
	}
	c.mu.Lock()
	c.roomCode, c.playerID = j.RoomCode, j.PlayerID
	c.state = nil
	c.mu.Unlock()
}

func (c *Client) onRoomState(env *protocol.Envelope) {
	var s game.Snapshot
	if err := env.DecodePayload(&s); err != nil {
		c.logger.Warn("Bad ROOM_STATE payload", "error", err)
		return
	}
	c.mu.Lock()
	c.state = &s
	c.mu.Unlock()
}

// CreateLobby opens a new room hosted by name
func (c *Client) CreateLobby(name string) error {
	return c.SendMessage(protocol.TypeCreateLobby, protocol.CreateLobby{Name: name})
}

// JoinLobby joins the room with the given code
func (c *Client) JoinLobby(code, name string) error {
	return c.SendMessage(protocol.TypeJoinLobby, protocol.JoinLobby{Code: code, Name: name})
}

// StartGame asks the server to start the current room
func (c *Client) StartGame() error {
	return c.SendMessage(protocol.TypeStartGame, nil)
}

// PlayCard plays a card on two stocks
func (c *Client) PlayCard(cardID string, determined, chosen market.StockID) error {
	return c.SendMessage(protocol.TypePlayCard, protocol.PlayCard{
		CardID:            cardID,
		DeterminedStockID: determined,
		ChosenStockID:     chosen,
	})
}

// Trade buys or sells qty shares of stock
func (c *Client) Trade(side game.Side, stock market.StockID, qty int) error {
	return c.SendMessage(protocol.TypeTrade, protocol.Trade{
		Side:    string(side),
		StockID: stock,
		Qty:     json.RawMessage(strconv.Itoa(qty)),
	})
}

// EndTurn passes the turn on
func (c *Client) EndTurn() error {
	return c.SendMessage(protocol.TypeEndTurn, nil)
}

// Leave leaves the current room
func (c *Client) Leave() error {
	c.mu.Lock()
	c.roomCode, c.playerID, c.state = "", "", nil
	c.mu.Unlock()
	return c.SendMessage(protocol.TypeLeave, nil)
}

// Identity returns the room code and player id of the last successful join
func (c *Client) Identity() (roomCode, playerID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode, c.playerID
}

// State returns the most recent room snapshot, if any
func (c *Client) State() (game.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return game.Snapshot{}, false
	}
	return *c.state, true
}

// WaitForMessage waits for a specific message type with timeout
func (c *Client) WaitForMessage(messageType protocol.MessageType, timeout time.Duration) (*protocol.Envelope, error) {
	responseChan := make(chan *protocol.Envelope, 1)

	c.AddEventHandler(messageType, func(env *protocol.Envelope) {
		select {
		case responseChan <- env:
		default:
		}
	})

	select {
	case env := <-responseChan:
		return env, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for %s", messageType)
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}
