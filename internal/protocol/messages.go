package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/market"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Client -> Server
	TypeCreateLobby MessageType = "CREATE_LOBBY"
	TypeJoinLobby   MessageType = "JOIN_LOBBY"
	TypeStartGame   MessageType = "START_GAME"
	TypePlayCard    MessageType = "PLAY_CARD"
	TypeTrade       MessageType = "TRADE"
	TypeEndTurn     MessageType = "END_TURN"
	TypeLeave       MessageType = "LEAVE"

	// Server -> Client
	TypeHello     MessageType = "HELLO"
	TypeJoined    MessageType = "JOINED"
	TypeRoomState MessageType = "ROOM_STATE"
	TypeError     MessageType = "ERROR"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// MaxQuantity caps the share count of a single trade.
const MaxQuantity = 1_000_000

// Client -> Server Messages

// CreateLobby opens a new room with the sender as host
type CreateLobby struct {
	Name string `json:"name"`
}

// JoinLobby joins an existing room by code
type JoinLobby struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// PlayCard plays one card from the sender's hand
type PlayCard struct {
	CardID            string         `json:"cardId"`
	DeterminedStockID market.StockID `json:"determinedStockId"`
	ChosenStockID     market.StockID `json:"chosenStockId"`
}

// Trade buys or sells shares. Qty is kept raw so that only well-formed
// integers are accepted.
type Trade struct {
	Side    string          `json:"side"`
	StockID market.StockID  `json:"stockId"`
	Qty     json.RawMessage `json:"qty"`
}

// Quantity returns the share count, rejecting anything that is not a
// positive JSON integer.
func (t Trade) Quantity() (int, error) {
	raw := bytes.TrimSpace(t.Qty)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, game.Validationf("quantity is required")
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, game.Validationf("quantity must be a positive integer, got %s", raw)
	}
	if n > MaxQuantity {
		return 0, game.Validationf("quantity must be at most %d", MaxQuantity)
	}
	return int(n), nil
}

// Server -> Client Messages

// Hello is sent once when a connection opens
type Hello struct {
	ServerTime int64 `json:"serverTime"` // unix millis
}

// Joined confirms a successful create or join
type Joined struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	IsHost   bool   `json:"isHost"`
}

// RoomState is the per-recipient projection of a room
type RoomState = game.Snapshot

// Error is sent only to the connection whose action failed
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeInternal is reported for failures that are not game errors.
const CodeInternal = "internal"

// NewError converts err into an ERROR payload carrying its kind.
func NewError(err error) Error {
	code := string(game.KindOf(err))
	if code == "" {
		code = CodeInternal
	}
	return Error{Code: code, Message: err.Error()}
}
