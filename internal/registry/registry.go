// Package registry maps room codes to rooms and serializes access to each
// room.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/gameid"
)

// maxCodeAttempts bounds the retries when a generated code collides.
const maxCodeAttempts = 64

// ErrCodeSpaceExhausted is returned when no free room code could be found.
var ErrCodeSpaceExhausted = errors.New("registry: could not allocate a unique room code")

// CodeSource hands out candidate room codes.
type CodeSource interface {
	RoomCode() string
}

type entry struct {
	mu      sync.Mutex
	room    *game.Room
	removed bool
}

// Summary is lightweight room metadata for logging and health checks.
type Summary struct {
	Code      string     `json:"code"`
	Phase     game.Phase `json:"phase"`
	Players   int        `json:"players"`
	Connected int        `json:"connected"`
	Round     int        `json:"round"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Registry owns every live room. Actions on one room run one at a time;
// actions on different rooms run in parallel.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*entry
	rules  game.Rules
	env    game.Env
	codes  CodeSource
	logger *log.Logger
}

// New creates an empty registry. Every room it creates uses rules and env.
func New(rules game.Rules, env game.Env, codes CodeSource, logger *log.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*entry),
		rules:  rules,
		env:    env,
		codes:  codes,
		logger: logger.WithPrefix("registry"),
	}
}

// Create opens a new lobby with hostName as its host and returns the room
// code and the host's player id.
func (r *Registry) Create(hostName string) (code, playerID string, err error) {
	if _, err := game.NormalizeName(hostName, r.rules.MaxNameLength); err != nil {
		return "", "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		candidate := r.codes.RoomCode()
		if _, taken := r.rooms[candidate]; taken {
			r.logger.Debug("Room code collision", "code", candidate, "attempt", attempt)
			continue
		}

		room := game.NewRoom(candidate, r.rules, r.env)
		host, err := room.Join(hostName)
		if err != nil {
			return "", "", err
		}
		r.rooms[candidate] = &entry{room: room}
		r.logger.Info("Room created", "code", candidate, "host", host.Name, "rooms", len(r.rooms))
		return candidate, host.ID, nil
	}
	return "", "", ErrCodeSpaceExhausted
}

// Join adds a player called name to the lobby identified by code.
func (r *Registry) Join(code, name string) (playerID string, isHost bool, err error) {
	code = gameid.NormalizeRoomCode(code)
	if code == "" {
		return "", false, game.Validationf("room code is required")
	}
	if err := gameid.ValidateRoomCode(code); err != nil {
		return "", false, game.Validationf("%v", err)
	}
	if _, err := game.NormalizeName(name, r.rules.MaxNameLength); err != nil {
		return "", false, err
	}

	err = r.Do(code, func(room *game.Room) error {
		p, err := room.Join(name)
		if err != nil {
			return err
		}
		playerID = p.ID
		isHost = p.ID == room.HostID
		r.logger.Info("Player joined", "code", code, "player", p.Name, "players", room.PlayerCount())
		return nil
	})
	return playerID, isHost, err
}

// Do runs fn with exclusive access to the room identified by code. The
// room must not be retained after fn returns.
func (r *Registry) Do(code string, fn func(*game.Room) error) error {
	code = gameid.NormalizeRoomCode(code)

	r.mu.RLock()
	e, ok := r.rooms[code]
	r.mu.RUnlock()
	if !ok {
		return game.NotFoundf("room %s not found", code)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return game.NotFoundf("room %s not found", code)
	}
	return fn(e.room)
}

// Get returns a summary of the room identified by code.
func (r *Registry) Get(code string) (Summary, error) {
	var s Summary
	err := r.Do(code, func(room *game.Room) error {
		s = summarize(room)
		return nil
	})
	return s, err
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Sweep removes rooms nobody can use any more: ended rooms that finished
// more than ttl ago, and rooms with no connected player created more than
// ttl ago. It returns the number of rooms removed.
func (r *Registry) Sweep(now time.Time, ttl time.Duration) int {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.rooms))
	for code, e := range r.rooms {
		entries[code] = e
	}
	r.mu.RUnlock()

	// Rooms are checked under their own lock so a busy room only delays
	// its own removal.
	var stale []string
	for code, e := range entries {
		e.mu.Lock()
		if !e.removed && expired(e.room, now, ttl) {
			e.removed = true
			stale = append(stale, code)
			r.logger.Info("Room swept", "code", code, "phase", e.room.Phase)
		}
		e.mu.Unlock()
	}
	if len(stale) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range stale {
		if r.rooms[code] == entries[code] {
			delete(r.rooms, code)
		}
	}
	return len(stale)
}

func expired(room *game.Room, now time.Time, ttl time.Duration) bool {
	if room.Phase == game.PhaseEnded {
		return now.Sub(room.EndedAt) > ttl
	}
	return room.ConnectedCount() == 0 && now.Sub(room.CreatedAt) > ttl
}

func summarize(room *game.Room) Summary {
	return Summary{
		Code:      room.Code,
		Phase:     room.Phase,
		Players:   room.PlayerCount(),
		Connected: room.ConnectedCount(),
		Round:     room.Round,
		CreatedAt: room.CreatedAt,
	}
}
