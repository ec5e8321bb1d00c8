package server

import (
	"maps"
	"sync"
	"time"

	"github.com/lox/borsa/internal/protocol"
)

// Stats counts server activity since startup. It never records room codes
// or player identities.
type Stats struct {
	mu            sync.RWMutex
	startedAt     time.Time
	accepted      map[protocol.MessageType]int
	rejected      map[string]int // by error code
	gamesStarted  int
	gamesFinished int
}

// StatsSnapshot is the JSON form served on /stats.
type StatsSnapshot struct {
	UptimeSeconds int64                        `json:"uptimeSeconds"`
	Accepted      map[protocol.MessageType]int `json:"accepted"`
	Rejected      map[string]int               `json:"rejected"`
	GamesStarted  int                          `json:"gamesStarted"`
	GamesFinished int                          `json:"gamesFinished"`
	Rooms         int                          `json:"rooms"`
	Connections   int                          `json:"connections"`
}

func newStats(now time.Time) *Stats {
	return &Stats{
		startedAt: now,
		accepted:  make(map[protocol.MessageType]int),
		rejected:  make(map[string]int),
	}
}

func (s *Stats) recordAccepted(t protocol.MessageType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted[t]++
}

func (s *Stats) recordRejected(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[code]++
}

func (s *Stats) recordGameStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gamesStarted++
}

func (s *Stats) recordGameFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gamesFinished++
}

// Snapshot copies the counters as of now.
func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StatsSnapshot{
		UptimeSeconds: int64(now.Sub(s.startedAt) / time.Second),
		Accepted:      maps.Clone(s.accepted),
		Rejected:      maps.Clone(s.rejected),
		GamesStarted:  s.gamesStarted,
		GamesFinished: s.gamesFinished,
	}
}
