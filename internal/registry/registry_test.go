package registry

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/gameid"
	"github.com/lox/borsa/internal/randutil"
)

// fixedCodes hands out codes from a list, repeating the last one.
type fixedCodes struct {
	mu    sync.Mutex
	codes []string
}

func (f *fixedCodes) RoomCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.codes[0]
	if len(f.codes) > 1 {
		f.codes = f.codes[1:]
	}
	return c
}

func newTestRegistry(t *testing.T, codes CodeSource) (*Registry, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	src := randutil.NewSource(7)
	ids := gameid.NewGeneratorWithClock(src, clock)
	if codes == nil {
		codes = ids
	}
	env := game.Env{Rand: src, IDs: ids, Clock: clock}
	logger := log.New(io.Discard)
	return New(game.DefaultRules(), env, codes, logger), clock
}

func TestCreate(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	code, hostID, err := reg.Create("  Alice  ")
	require.NoError(t, err)
	require.NoError(t, gameid.ValidateRoomCode(code))
	assert.NotEmpty(t, hostID)
	assert.Equal(t, 1, reg.Len())

	err = reg.Do(code, func(room *game.Room) error {
		assert.Equal(t, hostID, room.HostID)
		assert.Equal(t, game.PhaseLobby, room.Phase)
		p, ok := room.Player(hostID)
		require.True(t, ok)
		assert.Equal(t, "Alice", p.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	_, _, err := reg.Create("   ")
	assert.ErrorIs(t, err, game.ErrValidation)
	assert.Equal(t, 0, reg.Len())
}

func TestCreateRetriesOnCollision(t *testing.T) {
	reg, _ := newTestRegistry(t, &fixedCodes{codes: []string{"AAAAAA", "AAAAAA", "BBBBBB"}})

	first, _, err := reg.Create("Alice")
	require.NoError(t, err)
	second, _, err := reg.Create("Bob")
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first)
	assert.Equal(t, "BBBBBB", second)
}

func TestCreateGivesUpWhenCodesExhausted(t *testing.T) {
	reg, _ := newTestRegistry(t, &fixedCodes{codes: []string{"AAAAAA"}})

	_, _, err := reg.Create("Alice")
	require.NoError(t, err)
	_, _, err = reg.Create("Bob")
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestJoin(t *testing.T) {
	reg, _ := newTestRegistry(t, &fixedCodes{codes: []string{"ABC123"}})
	code, hostID, err := reg.Create("Alice")
	require.NoError(t, err)

	bobID, isHost, err := reg.Join(" abc123 ", "Bob")
	require.NoError(t, err)
	assert.False(t, isHost)
	assert.NotEqual(t, hostID, bobID)

	s, err := reg.Get(code)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Players)
	assert.Equal(t, 2, s.Connected)
}

func TestJoinErrors(t *testing.T) {
	reg, _ := newTestRegistry(t, &fixedCodes{codes: []string{"ABC123"}})
	code, hostID, err := reg.Create("Alice")
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		user string
		want error
	}{
		{"empty code", "  ", "Bob", game.ErrValidation},
		{"empty name", code, " ", game.ErrValidation},
		{"unknown code", "ZZZZZZ", "Bob", game.ErrNotFound},
		{"short code", "ABC12", "Bob", game.ErrValidation},
		{"letter outside the alphabet", "ABC12U", "Bob", game.ErrValidation},
		{"punctuation", "AB-123", "Bob", game.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := reg.Join(tt.code, tt.user)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("started", func(t *testing.T) {
		_, _, err := reg.Join(code, "Bob")
		require.NoError(t, err)
		require.NoError(t, reg.Do(code, func(room *game.Room) error { return room.Start(hostID) }))

		_, _, err = reg.Join(code, "Carol")
		assert.ErrorIs(t, err, game.ErrValidation)
	})
}

func TestJoinFullLobby(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	code, _, err := reg.Create("P0")
	require.NoError(t, err)

	for i := 1; i < game.DefaultRules().MaxPlayers; i++ {
		_, _, err := reg.Join(code, "P")
		require.NoError(t, err)
	}
	_, _, err = reg.Join(code, "Late")
	assert.ErrorIs(t, err, game.ErrValidation)
}

func TestDoUnknownRoom(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	called := false
	err := reg.Do("NOPE00", func(*game.Room) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, game.ErrNotFound)
	assert.False(t, called)
}

func TestDoPropagatesError(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	code, _, err := reg.Create("Alice")
	require.NoError(t, err)

	boom := errors.New("boom")
	assert.ErrorIs(t, reg.Do(code, func(*game.Room) error { return boom }), boom)
}

func TestDoSerializesRoomActions(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	code, _, err := reg.Create("Alice")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Do(code, func(*game.Room) error {
				active++
				if active > maxSeen {
					maxSeen = active
				}
				time.Sleep(time.Millisecond)
				active--
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestConcurrentCreateAndJoin(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	var wg sync.WaitGroup
	codes := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _, err := reg.Create("Host")
			if assert.NoError(t, err) {
				codes <- code
			}
		}()
	}
	wg.Wait()
	close(codes)

	var created []string
	for code := range codes {
		created = append(created, code)
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			_, _, err := reg.Join(code, "Guest")
			assert.NoError(t, err)
		}(code)
	}
	wg.Wait()

	assert.Equal(t, 20, reg.Len())
	for _, code := range created {
		s, err := reg.Get(code)
		require.NoError(t, err)
		assert.Equal(t, 2, s.Players)
	}
}

func TestSweep(t *testing.T) {
	reg, clock := newTestRegistry(t, &fixedCodes{codes: []string{"ACT000", "NAP000", "END000"}})
	ttl := time.Hour

	live, _, err := reg.Create("Alice")
	require.NoError(t, err)
	idle, idleHost, err := reg.Create("Bob")
	require.NoError(t, err)
	done, doneHost, err := reg.Create("Carol")
	require.NoError(t, err)

	require.NoError(t, reg.Do(idle, func(room *game.Room) error {
		room.Disconnect(idleHost)
		return nil
	}))

	_, _, err = reg.Join(done, "Dave")
	require.NoError(t, err)
	require.NoError(t, reg.Do(done, func(room *game.Room) error {
		require.NoError(t, room.Start(doneHost))
		for room.Phase == game.PhasePlaying {
			id := room.CurrentPlayerID()
			p, _ := room.Player(id)
			require.NoError(t, room.PlayCard(id, p.Hand[0].ID, "BP", "VOW"))
			require.NoError(t, room.EndTurn(id))
		}
		return nil
	}))

	assert.Equal(t, 0, reg.Sweep(clock.Now(), ttl), "nothing is older than the ttl yet")

	clock.Advance(2 * ttl)
	assert.Equal(t, 2, reg.Sweep(clock.Now(), ttl))

	_, err = reg.Get(live)
	assert.NoError(t, err, "a room with a connected player survives")
	_, err = reg.Get(idle)
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = reg.Get(done)
	assert.ErrorIs(t, err, game.ErrNotFound)
}

func TestSweepDoesNotBlockOtherRooms(t *testing.T) {
	reg, clock := newTestRegistry(t, &fixedCodes{codes: []string{"BEE000", "NEW000"}})

	busy, _, err := reg.Create("Alice")
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = reg.Do(busy, func(*game.Room) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	swept := make(chan int)
	go func() { swept <- reg.Sweep(clock.Now(), time.Hour) }()
	// Let the sweep reach the held room.
	time.Sleep(50 * time.Millisecond)

	created := make(chan error)
	go func() {
		_, _, err := reg.Create("Bob")
		created <- err
	}()

	select {
	case err := <-created:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("create blocked while a sweep waited on a busy room")
	}

	close(release)
	assert.Equal(t, 0, <-swept)
	assert.Equal(t, 2, reg.Len())
}
