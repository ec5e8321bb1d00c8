package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/market"
	"github.com/lox/borsa/internal/protocol"
)

// ErrQuit is returned by Execute when the user asks to leave the program.
var ErrQuit = errors.New("quit")

// maxNotices is how many status and error lines stay under the room view.
const maxNotices = 20

// Actions is what a session needs from a connected client.
type Actions interface {
	CreateLobby(name string) error
	JoinLobby(code, name string) error
	StartGame() error
	PlayCard(cardID string, determined, chosen market.StockID) error
	Trade(side game.Side, stock market.StockID, qty int) error
	EndTurn() error
	Leave() error
	Identity() (roomCode, playerID string)
	State() (game.Snapshot, bool)
}

const helpText = `Commands:
  create [name]                 open a new lobby
  join <code> [name]            join a lobby by code
  start                         start the game (host only)
  play <n> <determined> <chosen> play card n of your hand
  buy <stock> <qty>             buy shares
  sell <stock> <qty>            sell shares
  end                           end your turn
  leave                         leave the room
  state                         redraw the room
  quit                          exit`

// roomStateMsg tells the model a fresh snapshot is available.
type roomStateMsg struct{}

// noticeMsg is a rendered status or error line.
type noticeMsg struct{ text string }

// disconnectedMsg ends the program once the server goes away.
type disconnectedMsg struct{}

// Session is the Bubble Tea model for the terminal client: the current room
// and recent notices in a scrolling viewport above a command input.
type Session struct {
	actions  Actions
	renderer *Renderer
	name     string

	viewport viewport.Model
	input    textinput.Model

	room     string
	notices  []string
	quitting bool
}

// NewSession creates a session. name is used when a create or join command
// omits one.
func NewSession(actions Actions, renderer *Renderer, name string) *Session {
	// Resized when the first WindowSizeMsg arrives
	vp := viewport.New(100, 30)

	ti := textinput.New()
	ti.Placeholder = "type a command, or help"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 100
	ti.Prompt = "> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)

	return &Session{
		actions:  actions,
		renderer: renderer,
		name:     name,
		viewport: vp,
		input:    ti,
	}
}

// Attach forwards server messages from c into the program through send,
// usually (*tea.Program).Send.
func (s *Session) Attach(c *Client, send func(tea.Msg)) {
	c.AddEventHandler(protocol.TypeHello, func(*protocol.Envelope) {
		send(noticeMsg{s.renderer.RenderInfo("Connected. Type 'help' for commands.")})
	})
	c.AddEventHandler(protocol.TypeJoined, func(env *protocol.Envelope) {
		var j protocol.Joined
		if err := env.DecodePayload(&j); err == nil {
			send(noticeMsg{s.renderer.RenderInfo(fmt.Sprintf("Joined room %s.", j.RoomCode))})
		}
	})
	c.AddEventHandler(protocol.TypeRoomState, func(*protocol.Envelope) {
		send(roomStateMsg{})
	})
	c.AddEventHandler(protocol.TypeError, func(env *protocol.Envelope) {
		var e protocol.Error
		if err := env.DecodePayload(&e); err == nil {
			send(noticeMsg{s.renderer.RenderError(e.Code, e.Message)})
		}
	})

	go func() {
		<-c.Done()
		send(disconnectedMsg{})
	}()
}

// Init implements tea.Model.
func (s *Session) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (s *Session) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.viewport.Width = msg.Width
		s.viewport.Height = max(msg.Height-2, 1)
		s.input.Width = max(msg.Width-len(s.input.Prompt)-1, 1)
		s.refreshViewport()

	case roomStateMsg:
		s.redraw()

	case noticeMsg:
		s.notify(msg.text)

	case disconnectedMsg:
		s.notify(s.renderer.RenderInfo("Disconnected from server."))
		s.quitting = true
		return s, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			s.quitting = true
			return s, tea.Quit
		case "enter":
			line := strings.TrimSpace(s.input.Value())
			s.input.SetValue("")
			err := s.Execute(line)
			if errors.Is(err, ErrQuit) {
				s.quitting = true
				return s, tea.Quit
			}
			if err != nil {
				s.notify(s.renderer.RenderError("input", err.Error()))
			}
			return s, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			s.viewport, cmd = s.viewport.Update(msg)
			return s, cmd
		}
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

// View implements tea.Model.
func (s *Session) View() string {
	if s.quitting {
		return ""
	}
	return s.viewport.View() + "\n" + s.input.View()
}

// Execute runs one command line.
func (s *Session) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		s.notify(helpText)
		return nil

	case "quit", "exit":
		return ErrQuit

	case "create":
		name, err := s.nameArg(args, 0)
		if err != nil {
			return err
		}
		return s.actions.CreateLobby(name)

	case "join":
		if len(args) < 1 {
			return fmt.Errorf("usage: join <code> [name]")
		}
		name, err := s.nameArg(args, 1)
		if err != nil {
			return err
		}
		return s.actions.JoinLobby(args[0], name)

	case "start":
		return s.actions.StartGame()

	case "play":
		if len(args) != 3 {
			return fmt.Errorf("usage: play <n> <determined> <chosen>")
		}
		card, err := s.cardAt(args[0])
		if err != nil {
			return err
		}
		return s.actions.PlayCard(card.ID, stockArg(args[1]), stockArg(args[2]))

	case "buy", "sell":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s <stock> <qty>", cmd)
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil || qty <= 0 {
			return fmt.Errorf("quantity must be a positive whole number")
		}
		return s.actions.Trade(game.Side(cmd), stockArg(args[0]), qty)

	case "end":
		return s.actions.EndTurn()

	case "leave":
		return s.actions.Leave()

	case "state":
		s.redraw()
		return nil

	default:
		return fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
}

func (s *Session) nameArg(args []string, i int) (string, error) {
	if len(args) > i {
		return strings.Join(args[i:], " "), nil
	}
	if s.name != "" {
		return s.name, nil
	}
	return "", fmt.Errorf("a player name is required")
}

// cardAt resolves a 1-based hand position to a card.
func (s *Session) cardAt(arg string) (game.Card, error) {
	snap, ok := s.actions.State()
	if !ok {
		return game.Card{}, fmt.Errorf("you are not in a game")
	}
	_, playerID := s.actions.Identity()

	n, err := strconv.Atoi(arg)
	if err != nil {
		return game.Card{}, fmt.Errorf("card must be a number")
	}
	for _, p := range snap.Players {
		if p.ID != playerID {
			continue
		}
		if n < 1 || n > len(p.Cards) {
			return game.Card{}, fmt.Errorf("card must be between 1 and %d", len(p.Cards))
		}
		return p.Cards[n-1], nil
	}
	return game.Card{}, fmt.Errorf("you are not in a game")
}

func stockArg(arg string) market.StockID {
	return market.StockID(strings.ToUpper(arg))
}

// redraw renders the latest snapshot, if there is one.
func (s *Session) redraw() {
	snap, ok := s.actions.State()
	if !ok {
		return
	}
	_, playerID := s.actions.Identity()
	s.room = s.renderer.Render(snap, playerID)
	s.refreshViewport()
}

func (s *Session) notify(text string) {
	s.notices = append(s.notices, text)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	s.refreshViewport()
}

func (s *Session) refreshViewport() {
	var b strings.Builder
	if s.room != "" {
		b.WriteString(s.room)
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(s.notices, "\n"))
	s.viewport.SetContent(b.String())
	s.viewport.GotoBottom()
}
