package client

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/borsa/internal/game"
)

// Styles are the lipgloss styles the renderer draws with.
type Styles struct {
	Header  lipgloss.Style
	Price   lipgloss.Style
	Current lipgloss.Style
	Muted   lipgloss.Style
	Card    lipgloss.Style
	Log     lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
}

var themes = map[string]Styles{
	"default": {
		Header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true),
		Price: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")).
			Bold(true),
		Current: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")),
		Card: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFEAA7")),
		Log: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")),
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true),
	},
	"plain": {},
}

// Renderer draws room snapshots as text.
type Renderer struct {
	styles  Styles
	logTail int
}

// NewRenderer returns a renderer for the named theme, falling back to the
// default theme for unknown names.
func NewRenderer(theme string, logTail int) *Renderer {
	styles, ok := themes[theme]
	if !ok {
		styles = themes["default"]
	}
	return &Renderer{styles: styles, logTail: logTail}
}

// Render draws s as seen by viewerID.
func (r *Renderer) Render(s game.Snapshot, viewerID string) string {
	var b strings.Builder

	header := fmt.Sprintf(" La Borsa · %s · %s ", s.Code, s.Phase)
	if s.Phase != game.PhaseLobby {
		header += fmt.Sprintf("· round %d/%d ", min(s.Round+1, s.MaxRounds), s.MaxRounds)
	}
	b.WriteString(r.styles.Header.Render(header))
	b.WriteString("\n\n")

	prices := make([]string, len(s.Stocks))
	for i, st := range s.Stocks {
		prices[i] = fmt.Sprintf("%s %s", st.ID, r.styles.Price.Render(fmt.Sprintf("$%d", st.Price)))
	}
	b.WriteString("Stocks:  " + strings.Join(prices, "  ") + "\n\n")

	b.WriteString("Players:\n")
	for _, p := range s.Players {
		b.WriteString(r.playerLine(s, p, viewerID))
		b.WriteString("\n")
	}

	for _, p := range s.Players {
		if p.ID != viewerID || len(p.Cards) == 0 {
			continue
		}
		b.WriteString("\nYour hand:\n")
		for i, c := range p.Cards {
			line := fmt.Sprintf("  %d) %s  %s", i+1, c.Type, c.Type.Describe())
			b.WriteString(r.styles.Card.Render(line) + "\n")
		}
	}

	if len(s.Logs) > 0 {
		b.WriteString("\nLog:\n")
		logs := s.Logs
		if r.logTail > 0 && len(logs) > r.logTail {
			logs = logs[len(logs)-r.logTail:]
		}
		for _, e := range logs {
			b.WriteString(r.styles.Log.Render("  "+e.Message) + "\n")
		}
	}

	if len(s.FinalStandings) > 0 {
		b.WriteString("\nFinal standings:\n")
		for i, st := range s.FinalStandings {
			line := fmt.Sprintf("  %d. %s $%d (cash $%d, stocks $%d)", i+1, st.Name, st.Total, st.Cash, st.StockValue)
			if i == 0 {
				line = r.styles.Success.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

func (r *Renderer) playerLine(s game.Snapshot, p game.PlayerView, viewerID string) string {
	marker := "  "
	if p.ID == s.CurrentPlayerID {
		marker = "▶ "
	}

	name := p.Name
	var tags []string
	if p.IsHost {
		tags = append(tags, "host")
	}
	if p.ID == viewerID {
		tags = append(tags, "you")
	}
	if len(tags) > 0 {
		name += " (" + strings.Join(tags, ", ") + ")"
	}

	holdings := make([]string, 0, len(s.Stocks))
	for _, st := range s.Stocks {
		holdings = append(holdings, fmt.Sprintf("%s %d", st.ID, p.Holdings[st.ID]))
	}

	line := fmt.Sprintf("%s%-24s cash $%-5d %s  cards %d", marker, name, p.Cash, strings.Join(holdings, " "), p.CardCount)
	switch {
	case !p.Connected:
		return r.styles.Muted.Render(line + "  [offline]")
	case p.ID == s.CurrentPlayerID:
		return r.styles.Current.Render(line)
	default:
		return line
	}
}

// RenderError formats a server error.
func (r *Renderer) RenderError(code, message string) string {
	return r.styles.Error.Render(fmt.Sprintf("error (%s): %s", code, message))
}

// RenderInfo formats a status message.
func (r *Renderer) RenderInfo(message string) string {
	return r.styles.Muted.Render(message)
}
