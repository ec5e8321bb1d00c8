package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"

	"github.com/lox/borsa/internal/client"
)

// logTail is how many log lines the terminal view shows.
const logTail = 12

// SessionOptions selects what happens right after connecting.
type SessionOptions struct {
	Join   string // room code to join
	Create bool   // open a new lobby

	// ProgramOptions are appended to the Bubble Tea program options,
	// e.g. tea.WithAltScreen().
	ProgramOptions []tea.ProgramOption
}

// RunSession connects to the configured server and runs the interactive
// session on in and out until the user quits, the server goes away or ctx
// is cancelled.
func RunSession(ctx context.Context, cfg *client.ClientConfig, logger *log.Logger, opts SessionOptions, in io.Reader, out io.Writer) error {
	if cfg.UI.Theme == "plain" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	wsClient := client.NewClient(cfg.Server.URL, logger)
	renderer := client.NewRenderer(cfg.UI.Theme, logTail)
	session := client.NewSession(wsClient, renderer, cfg.Player.Name)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	programOpts := append([]tea.ProgramOption{
		tea.WithContext(runCtx),
		tea.WithInput(in),
		tea.WithOutput(out),
	}, opts.ProgramOptions...)
	program := tea.NewProgram(session, programOpts...)
	session.Attach(wsClient, program.Send)

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ConnectTimeout)*time.Second)
	defer cancel()
	if err := wsClient.Connect(connectCtx); err != nil {
		_ = wsClient.Disconnect()
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer func() { _ = wsClient.Disconnect() }()

	logger.Info("Starting La Borsa client", "server", cfg.Server.URL, "player", cfg.Player.Name)

	switch {
	case opts.Join != "":
		if err := session.Execute("join " + opts.Join); err != nil {
			return err
		}
	case opts.Create:
		if err := session.Execute("create"); err != nil {
			return err
		}
	}

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running client: %w", err)
	}
	return nil
}
