package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lox/borsa/cmd/borsa/shared"
	"github.com/lox/borsa/internal/client/commands"
)

// ClientCmd runs the interactive terminal client
type ClientCmd struct {
	commands.GlobalFlags `embed:""`

	Join   string `help:"Room code to join after connecting"`
	Create bool   `help:"Create a new lobby after connecting"`
}

func (c *ClientCmd) Run() error {
	cfg, err := commands.LoadConfig(&c.GlobalFlags)
	if err != nil {
		return err
	}

	// The terminal belongs to the game view, so logs only go to the file.
	logger, closer, err := shared.SetupLogger(shared.LogOptions{
		Level: cfg.UI.LogLevel,
		File:  cfg.UI.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := shared.SetupSignalHandler(logger)
	defer cancel()

	return commands.RunSession(ctx, cfg, logger, commands.SessionOptions{
		Join:   c.Join,
		Create: c.Create,

		ProgramOptions: []tea.ProgramOption{
			tea.WithAltScreen(),
		},
	}, os.Stdin, os.Stdout)
}
