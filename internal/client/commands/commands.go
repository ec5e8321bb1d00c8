package commands

import (
	"fmt"
	"strings"

	"github.com/lox/borsa/internal/client"
)

// GlobalFlags holds common configuration for client commands
type GlobalFlags struct {
	Config   string `short:"c" long:"config" default:"borsa-client.hcl" help:"Path to HCL configuration file"`
	Server   string `short:"s" long:"server" help:"Server URL to connect to (overrides config)"`
	Player   string `short:"p" long:"player" help:"Player name (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	LogFile  string `long:"log-file" help:"Log file path (overrides config)"`
	Theme    string `long:"theme" help:"Colour theme: default or plain (overrides config)"`
}

// LoadConfig loads the client configuration and applies flag overrides
func LoadConfig(flags *GlobalFlags) (*client.ClientConfig, error) {
	cfg, err := client.LoadClientConfig(flags.Config)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if flags.Server != "" {
		cfg.Server.URL = flags.Server
	}
	if flags.Player != "" {
		cfg.Player.Name = strings.TrimSpace(flags.Player)
	}
	if flags.LogLevel != "" {
		cfg.UI.LogLevel = flags.LogLevel
	}
	if flags.LogFile != "" {
		cfg.UI.LogFile = flags.LogFile
	}
	if flags.Theme != "" {
		cfg.UI.Theme = flags.Theme
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
