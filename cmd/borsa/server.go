package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/coder/quartz"

	"github.com/lox/borsa/cmd/borsa/shared"
	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/gameid"
	"github.com/lox/borsa/internal/randutil"
	"github.com/lox/borsa/internal/registry"
	"github.com/lox/borsa/internal/server"
)

// Streams derived from --seed.
const (
	seedStreamDeals = iota
	seedStreamIDs
)

// ServerCmd runs the game server
type ServerCmd struct {
	Config     string `short:"c" default:"borsa.hcl" help:"Path to HCL configuration file"`
	Addr       string `short:"a" help:"Server address to bind to (overrides config)"`
	LogLevel   string `short:"l" help:"Log level (overrides config)"`
	LogFile    string `help:"Rotated log file (overrides config)"`
	ArchiveDir string `help:"Directory for finished game records (overrides config)"`
	Seed       *int64 `help:"Deterministic RNG seed for deals and identifiers (optional)"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", c.Addr, err)
		}
		if cfg.Server.Port, err = strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid port %q: %w", port, err)
		}
		cfg.Server.Address = host
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.LogFile != "" {
		cfg.Server.LogFile = c.LogFile
	}
	if c.ArchiveDir != "" {
		cfg.Server.ArchiveDir = c.ArchiveDir
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := shared.SetupLogger(shared.LogOptions{
		Level:   cfg.Server.LogLevel,
		File:    cfg.Server.LogFile,
		Console: true,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ttl, err := cfg.RoomTTL()
	if err != nil {
		return err
	}
	interval, err := cfg.SweepInterval()
	if err != nil {
		return err
	}

	clock := quartz.NewReal()

	// Without a seed, identifiers and room codes come from crypto/rand so
	// codes cannot be predicted.
	var ids *gameid.Generator
	seed := time.Now().UnixNano()
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info("Using deterministic seed", "seed", seed)
		ids = gameid.NewGeneratorWithClock(randutil.NewSource(randutil.DeriveSeed(seed, seedStreamIDs)), clock)
	} else {
		ids = gameid.NewGeneratorWithClock(nil, clock)
	}

	rules := cfg.GameRules()
	env := game.Env{
		Rand:  randutil.NewSource(randutil.DeriveSeed(seed, seedStreamDeals)),
		IDs:   ids,
		Clock: clock,
	}
	reg := registry.New(rules, env, ids, logger)

	srv := server.NewServer(reg, logger, server.Options{
		Clock:         clock,
		ArchiveDir:    cfg.Server.ArchiveDir,
		RoomTTL:       ttl,
		SweepInterval: interval,
	})

	addr := cfg.GetServerAddress()
	logger.Info("Starting La Borsa server",
		"addr", addr,
		"stocks", len(rules.Market.Stocks),
		"max_rounds", rules.MaxRounds,
		"players", fmt.Sprintf("%d-%d", rules.MinPlayers, rules.MaxPlayers),
		"room_ttl", ttl,
		"archive_dir", cfg.Server.ArchiveDir)

	ctx, cancel := shared.SetupSignalHandler(logger)
	defer cancel()

	return srv.Run(ctx, addr)
}
