package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/market"
)

// Config represents the complete server configuration
type Config struct {
	Server *ServerSettings `hcl:"server,block"`
	Rules  *RulesConfig    `hcl:"rules,block"`
	Stocks []StockConfig   `hcl:"stock,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address       string `hcl:"address,optional"`
	Port          int    `hcl:"port,optional"`
	LogLevel      string `hcl:"log_level,optional"`
	LogFile       string `hcl:"log_file,optional"`
	ArchiveDir    string `hcl:"archive_dir,optional"`
	RoomTTL       string `hcl:"room_ttl,optional"`
	SweepInterval string `hcl:"sweep_interval,optional"`
}

// RulesConfig overrides individual game rules. Zero values keep the
// default.
type RulesConfig struct {
	MaxRounds     int `hcl:"max_rounds,optional"`
	MinPlayers    int `hcl:"min_players,optional"`
	MaxPlayers    int `hcl:"max_players,optional"`
	StartingCash  int `hcl:"starting_cash,optional"`
	InitialPrice  int `hcl:"initial_price,optional"`
	PriceFloor    int `hcl:"price_floor,optional"`
	PriceCeiling  int `hcl:"price_ceiling,optional"`
	LogWindow     int `hcl:"log_window,optional"`
	LogCapacity   int `hcl:"log_capacity,optional"`
	MaxNameLength int `hcl:"max_name_length,optional"`
}

// StockConfig declares one tradable instrument
type StockConfig struct {
	ID   string `hcl:"id,label"`
	Name string `hcl:"name"`
}

const (
	defaultAddress       = "localhost"
	defaultPort          = 8080
	defaultLogLevel      = "info"
	defaultRoomTTL       = 2 * time.Hour
	defaultSweepInterval = time.Minute
)

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	src, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(src, filename)
}

// ParseConfig decodes HCL source and applies defaults for missing values.
func ParseConfig(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
	if c.Server.RoomTTL == "" {
		c.Server.RoomTTL = defaultRoomTTL.String()
	}
	if c.Server.SweepInterval == "" {
		c.Server.SweepInterval = defaultSweepInterval.String()
	}
	if c.Rules == nil {
		c.Rules = &RulesConfig{}
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	ttl, err := c.RoomTTL()
	if err != nil {
		return err
	}
	interval, err := c.SweepInterval()
	if err != nil {
		return err
	}
	if ttl <= 0 || interval <= 0 {
		return fmt.Errorf("room_ttl and sweep_interval must be positive")
	}

	if err := c.GameRules().Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RoomTTL is how long an idle or finished room is kept.
func (c *Config) RoomTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.RoomTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid room_ttl %q: %w", c.Server.RoomTTL, err)
	}
	return d, nil
}

// SweepInterval is how often expired rooms are looked for.
func (c *Config) SweepInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.SweepInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid sweep_interval %q: %w", c.Server.SweepInterval, err)
	}
	return d, nil
}

// GameRules merges the rules block and stock blocks over the defaults.
func (c *Config) GameRules() game.Rules {
	rules := game.DefaultRules()
	r := c.Rules
	if r == nil {
		r = &RulesConfig{}
	}

	override(&rules.MaxRounds, r.MaxRounds)
	override(&rules.MinPlayers, r.MinPlayers)
	override(&rules.MaxPlayers, r.MaxPlayers)
	override(&rules.StartingCash, r.StartingCash)
	override(&rules.LogWindow, r.LogWindow)
	override(&rules.LogCapacity, r.LogCapacity)
	override(&rules.MaxNameLength, r.MaxNameLength)
	override(&rules.Market.InitialPrice, r.InitialPrice)
	override(&rules.Market.Floor, r.PriceFloor)
	override(&rules.Market.Ceiling, r.PriceCeiling)

	if len(c.Stocks) > 0 {
		stocks := make([]market.Stock, len(c.Stocks))
		for i, s := range c.Stocks {
			stocks[i] = market.Stock{ID: market.StockID(strings.ToUpper(s.ID)), Name: s.Name}
		}
		rules.Market.Stocks = stocks
	}
	return rules
}

func override(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
