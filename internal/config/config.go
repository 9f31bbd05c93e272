package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ViewerConfig centralised viewer configuration
type ViewerConfig struct {
	// Identification
	ViewerID      string `json:"viewer_id"`
	PlayerAddress string `json:"player_address"` // wallet address of the local player (optional)

	// Remote service
	NodeURL         string `json:"node_url"`         // JSON-RPC endpoint of the node
	ContractAddress string `json:"contract_address"` // game contract
	RelayURL        string `json:"relay_url"`        // signing relay for write commands

	// Snapshot decoding
	GridSize       int  `json:"grid_size"`
	LengthPrefixed bool `json:"length_prefixed"` // reads carry a leading length element

	// Poll intervals
	BoardInterval      time.Duration `json:"board_interval"`
	PositionsInterval  time.Duration `json:"positions_interval"`
	TopSessionInterval time.Duration `json:"top_session_interval"`
	WinnerInterval     time.Duration `json:"winner_interval"`

	// Timeouts and rate limits
	RequestTimeout time.Duration `json:"request_timeout"`
	MoveDebounce   time.Duration `json:"move_debounce"`

	// Local surfaces
	BindAddr       string `json:"bind_addr"`
	HTTPPort       int    `json:"http_port"` // 0 disables the local HTTP surface
	BoardCacheSize int    `json:"board_cache_size"`

	Simulate bool   `json:"simulate"`
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *ViewerConfig {
	return &ViewerConfig{
		ViewerID:           "viewer-1",
		NodeURL:            "http://127.0.0.1:5050",
		ContractAddress:    "0x028dc8c9105335b2b78b451dc031e6fa0fac3a4ca7b5d2d36ddb63dbb61c0e46",
		RelayURL:           "http://127.0.0.1:5051",
		GridSize:           23,
		LengthPrefixed:     true,
		BoardInterval:      time.Second,
		PositionsInterval:  500 * time.Millisecond,
		TopSessionInterval: 2 * time.Second,
		WinnerInterval:     2 * time.Second,
		RequestTimeout:     5 * time.Second,
		MoveDebounce:       350 * time.Millisecond,
		BindAddr:           "0.0.0.0",
		HTTPPort:           8090,
		BoardCacheSize:     16,
		LogLevel:           "info",
	}
}

// Load reads an optional .env file and overlays PACROYALE_* variables on
// top of the defaults. A missing envFile is not an error.
func Load(envFile string) (*ViewerConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ViewerConfig) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("PACROYALE_VIEWER_ID", &c.ViewerID)
	str("PACROYALE_PLAYER_ADDRESS", &c.PlayerAddress)
	str("PACROYALE_NODE_URL", &c.NodeURL)
	str("PACROYALE_CONTRACT_ADDRESS", &c.ContractAddress)
	str("PACROYALE_RELAY_URL", &c.RelayURL)
	str("PACROYALE_BIND_ADDR", &c.BindAddr)
	str("PACROYALE_LOG_LEVEL", &c.LogLevel)

	ints := map[string]*int{
		"PACROYALE_GRID_SIZE":        &c.GridSize,
		"PACROYALE_HTTP_PORT":        &c.HTTPPort,
		"PACROYALE_BOARD_CACHE_SIZE": &c.BoardCacheSize,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"PACROYALE_BOARD_INTERVAL":       &c.BoardInterval,
		"PACROYALE_POSITIONS_INTERVAL":   &c.PositionsInterval,
		"PACROYALE_TOP_SESSION_INTERVAL": &c.TopSessionInterval,
		"PACROYALE_WINNER_INTERVAL":      &c.WinnerInterval,
		"PACROYALE_REQUEST_TIMEOUT":      &c.RequestTimeout,
		"PACROYALE_MOVE_DEBOUNCE":        &c.MoveDebounce,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"PACROYALE_LENGTH_PREFIXED": &c.LengthPrefixed,
		"PACROYALE_SIMULATE":        &c.Simulate,
	}
	for key, dst := range bools {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks the configuration before any component is built
func (c *ViewerConfig) Validate() error {
	if c.GridSize < 1 {
		return fmt.Errorf("grid size must be positive, got %d", c.GridSize)
	}
	intervals := map[string]time.Duration{
		"board interval":       c.BoardInterval,
		"positions interval":   c.PositionsInterval,
		"top session interval": c.TopSessionInterval,
		"winner interval":      c.WinnerInterval,
		"request timeout":      c.RequestTimeout,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.MoveDebounce < 0 {
		return fmt.Errorf("move debounce must not be negative, got %v", c.MoveDebounce)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	if !c.Simulate {
		if c.NodeURL == "" {
			return errors.New("node url is required unless simulating")
		}
		if c.ContractAddress == "" {
			return errors.New("contract address is required unless simulating")
		}
	}
	return nil
}
