package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	x402 "github.com/aarika/x402-arena"
	"github.com/aarika/x402-arena/arena"
	"github.com/aarika/x402-arena/events"
)

// Testable hook for environment lookups.
var getenv = os.Getenv

type config struct {
	CoreEndpoint   string        `yaml:"core_endpoint"`
	PrivateKey     string        `yaml:"private_key"`
	DefaultAsset   string        `yaml:"default_asset"`
	DefaultChainID uint64        `yaml:"default_chain_id"`
	TokenName      string        `yaml:"token_name"`
	TokenVersion   string        `yaml:"token_version"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	PollAttempts   int           `yaml:"poll_attempts"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	RedisAddr      string        `yaml:"redis_addr"`
	EventStream    string        `yaml:"event_stream"`
	EventMaxLen    int64         `yaml:"event_max_len"`
	DebugLevel     string        `yaml:"debuglevel"`
}

func defaultConfig() config {
	return config{
		CoreEndpoint:   x402.DefaultBaseURL,
		DefaultAsset:   arena.DefaultAsset,
		DefaultChainID: arena.DefaultChainID,
		EventStream:    events.DefaultStream,
		DebugLevel:     "info",
	}
}

// loadConfig reads the YAML file at path, when given, over the defaults
// and then applies environment overrides.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}

	if v := strings.TrimSpace(getenv("ARENA_CORE_ENDPOINT")); v != "" {
		cfg.CoreEndpoint = v
	}
	if v := strings.TrimSpace(getenv("ARENA_PRIVATE_KEY")); v != "" {
		cfg.PrivateKey = v
	}
	if v := strings.TrimSpace(getenv("ARENA_DEFAULT_ASSET")); v != "" {
		cfg.DefaultAsset = v
	}
	if v := strings.TrimSpace(getenv("ARENA_DEFAULT_CHAIN_ID")); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid ARENA_DEFAULT_CHAIN_ID %q: %w", v, err)
		}
		cfg.DefaultChainID = id
	}
	if v := strings.TrimSpace(getenv("ARENA_REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}

	if cfg.CoreEndpoint == "" {
		return cfg, errors.New("core endpoint required")
	}
	return cfg, nil
}

func (c config) arenaConfig() arena.Config {
	return arena.Config{
		DefaultChainID:       c.DefaultChainID,
		DefaultAsset:         c.DefaultAsset,
		TokenName:            c.TokenName,
		TokenVersion:         c.TokenVersion,
		SettleDelay:          c.SettleDelay,
		DeliveryPollAttempts: c.PollAttempts,
		DeliveryPollInterval: c.PollInterval,
	}
}
