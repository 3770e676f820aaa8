package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// SyncConfig holds configuration for copying subgraph data into Postgres.
type SyncConfig struct {
	SubgraphURL    string
	SubgraphAPIKey string
	PGDSN          string
	Pools          []string
	From           time.Time
	To             time.Time
	Window         time.Duration
	Resume         bool
	SkipTicks      bool
	LogLevel       string
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"log-level": "info",
		"window":    30 * 24 * time.Hour,
		"resume":    true,
	})
	if err != nil {
		return SyncConfig{}, err
	}

	cfg := SyncConfig{
		SubgraphURL:    v.GetString("subgraph-url"),
		SubgraphAPIKey: v.GetString("subgraph-api-key"),
		PGDSN:          v.GetString("pg-dsn"),
		Pools:          getStringSlice(v, "pool"),
		Window:         v.GetDuration("window"),
		Resume:         v.GetBool("resume"),
		SkipTicks:      v.GetBool("skip-ticks"),
		LogLevel:       v.GetString("log-level"),
	}

	if cfg.From, err = ParseTimestamp(v.GetString("from")); err != nil {
		return SyncConfig{}, fmt.Errorf("parse from: %w", err)
	}
	if cfg.To, err = ParseTimestamp(v.GetString("to")); err != nil {
		return SyncConfig{}, fmt.Errorf("parse to: %w", err)
	}

	return cfg, nil
}
