package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Data source names accepted by --source.
const (
	SourceSubgraph = "subgraph"
	SourcePostgres = "postgres"
)

// Config holds valuation settings loaded from flags, env, or config file.
type Config struct {
	LogLevel string

	Source         string
	SubgraphURL    string
	SubgraphAPIKey string
	PGDSN          string
	RPCURL         string
	Block          uint64

	Pool          string
	AmountUSD     float64
	Lower         float64
	Upper         float64
	MinPercentage float64
	MaxPercentage float64
	Start         time.Time
	End           time.Time
	ValueDate     time.Time

	Window         time.Duration
	Horizon        int
	StableOnly     bool
	Workers        int
	Paths          int
	StepsPerPeriod int
	Seed           *uint64
	Brownian       bool
	Breakdown      bool
	Units          string

	Out          string
	Save         bool
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"log-level":        "info",
		"source":           SourceSubgraph,
		"window":           5 * 24 * time.Hour,
		"workers":          8,
		"paths":            10000,
		"steps-per-period": 24,
		"units":            "raw",
		"min-pct":          0.1,
		"max-pct":          0.1,
		"influx-bucket":    "lp_valuer",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:       v.GetString("log-level"),
		Source:         strings.ToLower(v.GetString("source")),
		SubgraphURL:    v.GetString("subgraph-url"),
		SubgraphAPIKey: v.GetString("subgraph-api-key"),
		PGDSN:          v.GetString("pg-dsn"),
		RPCURL:         v.GetString("rpc"),
		Block:          v.GetUint64("block"),
		Pool:           v.GetString("pool"),
		AmountUSD:      v.GetFloat64("amount"),
		Lower:          v.GetFloat64("lower"),
		Upper:          v.GetFloat64("upper"),
		MinPercentage:  v.GetFloat64("min-pct"),
		MaxPercentage:  v.GetFloat64("max-pct"),
		Window:         v.GetDuration("window"),
		Horizon:        v.GetInt("horizon"),
		StableOnly:     v.GetBool("stable-only"),
		Workers:        v.GetInt("workers"),
		Paths:          v.GetInt("paths"),
		StepsPerPeriod: v.GetInt("steps-per-period"),
		Brownian:       v.GetBool("brownian"),
		Breakdown:      v.GetBool("breakdown"),
		Units:          strings.ToLower(v.GetString("units")),
		Out:            v.GetString("out"),
		Save:           v.GetBool("save"),
		InfluxURL:      v.GetString("influx-url"),
		InfluxToken:    v.GetString("influx-token"),
		InfluxOrg:      v.GetString("influx-org"),
		InfluxBucket:   v.GetString("influx-bucket"),
	}

	if v.IsSet("seed") {
		seed := v.GetUint64("seed")
		cfg.Seed = &seed
	}

	for key, dst := range map[string]*time.Time{
		"start":      &cfg.Start,
		"end":        &cfg.End,
		"value-date": &cfg.ValueDate,
	} {
		ts, err := ParseTimestamp(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = ts
	}

	switch cfg.Source {
	case SourceSubgraph, SourcePostgres:
	default:
		return Config{}, fmt.Errorf("unknown source %q", cfg.Source)
	}

	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("VALUER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
