package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "valuer",
		Short:        "Uniswap V3 concentrated-liquidity position valuer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newDepositCmd(),
		newCurveCmd(),
		newTVCmd(),
		newPnLCmd(),
		newSyncCmd(),
		newPoolCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addSourceFlags registers the market data source flags.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "subgraph", "market data source (subgraph, postgres)")
	cmd.Flags().String("subgraph-url", "", "subgraph GraphQL endpoint")
	cmd.Flags().String("subgraph-api-key", "", "subgraph gateway API key")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("pool", "", "pool address")
}

// addPositionFlags registers the position and pipeline flags.
func addPositionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("amount", 0, "position notional in USD")
	cmd.Flags().Float64("lower", 0, "lower price bound (token0 per token1)")
	cmd.Flags().Float64("upper", 0, "upper price bound (token0 per token1)")
	cmd.Flags().Float64("min-pct", 0.1, "lower bound as a fraction below the entry price")
	cmd.Flags().Float64("max-pct", 0.1, "upper bound as a fraction above the entry price")
	cmd.Flags().String("start", "", "position start (unix seconds, RFC3339 or YYYY-MM-DD)")
	cmd.Flags().String("end", "", "position end (unix seconds, RFC3339 or YYYY-MM-DD)")
	cmd.Flags().String("value-date", "", "valuation date (unix seconds, RFC3339 or YYYY-MM-DD)")
	cmd.Flags().Duration("window", 5*24*time.Hour, "trailing history window")
	cmd.Flags().Bool("stable-only", false, "reject pairs without a stable leg")
}

// addOutputFlags registers the result sink flags.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("out", "", "append results to this JSONL file")
	cmd.Flags().Bool("save", false, "store results in Postgres (requires --pg-dsn)")
	cmd.Flags().String("influx-url", "", "InfluxDB URL")
	cmd.Flags().String("influx-token", "", "InfluxDB token")
	cmd.Flags().String("influx-org", "", "InfluxDB organization")
	cmd.Flags().String("influx-bucket", "lp_valuer", "InfluxDB bucket")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
