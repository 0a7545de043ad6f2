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
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "slippage",
		Short:        "Concentrated liquidity slippage simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a liquidity quote and a trade against a historical pool state",
		RunE:  runSimulate,
	}

	addRPCFlags(simulateCmd)
	addPoolFlags(simulateCmd)
	simulateCmd.Flags().Int32("lp-lower", 0, "LP range lower tick (defaults to the active range)")
	simulateCmd.Flags().Int32("lp-upper", 0, "LP range upper tick (defaults to the active range)")
	simulateCmd.Flags().String("lp-amount0", "", "token0 amount provided by the LP agent")
	simulateCmd.Flags().String("lp-amount1", "", "token1 amount provided by the LP agent")
	simulateCmd.Flags().String("trade-token", "", "token sold by the trader (symbol or address)")
	simulateCmd.Flags().String("trade-amount", "", "amount of trade-token sold")
	simulateCmd.Flags().String("policy", "replay", "market impact policy")
	simulateCmd.Flags().String("report-out", "", "append the run report to this JSONL file")

	root.AddCommand(simulateCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the pool state at a block",
		RunE:  runSnapshot,
	}

	addRPCFlags(snapshotCmd)
	addPoolFlags(snapshotCmd)

	root.AddCommand(snapshotCmd)

	blockCmd := &cobra.Command{
		Use:   "block",
		Short: "Find the last block at or before a timestamp",
		RunE:  runBlock,
	}

	addRPCFlags(blockCmd)
	blockCmd.Flags().String("at", "", "timestamp (unix seconds or RFC3339)")
	blockCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(blockCmd)

	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the pool registry",
	}
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert the configured pools into Postgres",
		RunE:  runRegistryImport,
	}
	importCmd.Flags().Uint64("chain-id", 1, "chain id for pools without one")
	importCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	importCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	registryCmd.AddCommand(importCmd)

	root.AddCommand(registryCmd)

	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Render run reports saved with --report-out",
		RunE:  runReports,
	}

	reportsCmd.Flags().String("in", "", "input reports JSONL")
	reportsCmd.Flags().String("output", "table", "output format (table, json)")

	root.AddCommand(reportsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRPCFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "archive RPC URL (falls back to ETHEREUM_RPC_URL)")
	cmd.Flags().Uint64("chain-id", 1, "expected chain id")
	cmd.Flags().Duration("rpc-timeout", 15*time.Second, "per-call RPC timeout")
	cmd.Flags().Float64("rpc-rate", 10, "maximum RPC calls per second, 0 disables pacing")
	cmd.Flags().Int("rpc-concurrency", 8, "concurrent tick reads")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("pool", "", "pool symbol (e.g. USDC/WETH-3000) or address")
	cmd.Flags().Uint64("block", 0, "block number, 0 means the middle of the pool's life")
	cmd.Flags().String("at", "", "resolve the block from a timestamp (unix seconds or RFC3339)")
	cmd.Flags().Int32("tick-window", 10, "tick spacings tracked on each side of the active range")
	cmd.Flags().Int("cache-size", 64, "snapshots kept in memory")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for the pool registry")
	cmd.Flags().String("output", "table", "output format (table, json)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
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
