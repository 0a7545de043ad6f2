package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slippageScope/internal/chain"
	"slippageScope/internal/config"
	"slippageScope/internal/model"
	"slippageScope/internal/registry"
	"slippageScope/internal/simulate"
	"slippageScope/internal/source"
	"slippageScope/internal/storage"
	"slippageScope/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.TradeToken == "" || !cfg.TradeAmount.IsPositive() {
		return fmt.Errorf("trade-token and a positive trade-amount are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	req := requestFromConfig(cfg)
	req.Trade = simulate.TradeRequest{Token: cfg.TradeToken, Amount: cfg.TradeAmount}
	if cfg.WantsLiquidity() {
		req.Liquidity = &simulate.LiquidityRequest{
			Amount0: cfg.LPAmount0,
			Amount1: cfg.LPAmount1,
			Range:   cfg.LPRange,
		}
	}

	report, runErr := runner.Run(ctx, req)
	if report.Initial.Liquidity != nil {
		if err := render(cmd.OutOrStdout(), cfg.Output, report); err != nil {
			return err
		}
		if cfg.ReportOut != "" {
			if err := storage.NewJsonlStorage(cfg.ReportOut).PutReports([]model.RunReport{report}); err != nil {
				return err
			}
			logger.Info("report saved", zap.String("run_id", report.RunID), zap.String("path", cfg.ReportOut))
		}
	}
	return runErr
}

func runReports(cmd *cobra.Command, _ []string) error {
	in, _ := cmd.Flags().GetString("in")
	format, _ := cmd.Flags().GetString("output")
	if in == "" {
		return fmt.Errorf("in is required")
	}
	reports, err := storage.ReadReports(in)
	if err != nil {
		return err
	}
	for _, report := range reports {
		if err := render(cmd.OutOrStdout(), format, report); err != nil {
			return err
		}
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := runner.Snapshot(ctx, requestFromConfig(cfg))
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), cfg.Output, report)
}

func requestFromConfig(cfg config.SimulateConfig) simulate.Request {
	req := simulate.Request{PoolID: cfg.Pool, Block: cfg.Block, Policy: cfg.Policy}
	if cfg.At > 0 {
		req.At = time.Unix(int64(cfg.At), 0).UTC()
	}
	return req
}

// buildRunner wires the archive client, the registry and the cached forked source.
func buildRunner(ctx context.Context, cfg config.SimulateConfig, logger *zap.Logger) (*simulate.Runner, func(), error) {
	if cfg.Pool == "" {
		return nil, nil, fmt.Errorf("pool is required")
	}
	if cfg.RPC.URL == "" {
		return nil, nil, fmt.Errorf("rpc url is required")
	}

	closers := make([]func(), 0, 2)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	client, err := chain.NewClient(ctx, cfg.RPC.URL)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, client.Close)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("read chain id: %w", err)
	}
	if cfg.RPC.ChainID != 0 && chainID != cfg.RPC.ChainID {
		cleanup()
		return nil, nil, fmt.Errorf("rpc serves chain %d, expected %d", chainID, cfg.RPC.ChainID)
	}

	static, err := registry.NewStatic(cfg.Pools)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	reg := registry.Multi{static}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, store.Close)
		reg = append(reg, store)
	}

	forked := source.NewForked(source.Config{
		ChainID:      chainID,
		TickWindow:   cfg.TickWindow,
		Timeout:      cfg.RPC.Timeout,
		MaxRetries:   cfg.RPC.MaxRetries,
		RetryBackoff: cfg.RPC.RetryBackoff,
		RateLimit:    cfg.RPC.Rate,
		Concurrency:  cfg.RPC.Concurrency,
	}, client, client, reg, logger)

	cached, err := source.NewCached(forked, cfg.CacheSize, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	logger.Info("simulator ready",
		zap.Uint64("chain_id", chainID),
		zap.Int("static_pools", len(cfg.Pools)),
		zap.Bool("pg_registry", cfg.PGDSN != ""),
	)
	return simulate.NewRunner(cached, forked, cfg.TickWindow, logger), cleanup, nil
}
