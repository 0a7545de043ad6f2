package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slippageScope/internal/config"
	"slippageScope/internal/registry"
	"slippageScope/internal/storage/postgres"
)

func runRegistryImport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRegistry(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required")
	}
	if len(cfg.Pools) == 0 {
		return fmt.Errorf("no pools configured")
	}

	static, err := registry.NewStatic(cfg.Pools)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	pools := static.Pools()
	if err := store.UpsertPools(ctx, pools); err != nil {
		return err
	}

	for _, pool := range pools {
		logger.Info("pool imported",
			zap.Uint64("chain_id", pool.ChainID),
			zap.String("symbol", pool.Symbol),
			zap.String("address", pool.Address),
			zap.Uint64("start_block", pool.StartBlock),
		)
	}
	logger.Info("registry import complete", zap.Int("pools", len(pools)))
	return nil
}
