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
	"slippageScope/internal/source"
)

func runBlock(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBlock(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPC.URL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.At == 0 {
		return fmt.Errorf("at is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPC.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	finder := blockSource(cfg.RPC, client, logger)
	target := time.Unix(int64(cfg.At), 0).UTC()
	block, err := finder.BlockForTimestamp(ctx, target)
	if err != nil {
		return err
	}
	ts, err := finder.TimestampAt(ctx, block)
	if err != nil {
		return err
	}

	logger.Info("block resolved", zap.Uint64("block", block), zap.Time("target", target), zap.Time("block_time", ts))
	fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", block, ts.UTC().Format(time.RFC3339))
	return nil
}

// blockSource resolves blocks through the forked source so the rpc timeout, retry
// and rate flags apply to every header read.
func blockSource(rpc config.RPCConfig, clock source.Clock, logger *zap.Logger) source.Blocks {
	return source.NewForked(source.Config{
		ChainID:      rpc.ChainID,
		Timeout:      rpc.Timeout,
		MaxRetries:   rpc.MaxRetries,
		RetryBackoff: rpc.RetryBackoff,
		RateLimit:    rpc.Rate,
		Concurrency:  rpc.Concurrency,
	}, nil, clock, nil, logger)
}
