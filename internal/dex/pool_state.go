package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolImmutables are the fields fixed at pool deployment.
type PoolImmutables struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
}

// Slot0 is the price part of a pool's slot0.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// TickInfo is the subset of ticks(i) needed to replay crossings.
type TickInfo struct {
	LiquidityGross *big.Int
	LiquidityNet   *big.Int
	Initialized    bool
}

// FetchPoolImmutables reads token0, token1, fee and tickSpacing at block.
func FetchPoolImmutables(ctx context.Context, caller Caller, pool common.Address, block uint64) (PoolImmutables, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return PoolImmutables{}, fmt.Errorf("parse pool abi: %w", err)
	}
	at := blockArg(block)

	values, err := callMethod(ctx, caller, pool, poolABI, "token0", at)
	if err != nil {
		return PoolImmutables{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return PoolImmutables{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "token1", at)
	if err != nil {
		return PoolImmutables{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return PoolImmutables{}, fmt.Errorf("token1: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "fee", at)
	if err != nil {
		return PoolImmutables{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return PoolImmutables{}, fmt.Errorf("fee: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "tickSpacing", at)
	if err != nil {
		return PoolImmutables{}, err
	}
	spacingInt, err := asBigInt(values[0])
	if err != nil {
		return PoolImmutables{}, fmt.Errorf("tick spacing: %w", err)
	}
	spacing, err := int24FromBig(spacingInt)
	if err != nil {
		return PoolImmutables{}, fmt.Errorf("tick spacing: %w", err)
	}

	return PoolImmutables{
		Token0:      token0,
		Token1:      token1,
		Fee:         uint32(feeInt.Uint64()),
		TickSpacing: spacing,
	}, nil
}

// FetchSlot0 reads the sqrt price and tick at block.
func FetchSlot0(ctx context.Context, caller Caller, pool common.Address, block uint64) (Slot0, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return Slot0{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, caller, pool, poolABI, "slot0", blockArg(block))
	if err != nil {
		return Slot0{}, err
	}
	if len(values) < 2 {
		return Slot0{}, fmt.Errorf("%w: slot0: expected at least 2 values, got %d", ErrDecode, len(values))
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 sqrt price: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 tick: %w", err)
	}
	return Slot0{SqrtPriceX96: sqrt, Tick: tick}, nil
}

// FetchLiquidity reads the in-range liquidity at block.
func FetchLiquidity(ctx context.Context, caller Caller, pool common.Address, block uint64) (*big.Int, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, caller, pool, poolABI, "liquidity", blockArg(block))
	if err != nil {
		return nil, err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}
	return liquidity, nil
}

// FetchTick reads ticks(tick) at block.
func FetchTick(ctx context.Context, caller Caller, pool common.Address, tick int32, block uint64) (TickInfo, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return TickInfo{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, caller, pool, poolABI, "ticks", blockArg(block), big.NewInt(int64(tick)))
	if err != nil {
		return TickInfo{}, fmt.Errorf("tick %d: %w", tick, err)
	}
	if len(values) < 8 {
		return TickInfo{}, fmt.Errorf("%w: tick %d: expected 8 values, got %d", ErrDecode, tick, len(values))
	}
	gross, err := asBigInt(values[0])
	if err != nil {
		return TickInfo{}, fmt.Errorf("tick %d gross: %w", tick, err)
	}
	net, err := asBigInt(values[1])
	if err != nil {
		return TickInfo{}, fmt.Errorf("tick %d net: %w", tick, err)
	}
	initialized, ok := values[7].(bool)
	if !ok {
		return TickInfo{}, fmt.Errorf("%w: tick %d initialized: unsupported type %T", ErrDecode, tick, values[7])
	}
	return TickInfo{LiquidityGross: gross, LiquidityNet: net, Initialized: initialized}, nil
}
