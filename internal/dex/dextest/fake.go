// Package dextest provides an in-memory V3 pool that answers eth_call requests.
package dextest

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"slippageScope/internal/dex"
)

// Token is an ERC20 served by the fake.
type Token struct {
	Address       common.Address
	Decimals      uint8
	Symbol        string
	Bytes32Symbol bool
}

// Chain serves pool and token view calls. Fields may be changed between calls
// while holding no references into the fake.
type Chain struct {
	Pool         common.Address
	Token0       Token
	Token1       Token
	Fee          uint32
	TickSpacing  int32
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	Ticks        map[int32]*big.Int

	// Err fails every call; FailFirst fails only the first n calls.
	Err       error
	FailFirst int
	Delay     time.Duration

	mu    sync.Mutex
	calls int
}

// Calls reports how many eth_calls were served or failed.
func (c *Chain) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// CallContract implements dex.Caller.
func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}
	if n <= c.FailFirst {
		return nil, fmt.Errorf("transient failure %d", n)
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}

	switch *msg.To {
	case c.Pool:
		return c.poolCall(msg.Data)
	case c.Token0.Address:
		return tokenCall(c.Token0, msg.Data)
	case c.Token1.Address:
		return tokenCall(c.Token1, msg.Data)
	default:
		return nil, fmt.Errorf("execution reverted")
	}
}

func (c *Chain) poolCall(data []byte) ([]byte, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return nil, err
	}
	method, err := poolABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "token0":
		return method.Outputs.Pack(c.Token0.Address)
	case "token1":
		return method.Outputs.Pack(c.Token1.Address)
	case "fee":
		return method.Outputs.Pack(big.NewInt(int64(c.Fee)))
	case "tickSpacing":
		return method.Outputs.Pack(big.NewInt(int64(c.TickSpacing)))
	case "liquidity":
		return method.Outputs.Pack(orZero(c.Liquidity))
	case "slot0":
		return method.Outputs.Pack(orZero(c.SqrtPriceX96), big.NewInt(int64(c.Tick)), uint16(0), uint16(1), uint16(1), uint8(0), true)
	case "ticks":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		tick := int32(args[0].(*big.Int).Int64())
		net := c.Ticks[tick]
		initialized := net != nil && net.Sign() != 0
		gross := new(big.Int)
		if initialized {
			gross.Abs(net)
		}
		zero := new(big.Int)
		return method.Outputs.Pack(gross, orZero(net), zero, zero, zero, zero, uint32(0), initialized)
	default:
		return nil, fmt.Errorf("unsupported pool method %s", method.Name)
	}
}

func tokenCall(token Token, data []byte) ([]byte, error) {
	decimalsABI, _ := abi.JSON(strings.NewReader(`[{"inputs":[],"name":"decimals","outputs":[{"type":"uint8"}],"type":"function"}]`))
	stringABI, _ := abi.JSON(strings.NewReader(`[{"inputs":[],"name":"symbol","outputs":[{"type":"string"}],"type":"function"}]`))
	bytesABI, _ := abi.JSON(strings.NewReader(`[{"inputs":[],"name":"symbol","outputs":[{"type":"bytes32"}],"type":"function"}]`))

	switch {
	case bytes.Equal(data[:4], decimalsABI.Methods["decimals"].ID):
		return decimalsABI.Methods["decimals"].Outputs.Pack(token.Decimals)
	case bytes.Equal(data[:4], stringABI.Methods["symbol"].ID):
		if token.Bytes32Symbol {
			var out [32]byte
			copy(out[:], token.Symbol)
			return bytesABI.Methods["symbol"].Outputs.Pack(out)
		}
		return stringABI.Methods["symbol"].Outputs.Pack(token.Symbol)
	default:
		return nil, fmt.Errorf("execution reverted")
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
