package dex_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"slippageScope/internal/dex"
	"slippageScope/internal/dex/dextest"
)

func newChain() *dextest.Chain {
	sqrt, _ := new(big.Int).SetString("1771595571142957166518320255467520", 10)
	return &dextest.Chain{
		Pool:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Token0:       dextest.Token{Address: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), Decimals: 6, Symbol: "USDC"},
		Token1:       dextest.Token{Address: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"), Decimals: 18, Symbol: "MKR", Bytes32Symbol: true},
		Fee:          3000,
		TickSpacing:  60,
		SqrtPriceX96: sqrt,
		Tick:         -201240,
		Liquidity:    big.NewInt(987654321),
		Ticks: map[int32]*big.Int{
			-201300: big.NewInt(500),
			-201180: big.NewInt(-250),
		},
	}
}

func TestFetchPoolImmutables(t *testing.T) {
	chain := newChain()
	got, err := dex.FetchPoolImmutables(context.Background(), chain, chain.Pool, 100)
	if err != nil {
		t.Fatalf("FetchPoolImmutables: %v", err)
	}
	want := dex.PoolImmutables{Token0: chain.Token0.Address, Token1: chain.Token1.Address, Fee: 3000, TickSpacing: 60}
	if got != want {
		t.Fatalf("immutables = %+v, want %+v", got, want)
	}
}

func TestFetchSlot0AndLiquidity(t *testing.T) {
	chain := newChain()
	slot0, err := dex.FetchSlot0(context.Background(), chain, chain.Pool, 100)
	if err != nil {
		t.Fatalf("FetchSlot0: %v", err)
	}
	if slot0.Tick != -201240 || slot0.SqrtPriceX96.Cmp(chain.SqrtPriceX96) != 0 {
		t.Fatalf("slot0 = %+v", slot0)
	}
	liquidity, err := dex.FetchLiquidity(context.Background(), chain, chain.Pool, 100)
	if err != nil {
		t.Fatalf("FetchLiquidity: %v", err)
	}
	if liquidity.Cmp(big.NewInt(987654321)) != 0 {
		t.Fatalf("liquidity = %s", liquidity)
	}
}

func TestFetchTick(t *testing.T) {
	chain := newChain()
	info, err := dex.FetchTick(context.Background(), chain, chain.Pool, -201180, 100)
	if err != nil {
		t.Fatalf("FetchTick: %v", err)
	}
	if !info.Initialized || info.LiquidityNet.Cmp(big.NewInt(-250)) != 0 || info.LiquidityGross.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("tick info = %+v", info)
	}
	empty, err := dex.FetchTick(context.Background(), chain, chain.Pool, 0, 100)
	if err != nil {
		t.Fatalf("FetchTick: %v", err)
	}
	if empty.Initialized || empty.LiquidityNet.Sign() != 0 {
		t.Fatalf("empty tick = %+v", empty)
	}
}

func TestFetchToken(t *testing.T) {
	chain := newChain()
	usdc, err := dex.FetchToken(context.Background(), chain, chain.Token0.Address, 100, nil)
	if err != nil {
		t.Fatalf("FetchToken: %v", err)
	}
	if usdc.Symbol != "USDC" || usdc.Decimals != 6 || usdc.Address != chain.Token0.Address.Hex() {
		t.Fatalf("token0 = %+v", usdc)
	}
	mkr, err := dex.FetchToken(context.Background(), chain, chain.Token1.Address, 100, nil)
	if err != nil {
		t.Fatalf("FetchToken bytes32: %v", err)
	}
	if mkr.Symbol != "MKR" || mkr.Decimals != 18 {
		t.Fatalf("token1 = %+v", mkr)
	}
}

func TestFetchPropagatesCallErrors(t *testing.T) {
	chain := newChain()
	boom := errors.New("connection refused")
	chain.Err = boom
	if _, err := dex.FetchSlot0(context.Background(), chain, chain.Pool, 100); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped call error, got %v", err)
	}
	if _, err := dex.FetchToken(context.Background(), chain, common.HexToAddress("0x01"), 100, nil); err == nil {
		t.Fatalf("expected error for unknown token")
	}
}

type rawCaller struct {
	resp []byte
	err  error
}

func (r rawCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return r.resp, r.err
}

func TestFetchClassifiesDecodeErrors(t *testing.T) {
	garbage := rawCaller{resp: []byte{0x01, 0x02, 0x03}}
	_, err := dex.FetchSlot0(context.Background(), garbage, common.HexToAddress("0x02"), 100)
	if !errors.Is(err, dex.ErrDecode) {
		t.Fatalf("expected ErrDecode for short return data, got %v", err)
	}
	if dex.IsRevert(err) {
		t.Fatalf("decode error classified as revert: %v", err)
	}

	overflow := make([]byte, 32)
	overflow[31] = 0xff
	overflow[30] = 0x01
	_, err = dex.FetchToken(context.Background(), rawCaller{resp: overflow}, common.HexToAddress("0x03"), 100, nil)
	if !errors.Is(err, dex.ErrDecode) {
		t.Fatalf("expected ErrDecode for decimals overflow, got %v", err)
	}
}

func TestFetchClassifiesReverts(t *testing.T) {
	chain := newChain()
	_, err := dex.FetchToken(context.Background(), chain, common.HexToAddress("0x01"), 100, nil)
	if !errors.Is(err, dex.ErrReverted) {
		t.Fatalf("expected ErrReverted for unknown contract, got %v", err)
	}
	if errors.Is(err, dex.ErrDecode) {
		t.Fatalf("revert classified as decode error: %v", err)
	}

	chain.Err = errors.New("connection refused")
	_, err = dex.FetchSlot0(context.Background(), chain, chain.Pool, 100)
	if errors.Is(err, dex.ErrReverted) || errors.Is(err, dex.ErrDecode) {
		t.Fatalf("transport failure misclassified: %v", err)
	}
}
