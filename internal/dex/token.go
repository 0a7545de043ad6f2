package dex

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"slippageScope/internal/model"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens (MKR, SAI) return bytes32 symbols.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIs     [2]abi.ABI
	erc20ABIsOnce sync.Once
	erc20ABIsErr  error
)

func erc20ABI() (abi.ABI, abi.ABI, error) {
	erc20ABIsOnce.Do(func() {
		erc20ABIs[0], erc20ABIsErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
		if erc20ABIsErr != nil {
			return
		}
		erc20ABIs[1], erc20ABIsErr = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIs[0], erc20ABIs[1], erc20ABIsErr
}

// FetchToken loads decimals and symbol for token at block. Decimals are required;
// a missing symbol leaves Symbol empty.
func FetchToken(ctx context.Context, caller Caller, token common.Address, block uint64, logger *zap.Logger) (model.Token, error) {
	meta := model.Token{Address: token.Hex()}
	stringABI, bytes32ABI, err := erc20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	at := blockArg(block)

	values, err := callMethod(ctx, caller, token, stringABI, "decimals", at)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol", at); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, "symbol", at); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}
