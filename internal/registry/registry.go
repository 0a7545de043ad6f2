package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"slippageScope/internal/model"
)

// ErrUnknownPool is returned when no pool matches a lookup.
var ErrUnknownPool = errors.New("unknown pool")

// Registry resolves a pool symbol on a chain to its deployment record.
type Registry interface {
	Lookup(ctx context.Context, chainID uint64, symbol string) (model.PoolInfo, error)
}

// Symbol is a parsed TOKEN0/TOKEN1-FEE pool name.
type Symbol struct {
	Token0 string
	Token1 string
	Fee    uint32
}

// ParseSymbol parses names such as "WETH/USDC-3000".
func ParseSymbol(input string) (Symbol, error) {
	input = strings.TrimSpace(input)
	dash := strings.LastIndex(input, "-")
	if dash <= 0 || dash == len(input)-1 {
		return Symbol{}, fmt.Errorf("pool symbol %q: expected TOKEN0/TOKEN1-FEE", input)
	}
	pair, feeText := input[:dash], input[dash+1:]
	tokens := strings.Split(pair, "/")
	if len(tokens) != 2 || strings.TrimSpace(tokens[0]) == "" || strings.TrimSpace(tokens[1]) == "" {
		return Symbol{}, fmt.Errorf("pool symbol %q: expected two tokens", input)
	}
	fee, err := strconv.ParseUint(feeText, 10, 32)
	if err != nil {
		return Symbol{}, fmt.Errorf("pool symbol %q: fee: %w", input, err)
	}
	return Symbol{
		Token0: strings.TrimSpace(tokens[0]),
		Token1: strings.TrimSpace(tokens[1]),
		Fee:    uint32(fee),
	}, nil
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s/%s-%d", s.Token0, s.Token1, s.Fee)
}

// DefaultTickSpacing returns the canonical spacing for a fee tier.
func DefaultTickSpacing(fee uint32) (int32, bool) {
	switch fee {
	case 100:
		return 1, true
	case 500:
		return 10, true
	case 3000:
		return 60, true
	case 10000:
		return 200, true
	default:
		return 0, false
	}
}

// Normalize fills token and fee fields from the symbol and checks the record.
func Normalize(info model.PoolInfo) (model.PoolInfo, error) {
	symbol, err := ParseSymbol(info.Symbol)
	if err != nil {
		return info, err
	}
	if !common.IsHexAddress(info.Address) {
		return info, fmt.Errorf("pool %s: invalid address %q", info.Symbol, info.Address)
	}
	info.Address = common.HexToAddress(info.Address).Hex()
	info.Symbol = symbol.String()
	if info.Token0 == "" {
		info.Token0 = symbol.Token0
	}
	if info.Token1 == "" {
		info.Token1 = symbol.Token1
	}
	if info.Fee == 0 {
		info.Fee = symbol.Fee
	}
	if info.Fee != symbol.Fee {
		return info, fmt.Errorf("pool %s: fee %d does not match symbol", info.Symbol, info.Fee)
	}
	if info.TickSpacing == 0 {
		spacing, ok := DefaultTickSpacing(info.Fee)
		if !ok {
			return info, fmt.Errorf("pool %s: tick spacing required for fee %d", info.Symbol, info.Fee)
		}
		info.TickSpacing = spacing
	}
	if info.TickSpacing < 0 {
		return info, fmt.Errorf("pool %s: negative tick spacing", info.Symbol)
	}
	return info, nil
}

type poolKey struct {
	chainID uint64
	name    string
}

// Static is a registry backed by a fixed list, typically from the config file.
type Static struct {
	byName map[poolKey]model.PoolInfo
}

// NewStatic validates pools and indexes them by symbol and address.
func NewStatic(pools []model.PoolInfo) (*Static, error) {
	s := &Static{byName: make(map[poolKey]model.PoolInfo, len(pools)*2)}
	for _, pool := range pools {
		info, err := Normalize(pool)
		if err != nil {
			return nil, err
		}
		symbolKey := poolKey{chainID: info.ChainID, name: strings.ToUpper(info.Symbol)}
		if _, dup := s.byName[symbolKey]; dup {
			return nil, fmt.Errorf("pool %s listed twice for chain %d", info.Symbol, info.ChainID)
		}
		s.byName[symbolKey] = info
		s.byName[poolKey{chainID: info.ChainID, name: strings.ToLower(info.Address)}] = info
	}
	return s, nil
}

// Lookup finds a pool by symbol or address.
func (s *Static) Lookup(_ context.Context, chainID uint64, symbol string) (model.PoolInfo, error) {
	name := strings.TrimSpace(symbol)
	if info, ok := s.byName[poolKey{chainID: chainID, name: strings.ToUpper(name)}]; ok {
		return info, nil
	}
	if info, ok := s.byName[poolKey{chainID: chainID, name: strings.ToLower(name)}]; ok {
		return info, nil
	}
	return model.PoolInfo{}, fmt.Errorf("%w: %s on chain %d", ErrUnknownPool, symbol, chainID)
}

// Pools returns every pool once, ordered by chain and symbol.
func (s *Static) Pools() []model.PoolInfo {
	out := make([]model.PoolInfo, 0, len(s.byName)/2)
	for key, info := range s.byName {
		if key.name == strings.ToUpper(info.Symbol) {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Multi tries each registry in order and returns the first match.
type Multi []Registry

func (m Multi) Lookup(ctx context.Context, chainID uint64, symbol string) (model.PoolInfo, error) {
	for _, reg := range m {
		if reg == nil {
			continue
		}
		info, err := reg.Lookup(ctx, chainID, symbol)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, ErrUnknownPool) {
			return model.PoolInfo{}, err
		}
	}
	return model.PoolInfo{}, fmt.Errorf("%w: %s on chain %d", ErrUnknownPool, symbol, chainID)
}
