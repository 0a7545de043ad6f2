package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"slippageScope/internal/model"
)

// RegistryConfig holds configuration for the registry import command.
type RegistryConfig struct {
	ChainID  uint64
	Pools    []model.PoolInfo
	PGDSN    string
	LogLevel string
}

// LoadRegistry merges config file, environment variables, and flags into RegistryConfig.
func LoadRegistry(cfgFile string, flags *pflag.FlagSet) (RegistryConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return RegistryConfig{}, err
	}
	pools, err := decodePools(v, v.GetUint64("chain-id"))
	if err != nil {
		return RegistryConfig{}, err
	}
	return RegistryConfig{
		ChainID:  v.GetUint64("chain-id"),
		Pools:    pools,
		PGDSN:    v.GetString("pg-dsn"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// decodePools reads the static registry. Entries are either maps with the PoolInfo keys
// or strings of the form SYMBOL=ADDRESS[@START_BLOCK], the latter being what fits in an
// environment variable.
func decodePools(v *viper.Viper, chainID uint64) ([]model.PoolInfo, error) {
	if !v.IsSet("pools") {
		return nil, nil
	}

	var pools []model.PoolInfo
	switch raw := v.Get("pools").(type) {
	case string, []string:
		for _, spec := range getStringSlice(v, "pools") {
			info, err := parsePoolSpec(spec)
			if err != nil {
				return nil, err
			}
			pools = append(pools, info)
		}
	case []interface{}:
		if len(raw) > 0 {
			if _, ok := raw[0].(string); ok {
				for _, spec := range getStringSlice(v, "pools") {
					info, err := parsePoolSpec(spec)
					if err != nil {
						return nil, err
					}
					pools = append(pools, info)
				}
				break
			}
		}
		if err := v.UnmarshalKey("pools", &pools); err != nil {
			return nil, fmt.Errorf("decode pools: %w", err)
		}
	default:
		return nil, fmt.Errorf("decode pools: unsupported value %T", raw)
	}

	for i := range pools {
		if pools[i].ChainID == 0 {
			pools[i].ChainID = chainID
		}
	}
	return pools, nil
}

func parsePoolSpec(spec string) (model.PoolInfo, error) {
	symbol, rest, ok := strings.Cut(spec, "=")
	if !ok || strings.TrimSpace(symbol) == "" || strings.TrimSpace(rest) == "" {
		return model.PoolInfo{}, fmt.Errorf("pool %q: expected SYMBOL=ADDRESS[@START_BLOCK]", spec)
	}
	info := model.PoolInfo{Symbol: strings.TrimSpace(symbol)}
	address, start, hasStart := strings.Cut(rest, "@")
	info.Address = strings.TrimSpace(address)
	if hasStart {
		block, err := strconv.ParseUint(strings.TrimSpace(start), 10, 64)
		if err != nil {
			return model.PoolInfo{}, fmt.Errorf("pool %q: start block: %w", spec, err)
		}
		info.StartBlock = block
	}
	return info, nil
}
