package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"slippageScope/internal/model"
)

// SimulateConfig holds configuration for the simulate and snapshot commands.
type SimulateConfig struct {
	RPC         RPCConfig
	Pools       []model.PoolInfo
	PGDSN       string
	CacheSize   int
	Pool        string
	Block       uint64
	At          uint64
	TickWindow  int32
	LPAmount0   decimal.Decimal
	LPAmount1   decimal.Decimal
	LPRange     *model.TickRange
	TradeToken  string
	TradeAmount decimal.Decimal
	Policy      string
	Output      string
	ReportOut   string
	LogLevel    string
}

// WantsLiquidity reports whether an LP quote was configured.
func (c SimulateConfig) WantsLiquidity() bool {
	return c.LPAmount0.IsPositive() || c.LPAmount1.IsPositive()
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return SimulateConfig{}, err
	}
	v.SetDefault("tick-window", model.DefaultTickWindow)
	v.SetDefault("cache-size", 64)
	v.SetDefault("policy", "replay")
	v.SetDefault("output", "table")

	pools, err := decodePools(v, v.GetUint64("chain-id"))
	if err != nil {
		return SimulateConfig{}, err
	}
	at, err := ParseTimestamp(v.GetString("at"))
	if err != nil {
		return SimulateConfig{}, fmt.Errorf("parse at: %w", err)
	}

	cfg := SimulateConfig{
		RPC:        loadRPC(v),
		Pools:      pools,
		PGDSN:      v.GetString("pg-dsn"),
		CacheSize:  v.GetInt("cache-size"),
		Pool:       strings.TrimSpace(v.GetString("pool")),
		Block:      v.GetUint64("block"),
		At:         at,
		TickWindow: v.GetInt32("tick-window"),
		TradeToken: strings.TrimSpace(v.GetString("trade-token")),
		Policy:     v.GetString("policy"),
		Output:     strings.ToLower(v.GetString("output")),
		ReportOut:  v.GetString("report-out"),
		LogLevel:   v.GetString("log-level"),
	}

	if cfg.LPAmount0, err = getDecimal(v, "lp-amount0"); err != nil {
		return SimulateConfig{}, err
	}
	if cfg.LPAmount1, err = getDecimal(v, "lp-amount1"); err != nil {
		return SimulateConfig{}, err
	}
	if cfg.TradeAmount, err = getDecimal(v, "trade-amount"); err != nil {
		return SimulateConfig{}, err
	}

	lowerSet, upperSet := v.IsSet("lp-lower"), v.IsSet("lp-upper")
	if lowerSet != upperSet {
		return SimulateConfig{}, fmt.Errorf("lp-lower and lp-upper must be set together")
	}
	if lowerSet {
		cfg.LPRange = &model.TickRange{Lower: v.GetInt32("lp-lower"), Upper: v.GetInt32("lp-upper")}
	}

	switch cfg.Output {
	case "table", "json":
	default:
		return SimulateConfig{}, fmt.Errorf("output must be table or json, got %q", cfg.Output)
	}
	return cfg, nil
}

func getDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return amount, nil
}
