package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RPCConfig holds the archive node settings shared by every command that reads the chain.
type RPCConfig struct {
	URL          string
	ChainID      uint64
	Timeout      time.Duration
	Rate         float64
	Concurrency  int
	MaxRetries   int
	RetryBackoff time.Duration
}

// newViper merges config file, environment variables, and flags. ETHEREUM_RPC_URL is
// honoured as a fallback for the rpc key.
func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("SLIPPAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("rpc", "SLIPPAGE_RPC", "ETHEREUM_RPC_URL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("rpc-timeout", 15*time.Second)
	v.SetDefault("rpc-rate", 10.0)
	v.SetDefault("rpc-concurrency", 8)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadRPC(v *viper.Viper) RPCConfig {
	return RPCConfig{
		URL:          strings.TrimSpace(v.GetString("rpc")),
		ChainID:      v.GetUint64("chain-id"),
		Timeout:      v.GetDuration("rpc-timeout"),
		Rate:         v.GetFloat64("rpc-rate"),
		Concurrency:  v.GetInt("rpc-concurrency"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
