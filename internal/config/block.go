package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// BlockConfig holds configuration for the block command.
type BlockConfig struct {
	RPC      RPCConfig
	At       uint64
	LogLevel string
}

// LoadBlock merges config file, environment variables, and flags into BlockConfig.
func LoadBlock(cfgFile string, flags *pflag.FlagSet) (BlockConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return BlockConfig{}, err
	}
	at, err := ParseTimestamp(v.GetString("at"))
	if err != nil {
		return BlockConfig{}, fmt.Errorf("parse at: %w", err)
	}
	return BlockConfig{
		RPC:      loadRPC(v),
		At:       at,
		LogLevel: v.GetString("log-level"),
	}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
