package source

import (
	"errors"

	"slippageScope/internal/registry"
)

var (
	ErrUnresolvedBlock = errors.New("unresolved block")
	ErrRPCUnavailable  = errors.New("rpc unavailable")
	ErrOutOfRange      = errors.New("timestamp out of range")
	ErrUnknownPool     = registry.ErrUnknownPool
)
