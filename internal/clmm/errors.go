package clmm

import "errors"

var (
	ErrPoolNotInitialized    = errors.New("pool not initialized")
	ErrAlreadyInitialized    = errors.New("pool already initialized with a different snapshot")
	ErrUnknownToken          = errors.New("unknown token")
	ErrSingleSidedNotAllowed = errors.New("single-sided liquidity not allowed in the active range")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity in tracked tick range")
	ErrInvalidTickRange      = errors.New("invalid tick range")
	ErrZeroLiquidity         = errors.New("liquidity amount is zero")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidSnapshot       = errors.New("invalid pool snapshot")
	ErrTickOutOfBounds       = errors.New("tick out of bounds")
	ErrLiquidityUnderflow    = errors.New("liquidity underflow")
)
