package model

// PoolInfo is a pool registry record.
type PoolInfo struct {
	ChainID     uint64 `json:"chain_id" mapstructure:"chain_id"`
	Symbol      string `json:"symbol" mapstructure:"symbol"`
	Address     string `json:"address" mapstructure:"address"`
	Token0      string `json:"token0" mapstructure:"token0"`
	Token1      string `json:"token1" mapstructure:"token1"`
	Fee         uint32 `json:"fee" mapstructure:"fee"`
	TickSpacing int32  `json:"tick_spacing" mapstructure:"tick_spacing"`
	StartBlock  uint64 `json:"start_block" mapstructure:"start_block"`
}
