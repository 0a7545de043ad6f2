package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"slippageScope/internal/model"
	"slippageScope/internal/registry"
)

const poolsSchema = `
CREATE TABLE IF NOT EXISTS pools (
	chain_id         BIGINT      NOT NULL,
	pool_address     TEXT        NOT NULL,
	symbol           TEXT        NOT NULL,
	token0           TEXT        NOT NULL,
	token1           TEXT        NOT NULL,
	fee              INTEGER     NOT NULL,
	tick_spacing     INTEGER     NOT NULL,
	first_seen_block BIGINT      NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address)
);
CREATE UNIQUE INDEX IF NOT EXISTS pools_chain_symbol_idx ON pools (chain_id, upper(symbol));
`

// Store is the Postgres-backed pool registry.
type Store struct {
	pool *pgxpool.Pool
}

var _ registry.Registry = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the pools table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, poolsSchema); err != nil {
		return fmt.Errorf("create pools schema: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates registry records.
func (s *Store) UpsertPools(ctx context.Context, pools []model.PoolInfo) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, symbol, token0, token1, fee, tick_spacing, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				symbol = EXCLUDED.symbol,
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				fee = EXCLUDED.fee,
				tick_spacing = EXCLUDED.tick_spacing,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			strings.ToLower(pool.Address),
			pool.Symbol,
			pool.Token0,
			pool.Token1,
			int64(pool.Fee),
			pool.TickSpacing,
			int64(pool.StartBlock),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, pool := range pools {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert pool %s: %w", pool.Symbol, err)
		}
	}
	return nil
}

// Lookup resolves a pool by symbol or address.
func (s *Store) Lookup(ctx context.Context, chainID uint64, symbol string) (model.PoolInfo, error) {
	name := strings.TrimSpace(symbol)
	row := s.pool.QueryRow(ctx, `
		SELECT chain_id, pool_address, symbol, token0, token1, fee, tick_spacing, first_seen_block
		FROM pools
		WHERE chain_id = $1 AND (upper(symbol) = upper($2) OR pool_address = lower($2))
		LIMIT 1
	`, int64(chainID), name)

	var (
		info       model.PoolInfo
		chain      int64
		fee        int64
		startBlock int64
	)
	if err := row.Scan(&chain, &info.Address, &info.Symbol, &info.Token0, &info.Token1, &fee, &info.TickSpacing, &startBlock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolInfo{}, fmt.Errorf("%w: %s on chain %d", registry.ErrUnknownPool, symbol, chainID)
		}
		return model.PoolInfo{}, fmt.Errorf("lookup pool %s: %w", symbol, err)
	}
	info.ChainID = uint64(chain)
	info.Fee = uint32(fee)
	info.StartBlock = uint64(startBlock)
	return registry.Normalize(info)
}
