package sailfish

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

// GetBestRoute returns every usable route between two registry tokens, best
// first. An empty slice means no pool path exists; it is not an error.
func (c *Client) GetBestRoute(ctx context.Context, from, to id.Token) ([]Route, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return c.discover(ctx, client, from, to)
}

func (c *Client) discover(ctx context.Context, client ChainClient, from, to id.Token) ([]Route, error) {
	a, b, err := c.resolvePair(from, to)
	if err != nil {
		return nil, err
	}
	factory, _, _, err := c.contracts.Swap()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "sailfish contracts", err)
	}
	tokenA, tokenB := a.EVMAddress(), b.EVMAddress()

	routes := make([]Route, 0, len(registry.FeeTiers)+2)
	direct, err := c.poolsFor(ctx, client, factory, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	for _, p := range direct {
		routes = append(routes, DirectRoute{Hop: Hop{Pool: p, TokenIn: tokenA, TokenOut: tokenB}})
	}

	for _, mid := range c.registry.Intermediaries(tokenA, tokenB) {
		midAddr := mid.EVMAddress()
		first, err := c.hopPool(ctx, client, factory, tokenA, midAddr)
		if err != nil {
			return nil, err
		}
		if first == nil {
			continue
		}
		second, err := c.hopPool(ctx, client, factory, midAddr, tokenB)
		if err != nil {
			return nil, err
		}
		if second == nil {
			continue
		}
		routes = append(routes, MultihopRoute{
			First:        Hop{Pool: *first, TokenIn: tokenA, TokenOut: midAddr},
			Second:       Hop{Pool: *second, TokenIn: midAddr, TokenOut: tokenB},
			Intermediary: mid,
		})
	}

	rankRoutes(routes)
	log.Debug().Str("from", from.Symbol).Str("to", to.Symbol).Int("routes", len(routes)).Msg("route discovery finished")
	return routes, nil
}

// poolsFor returns every existing pool for the pair, in fee tier order.
func (c *Client) poolsFor(ctx context.Context, client ChainClient, factory, tokenA, tokenB common.Address) ([]Pool, error) {
	out := make([]Pool, 0, len(registry.FeeTiers))
	for _, fee := range registry.FeeTiers {
		addr, err := c.getPool(ctx, client, factory, tokenA, tokenB, fee)
		if err != nil {
			return nil, err
		}
		if addr == (common.Address{}) {
			continue
		}
		pool, err := c.readPool(ctx, client, addr, fee)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, nil
}

// hopPool picks the lowest fee pool for one hop of a multihop route.
// Liquid pools win over cheaper empty ones; an empty pool is only returned
// when nothing else exists, so the quote engine can report NoLiquidity.
func (c *Client) hopPool(ctx context.Context, client ChainClient, factory, tokenA, tokenB common.Address) (*Pool, error) {
	pools, err := c.poolsFor(ctx, client, factory, tokenA, tokenB)
	if err != nil || len(pools) == 0 {
		return nil, err
	}
	for i := range pools {
		if pools[i].HasLiquidity() {
			return &pools[i], nil
		}
	}
	return &pools[0], nil
}

func (c *Client) getPool(ctx context.Context, client ChainClient, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	data, err := factoryABI.Pack("getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "pack getPool", err)
	}
	out, err := c.call(ctx, client, factory, data)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "factory getPool", err)
	}
	values, err := factoryABI.Unpack("getPool", out)
	if err != nil || len(values) == 0 {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "decode getPool", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, "invalid getPool response")
	}
	return addr, nil
}

func (c *Client) readPool(ctx context.Context, client ChainClient, addr common.Address, fee uint32) (Pool, error) {
	pool := Pool{Address: addr, FeeTier: fee}

	token0, err := c.readAddress(ctx, client, addr, "token0")
	if err != nil {
		return Pool{}, err
	}
	token1, err := c.readAddress(ctx, client, addr, "token1")
	if err != nil {
		return Pool{}, err
	}
	pool.Token0, pool.Token1 = token0, token1

	data, _ := poolABI.Pack("liquidity")
	out, err := c.call(ctx, client, addr, data)
	if err != nil {
		return Pool{}, clierr.Wrap(clierr.CodeUnavailable, "pool liquidity", err)
	}
	values, err := poolABI.Unpack("liquidity", out)
	if err != nil || len(values) == 0 {
		return Pool{}, clierr.Wrap(clierr.CodeUnavailable, "decode pool liquidity", err)
	}
	liquidity, ok := values[0].(*big.Int)
	if !ok {
		return Pool{}, clierr.New(clierr.CodeUnavailable, "invalid liquidity response")
	}
	pool.Liquidity = liquidity

	data, _ = poolABI.Pack("slot0")
	out, err = c.call(ctx, client, addr, data)
	if err != nil {
		return Pool{}, clierr.Wrap(clierr.CodeUnavailable, "pool slot0", err)
	}
	values, err = poolABI.Unpack("slot0", out)
	if err != nil || len(values) == 0 {
		return Pool{}, clierr.Wrap(clierr.CodeUnavailable, "decode pool slot0", err)
	}
	sqrtPrice, ok := values[0].(*big.Int)
	if !ok {
		return Pool{}, clierr.New(clierr.CodeUnavailable, "invalid slot0 response")
	}
	pool.SqrtPriceX96 = sqrtPrice
	return pool, nil
}

func (c *Client) readAddress(ctx context.Context, client ChainClient, pool common.Address, method string) (common.Address, error) {
	data, _ := poolABI.Pack(method)
	out, err := c.call(ctx, client, pool, data)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "pool "+method, err)
	}
	values, err := poolABI.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "decode pool "+method, err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, "invalid "+method+" response")
	}
	return addr, nil
}
