package sailfish

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/id"
)

type TradeType string

const (
	ExactInput  TradeType = "EXACT_INPUT"
	ExactOutput TradeType = "EXACT_OUTPUT"
)

// ParseTradeType accepts EXACT_INPUT / exact-input style spellings; empty means exact input.
func ParseTradeType(raw string) (TradeType, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")) {
	case "", string(ExactInput):
		return ExactInput, nil
	case string(ExactOutput):
		return ExactOutput, nil
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown trade type %q", raw))
	}
}

// Quote is an ephemeral price for one route at one block.
type Quote struct {
	TradeType      TradeType
	TokenIn        id.Token
	TokenOut       id.Token
	AmountIn       *big.Int
	AmountOut      *big.Int
	ExecutionPrice decimal.Decimal
	PriceImpact    decimal.Decimal
	GasEstimate    uint64
	BlockNumber    uint64
	Route          Route
}

func (q Quote) AmountInDecimal() string  { return id.FormatUnits(q.AmountIn, q.TokenIn.Decimals) }
func (q Quote) AmountOutDecimal() string { return id.FormatUnits(q.AmountOut, q.TokenOut.Decimals) }

type quoteExactInputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	AmountIn          *big.Int       `abi:"amountIn"`
	Fee               *big.Int       `abi:"fee"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

var (
	q192       = new(big.Int).Lsh(big.NewInt(1), 192)
	hundred    = decimal.NewFromInt(100)
	impactPrec = int32(6)
)

// GetQuote prices amountIn (human units) of from into to along the best
// route that has liquidity. amountOutHint is only meaningful for exact
// output trades, which are declared but not supported.
func (c *Client) GetQuote(ctx context.Context, from, to id.Token, amountIn, amountOutHint string, tradeType TradeType) (Quote, error) {
	if tradeType == "" {
		tradeType = ExactInput
	}
	if tradeType == ExactOutput {
		return Quote{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("EXACT_OUTPUT quotes are not supported (requested %s %s out)", amountOutHint, to.Symbol))
	}
	amount, err := id.ParseUnits(amountIn, from.Decimals)
	if err != nil {
		return Quote{}, err
	}
	if amount.Sign() <= 0 {
		return Quote{}, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}

	client, err := c.connect(ctx)
	if err != nil {
		return Quote{}, err
	}
	defer client.Close()
	return c.quoteBest(ctx, client, from, to, amount)
}

func (c *Client) quoteBest(ctx context.Context, client ChainClient, from, to id.Token, amount *big.Int) (Quote, error) {
	header, err := c.latestHeader(ctx, client)
	if err != nil {
		return Quote{}, err
	}
	if err := c.checkFresh(header); err != nil {
		return Quote{}, err
	}
	routes, err := c.discover(ctx, client, from, to)
	if err != nil {
		return Quote{}, err
	}
	if len(routes) == 0 {
		return Quote{}, clierr.New(clierr.CodeNoRoute, fmt.Sprintf("no SailFish route from %s to %s", from.Symbol, to.Symbol))
	}
	for _, route := range routes {
		if !routeHasLiquidity(route) {
			continue
		}
		q, err := c.quoteRoute(ctx, client, route, from, to, amount)
		if err != nil {
			return Quote{}, err
		}
		q.BlockNumber = header.Number.Uint64()
		return q, nil
	}
	return Quote{}, clierr.New(clierr.CodeNoLiquidity, fmt.Sprintf(
		"%d SailFish route(s) from %s to %s found but none has liquidity", len(routes), from.Symbol, to.Symbol,
	))
}

// QuoteRoute prices a fixed route. It fails with NoLiquidity when any hop is empty.
func (c *Client) QuoteRoute(ctx context.Context, route Route, from, to id.Token, amountIn *big.Int) (Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return Quote{}, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}
	if !routeHasLiquidity(route) {
		return Quote{}, clierr.New(clierr.CodeNoLiquidity, fmt.Sprintf("route %s from %s to %s has a pool with zero liquidity", route.Kind(), from.Symbol, to.Symbol))
	}
	client, err := c.connect(ctx)
	if err != nil {
		return Quote{}, err
	}
	defer client.Close()
	header, err := c.latestHeader(ctx, client)
	if err != nil {
		return Quote{}, err
	}
	if err := c.checkFresh(header); err != nil {
		return Quote{}, err
	}
	q, err := c.quoteRoute(ctx, client, route, from, to, amountIn)
	if err != nil {
		return Quote{}, err
	}
	q.BlockNumber = header.Number.Uint64()
	return q, nil
}

func (c *Client) quoteRoute(ctx context.Context, client ChainClient, route Route, from, to id.Token, amountIn *big.Int) (Quote, error) {
	_, quoter, _, err := c.contracts.Swap()
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeUsage, "sailfish contracts", err)
	}

	var (
		method string
		data   []byte
	)
	switch r := route.(type) {
	case DirectRoute:
		method = "quoteExactInputSingle"
		data, err = quoterABI.Pack(method, quoteExactInputSingleParams{
			TokenIn:           r.Hop.TokenIn,
			TokenOut:          r.Hop.TokenOut,
			AmountIn:          amountIn,
			Fee:               new(big.Int).SetUint64(uint64(r.Hop.Pool.FeeTier)),
			SqrtPriceLimitX96: big.NewInt(0),
		})
	case MultihopRoute:
		method = "quoteExactInput"
		data, err = quoterABI.Pack(method, EncodePath(r), amountIn)
	default:
		return Quote{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("unhandled route type %T", route))
	}
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeInternal, "pack quoter calldata", err)
	}

	out, err := c.call(ctx, client, quoter, data)
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("quote %s %s to %s", id.FormatUnits(amountIn, from.Decimals), from.Symbol, to.Symbol), err)
	}
	values, err := quoterABI.Unpack(method, out)
	if err != nil || len(values) < 4 {
		return Quote{}, clierr.Wrap(clierr.CodeUnavailable, "decode quoter response", err)
	}
	amountOut, ok := values[0].(*big.Int)
	if !ok || amountOut == nil {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "invalid quoter amountOut")
	}
	if amountOut.Sign() <= 0 {
		return Quote{}, clierr.New(clierr.CodeNoLiquidity, fmt.Sprintf("quoter returned zero output for %s %s", id.FormatUnits(amountIn, from.Decimals), from.Symbol))
	}
	gas, _ := values[3].(*big.Int)

	q := Quote{
		TradeType:      ExactInput,
		TokenIn:        from,
		TokenOut:       to,
		AmountIn:       new(big.Int).Set(amountIn),
		AmountOut:      amountOut,
		ExecutionPrice: executionPrice(amountIn, from.Decimals, amountOut, to.Decimals),
		PriceImpact:    PriceImpact(route, amountIn, amountOut),
		Route:          route,
	}
	if gas != nil && gas.IsUint64() {
		q.GasEstimate = gas.Uint64()
	}
	return q, nil
}

func executionPrice(amountIn *big.Int, inDecimals int, amountOut *big.Int, outDecimals int) decimal.Decimal {
	in := id.ToDecimal(amountIn, inDecimals)
	if in.IsZero() {
		return decimal.Zero
	}
	return id.ToDecimal(amountOut, outDecimals).DivRound(in, 18)
}

// SpotOutput converts amountIn across every hop at the pools' current
// sqrtPriceX96, without fees, in integer math.
func SpotOutput(route Route, amountIn *big.Int) *big.Int {
	amt := new(big.Int).Set(amountIn)
	for _, hop := range route.Hops() {
		sqrt := hop.Pool.SqrtPriceX96
		if sqrt == nil || sqrt.Sign() == 0 {
			return big.NewInt(0)
		}
		priceX192 := new(big.Int).Mul(sqrt, sqrt)
		if hop.TokenIn == hop.Pool.Token0 {
			amt.Mul(amt, priceX192)
			amt.Div(amt, q192)
		} else {
			amt.Mul(amt, q192)
			amt.Div(amt, priceX192)
		}
	}
	return amt
}

// PriceImpact is the percentage shortfall of amountOut against the spot
// output, clamped at zero. Pool fees count as impact.
func PriceImpact(route Route, amountIn, amountOut *big.Int) decimal.Decimal {
	spot := SpotOutput(route, amountIn)
	if spot.Sign() <= 0 {
		return decimal.Zero
	}
	shortfall := new(big.Int).Sub(spot, amountOut)
	if shortfall.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(shortfall, 0).
		Mul(hundred).
		DivRound(decimal.NewFromBigInt(spot, 0), impactPrec)
}

func routeHasLiquidity(route Route) bool {
	for _, p := range route.Path() {
		if !p.HasLiquidity() {
			return false
		}
	}
	return true
}
