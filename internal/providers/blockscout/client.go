package blockscout

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/httpx"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

type Client struct {
	http     *httpx.Client
	baseURL  string
	registry *id.Registry
	now      func() time.Time
}

func New(httpClient *httpx.Client, reg *id.Registry) *Client {
	if reg == nil {
		reg = id.DefaultRegistry()
	}
	return &Client{
		http:     httpClient,
		baseURL:  registry.BlockscoutBaseURL,
		registry: reg,
		now:      time.Now,
	}
}

func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "blockscout",
		Type:         "explorer",
		RequiresKey:  false,
		Capabilities: []string{"network.status", "account.balance", "account.tokens"},
	}
}

// envelope is the Etherscan-compatible response wrapper served under /api.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) api(ctx context.Context, params url.Values, out any) error {
	var env envelope
	if err := httpx.GetJSON(ctx, c.http, c.baseURL+"/api?"+params.Encode(), nil, &env); err != nil {
		return err
	}
	if env.Status == "0" {
		if isEmptyResult(env.Message) {
			return nil
		}
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("blockscout %s/%s: %s", params.Get("module"), params.Get("action"), env.Message))
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode blockscout result", err)
	}
	return nil
}

func isEmptyResult(message string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(message)), "no ")
}

// TotalSupply returns the native supply in base units.
func (c *Client) TotalSupply(ctx context.Context) (*big.Int, error) {
	var raw string
	if err := c.api(ctx, url.Values{"module": {"stats"}, "action": {"ethsupply"}}, &raw); err != nil {
		return nil, err
	}
	return parseBaseUnits("total supply", raw)
}

type statsResp struct {
	CoinPrice   *string `json:"coin_price"`
	TotalBlocks string  `json:"total_blocks"`
	GasPrices   struct {
		Average json.RawMessage `json:"average"`
	} `json:"gas_prices"`
}

type chainStats struct {
	priceUSD decimal.Decimal
	gasGwei  decimal.Decimal
}

func (c *Client) stats(ctx context.Context) (chainStats, error) {
	var resp statsResp
	if err := httpx.GetJSON(ctx, c.http, c.baseURL+"/api/v2/stats", nil, &resp); err != nil {
		return chainStats{}, err
	}
	out := chainStats{priceUSD: decimal.Zero, gasGwei: parseGasPrice(resp.GasPrices.Average)}
	if resp.CoinPrice != nil {
		if v, err := decimal.NewFromString(*resp.CoinPrice); err == nil {
			out.priceUSD = v
		}
	}
	return out, nil
}

// parseGasPrice accepts both the plain number and the {"price": n} shapes
// served by different explorer versions.
func parseGasPrice(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := decimal.NewFromString(n.String()); err == nil {
			return v
		}
	}
	var obj struct {
		Price json.Number `json:"price"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if v, err := decimal.NewFromString(obj.Price.String()); err == nil {
			return v
		}
	}
	return decimal.Zero
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var resp struct {
		Result string `json:"result"`
	}
	endpoint := c.baseURL + "/api?" + url.Values{"module": {"block"}, "action": {"eth_block_number"}}.Encode()
	if err := httpx.GetJSON(ctx, c.http, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	n, err := hexutil.DecodeUint64(resp.Result)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "decode block number", err)
	}
	return n, nil
}

// NetworkStats fetches supply, price and head block concurrently; the
// first failure cancels the rest.
func (c *Client) NetworkStats(ctx context.Context) (model.NetworkStats, error) {
	var (
		supply *big.Int
		stats  chainStats
		block  uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		supply, err = c.TotalSupply(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = c.stats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		block, err = c.BlockNumber(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.NetworkStats{}, err
	}
	return model.NetworkStats{
		ChainID:        id.EDUChain.CAIP2,
		TotalSupply:    id.FormatUnits(supply, 18),
		NativePriceUSD: stats.priceUSD,
		BlockNumber:    block,
		GasPriceGwei:   stats.gasGwei,
		FetchedAt:      c.now().UTC().Format(time.RFC3339),
	}, nil
}

// Balance returns the native EDU balance of address.
func (c *Client) Balance(ctx context.Context, address string) (model.AmountInfo, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return model.AmountInfo{}, err
	}
	var raw string
	params := url.Values{"module": {"account"}, "action": {"balance"}, "address": {addr.Hex()}, "tag": {"latest"}}
	if err := c.api(ctx, params, &raw); err != nil {
		return model.AmountInfo{}, err
	}
	bal, err := parseBaseUnits("balance", raw)
	if err != nil {
		return model.AmountInfo{}, err
	}
	return amountInfo(bal, 18), nil
}

type tokenListItem struct {
	Balance         string `json:"balance"`
	ContractAddress string `json:"contractAddress"`
	Decimals        string `json:"decimals"`
	Symbol          string `json:"symbol"`
	Type            string `json:"type"`
}

// TokenBalances lists ERC-20 holdings of address. Registry tokens come
// first; symbols for known contracts come from the registry, not the explorer.
func (c *Client) TokenBalances(ctx context.Context, address string) ([]model.TokenHolding, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	var items []tokenListItem
	params := url.Values{"module": {"account"}, "action": {"tokenlist"}, "address": {addr.Hex()}}
	if err := c.api(ctx, params, &items); err != nil {
		return nil, err
	}
	out := make([]model.TokenHolding, 0, len(items))
	for _, item := range items {
		if item.Type != "" && !strings.EqualFold(item.Type, "ERC-20") {
			continue
		}
		bal, err := parseBaseUnits("token balance", item.Balance)
		if err != nil {
			continue
		}
		holding := model.TokenHolding{Symbol: item.Symbol, Address: item.ContractAddress}
		decimals, _ := strconv.Atoi(item.Decimals)
		if tok, err := c.registry.ByAddress(item.ContractAddress); err == nil {
			holding.Symbol = tok.Symbol
			holding.Address = tok.Address
			holding.Verified = true
			decimals = tok.Decimals
		}
		holding.Balance = amountInfo(bal, decimals)
		out = append(out, holding)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Verified != out[j].Verified {
			return out[i].Verified
		}
		return strings.ToUpper(out[i].Symbol) < strings.ToUpper(out[j].Symbol)
	})
	return out, nil
}

// AccountBalance combines the native balance and token list.
func (c *Client) AccountBalance(ctx context.Context, address string) (model.AccountBalance, error) {
	var (
		native model.AmountInfo
		tokens []model.TokenHolding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		native, err = c.Balance(gctx, address)
		return err
	})
	g.Go(func() error {
		var err error
		tokens, err = c.TokenBalances(gctx, address)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.AccountBalance{}, err
	}
	return model.AccountBalance{
		ChainID: id.EDUChain.CAIP2,
		Address: common.HexToAddress(address).Hex(),
		Native:  native,
		Tokens:  tokens,
	}, nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid address %q", raw))
	}
	return common.HexToAddress(raw), nil
}

func parseBaseUnits(field, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("blockscout returned invalid %s %q", field, raw))
	}
	return v, nil
}

func amountInfo(v *big.Int, decimals int) model.AmountInfo {
	return model.AmountInfo{AmountBaseUnits: v.String(), AmountDecimal: id.FormatUnits(v, decimals), Decimals: decimals}
}
