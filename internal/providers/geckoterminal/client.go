package geckoterminal

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/httpx"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

// GeckoTerminal pins response shapes by a dated Accept version.
const acceptHeader = "application/json;version=20230302"

const defaultTopPools = 5

type Client struct {
	http    *httpx.Client
	baseURL string
	network string
	now     func() time.Time
}

func New(httpClient *httpx.Client) *Client {
	return &Client{
		http:    httpClient,
		baseURL: registry.GeckoTerminalBaseURL,
		network: registry.GeckoTerminalNetwork,
		now:     time.Now,
	}
}

// WithBaseURL points the client at another deployment, mainly for tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "geckoterminal",
		Type:         "market",
		RequiresKey:  false,
		Capabilities: []string{"token.price", "market.stats"},
	}
}

type tokenPriceResp struct {
	Data struct {
		Attributes struct {
			TokenPrices map[string]*string `json:"token_prices"`
		} `json:"attributes"`
	} `json:"data"`
}

// TokenPrice returns the USD price of a registry token. Native EDU is
// priced through its wrapped contract.
func (c *Client) TokenPrice(ctx context.Context, reg *id.Registry, token id.Token) (model.TokenPrice, error) {
	priced, err := reg.RoutingToken(token)
	if err != nil {
		return model.TokenPrice{}, err
	}
	addr := strings.ToLower(priced.Address)
	endpoint := fmt.Sprintf("%s/simple/networks/%s/token_price/%s", c.baseURL, c.network, url.PathEscape(addr))

	var resp tokenPriceResp
	if err := httpx.GetJSON(ctx, c.http, endpoint, map[string]string{"Accept": acceptHeader}, &resp); err != nil {
		return model.TokenPrice{}, err
	}
	raw := lookupPrice(resp.Data.Attributes.TokenPrices, addr)
	if raw == "" {
		return model.TokenPrice{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("no %s price on geckoterminal for %s", token.Symbol, addr))
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return model.TokenPrice{}, clierr.Wrap(clierr.CodeUnavailable, "decode token price", err)
	}
	return model.TokenPrice{
		Symbol:    token.Symbol,
		Address:   priced.Address,
		PriceUSD:  price,
		Source:    "geckoterminal",
		FetchedAt: c.now().UTC().Format(time.RFC3339),
	}, nil
}

func lookupPrice(prices map[string]*string, addr string) string {
	for k, v := range prices {
		if strings.EqualFold(k, addr) && v != nil {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}

type poolsResp struct {
	Data []struct {
		Attributes struct {
			Name         string `json:"name"`
			Address      string `json:"address"`
			ReserveInUSD string `json:"reserve_in_usd"`
			VolumeUSD    struct {
				H24 string `json:"h24"`
			} `json:"volume_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

// MarketStats aggregates reserve and 24h volume over the network's
// listed pools and returns the top pools by reserve.
func (c *Client) MarketStats(ctx context.Context, top int) (model.MarketStats, error) {
	if top <= 0 {
		top = defaultTopPools
	}
	endpoint := fmt.Sprintf("%s/networks/%s/pools", c.baseURL, c.network)
	var resp poolsResp
	if err := httpx.GetJSON(ctx, c.http, endpoint, map[string]string{"Accept": acceptHeader}, &resp); err != nil {
		return model.MarketStats{}, err
	}
	if len(resp.Data) == 0 {
		return model.MarketStats{}, clierr.New(clierr.CodeUnavailable, "geckoterminal returned no pools for "+c.network)
	}

	pools := make([]model.PoolMarket, 0, len(resp.Data))
	totalReserve, totalVolume := decimal.Zero, decimal.Zero
	for _, item := range resp.Data {
		reserve := parseUSD(item.Attributes.ReserveInUSD)
		volume := parseUSD(item.Attributes.VolumeUSD.H24)
		totalReserve = totalReserve.Add(reserve)
		totalVolume = totalVolume.Add(volume)
		pools = append(pools, model.PoolMarket{
			Name:         item.Attributes.Name,
			Address:      item.Attributes.Address,
			ReserveUSD:   reserve,
			Volume24hUSD: volume,
		})
	}
	sort.SliceStable(pools, func(i, j int) bool {
		return pools[i].ReserveUSD.GreaterThan(pools[j].ReserveUSD)
	})
	if len(pools) > top {
		pools = pools[:top]
	}
	return model.MarketStats{
		Network:        c.network,
		PoolCount:      len(resp.Data),
		TotalReserve:   totalReserve,
		TotalVolume24h: totalVolume,
		TopPools:       pools,
		FetchedAt:      c.now().UTC().Format(time.RFC3339),
	}, nil
}

// parseUSD treats missing or malformed figures as zero.
func parseUSD(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return v
}
