package geckoterminal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/edufi-cli/internal/cache"
	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/httpx"
	"github.com/ggonzalez94/edufi-cli/internal/id"
)

const weduAddr = "0xd02e8c38a8e3db71f8b2ae30b8186d7874934e12"

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var accepts []string
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/networks/educhain/token_price/", func(w http.ResponseWriter, r *http.Request) {
		accepts = append(accepts, r.Header.Get("Accept"))
		addr := strings.TrimPrefix(r.URL.Path, "/simple/networks/educhain/token_price/")
		if addr != weduAddr {
			_, _ = w.Write([]byte(`{"data":{"id":"x","type":"simple_token_price","attributes":{"token_prices":{}}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"x","type":"simple_token_price","attributes":{"token_prices":{"` + weduAddr + `":"0.1432"}}}}`))
	})
	mux.HandleFunc("/networks/educhain/pools", func(w http.ResponseWriter, r *http.Request) {
		accepts = append(accepts, r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"data":[
			{"id":"educhain_0x1","type":"pool","attributes":{"name":"WEDU / USDC 0.3%","address":"0x1","reserve_in_usd":"1000.5","volume_usd":{"h24":"20"}}},
			{"id":"educhain_0x2","type":"pool","attributes":{"name":"ESD / USDC 0.05%","address":"0x2","reserve_in_usd":"5000","volume_usd":{"h24":"7.5"}}},
			{"id":"educhain_0x3","type":"pool","attributes":{"name":"WISER / WEDU 1%","address":"0x3","reserve_in_usd":null,"volume_usd":{"h24":"bad"}}}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &accepts
}

func mustToken(t *testing.T, symbol string) id.Token {
	t.Helper()
	tok, err := id.DefaultRegistry().BySymbol(symbol)
	require.NoError(t, err)
	return tok
}

func TestTokenPriceUsesWrappedForNative(t *testing.T) {
	srv, accepts := newTestServer(t)
	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(srv.URL)

	price, err := c.TokenPrice(context.Background(), id.DefaultRegistry(), mustToken(t, "EDU"))
	require.NoError(t, err)
	assert.Equal(t, "EDU", price.Symbol)
	assert.Equal(t, "0.1432", price.PriceUSD.String())
	assert.Equal(t, []string{acceptHeader}, *accepts)
}

func TestTokenPriceMissingIsUnavailable(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(srv.URL)

	_, err := c.TokenPrice(context.Background(), id.DefaultRegistry(), mustToken(t, "WISER"))
	assert.True(t, clierr.Is(err, clierr.CodeUnavailable), "got %v", err)
	assert.Contains(t, err.Error(), "WISER")
}

func TestMarketStatsAggregatesAndRanks(t *testing.T) {
	srv, _ := newTestServer(t)
	c := New(httpx.New(2*time.Second, 0)).WithBaseURL(srv.URL)

	stats, err := c.MarketStats(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.PoolCount)
	assert.Equal(t, "6000.5", stats.TotalReserve.String())
	assert.Equal(t, "27.5", stats.TotalVolume24h.String())
	require.Len(t, stats.TopPools, 2)
	assert.Equal(t, "0x2", stats.TopPools[0].Address)
	assert.Equal(t, "0x1", stats.TopPools[1].Address)
}

func TestMarketStatsRespectsLimiter(t *testing.T) {
	srv, _ := newTestServer(t)
	limited := httpx.New(2*time.Second, 0).WithLimiter(cache.NewLimiter(1, time.Hour))
	c := New(limited).WithBaseURL(srv.URL)

	_, err := c.MarketStats(context.Background(), 0)
	require.NoError(t, err)
	_, err = c.MarketStats(context.Background(), 0)
	assert.True(t, clierr.Is(err, clierr.CodeRateLimited), "got %v", err)
}
