package blockscout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/httpx"
	"github.com/ggonzalez94/edufi-cli/internal/id"
)

const holder = "0x00000000000000000000000000000000000000aa"

type explorer struct {
	stats      string
	statusCode int
	hits       int32
}

func (e *explorer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&e.hits, 1)
	if e.statusCode != 0 {
		w.WriteHeader(e.statusCode)
		return
	}
	if r.URL.Path == "/api/v2/stats" {
		_, _ = w.Write([]byte(e.stats))
		return
	}
	q := r.URL.Query()
	switch q.Get("module") + "/" + q.Get("action") {
	case "stats/ethsupply":
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":"1000000000000000000000000000"}`))
	case "block/eth_block_number":
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1092"}`))
	case "account/balance":
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":"2500000000000000000"}`))
	case "account/tokenlist":
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[
			{"balance":"7","contractAddress":"0x1111111111111111111111111111111111111111","decimals":"0","symbol":"ZZZ","type":"ERC-20"},
			{"balance":"12500000","contractAddress":"0x836d275563bab5e93fd6ca62a95db7065da94342","decimals":"6","symbol":"USDC.e","type":"ERC-20"},
			{"balance":"1","contractAddress":"0x2222222222222222222222222222222222222222","decimals":"0","symbol":"NFT","type":"ERC-721"}
		]}`))
	default:
		_, _ = w.Write([]byte(`{"status":"0","message":"Unknown action","result":null}`))
	}
}

func newTestClient(t *testing.T, e *explorer) *Client {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return New(httpx.New(2*time.Second, 0), id.DefaultRegistry()).WithBaseURL(srv.URL)
}

func TestNetworkStats(t *testing.T) {
	e := &explorer{stats: `{"coin_price":"0.1475","total_blocks":"4242","gas_prices":{"average":0.02}}`}
	c := newTestClient(t, e)

	stats, err := c.NetworkStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id.EDUChain.CAIP2, stats.ChainID)
	assert.Equal(t, "1000000000", stats.TotalSupply)
	assert.Equal(t, "0.1475", stats.NativePriceUSD.String())
	assert.Equal(t, uint64(4242), stats.BlockNumber)
	assert.Equal(t, "0.02", stats.GasPriceGwei.String())
	assert.Equal(t, int32(3), atomic.LoadInt32(&e.hits))
}

func TestNetworkStatsAcceptsObjectGasPrice(t *testing.T) {
	e := &explorer{stats: `{"coin_price":null,"gas_prices":{"average":{"price":1.5,"time":2000}}}`}
	c := newTestClient(t, e)

	stats, err := c.NetworkStats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.NativePriceUSD.IsZero())
	assert.Equal(t, "1.5", stats.GasPriceGwei.String())
}

func TestNetworkStatsFailsFast(t *testing.T) {
	c := newTestClient(t, &explorer{statusCode: http.StatusBadGateway})
	_, err := c.NetworkStats(context.Background())
	assert.True(t, clierr.Is(err, clierr.CodeUnavailable), "got %v", err)
}

func TestAccountBalance(t *testing.T) {
	c := newTestClient(t, &explorer{})

	bal, err := c.AccountBalance(context.Background(), holder)
	require.NoError(t, err)
	assert.Equal(t, "2.5", bal.Native.AmountDecimal)
	require.Len(t, bal.Tokens, 2)

	usdc := bal.Tokens[0]
	assert.True(t, usdc.Verified)
	assert.Equal(t, "USDC", usdc.Symbol)
	assert.Equal(t, "12.5", usdc.Balance.AmountDecimal)
	assert.Equal(t, "ZZZ", bal.Tokens[1].Symbol)
	assert.False(t, bal.Tokens[1].Verified)
}

func TestBalanceRejectsInvalidAddress(t *testing.T) {
	e := &explorer{}
	c := newTestClient(t, e)
	_, err := c.Balance(context.Background(), "0x123")
	assert.True(t, clierr.Is(err, clierr.CodeUsage), "got %v", err)
	assert.Zero(t, atomic.LoadInt32(&e.hits))
}

func TestAPIErrorStatus(t *testing.T) {
	c := newTestClient(t, &explorer{})
	err := c.api(context.Background(), map[string][]string{"module": {"x"}, "action": {"y"}}, nil)
	assert.True(t, clierr.Is(err, clierr.CodeUnavailable), "got %v", err)
	assert.Contains(t, err.Error(), "Unknown action")
}
