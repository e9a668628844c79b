package assistant

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/metrics"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/providers/edubridge"
	"github.com/ggonzalez94/edufi-cli/internal/providers/sailfish"
)

var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testSender = "0x00000000000000000000000000000000000000AA"
	testTo     = "0x00000000000000000000000000000000000000bb"
)

type fakeSwaps struct {
	quote    sailfish.Quote
	err      error
	routes   []sailfish.Route
	planned  int
	lastFrom id.Token
}

func (f *fakeSwaps) Info() model.ProviderInfo { return model.ProviderInfo{Name: "sailfish"} }

func (f *fakeSwaps) GetBestRoute(context.Context, id.Token, id.Token) ([]sailfish.Route, error) {
	return f.routes, f.err
}

func (f *fakeSwaps) GetQuote(_ context.Context, from, _ id.Token, _, _ string, _ sailfish.TradeType) (sailfish.Quote, error) {
	f.lastFrom = from
	return f.quote, f.err
}

func (f *fakeSwaps) QuoteRoute(context.Context, sailfish.Route, id.Token, id.Token, *big.Int) (sailfish.Quote, error) {
	return f.quote, f.err
}

func (f *fakeSwaps) BuildSwapAction(_ context.Context, req sailfish.SwapRequest) (execution.Action, sailfish.Quote, error) {
	if f.err != nil {
		return execution.Action{}, sailfish.Quote{}, f.err
	}
	f.planned++
	action := execution.NewAction(execution.NewActionID(), "swap", id.EDUChain.CAIP2, execution.Constraints{SlippageBps: 50})
	action.FromAddress = req.Sender
	action.InputAmount = f.quote.AmountIn.String()
	action.Metadata = map[string]any{
		"token_in":        req.From.Symbol,
		"token_out":       req.To.Symbol,
		"quoted_amount":   f.quote.AmountOut.String(),
		"execution_price": f.quote.ExecutionPrice.String(),
		"price_impact":    f.quote.PriceImpact.String(),
	}
	action.Steps = []execution.ActionStep{{StepID: "swap", Type: execution.StepTypeSwap, ChainID: id.EDUChain.CAIP2}}
	return action, f.quote, nil
}

type fakeBridge struct {
	err  error
	dirs []edubridge.Direction
}

func (f *fakeBridge) Info() model.ProviderInfo { return model.ProviderInfo{Name: "edubridge"} }

func (f *fakeBridge) Plan(_ context.Context, dir edubridge.Direction, req edubridge.Request) (execution.Action, error) {
	f.dirs = append(f.dirs, dir)
	if f.err != nil {
		return execution.Action{}, f.err
	}
	action := execution.NewAction(execution.NewActionID(), "bridge", dir.Source().CAIP2, execution.Constraints{})
	action.Metadata = map[string]any{"amount_decimal": req.Amount, "settlement_estimate": dir.SettlementEstimate()}
	action.Steps = []execution.ActionStep{{StepID: "bridge-send", Type: execution.StepTypeBridge}}
	return action, nil
}

func (f *fakeBridge) EstimateBridgeFee(_ context.Context, dir edubridge.Direction, amount, _ string) (model.BridgeEstimate, error) {
	return model.BridgeEstimate{
		Direction:          string(dir),
		Amount:             model.AmountInfo{AmountDecimal: amount},
		Fee:                model.AmountInfo{AmountDecimal: "0.001"},
		FeeSymbol:          dir.Source().NativeAsset,
		SettlementEstimate: dir.SettlementEstimate(),
	}, nil
}

type fakeMarket struct {
	statsErr error
	calls    atomic.Int32
}

func (f *fakeMarket) Info() model.ProviderInfo { return model.ProviderInfo{Name: "geckoterminal"} }

func (f *fakeMarket) TokenPrice(_ context.Context, _ *id.Registry, tok id.Token) (model.TokenPrice, error) {
	return model.TokenPrice{Symbol: tok.Symbol, PriceUSD: decimal.RequireFromString("0.14")}, nil
}

func (f *fakeMarket) MarketStats(ctx context.Context, top int) (model.MarketStats, error) {
	f.calls.Add(1)
	if f.statsErr != nil {
		return model.MarketStats{}, f.statsErr
	}
	return model.MarketStats{Network: "educhain", PoolCount: top, TotalReserve: decimal.NewFromInt(1000)}, nil
}

type fakeExplorer struct {
	wait bool
}

func (f *fakeExplorer) Info() model.ProviderInfo { return model.ProviderInfo{Name: "blockscout"} }

func (f *fakeExplorer) NetworkStats(ctx context.Context) (model.NetworkStats, error) {
	if f.wait {
		<-ctx.Done()
		return model.NetworkStats{}, ctx.Err()
	}
	return model.NetworkStats{ChainID: id.EDUChain.CAIP2, BlockNumber: 99, GasPriceGwei: decimal.NewFromInt(1)}, nil
}

func (f *fakeExplorer) AccountBalance(_ context.Context, address string) (model.AccountBalance, error) {
	return model.AccountBalance{Address: address, Native: model.AmountInfo{AmountDecimal: "2"}}, nil
}

type fakeReader struct {
	native *big.Int
	closed bool
}

func (f *fakeReader) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("unexpected call")
}

func (f *fakeReader) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeReader) Close() { f.closed = true }

func testQuote(t *testing.T) sailfish.Quote {
	t.Helper()
	reg := id.DefaultRegistry()
	usdc, err := reg.BySymbol("USDC")
	require.NoError(t, err)
	esd, err := reg.BySymbol("ESD")
	require.NoError(t, err)
	route := sailfish.DirectRoute{Hop: sailfish.Hop{
		Pool:     sailfish.Pool{Address: common.HexToAddress("0xB001"), Token0: usdc.EVMAddress(), Token1: esd.EVMAddress(), FeeTier: 500, Liquidity: big.NewInt(1)},
		TokenIn:  usdc.EVMAddress(),
		TokenOut: esd.EVMAddress(),
	}}
	out, _ := new(big.Int).SetString("9950000000000000000", 10)
	return sailfish.Quote{
		TradeType:      sailfish.ExactInput,
		TokenIn:        usdc,
		TokenOut:       esd,
		AmountIn:       big.NewInt(10_000_000),
		AmountOut:      out,
		ExecutionPrice: decimal.RequireFromString("0.995"),
		PriceImpact:    decimal.RequireFromString("0.5"),
		Route:          route,
	}
}

type fixture struct {
	svc      *Service
	swaps    *fakeSwaps
	bridge   *fakeBridge
	market   *fakeMarket
	explorer *fakeExplorer
	reader   *fakeReader
	store    *execution.Store
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := execution.OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		swaps:    &fakeSwaps{quote: testQuote(t)},
		bridge:   &fakeBridge{},
		market:   &fakeMarket{},
		explorer: &fakeExplorer{},
		reader:   &fakeReader{native: big.NewInt(0)},
		store:    store,
		metrics:  metrics.New(),
	}
	f.svc, err = New(Config{
		Registry: id.DefaultRegistry(),
		Swaps:    f.swaps,
		Bridge:   f.bridge,
		Market:   f.market,
		Explorer: f.explorer,
		Store:    store,
		Metrics:  f.metrics,
		Dial:     func(context.Context, string) (ChainReader, error) { return f.reader, nil },
		Now:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return f
}

func TestQuoteResolvesTokensAndSummarises(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Quote(context.Background(), QuoteRequest{From: "usdc", To: "ESD", Amount: "10"})
	require.NoError(t, err)
	assert.Equal(t, "USDC", f.swaps.lastFrom.Symbol)
	assert.Equal(t, "9.95", q.EstimatedOut.AmountDecimal)
	assert.Equal(t, []string{"USDC", "ESD"}, q.Route.Path)
	assert.Equal(t, "2026-03-01T12:00:00Z", q.FetchedAt)
}

func TestQuoteRejectsUnknownToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Quote(context.Background(), QuoteRequest{From: "DOGE", To: "ESD", Amount: "1"})
	assert.True(t, clierr.Is(err, clierr.CodeInvalidToken), "got %v", err)
}

func TestRoutesEmptyIsNotAnError(t *testing.T) {
	f := newFixture(t)
	routes, err := f.svc.Routes(context.Background(), "USDC", "WISER")
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestPlanSwapPersistsAction(t *testing.T) {
	f := newFixture(t)
	action, q, err := f.svc.PlanSwap(context.Background(), SwapRequest{From: "USDC", To: "ESD", Amount: "10", Sender: testSender})
	require.NoError(t, err)
	assert.Equal(t, "USDC", q.FromSymbol)

	stored, err := f.store.Get(action.ActionID)
	require.NoError(t, err)
	assert.Equal(t, "swap", stored.IntentType)
}

func TestPlanSwapFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.swaps.err = clierr.New(clierr.CodeInsufficientBalance, "insufficient USDC")
	_, _, err := f.svc.PlanSwap(context.Background(), SwapRequest{From: "USDC", To: "ESD", Amount: "10", Sender: testSender})
	assert.True(t, clierr.Is(err, clierr.CodeInsufficientBalance))

	items, err := f.store.List(execution.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPlanBridgeRejectsUnknownDirection(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlanBridge(context.Background(), BridgeRequest{Direction: "edu-bsc", Amount: "1", Sender: testSender})
	assert.True(t, clierr.Is(err, clierr.CodeUsage))
	assert.Empty(t, f.bridge.dirs)
}

func TestPlanTransferChecksNativeBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlanTransfer(context.Background(), TransferRequest{Token: "EDU", Amount: "1", Sender: testSender, Recipient: testTo})
	assert.True(t, clierr.Is(err, clierr.CodeInsufficientBalance), "got %v", err)
	assert.True(t, f.reader.closed)

	f.reader.native, _ = new(big.Int).SetString("5000000000000000000", 10)
	action, err := f.svc.PlanTransfer(context.Background(), TransferRequest{Token: "EDU", Amount: "1", Sender: testSender, Recipient: testTo})
	require.NoError(t, err)
	require.Len(t, action.Steps, 1)
	assert.Equal(t, "1000000000000000000", action.Steps[0].Value)
}

func TestNetworkStatusCombinesSources(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.NetworkStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(99), st.BlockNumber)
	require.NotNil(t, st.Market)
	assert.Equal(t, topPools, st.Market.PoolCount)
}

func TestNetworkStatusFirstErrorCancelsOther(t *testing.T) {
	f := newFixture(t)
	f.explorer.wait = true
	f.market.statsErr = clierr.New(clierr.CodeUnavailable, "geckoterminal down")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.NetworkStatus(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		assert.True(t, clierr.Is(err, clierr.CodeUnavailable), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("network status did not cancel the explorer lookup")
	}
}

func TestResultFromSwapAction(t *testing.T) {
	f := newFixture(t)
	action, _, err := f.svc.PlanSwap(context.Background(), SwapRequest{From: "USDC", To: "ESD", Amount: "10", Sender: testSender})
	require.NoError(t, err)

	// simulate a reload from the store and a confirmed step
	action, err = f.store.Get(action.ActionID)
	require.NoError(t, err)
	action.Status = execution.ActionStatusCompleted
	action.Steps[0].TxHash = "0xabc"

	res := f.svc.Result(action)
	assert.Equal(t, "10", res.AmountIn)
	assert.Equal(t, "9.95", res.AmountOut)
	assert.Equal(t, "0.995", res.ExecutionPrice.String())
	assert.Equal(t, "0.5", res.PriceImpact.String())
	assert.Equal(t, "0xabc", res.TransactionHash)
	assert.Equal(t, "https://educhain.blockscout.com/tx/0xabc", res.ExplorerURL)
	assert.Equal(t, "completed", res.Status)
}

func TestResultFromBridgeAction(t *testing.T) {
	f := newFixture(t)
	action, err := f.svc.PlanBridge(context.Background(), BridgeRequest{Direction: "arb-edu", Amount: "3", Sender: testSender})
	require.NoError(t, err)
	res := f.svc.Result(action)
	assert.Equal(t, "3", res.AmountIn)
	assert.Equal(t, "15-20 minutes", res.Settlement)
	assert.Empty(t, res.TransactionHash)
}

func TestProvidersSkipsMissingSources(t *testing.T) {
	svc, err := New(Config{Registry: id.DefaultRegistry(), Market: &fakeMarket{}})
	require.NoError(t, err)
	infos := svc.Providers()
	require.Len(t, infos, 1)
	assert.Equal(t, "geckoterminal", infos[0].Name)

	_, err = svc.Quote(context.Background(), QuoteRequest{From: "USDC", To: "ESD", Amount: "1"})
	assert.True(t, clierr.Is(err, clierr.CodeUnsupported))
}
