package providers

import (
	"context"
	"math/big"

	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/providers/edubridge"
	"github.com/ggonzalez94/edufi-cli/internal/providers/sailfish"
)

type Provider interface {
	Info() model.ProviderInfo
}

// SwapProvider discovers, prices and plans swaps on one DEX.
type SwapProvider interface {
	Provider
	GetBestRoute(ctx context.Context, from, to id.Token) ([]sailfish.Route, error)
	GetQuote(ctx context.Context, from, to id.Token, amountIn, amountOutHint string, tradeType sailfish.TradeType) (sailfish.Quote, error)
	QuoteRoute(ctx context.Context, route sailfish.Route, from, to id.Token, amountIn *big.Int) (sailfish.Quote, error)
	BuildSwapAction(ctx context.Context, req sailfish.SwapRequest) (execution.Action, sailfish.Quote, error)
}

type BridgeProvider interface {
	Provider
	Plan(ctx context.Context, dir edubridge.Direction, req edubridge.Request) (execution.Action, error)
	EstimateBridgeFee(ctx context.Context, dir edubridge.Direction, amountDecimal, recipient string) (model.BridgeEstimate, error)
}

type MarketDataProvider interface {
	Provider
	TokenPrice(ctx context.Context, reg *id.Registry, token id.Token) (model.TokenPrice, error)
	MarketStats(ctx context.Context, top int) (model.MarketStats, error)
}

type ChainDataProvider interface {
	Provider
	NetworkStats(ctx context.Context) (model.NetworkStats, error)
	AccountBalance(ctx context.Context, address string) (model.AccountBalance, error)
}
