package assistant

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/providers/edubridge"
	"github.com/ggonzalez94/edufi-cli/internal/providers/sailfish"
)

// topPools is how many pools the network report lists.
const topPools = 5

// Routes lists every SailFish route between two registry tokens, best first.
// An empty list is a valid answer.
func (s *Service) Routes(ctx context.Context, from, to string) ([]model.RouteSummary, error) {
	if err := s.requireSwaps(); err != nil {
		return nil, err
	}
	fromTok, err := s.reg.Resolve(from)
	if err != nil {
		return nil, err
	}
	toTok, err := s.reg.Resolve(to)
	if err != nil {
		return nil, err
	}
	routes, err := s.swaps.GetBestRoute(ctx, fromTok, toTok)
	if err != nil {
		return nil, err
	}
	out := make([]model.RouteSummary, 0, len(routes))
	for _, r := range routes {
		out = append(out, sailfish.SummarizeRoute(s.reg, r))
	}
	return out, nil
}

type QuoteRequest struct {
	From      string
	To        string
	Amount    string
	TradeType string
}

func (s *Service) Quote(ctx context.Context, req QuoteRequest) (model.SwapQuote, error) {
	if err := s.requireSwaps(); err != nil {
		return model.SwapQuote{}, err
	}
	tradeType, err := sailfish.ParseTradeType(req.TradeType)
	if err != nil {
		return model.SwapQuote{}, err
	}
	fromTok, err := s.reg.Resolve(req.From)
	if err != nil {
		return model.SwapQuote{}, err
	}
	toTok, err := s.reg.Resolve(req.To)
	if err != nil {
		return model.SwapQuote{}, err
	}

	start := s.now()
	q, err := s.swaps.GetQuote(ctx, fromTok, toTok, req.Amount, "", tradeType)
	kind := ""
	if err == nil && q.Route != nil {
		kind = string(q.Route.Kind())
	}
	s.metrics.ObserveQuote(kind, err, s.now().Sub(start))
	if err != nil {
		return model.SwapQuote{}, err
	}
	return q.Summary(s.reg, s.now()), nil
}

// Price reports the USD price of a registry token.
func (s *Service) Price(ctx context.Context, symbol string) (model.TokenPrice, error) {
	if s.market == nil {
		return model.TokenPrice{}, clierr.New(clierr.CodeUnsupported, "market data source is not configured")
	}
	tok, err := s.reg.Resolve(symbol)
	if err != nil {
		return model.TokenPrice{}, err
	}
	return s.market.TokenPrice(ctx, s.reg, tok)
}

// NetworkStatus combines explorer chain stats with the DEX market summary.
// Both lookups run concurrently and the first failure cancels the other.
func (s *Service) NetworkStatus(ctx context.Context) (model.NetworkStats, error) {
	if s.explorer == nil || s.market == nil {
		return model.NetworkStats{}, clierr.New(clierr.CodeUnsupported, "network status needs both the explorer and market sources")
	}
	var (
		stats  model.NetworkStats
		market model.MarketStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.explorer.NetworkStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		market, err = s.market.MarketStats(gctx, topPools)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.NetworkStats{}, err
	}
	stats.Market = &market
	stats.FetchedAt = s.now().UTC().Format(time.RFC3339)
	return stats, nil
}

func (s *Service) Balance(ctx context.Context, address string) (model.AccountBalance, error) {
	if s.explorer == nil {
		return model.AccountBalance{}, clierr.New(clierr.CodeUnsupported, "explorer source is not configured")
	}
	return s.explorer.AccountBalance(ctx, strings.TrimSpace(address))
}

// EstimateBridge quotes the source-chain fee of a bridge leg without planning it.
func (s *Service) EstimateBridge(ctx context.Context, direction, amount, recipient string) (model.BridgeEstimate, error) {
	if s.bridge == nil {
		return model.BridgeEstimate{}, clierr.New(clierr.CodeUnsupported, "bridge is not configured")
	}
	dir, err := edubridge.ParseDirection(direction)
	if err != nil {
		return model.BridgeEstimate{}, err
	}
	return s.bridge.EstimateBridgeFee(ctx, dir, amount, recipient)
}
