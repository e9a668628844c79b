package sailfish

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/model"
)

// SummarizeRoute renders a route with registry symbols for output.
func SummarizeRoute(reg *id.Registry, r Route) model.RouteSummary {
	out := model.RouteSummary{
		Kind:     string(r.Kind()),
		TotalFee: r.TotalFee(),
	}
	out.Path = append(out.Path, symbolOf(reg, r.TokenIn()))
	for _, hop := range r.Hops() {
		out.Path = append(out.Path, symbolOf(reg, hop.TokenOut))
	}
	if m, ok := r.(MultihopRoute); ok {
		out.Intermediary = m.Intermediary.Symbol
	}
	for _, p := range r.Path() {
		info := model.PoolInfo{
			Address: p.Address.Hex(),
			Token0:  p.Token0.Hex(),
			Token1:  p.Token1.Hex(),
			FeeTier: p.FeeTier,
		}
		if p.Liquidity != nil {
			info.Liquidity = p.Liquidity.String()
		}
		if p.SqrtPriceX96 != nil {
			info.SqrtPriceX96 = p.SqrtPriceX96.String()
		}
		out.Pools = append(out.Pools, info)
	}
	return out
}

// Summary converts the quote into the output model, keeping the caller's
// symbols so native EDU is not shown as its wrapped form.
func (q Quote) Summary(reg *id.Registry, now time.Time) model.SwapQuote {
	return model.SwapQuote{
		Provider:   "sailfish",
		ChainID:    id.EDUChain.CAIP2,
		FromSymbol: q.TokenIn.Symbol,
		ToSymbol:   q.TokenOut.Symbol,
		TradeType:  string(q.TradeType),
		InputAmount: model.AmountInfo{
			AmountBaseUnits: q.AmountIn.String(),
			AmountDecimal:   q.AmountInDecimal(),
			Decimals:        q.TokenIn.Decimals,
		},
		EstimatedOut: model.AmountInfo{
			AmountBaseUnits: q.AmountOut.String(),
			AmountDecimal:   q.AmountOutDecimal(),
			Decimals:        q.TokenOut.Decimals,
		},
		ExecutionPrice: q.ExecutionPrice,
		PriceImpactPct: q.PriceImpact,
		FeeTiers:       FeeTiers(q.Route),
		GasEstimate:    q.GasEstimate,
		BlockNumber:    q.BlockNumber,
		Route:          SummarizeRoute(reg, q.Route),
		FetchedAt:      now.UTC().Format(time.RFC3339),
	}
}

func symbolOf(reg *id.Registry, addr common.Address) string {
	if reg != nil {
		if tok, err := reg.ByAddress(addr.Hex()); err == nil {
			return tok.Symbol
		}
	}
	return addr.Hex()
}
