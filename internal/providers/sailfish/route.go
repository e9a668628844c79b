package sailfish

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/edufi-cli/internal/id"
)

type RouteKind string

const (
	RouteDirect   RouteKind = "direct"
	RouteMultihop RouteKind = "multihop"
)

// Pool is a snapshot of one SailFish pool taken during a single discovery call.
type Pool struct {
	Address      common.Address
	Token0       common.Address
	Token1       common.Address
	FeeTier      uint32
	Liquidity    *big.Int
	SqrtPriceX96 *big.Int
}

// HasLiquidity reports whether the pool can price a trade at all.
func (p Pool) HasLiquidity() bool {
	return p.Liquidity != nil && p.Liquidity.Sign() > 0 && p.SqrtPriceX96 != nil && p.SqrtPriceX96.Sign() > 0
}

// Hop is one pool traversal in a fixed direction.
type Hop struct {
	Pool     Pool
	TokenIn  common.Address
	TokenOut common.Address
}

// Route is either a DirectRoute or a MultihopRoute. The unexported marker
// keeps the set closed so planners can switch over it exhaustively.
type Route interface {
	Kind() RouteKind
	Path() []Pool
	Hops() []Hop
	TotalFee() uint32
	TokenIn() common.Address
	TokenOut() common.Address
	isRoute()
}

type DirectRoute struct {
	Hop Hop
}

func (r DirectRoute) Kind() RouteKind          { return RouteDirect }
func (r DirectRoute) Path() []Pool             { return []Pool{r.Hop.Pool} }
func (r DirectRoute) Hops() []Hop              { return []Hop{r.Hop} }
func (r DirectRoute) TotalFee() uint32         { return r.Hop.Pool.FeeTier }
func (r DirectRoute) TokenIn() common.Address  { return r.Hop.TokenIn }
func (r DirectRoute) TokenOut() common.Address { return r.Hop.TokenOut }
func (DirectRoute) isRoute()                   {}

// MultihopRoute crosses exactly two pools joined by Intermediary.
type MultihopRoute struct {
	First        Hop
	Second       Hop
	Intermediary id.Token
}

func (r MultihopRoute) Kind() RouteKind          { return RouteMultihop }
func (r MultihopRoute) Path() []Pool             { return []Pool{r.First.Pool, r.Second.Pool} }
func (r MultihopRoute) Hops() []Hop              { return []Hop{r.First, r.Second} }
func (r MultihopRoute) TotalFee() uint32         { return r.First.Pool.FeeTier + r.Second.Pool.FeeTier }
func (r MultihopRoute) TokenIn() common.Address  { return r.First.TokenIn }
func (r MultihopRoute) TokenOut() common.Address { return r.Second.TokenOut }
func (MultihopRoute) isRoute()                   {}

// FeeTiers lists the fee of every hop in order.
func FeeTiers(r Route) []uint32 {
	hops := r.Hops()
	out := make([]uint32, 0, len(hops))
	for _, h := range hops {
		out = append(out, h.Pool.FeeTier)
	}
	return out
}

// rankRoutes orders direct routes first, then by total fee, then by the first
// pool address so equal-fee candidates sort deterministically.
func rankRoutes(routes []Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		if a.Kind() != b.Kind() {
			return a.Kind() == RouteDirect
		}
		if a.TotalFee() != b.TotalFee() {
			return a.TotalFee() < b.TotalFee()
		}
		return bytes.Compare(a.Path()[0].Address.Bytes(), b.Path()[0].Address.Bytes()) < 0
	})
}

// EncodePath packs tokenIn | fee | tokenOut [| fee | tokenOut] as used by
// quoteExactInput and exactInput.
func EncodePath(r Route) []byte {
	hops := r.Hops()
	buf := make([]byte, 0, 20+23*len(hops))
	buf = append(buf, hops[0].TokenIn.Bytes()...)
	for _, h := range hops {
		fee := h.Pool.FeeTier
		buf = append(buf, byte(fee>>16), byte(fee>>8), byte(fee))
		buf = append(buf, h.TokenOut.Bytes()...)
	}
	return buf
}
