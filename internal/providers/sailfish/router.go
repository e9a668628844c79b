package sailfish

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/execution/planner"
	"github.com/ggonzalez94/edufi-cli/internal/id"
)

const (
	DefaultDirectSlippageBps   int64 = 50
	DefaultMultihopSlippageBps int64 = 100
)

// addressThis is the SwapRouter02 sentinel that keeps swap output in the
// router so it can be unwrapped in the same multicall.
var addressThis = common.HexToAddress("0x0000000000000000000000000000000000000002")

type exactInputSingleParams struct {
	TokenIn           common.Address `abi:"tokenIn"`
	TokenOut          common.Address `abi:"tokenOut"`
	Fee               *big.Int       `abi:"fee"`
	Recipient         common.Address `abi:"recipient"`
	AmountIn          *big.Int       `abi:"amountIn"`
	AmountOutMinimum  *big.Int       `abi:"amountOutMinimum"`
	SqrtPriceLimitX96 *big.Int       `abi:"sqrtPriceLimitX96"`
}

type exactInputParams struct {
	Path             []byte         `abi:"path"`
	Recipient        common.Address `abi:"recipient"`
	AmountIn         *big.Int       `abi:"amountIn"`
	AmountOutMinimum *big.Int       `abi:"amountOutMinimum"`
}

// SwapOptions carries the per-request knobs of a swap step.
type SwapOptions struct {
	Recipient common.Address
}

type SwapRequest struct {
	From        id.Token
	To          id.Token
	Amount      string
	Sender      string
	Recipient   string
	SlippageBps int64
	Simulate    bool
}

// DefaultSlippageBps is 0.5% for one hop and 1% for two.
func DefaultSlippageBps(kind RouteKind) int64 {
	if kind == RouteMultihop {
		return DefaultMultihopSlippageBps
	}
	return DefaultDirectSlippageBps
}

// MinAmountOut floors amountOut*(10000-bps)/10000 so the bound never exceeds
// the intended minimum.
func MinAmountOut(amountOut *big.Int, slippageBps int64) *big.Int {
	out := new(big.Int).Mul(amountOut, big.NewInt(10_000-slippageBps))
	return out.Div(out, big.NewInt(10_000))
}

// IsTokenApproved reports whether the router may already spend amount of token for owner.
func (c *Client) IsTokenApproved(ctx context.Context, token id.Token, owner common.Address, amount *big.Int) (bool, error) {
	if token.IsNative() {
		return true, nil
	}
	_, _, router, err := c.contracts.Swap()
	if err != nil {
		return false, clierr.Wrap(clierr.CodeUsage, "sailfish contracts", err)
	}
	client, err := c.connect(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()
	return planner.IsApproved(ctx, client, token.EVMAddress(), owner, router, amount)
}

// CreateSwapTransaction builds the exactInputSingle step for a direct route.
// Native input is sent as value; native output is unwrapped to the recipient.
func (c *Client) CreateSwapTransaction(from, to id.Token, feeTier uint32, amountIn, minAmountOut *big.Int, tradeType TradeType, opts SwapOptions) (execution.ActionStep, error) {
	if err := checkSwapArgs(amountIn, minAmountOut, tradeType); err != nil {
		return execution.ActionStep{}, err
	}
	tokenIn, tokenOut, err := c.routingAddresses(from, to)
	if err != nil {
		return execution.ActionStep{}, err
	}
	swapRecipient := opts.Recipient
	if to.IsNative() {
		swapRecipient = addressThis
	}
	data, err := routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               new(big.Int).SetUint64(uint64(feeTier)),
		Recipient:         swapRecipient,
		AmountIn:          amountIn,
		AmountOutMinimum:  minAmountOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return execution.ActionStep{}, clierr.Wrap(clierr.CodeInternal, "pack exactInputSingle", err)
	}
	desc := fmt.Sprintf("Swap %s %s for at least %s %s (fee %d)",
		id.FormatUnits(amountIn, from.Decimals), from.Symbol, id.FormatUnits(minAmountOut, to.Decimals), to.Symbol, feeTier)
	return c.swapStep("swap-exact-input-single", desc, from, to, data, amountIn, minAmountOut, opts.Recipient)
}

// CreateMultihopSwapTransaction builds the exactInput step through one intermediary.
func (c *Client) CreateMultihopSwapTransaction(from, intermediary, to id.Token, feeTiers [2]uint32, amountIn, minAmountOut *big.Int, tradeType TradeType, opts SwapOptions) (execution.ActionStep, error) {
	if err := checkSwapArgs(amountIn, minAmountOut, tradeType); err != nil {
		return execution.ActionStep{}, err
	}
	tokenIn, tokenOut, err := c.routingAddresses(from, to)
	if err != nil {
		return execution.ActionStep{}, err
	}
	mid := intermediary.EVMAddress()
	route := MultihopRoute{
		First:        Hop{Pool: Pool{FeeTier: feeTiers[0]}, TokenIn: tokenIn, TokenOut: mid},
		Second:       Hop{Pool: Pool{FeeTier: feeTiers[1]}, TokenIn: mid, TokenOut: tokenOut},
		Intermediary: intermediary,
	}
	swapRecipient := opts.Recipient
	if to.IsNative() {
		swapRecipient = addressThis
	}
	data, err := routerABI.Pack("exactInput", exactInputParams{
		Path:             EncodePath(route),
		Recipient:        swapRecipient,
		AmountIn:         amountIn,
		AmountOutMinimum: minAmountOut,
	})
	if err != nil {
		return execution.ActionStep{}, clierr.Wrap(clierr.CodeInternal, "pack exactInput", err)
	}
	desc := fmt.Sprintf("Swap %s %s via %s for at least %s %s",
		id.FormatUnits(amountIn, from.Decimals), from.Symbol, intermediary.Symbol, id.FormatUnits(minAmountOut, to.Decimals), to.Symbol)
	return c.swapStep("swap-exact-input", desc, from, to, data, amountIn, minAmountOut, opts.Recipient)
}

func (c *Client) swapStep(stepID, desc string, from, to id.Token, swapData []byte, amountIn, minAmountOut *big.Int, recipient common.Address) (execution.ActionStep, error) {
	_, _, router, err := c.contracts.Swap()
	if err != nil {
		return execution.ActionStep{}, clierr.Wrap(clierr.CodeUsage, "sailfish contracts", err)
	}
	data := swapData
	if to.IsNative() {
		unwrap, err := routerABI.Pack("unwrapWETH9", minAmountOut, recipient)
		if err != nil {
			return execution.ActionStep{}, clierr.Wrap(clierr.CodeInternal, "pack unwrapWETH9", err)
		}
		data, err = routerABI.Pack("multicall", [][]byte{swapData, unwrap})
		if err != nil {
			return execution.ActionStep{}, clierr.Wrap(clierr.CodeInternal, "pack multicall", err)
		}
	}
	value := "0"
	if from.IsNative() {
		value = amountIn.String()
	}
	return execution.ActionStep{
		StepID:      stepID,
		Type:        execution.StepTypeSwap,
		Status:      execution.StepStatusPending,
		ChainID:     id.EDUChain.CAIP2,
		RPCURL:      c.rpcURL,
		Description: desc,
		Target:      router.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       value,
		ExpectedOutputs: map[string]string{
			"amount_out_min": minAmountOut.String(),
			"recipient":      recipient.Hex(),
		},
	}, nil
}

// BuildSwapAction checks the sender's balance, quotes the best route and
// returns the ordered plan: an approval when the allowance is short, then the swap.
func (c *Client) BuildSwapAction(ctx context.Context, req SwapRequest) (execution.Action, Quote, error) {
	sender := strings.TrimSpace(req.Sender)
	if sender == "" {
		return execution.Action{}, Quote{}, clierr.New(clierr.CodeUsage, "swap execution requires sender address")
	}
	if !common.IsHexAddress(sender) {
		return execution.Action{}, Quote{}, clierr.New(clierr.CodeUsage, "swap execution sender must be a valid EVM address")
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		recipient = sender
	}
	if !common.IsHexAddress(recipient) {
		return execution.Action{}, Quote{}, clierr.New(clierr.CodeUsage, "swap execution recipient must be a valid EVM address")
	}
	if req.SlippageBps < 0 || req.SlippageBps >= 10_000 {
		return execution.Action{}, Quote{}, clierr.New(clierr.CodeUsage, "slippage bps must be between 0 and 9999")
	}
	senderAddr := common.HexToAddress(sender)
	recipientAddr := common.HexToAddress(recipient)
	_, _, router, err := c.contracts.Swap()
	if err != nil {
		return execution.Action{}, Quote{}, clierr.Wrap(clierr.CodeUsage, "sailfish contracts", err)
	}
	amountIn, err := id.ParseUnits(req.Amount, req.From.Decimals)
	if err != nil {
		return execution.Action{}, Quote{}, err
	}
	if amountIn.Sign() <= 0 {
		return execution.Action{}, Quote{}, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}

	client, err := c.connect(ctx)
	if err != nil {
		return execution.Action{}, Quote{}, err
	}
	defer client.Close()

	// The wrapped native token skips the pre-check; the router reverts on a short balance.
	if !req.From.WrapsNative {
		balance, err := planner.TokenBalance(ctx, client, req.From, senderAddr)
		if err != nil {
			return execution.Action{}, Quote{}, err
		}
		if err := planner.RequireBalance(balance, amountIn, req.From.Symbol, req.From.Decimals, senderAddr); err != nil {
			return execution.Action{}, Quote{}, err
		}
	}

	quote, err := c.quoteBest(ctx, client, req.From, req.To, amountIn)
	if err != nil {
		return execution.Action{}, Quote{}, err
	}
	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = DefaultSlippageBps(quote.Route.Kind())
	}
	minOut := MinAmountOut(quote.AmountOut, slippage)

	action := execution.NewAction(execution.NewActionID(), "swap", id.EDUChain.CAIP2, execution.Constraints{SlippageBps: slippage, Simulate: req.Simulate})
	action.Provider = "sailfish"
	action.FromAddress = senderAddr.Hex()
	action.ToAddress = recipientAddr.Hex()
	action.InputAmount = amountIn.String()
	action.Metadata = map[string]any{
		"token_in":        req.From.Symbol,
		"token_out":       req.To.Symbol,
		"route":           string(quote.Route.Kind()),
		"fee_tiers":       FeeTiers(quote.Route),
		"quoted_amount":   quote.AmountOut.String(),
		"amount_out_min":  minOut.String(),
		"execution_price": quote.ExecutionPrice.String(),
		"price_impact":    quote.PriceImpact.String(),
		"block_number":    quote.BlockNumber,
	}

	if !req.From.IsNative() {
		if _, err := planner.AppendApprovalIfNeeded(ctx, client, &action, planner.ApprovalRequest{
			ChainID: id.EDUChain.CAIP2,
			RPCURL:  c.rpcURL,
			Token:   req.From.EVMAddress(),
			Symbol:  req.From.Symbol,
			Owner:   senderAddr,
			Spender: router,
			Amount:  amountIn,
			StepID:  "approve-token-in",
		}); err != nil {
			return execution.Action{}, Quote{}, err
		}
	}

	opts := SwapOptions{Recipient: recipientAddr}
	var step execution.ActionStep
	switch r := quote.Route.(type) {
	case DirectRoute:
		step, err = c.CreateSwapTransaction(req.From, req.To, r.Hop.Pool.FeeTier, amountIn, minOut, ExactInput, opts)
	case MultihopRoute:
		step, err = c.CreateMultihopSwapTransaction(req.From, r.Intermediary, req.To,
			[2]uint32{r.First.Pool.FeeTier, r.Second.Pool.FeeTier}, amountIn, minOut, ExactInput, opts)
	default:
		return execution.Action{}, Quote{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("unhandled route type %T", quote.Route))
	}
	if err != nil {
		return execution.Action{}, Quote{}, err
	}
	step.ExpectedOutputs["amount_out"] = quote.AmountOut.String()
	action.Steps = append(action.Steps, step)
	log.Info().Str("action_id", action.ActionID).Str("route", string(quote.Route.Kind())).Int("steps", len(action.Steps)).Msg("swap planned")
	return action, quote, nil
}

func (c *Client) routingAddresses(from, to id.Token) (common.Address, common.Address, error) {
	a, b, err := c.resolvePair(from, to)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return a.EVMAddress(), b.EVMAddress(), nil
}

func checkSwapArgs(amountIn, minAmountOut *big.Int, tradeType TradeType) error {
	if tradeType == ExactOutput {
		return clierr.New(clierr.CodeUnsupported, "EXACT_OUTPUT swaps are not supported")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "swap amount must be greater than zero")
	}
	if minAmountOut == nil || minAmountOut.Sign() < 0 {
		return clierr.New(clierr.CodeUsage, "minimum output must not be negative")
	}
	return nil
}
