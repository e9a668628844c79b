package assistant

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/execution/planner"
	"github.com/ggonzalez94/edufi-cli/internal/execution/signer"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/providers/edubridge"
	"github.com/ggonzalez94/edufi-cli/internal/providers/sailfish"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

type SwapRequest struct {
	From        string
	To          string
	Amount      string
	Sender      string
	Recipient   string
	SlippageBps int64
	Simulate    bool
}

// PlanSwap checks balance and allowance, quotes the best route and persists
// the resulting approval and swap steps. Nothing is persisted on failure.
func (s *Service) PlanSwap(ctx context.Context, req SwapRequest) (execution.Action, model.SwapQuote, error) {
	if err := s.requireSwaps(); err != nil {
		return execution.Action{}, model.SwapQuote{}, err
	}
	fromTok, err := s.reg.Resolve(req.From)
	if err != nil {
		return execution.Action{}, model.SwapQuote{}, err
	}
	toTok, err := s.reg.Resolve(req.To)
	if err != nil {
		return execution.Action{}, model.SwapQuote{}, err
	}
	action, quote, err := s.swaps.BuildSwapAction(ctx, sailfish.SwapRequest{
		From:        fromTok,
		To:          toTok,
		Amount:      req.Amount,
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		SlippageBps: req.SlippageBps,
		Simulate:    req.Simulate,
	})
	s.metrics.ObservePlan("swap", err)
	if err != nil {
		return execution.Action{}, model.SwapQuote{}, err
	}
	if err := s.persist(action); err != nil {
		return execution.Action{}, model.SwapQuote{}, err
	}
	return action, quote.Summary(s.reg, s.now()), nil
}

type BridgeRequest struct {
	Direction string
	Amount    string
	Sender    string
	Recipient string
	Simulate  bool
}

func (s *Service) PlanBridge(ctx context.Context, req BridgeRequest) (execution.Action, error) {
	if s.bridge == nil {
		return execution.Action{}, clierr.New(clierr.CodeUnsupported, "bridge is not configured")
	}
	dir, err := edubridge.ParseDirection(req.Direction)
	if err != nil {
		return execution.Action{}, err
	}
	action, err := s.bridge.Plan(ctx, dir, edubridge.Request{
		Amount:    req.Amount,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Simulate:  req.Simulate,
	})
	s.metrics.ObservePlan("bridge", err)
	if err != nil {
		return execution.Action{}, err
	}
	if err := s.persist(action); err != nil {
		return execution.Action{}, err
	}
	return action, nil
}

type TransferRequest struct {
	Token     string
	Amount    string
	Sender    string
	Recipient string
	Simulate  bool
}

// PlanTransfer plans a native EDU or registry ERC20 transfer on EDU Chain.
func (s *Service) PlanTransfer(ctx context.Context, req TransferRequest) (execution.Action, error) {
	tok, err := s.reg.Resolve(req.Token)
	if err != nil {
		return execution.Action{}, err
	}
	rpcURL, err := s.rpcURL(id.EDUChainID)
	if err != nil {
		return execution.Action{}, err
	}
	reader, err := s.dial(ctx, rpcURL)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeUnavailable, "connect edu chain rpc", err)
	}
	defer reader.Close()

	action, err := planner.BuildTransferAction(ctx, reader, planner.TransferRequest{
		Chain:     id.EDUChain,
		Token:     tok,
		Amount:    req.Amount,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Simulate:  req.Simulate,
		RPCURL:    rpcURL,
	})
	s.metrics.ObservePlan("transfer", err)
	if err != nil {
		return execution.Action{}, err
	}
	if err := s.persist(action); err != nil {
		return execution.Action{}, err
	}
	return action, nil
}

// Execute runs a planned action and returns its response record. The record
// is filled from whatever progress was made, so it is useful on failure too.
func (s *Service) Execute(ctx context.Context, action *execution.Action, txSigner signer.Signer, opts execution.ExecuteOptions) (model.ExecutionResult, error) {
	if action == nil {
		return model.ExecutionResult{}, clierr.New(clierr.CodeInternal, "missing action")
	}
	err := execution.ExecuteAction(ctx, s.store, action, txSigner, opts)
	s.metrics.ObserveExecution(action.IntentType, string(action.Status))
	if err != nil {
		log.Warn().Err(err).Str("action_id", action.ActionID).Msg("action did not complete")
	}
	return s.Result(*action), err
}

// EstimateGas prices the unconfirmed steps of a persisted action.
func (s *Service) EstimateGas(ctx context.Context, actionID string, opts execution.ExecuteOptions) (execution.GasEstimate, error) {
	action, err := s.Action(actionID)
	if err != nil {
		return execution.GasEstimate{}, err
	}
	return execution.EstimateActionGas(ctx, action, opts)
}

// Result summarises an action as the user-facing response record.
func (s *Service) Result(action execution.Action) model.ExecutionResult {
	res := model.ExecutionResult{
		ActionID: action.ActionID,
		Status:   string(action.Status),
	}
	switch action.IntentType {
	case "swap":
		in := s.tokenDecimals(metaString(action.Metadata, "token_in"))
		out := s.tokenDecimals(metaString(action.Metadata, "token_out"))
		res.AmountIn = formatBase(action.InputAmount, in)
		res.AmountOut = formatBase(metaString(action.Metadata, "quoted_amount"), out)
		res.ExecutionPrice = metaDecimal(action.Metadata, "execution_price")
		res.PriceImpact = metaDecimal(action.Metadata, "price_impact")
	case "bridge":
		res.AmountIn = metaString(action.Metadata, "amount_decimal")
		res.AmountOut = res.AmountIn
		res.Settlement = metaString(action.Metadata, "settlement_estimate")
	default:
		res.AmountIn = metaString(action.Metadata, "amount_decimal")
	}

	for i := len(action.Steps) - 1; i >= 0; i-- {
		step := action.Steps[i]
		if step.TxHash == "" {
			continue
		}
		res.TransactionHash = step.TxHash
		res.ExplorerURL = step.ExplorerURL
		if res.ExplorerURL == "" {
			if chainID, ok := evmChainID(step.ChainID); ok {
				res.ExplorerURL = registry.ExplorerTxURL(chainID, step.TxHash)
			}
		}
		break
	}
	return res
}

func (s *Service) tokenDecimals(symbol string) int {
	tok, err := s.reg.BySymbol(symbol)
	if err != nil {
		return 18
	}
	return tok.Decimals
}

func formatBase(raw string, decimals int) string {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return ""
	}
	return id.FormatUnits(v, decimals)
}

// Metadata round-trips through JSON in the store, so values are read loosely.
func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func metaDecimal(meta map[string]any, key string) decimal.Decimal {
	d, err := decimal.NewFromString(metaString(meta, key))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func evmChainID(caip2 string) (int64, bool) {
	raw, ok := strings.CutPrefix(caip2, "eip155:")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	return v, err == nil
}
