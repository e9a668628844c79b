package execution

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

// GasEstimate prices the remaining steps of a planned action.
type GasEstimate struct {
	ActionID    string          `json:"action_id"`
	EstimatedAt string          `json:"estimated_at"`
	Steps       []StepGasCost   `json:"steps"`
	Totals      []ChainGasTotal `json:"totals"`
}

type StepGasCost struct {
	StepID               string     `json:"step_id"`
	Type                 StepType   `json:"type"`
	ChainID              string     `json:"chain_id"`
	GasLimit             uint64     `json:"gas_limit,omitempty"`
	MaxFeePerGasWei      string     `json:"max_fee_per_gas_wei,omitempty"`
	EffectiveGasPriceWei string     `json:"effective_gas_price_wei,omitempty"`
	LikelyFee            string     `json:"likely_fee,omitempty"`
	WorstCaseFee         string     `json:"worst_case_fee,omitempty"`
	FeeSymbol            string     `json:"fee_symbol,omitempty"`
	Status               StepStatus `json:"status"`
	// Deferred steps cannot be priced until an earlier approval in the same
	// action is confirmed on-chain.
	Deferred bool   `json:"deferred,omitempty"`
	Note     string `json:"note,omitempty"`
}

type ChainGasTotal struct {
	ChainID      string `json:"chain_id"`
	FeeSymbol    string `json:"fee_symbol"`
	LikelyFee    string `json:"likely_fee"`
	WorstCaseFee string `json:"worst_case_fee"`
}

var nativeFeeSymbols = map[string]string{
	"eip155:41923": "EDU",
	"eip155:42161": "ETH",
	"eip155:56":    "BNB",
}

// EstimateActionGas prices every step that has not been confirmed yet. Steps
// that follow a pending approval usually revert under estimation, so they are
// reported as deferred rather than failing the whole estimate.
func EstimateActionGas(ctx context.Context, action Action, opts ExecuteOptions) (GasEstimate, error) {
	if strings.TrimSpace(action.ActionID) == "" {
		return GasEstimate{}, clierr.New(clierr.CodeUsage, "missing action id")
	}
	if opts.GasMultiplier <= 1 {
		return GasEstimate{}, clierr.New(clierr.CodeUsage, "--gas-multiplier must be greater than 1")
	}
	if opts.Dial == nil {
		opts.Dial = DialEthclient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	from := common.Address{}
	if raw := strings.TrimSpace(action.FromAddress); raw != "" {
		if !common.IsHexAddress(raw) {
			return GasEstimate{}, clierr.New(clierr.CodeUsage, "action has invalid from_address")
		}
		from = common.HexToAddress(raw)
	}

	out := GasEstimate{ActionID: action.ActionID, EstimatedAt: opts.Now().UTC().Format(time.RFC3339)}
	likely := map[string]*big.Int{}
	worst := map[string]*big.Int{}
	approvalPending := false
	for _, step := range action.Steps {
		if step.Status == StepStatusConfirmed {
			continue
		}
		cost := StepGasCost{StepID: step.StepID, Type: step.Type, ChainID: step.ChainID, Status: step.Status, FeeSymbol: nativeFeeSymbols[step.ChainID]}
		if approvalPending {
			cost.Deferred = true
			cost.Note = "priced after the preceding approval confirms"
			out.Steps = append(out.Steps, cost)
			continue
		}
		gasLimit, tipCap, baseFee, err := estimateStep(ctx, step, from, opts)
		if err != nil {
			return GasEstimate{}, err
		}
		feeCap, err := resolveFeeCap(baseFee, tipCap, opts.MaxFeeGwei)
		if err != nil {
			return GasEstimate{}, err
		}
		effective := new(big.Int).Add(baseFee, tipCap)
		if effective.Cmp(feeCap) > 0 {
			effective.Set(feeCap)
		}
		limit := new(big.Int).SetUint64(gasLimit)
		likelyFee := new(big.Int).Mul(limit, effective)
		worstFee := new(big.Int).Mul(limit, feeCap)

		cost.GasLimit = gasLimit
		cost.MaxFeePerGasWei = feeCap.String()
		cost.EffectiveGasPriceWei = effective.String()
		cost.LikelyFee = weiToNative(likelyFee)
		cost.WorstCaseFee = weiToNative(worstFee)
		out.Steps = append(out.Steps, cost)

		if likely[step.ChainID] == nil {
			likely[step.ChainID] = new(big.Int)
			worst[step.ChainID] = new(big.Int)
		}
		likely[step.ChainID].Add(likely[step.ChainID], likelyFee)
		worst[step.ChainID].Add(worst[step.ChainID], worstFee)
		if step.Type == StepTypeApproval {
			approvalPending = true
		}
	}
	if len(out.Steps) == 0 {
		return GasEstimate{}, clierr.New(clierr.CodeUsage, "action has no pending steps to estimate")
	}

	chains := make([]string, 0, len(likely))
	for chainID := range likely {
		chains = append(chains, chainID)
	}
	slices.Sort(chains)
	for _, chainID := range chains {
		out.Totals = append(out.Totals, ChainGasTotal{
			ChainID:      chainID,
			FeeSymbol:    nativeFeeSymbols[chainID],
			LikelyFee:    weiToNative(likely[chainID]),
			WorstCaseFee: weiToNative(worst[chainID]),
		})
	}
	return out, nil
}

func estimateStep(ctx context.Context, step ActionStep, from common.Address, opts ExecuteOptions) (uint64, *big.Int, *big.Int, error) {
	if strings.TrimSpace(step.RPCURL) == "" {
		return 0, nil, nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s is missing rpc_url", step.StepID))
	}
	msg, err := stepCallMsg(step, from)
	if err != nil {
		return 0, nil, nil, err
	}
	client, err := opts.Dial(ctx, step.RPCURL)
	if err != nil {
		return 0, nil, nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return 0, nil, nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if want := strings.TrimSpace(step.ChainID); want != "" && !strings.EqualFold(want, fmt.Sprintf("eip155:%d", chainID.Int64())) {
		return 0, nil, nil, clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step chain mismatch: expected %s, rpc reports eip155:%d", want, chainID.Int64()))
	}
	raw, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, nil, nil, wrapEVMExecutionError(clierr.CodeActionSim, "estimate gas", err)
	}
	gasLimit := uint64(float64(raw) * opts.GasMultiplier)
	if gasLimit == 0 {
		return 0, nil, nil, clierr.New(clierr.CodeActionSim, "estimate gas returned zero")
	}
	tipCap, err := resolveTipCap(ctx, client, opts.MaxPriorityFeeGwei)
	if err != nil {
		return 0, nil, nil, err
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, nil, nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := big.NewInt(1_000_000_000)
	if header.BaseFee != nil {
		baseFee = new(big.Int).Set(header.BaseFee)
	}
	return gasLimit, tipCap, baseFee, nil
}

func stepCallMsg(step ActionStep, from common.Address) (ethereum.CallMsg, error) {
	if !common.IsHexAddress(strings.TrimSpace(step.Target)) {
		return ethereum.CallMsg{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s has invalid target address", step.StepID))
	}
	target := common.HexToAddress(strings.TrimSpace(step.Target))
	data, err := decodeHex(step.Data)
	if err != nil {
		return ethereum.CallMsg{}, clierr.Wrap(clierr.CodeUsage, "decode step calldata", err)
	}
	value := big.NewInt(0)
	if raw := strings.TrimSpace(step.Value); raw != "" {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok || v.Sign() < 0 {
			return ethereum.CallMsg{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s has invalid value", step.StepID))
		}
		value = v
	}
	return ethereum.CallMsg{From: from, To: &target, Value: value, Data: data}, nil
}

// weiToNative renders an 18-decimal native amount.
func weiToNative(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -18).String()
}
