package execution

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

var (
	policyERC20ABI  = mustPolicyABI(registry.ERC20MinimalABI)
	policyRouterABI = mustPolicyABI(registry.UniswapV3RouterABI)
	policyOFTABI    = mustPolicyABI(registry.LayerZeroProxyOFTABI)
	policyInboxABI  = mustPolicyABI(registry.OrbitERC20InboxABI)

	policyApproveSelector  = policyERC20ABI.Methods["approve"].ID
	policyTransferSelector = policyERC20ABI.Methods["transfer"].ID
	policySwapSelectors    = [][]byte{
		policyRouterABI.Methods["exactInputSingle"].ID,
		policyRouterABI.Methods["exactInput"].ID,
		policyRouterABI.Methods["multicall"].ID,
	}
	policySendFromSelector = policyOFTABI.Methods["sendFrom"].ID
	policyDepositSelector  = policyInboxABI.Methods["depositERC20"].ID
)

func validateStepPolicy(action *Action, step *ActionStep, chainID int64, data []byte, opts ExecuteOptions) error {
	if step == nil {
		return clierr.New(clierr.CodeInternal, "missing action step")
	}
	if !common.IsHexAddress(step.Target) {
		return clierr.New(clierr.CodeUsage, "invalid step target address")
	}

	switch step.Type {
	case StepTypeApproval:
		return validateApprovalPolicy(action, data, opts)
	case StepTypeSwap:
		return validateSwapPolicy(action, step, chainID, data, opts)
	case StepTypeBridge:
		return validateBridgePolicy(action, step, data, opts)
	case StepTypeTransfer:
		return validateTransferPolicy(step, data)
	default:
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("unknown step type %q", step.Type))
	}
}

func validateApprovalPolicy(action *Action, data []byte, opts ExecuteOptions) error {
	if len(data) < 4 || !bytes.Equal(data[:4], policyApproveSelector) {
		return clierr.New(clierr.CodeActionPlan, "approval step must use ERC20 approve(spender,amount)")
	}
	args, err := policyERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeActionPlan, "approval step calldata is invalid")
	}
	spender, ok := toAddress(args[0])
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid spender")
	}
	amount, ok := toBigInt(args[1])
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeActionPlan, "approval step has invalid approval amount")
	}
	if opts.AllowMaxApproval {
		return nil
	}
	if action == nil {
		return clierr.New(clierr.CodeActionPlan, "cannot validate approval bounds without action context")
	}
	requested, ok := parsePositiveBaseUnits(action.InputAmount)
	if !ok {
		return clierr.New(clierr.CodeActionPlan, "cannot validate approval bounds for non-numeric input amount; use --allow-max-approval to override")
	}
	if amount.Cmp(requested) > 0 {
		return clierr.New(
			clierr.CodeActionPlan,
			fmt.Sprintf("approval amount %s exceeds requested input amount %s; use --allow-max-approval to override", amount.String(), requested.String()),
		)
	}
	return nil
}

func validateSwapPolicy(action *Action, step *ActionStep, chainID int64, data []byte, opts ExecuteOptions) error {
	if action == nil || !strings.EqualFold(strings.TrimSpace(action.Provider), "sailfish") {
		return nil
	}
	if chainID != 41923 {
		return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("sailfish swap step has unsupported chain %d", chainID))
	}
	if len(data) < 4 || !hasSelector(data, policySwapSelectors) {
		return clierr.New(clierr.CodeActionPlan, "sailfish swap step must call exactInputSingle, exactInput or multicall")
	}
	if strings.TrimSpace(opts.Contracts.SailfishRouter) == "" {
		return clierr.New(clierr.CodeActionPlan, "sailfish router is not configured; cannot verify swap target")
	}
	if !opts.Contracts.IsSailfishRouter(step.Target) {
		return clierr.New(clierr.CodeActionPlan, "sailfish swap step target does not match configured router")
	}
	return nil
}

func validateBridgePolicy(action *Action, step *ActionStep, data []byte, opts ExecuteOptions) error {
	if opts.UnsafeProviderTx {
		return nil
	}
	provider := ""
	if step.ExpectedOutputs != nil {
		provider = strings.ToLower(strings.TrimSpace(step.ExpectedOutputs["settlement_provider"]))
	}
	if action != nil && strings.TrimSpace(action.Provider) != "" && !strings.EqualFold(strings.TrimSpace(action.Provider), "edubridge") {
		return clierr.New(clierr.CodeActionPlan, "bridge step provider does not match action provider")
	}
	switch provider {
	case "layerzero":
		if len(data) < 4 || !bytes.Equal(data[:4], policySendFromSelector) {
			return clierr.New(clierr.CodeActionPlan, "layerzero bridge step must call sendFrom")
		}
		if adapter := strings.TrimSpace(opts.Contracts.BSCOFTAdapter); adapter != "" && !strings.EqualFold(adapter, strings.TrimSpace(step.Target)) {
			return clierr.New(clierr.CodeActionPlan, "layerzero bridge step target does not match configured adapter")
		}
		statusEndpoint := ""
		if step.ExpectedOutputs != nil {
			statusEndpoint = strings.TrimSpace(step.ExpectedOutputs["settlement_status_endpoint"])
		}
		if !registry.IsAllowedBridgeSettlementURL(provider, statusEndpoint) {
			return clierr.New(clierr.CodeActionPlan, "bridge step settlement endpoint is not allowed; use --unsafe-provider-tx to override")
		}
	case "orbit":
		if len(data) < 4 || !bytes.Equal(data[:4], policyDepositSelector) {
			return clierr.New(clierr.CodeActionPlan, "orbit bridge step must call depositERC20")
		}
		if inbox := strings.TrimSpace(opts.Contracts.ArbitrumInbox); inbox != "" && !strings.EqualFold(inbox, strings.TrimSpace(step.Target)) {
			return clierr.New(clierr.CodeActionPlan, "orbit bridge step target does not match configured inbox")
		}
	default:
		return clierr.New(clierr.CodeActionPlan, "bridge step has unknown settlement provider; use --unsafe-provider-tx to override")
	}
	return nil
}

func validateTransferPolicy(step *ActionStep, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(data) < 4 || !bytes.Equal(data[:4], policyTransferSelector) {
		return clierr.New(clierr.CodeActionPlan, "token transfer step must call ERC20 transfer(to,amount)")
	}
	if strings.TrimSpace(step.Value) != "" && strings.TrimSpace(step.Value) != "0" {
		return clierr.New(clierr.CodeActionPlan, "token transfer step must not carry native value")
	}
	return nil
}

func hasSelector(data []byte, selectors [][]byte) bool {
	for _, sel := range selectors {
		if bytes.Equal(data[:4], sel) {
			return true
		}
	}
	return false
}

func parsePositiveBaseUnits(value string) (*big.Int, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, false
	}
	parsed, ok := new(big.Int).SetString(v, 10)
	if !ok || parsed.Sign() <= 0 {
		return nil, false
	}
	return parsed, true
}

func toAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case *common.Address:
		if value == nil {
			return common.Address{}, false
		}
		return *value, true
	default:
		return common.Address{}, false
	}
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}

func mustPolicyABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
