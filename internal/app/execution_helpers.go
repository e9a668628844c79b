package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	execsigner "github.com/ggonzalez94/edufi-cli/internal/execution/signer"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/schema"
)

// executionFlags are shared by every command that signs and broadcasts.
type executionFlags struct {
	yes                bool
	simulate           bool
	keySource          string
	confirmAddress     string
	pollInterval       string
	stepTimeout        string
	gasMultiplier      float64
	maxFeeGwei         string
	maxPriorityFeeGwei string
}

func (f *executionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.yes, "yes", false, "Confirm execution")
	cmd.Flags().BoolVar(&f.simulate, "simulate", true, "Run preflight simulation before submission")
	cmd.Flags().StringVar(&f.keySource, "key-source", execsigner.KeySourceAuto, "Key source (auto|env|file|keystore)")
	cmd.Flags().StringVar(&f.confirmAddress, "confirm-address", "", "Require signer address to match this value")
	cmd.Flags().StringVar(&f.pollInterval, "poll-interval", "2s", "Receipt polling interval")
	cmd.Flags().StringVar(&f.stepTimeout, "step-timeout", "", "Per-step receipt timeout (defaults to configured execution.step_timeout)")
	cmd.Flags().Float64Var(&f.gasMultiplier, "gas-multiplier", 1.2, "Gas estimate safety multiplier")
	cmd.Flags().StringVar(&f.maxFeeGwei, "max-fee-gwei", "", "Optional EIP-1559 max fee (gwei)")
	cmd.Flags().StringVar(&f.maxPriorityFeeGwei, "max-priority-fee-gwei", "", "Optional EIP-1559 max priority fee (gwei)")
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[schema.AnnotationMutates] = "true"
}

func (f *executionFlags) requireYes(commandPath string) error {
	if !f.yes {
		return clierr.New(clierr.CodeUsage, commandPath+" requires --yes")
	}
	return nil
}

func (s *runtimeState) executeOptions(f *executionFlags) (execution.ExecuteOptions, error) {
	opts := execution.DefaultExecuteOptions()
	opts.Simulate = f.simulate
	opts.GasMultiplier = f.gasMultiplier
	opts.MaxFeeGwei = strings.TrimSpace(f.maxFeeGwei)
	opts.MaxPriorityFeeGwei = strings.TrimSpace(f.maxPriorityFeeGwei)
	opts.Contracts = s.settings.Contracts
	opts.StepTimeout = s.settings.StepTimeout
	if raw := strings.TrimSpace(f.pollInterval); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return execution.ExecuteOptions{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid --poll-interval %q", raw))
		}
		opts.PollInterval = d
	}
	if raw := strings.TrimSpace(f.stepTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return execution.ExecuteOptions{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid --step-timeout %q", raw))
		}
		opts.StepTimeout = d
	}
	if f.gasMultiplier <= 1 {
		return execution.ExecuteOptions{}, clierr.New(clierr.CodeUsage, "--gas-multiplier must be greater than 1")
	}
	return opts, nil
}

func newExecutionSigner(keySource, confirmAddress string) (execsigner.Signer, error) {
	local, err := execsigner.NewLocalSignerFromInputs(keySource, "")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load signer", err)
	}
	if want := strings.TrimSpace(confirmAddress); want != "" && !strings.EqualFold(want, local.Address().Hex()) {
		return nil, clierr.New(clierr.CodeSigner, "signer address does not match --confirm-address")
	}
	return local, nil
}

// senderFor fills an empty sender from the signer so run commands do not need
// --from-address twice.
func senderFor(flagValue string, txSigner execsigner.Signer) (string, error) {
	signerAddr := txSigner.Address().Hex()
	flagValue = strings.TrimSpace(flagValue)
	if flagValue == "" {
		return signerAddr, nil
	}
	if !strings.EqualFold(flagValue, signerAddr) {
		return "", clierr.New(clierr.CodeSigner, "signer address does not match --from-address")
	}
	return flagValue, nil
}

// executeAction runs the action and reports its result. The deadline covers
// every step's confirmation window plus a margin for gas estimation.
func (s *runtimeState) executeAction(commandPath string, action *execution.Action, txSigner execsigner.Signer, opts execution.ExecuteOptions) error {
	budget := opts.StepTimeout*time.Duration(len(action.Steps)) + s.settings.Timeout
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()
	s.lastSigner = signerMeta(txSigner)
	result, err := s.svc.Execute(ctx, action, txSigner, opts)
	if err != nil {
		return err
	}
	return s.emitSuccess(commandPath, result, nil, cacheMetaBypass(), nil, false)
}

// signerMeta tags execution envelopes, including failures, with the signing
// EOA and its Blockscout page.
func signerMeta(txSigner execsigner.Signer) *model.SignerMeta {
	addr := txSigner.Address()
	meta := &model.SignerMeta{Address: addr.Hex(), ExplorerURL: execsigner.AddressURL(addr)}
	if local, ok := txSigner.(*execsigner.LocalSigner); ok {
		meta.KeySource = local.KeySource()
	}
	return meta
}

func resolveActionID(actionID, planID string) (string, error) {
	actionID = strings.TrimSpace(actionID)
	planID = strings.TrimSpace(planID)
	switch {
	case actionID == "" && planID == "":
		return "", clierr.New(clierr.CodeUsage, "--action-id is required")
	case actionID != "" && planID != "" && actionID != planID:
		return "", clierr.New(clierr.CodeUsage, "--action-id and --plan-id differ")
	case actionID != "":
		return actionID, nil
	default:
		return planID, nil
	}
}
