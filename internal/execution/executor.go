package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution/signer"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "executor").Logger()
}

// Backend is the chain client surface the executor needs. *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Dialer opens a Backend for a step's RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// DialEthclient is the production Dialer.
func DialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type ExecuteOptions struct {
	Simulate           bool
	PollInterval       time.Duration
	StepTimeout        time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	AllowMaxApproval   bool
	UnsafeProviderTx   bool
	Contracts          registry.Contracts
	Dial               Dialer
	Now                func() time.Time
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		Simulate:      true,
		PollInterval:  2 * time.Second,
		StepTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
		Dial:          DialEthclient,
		Now:           time.Now,
	}
}

// ExecuteAction runs the action's steps strictly in order. A step is only
// submitted after the previous one is confirmed on-chain, and no submission
// is ever retried. Confirmed steps are skipped so a failed action can be resumed;
// a step left submitted by a timeout is re-checked by hash instead of resent.
func ExecuteAction(ctx context.Context, store *Store, action *Action, txSigner signer.Signer, opts ExecuteOptions) error {
	if action == nil {
		return clierr.New(clierr.CodeInternal, "missing action")
	}
	if txSigner == nil {
		return clierr.New(clierr.CodeSigner, "missing signer")
	}
	if len(action.Steps) == 0 {
		return clierr.New(clierr.CodeUsage, "action has no executable steps")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	if opts.Dial == nil {
		opts.Dial = DialEthclient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if action.FromAddress != "" && !strings.EqualFold(action.FromAddress, txSigner.Address().Hex()) {
		return clierr.New(clierr.CodeSigner, fmt.Sprintf("action was planned for %s but signer is %s", action.FromAddress, txSigner.Address().Hex()))
	}
	action.Status = ActionStatusRunning
	action.FromAddress = txSigner.Address().Hex()
	action.Touch()
	persist(store, action)

	for i := range action.Steps {
		step := &action.Steps[i]
		if step.Status == StepStatusConfirmed {
			continue
		}
		if strings.TrimSpace(step.RPCURL) == "" {
			markStepFailed(action, step, "missing rpc url")
			persist(store, action)
			return withProgress(action, clierr.New(clierr.CodeUsage, "missing rpc url for action step"))
		}
		if !common.IsHexAddress(strings.TrimSpace(step.Target)) {
			markStepFailed(action, step, "invalid target")
			persist(store, action)
			return withProgress(action, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid target %q for step %s", step.Target, step.StepID)))
		}
		client, err := opts.Dial(ctx, step.RPCURL)
		if err != nil {
			markStepFailed(action, step, err.Error())
			persist(store, action)
			return withProgress(action, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err))
		}

		log.Info().Str("action_id", action.ActionID).Str("step", step.StepID).Str("type", string(step.Type)).Msg("executing step")
		err = runStep(ctx, client, txSigner, action, step, opts, func() { persist(store, action) })
		client.Close()
		if err != nil {
			if stepOutcomeUnknown(step, err) {
				// Keep the hash so a resume polls it instead of resending.
				step.Error = err.Error()
				action.Status = ActionStatusFailed
				action.Touch()
			} else {
				markStepFailed(action, step, err.Error())
			}
			persist(store, action)
			log.Warn().Err(err).Str("action_id", action.ActionID).Str("step", step.StepID).Msg("step failed")
			return withProgress(action, err)
		}
		action.Touch()
		persist(store, action)
	}
	action.Status = ActionStatusCompleted
	action.Touch()
	persist(store, action)
	return nil
}

// stepOutcomeUnknown reports whether a signed transaction may still land:
// a confirmation timeout or a broadcast whose response was lost.
func stepOutcomeUnknown(step *ActionStep, err error) bool {
	if step.Status != StepStatusSubmitted || step.TxHash == "" {
		return false
	}
	return !clierr.Is(err, clierr.CodeTxReverted) && !clierr.Is(err, clierr.CodeApprovalFailed)
}

func runStep(ctx context.Context, client Backend, txSigner signer.Signer, action *Action, step *ActionStep, opts ExecuteOptions, checkpoint func()) error {
	if step.Status == StepStatusSubmitted {
		hash, ok := normalizeStepTxHash(step.TxHash)
		if !ok {
			return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step %s is submitted but has no valid tx hash", step.StepID))
		}
		return waitForReceipt(ctx, client, step, hash, opts)
	}
	return executeStep(ctx, client, txSigner, action, step, opts, checkpoint)
}

func executeStep(ctx context.Context, client Backend, txSigner signer.Signer, action *Action, step *ActionStep, opts ExecuteOptions, checkpoint func()) error {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if step.ChainID != "" {
		expected := fmt.Sprintf("eip155:%d", chainID.Int64())
		if !strings.EqualFold(strings.TrimSpace(step.ChainID), expected) {
			return clierr.New(clierr.CodeActionPlan, fmt.Sprintf("step chain mismatch: expected %s, got %s", expected, step.ChainID))
		}
	}
	target := common.HexToAddress(step.Target)
	data, err := decodeHex(step.Data)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "decode step calldata", err)
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(step.Value), 10)
	if !ok || value.Sign() < 0 {
		return clierr.New(clierr.CodeUsage, "invalid step value")
	}
	if err := validateStepPolicy(action, step, chainID.Int64(), data, opts); err != nil {
		return err
	}
	msg := ethereum.CallMsg{From: txSigner.Address(), To: &target, Value: value, Data: data}

	failCode := clierr.CodeActionSim
	if step.Type == StepTypeApproval {
		failCode = clierr.CodeApprovalFailed
	}
	if opts.Simulate {
		if _, err := client.CallContract(ctx, msg, nil); err != nil {
			return wrapEVMExecutionError(failCode, "simulate step (eth_call)", err)
		}
		step.Status = StepStatusSimulated
	}

	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return wrapEVMExecutionError(failCode, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, client, opts.MaxPriorityFeeGwei)
	if err != nil {
		return err
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, opts.MaxFeeGwei)
	if err != nil {
		return err
	}

	unlock := acquireSignerNonceLock(chainID, txSigner.Address())
	nonce, err := client.PendingNonceAt(ctx, txSigner.Address())
	if err != nil {
		unlock()
		return clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		unlock()
		return clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	// The hash is recorded before broadcast so a lost response never leads to a resend.
	step.Status = StepStatusSubmitted
	step.TxHash = signed.Hash().Hex()
	step.ExplorerURL = registry.ExplorerTxURL(chainID.Int64(), step.TxHash)
	step.SubmittedAt = opts.Now().UTC().Format(time.RFC3339Nano)
	checkpoint()
	if err := client.SendTransaction(ctx, signed); err != nil {
		unlock()
		var rejected rpc.Error
		if errors.As(err, &rejected) {
			step.Status = StepStatusFailed
			step.TxHash = ""
			step.ExplorerURL = ""
			step.SubmittedAt = ""
			return wrapEVMExecutionError(clierr.CodeUnavailable, "broadcast rejected by node", err)
		}
		return clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("broadcast outcome unknown for %s; resubmitting polls this hash instead of resending", step.TxHash), err)
	}
	unlock()
	log.Info().Str("step", step.StepID).Str("tx_hash", step.TxHash).Msg("transaction submitted")

	return waitForReceipt(ctx, client, step, signed.Hash(), opts)
}

// waitForReceipt blocks until the receipt is observed or StepTimeout passes.
// Polling errors are tolerated until the deadline.
func waitForReceipt(ctx context.Context, client Backend, step *ActionStep, hash common.Hash, opts ExecuteOptions) error {
	waitCtx, cancel := context.WithTimeout(ctx, opts.StepTimeout)
	defer cancel()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	timeout := func() error {
		return clierr.Wrap(
			clierr.CodeConfirmationTimeout,
			fmt.Sprintf("transaction %s not confirmed within %s; check the explorer before retrying", hash.Hex(), opts.StepTimeout),
			waitCtx.Err(),
		)
	}
	for {
		receipt, err := client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.BlockNumber != nil {
				step.BlockNumber = receipt.BlockNumber.Uint64()
			}
			step.GasUsed = receipt.GasUsed
			if receipt.Status == types.ReceiptStatusSuccessful {
				step.Status = StepStatusConfirmed
				step.ConfirmedAt = opts.Now().UTC().Format(time.RFC3339Nano)
				step.Error = ""
				return nil
			}
			code := clierr.CodeTxReverted
			if step.Type == StepTypeApproval {
				code = clierr.CodeApprovalFailed
			}
			return clierr.New(code, fmt.Sprintf("transaction %s reverted in block %d", hash.Hex(), step.BlockNumber))
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			log.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("receipt poll failed")
		}
		if waitCtx.Err() != nil {
			return timeout()
		}
		select {
		case <-waitCtx.Done():
			return timeout()
		case <-ticker.C:
		}
	}
}

// withProgress appends a step-by-step summary so callers can tell what already landed on-chain.
func withProgress(action *Action, err error) error {
	typed, ok := clierr.As(err)
	if !ok {
		return err
	}
	summary := ProgressSummary(action)
	if summary == "" {
		return err
	}
	return &clierr.Error{Code: typed.Code, Message: typed.Message + " (" + summary + ")", Cause: typed.Cause}
}

// ProgressSummary renders each step's state, e.g. "approval confirmed, swap not submitted".
func ProgressSummary(action *Action) string {
	if action == nil {
		return ""
	}
	parts := make([]string, 0, len(action.Steps))
	for _, step := range action.Steps {
		label := string(step.Type)
		switch step.Status {
		case StepStatusConfirmed:
			parts = append(parts, label+" confirmed")
		case StepStatusSubmitted:
			parts = append(parts, label+" submitted "+step.TxHash+" (unconfirmed)")
		case StepStatusFailed:
			if step.TxHash != "" {
				parts = append(parts, label+" failed "+step.TxHash)
			} else {
				parts = append(parts, label+" failed before submission")
			}
		default:
			parts = append(parts, label+" not submitted")
		}
	}
	return strings.Join(parts, ", ")
}

func persist(store *Store, action *Action) {
	if store == nil {
		return
	}
	if err := store.Save(*action); err != nil {
		log.Warn().Err(err).Str("action_id", action.ActionID).Msg("persist action")
	}
}

func resolveTipCap(ctx context.Context, client Backend, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-priority-fee-gwei", err)
		}
		return v, nil
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-fee-gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--max-fee-gwei must be >= --max-priority-fee-gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

func markStepFailed(action *Action, step *ActionStep, msg string) {
	step.Status = StepStatusFailed
	step.Error = msg
	action.Status = ActionStatusFailed
	action.Touch()
}

func normalizeStepTxHash(v string) (common.Hash, bool) {
	clean := strings.TrimSpace(v)
	if !strings.HasPrefix(clean, "0x") && !strings.HasPrefix(clean, "0X") {
		return common.Hash{}, false
	}
	raw, err := hex.DecodeString(clean[2:])
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
