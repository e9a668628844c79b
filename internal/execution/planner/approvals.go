package planner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

// ChainReader is the read-only subset of ethclient.Client used while planning.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ApprovalRequest describes an ERC20 approval that must precede a spend.
type ApprovalRequest struct {
	ChainID string
	RPCURL  string
	Token   common.Address
	Symbol  string
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
	StepID  string
}

var plannerERC20ABI = mustPlannerABI(registry.ERC20MinimalABI)

// Allowance reads allowance(owner, spender) on token.
func Allowance(ctx context.Context, reader ChainReader, token, owner, spender common.Address) (*big.Int, error) {
	data, err := plannerERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance call", err)
	}
	out, err := reader.CallContract(ctx, ethereum.CallMsg{From: owner, To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read allowance", err)
	}
	return unpackUint(plannerERC20ABI, "allowance", out)
}

// IsApproved reports whether spender may already pull amount of token from owner.
func IsApproved(ctx context.Context, reader ChainReader, token, owner, spender common.Address, amount *big.Int) (bool, error) {
	allowance, err := Allowance(ctx, reader, token, owner, spender)
	if err != nil {
		return false, err
	}
	return allowance.Cmp(amount) >= 0, nil
}

// BuildApprovalStep encodes approve(spender, amount) for exactly the requested amount.
func BuildApprovalStep(req ApprovalRequest) (execution.ActionStep, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return execution.ActionStep{}, clierr.New(clierr.CodeUsage, "approval amount must be positive")
	}
	if req.Spender == (common.Address{}) {
		return execution.ActionStep{}, clierr.New(clierr.CodeUsage, "approval requires spender address")
	}
	if req.Token == (common.Address{}) {
		return execution.ActionStep{}, clierr.New(clierr.CodeUsage, "approval requires ERC20 token address")
	}
	data, err := plannerERC20ABI.Pack("approve", req.Spender, req.Amount)
	if err != nil {
		return execution.ActionStep{}, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	stepID := req.StepID
	if stepID == "" {
		stepID = "approve-token"
	}
	return execution.ActionStep{
		StepID:      stepID,
		Type:        execution.StepTypeApproval,
		Status:      execution.StepStatusPending,
		ChainID:     req.ChainID,
		RPCURL:      req.RPCURL,
		Description: fmt.Sprintf("Approve %s %s for %s", req.Amount.String(), strings.ToUpper(req.Symbol), req.Spender.Hex()),
		Target:      req.Token.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
	}, nil
}

// AppendApprovalIfNeeded adds an approval step when the current allowance is short.
// It returns whether a step was appended.
func AppendApprovalIfNeeded(ctx context.Context, reader ChainReader, action *execution.Action, req ApprovalRequest) (bool, error) {
	approved, err := IsApproved(ctx, reader, req.Token, req.Owner, req.Spender, req.Amount)
	if err != nil {
		return false, err
	}
	if approved {
		return false, nil
	}
	step, err := BuildApprovalStep(req)
	if err != nil {
		return false, err
	}
	action.Steps = append(action.Steps, step)
	return true, nil
}

// TokenBalance returns owner's balance of token, using the native balance for the gas token.
func TokenBalance(ctx context.Context, reader ChainReader, token id.Token, owner common.Address) (*big.Int, error) {
	if token.IsNative() {
		bal, err := reader.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
		}
		return bal, nil
	}
	return ERC20Balance(ctx, reader, token.EVMAddress(), owner)
}

// ERC20Balance reads balanceOf(owner) on an arbitrary token contract.
func ERC20Balance(ctx context.Context, reader ChainReader, token, owner common.Address) (*big.Int, error) {
	data, err := plannerERC20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack balanceOf call", err)
	}
	out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read token balance", err)
	}
	return unpackUint(plannerERC20ABI, "balanceOf", out)
}

// RequireBalance fails with InsufficientBalance when have < need.
func RequireBalance(have, need *big.Int, symbol string, decimals int, owner common.Address) error {
	if have.Cmp(need) >= 0 {
		return nil
	}
	return clierr.New(clierr.CodeInsufficientBalance, fmt.Sprintf(
		"insufficient %s balance for %s: have %s, need %s",
		symbol, owner.Hex(), id.FormatUnits(have, decimals), id.FormatUnits(need, decimals),
	))
}

func unpackUint(parsed abi.ABI, method string, out []byte) (*big.Int, error) {
	values, err := parsed.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method, err)
	}
	v, ok := values[0].(*big.Int)
	if !ok || v == nil {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid "+method+" response")
	}
	return v, nil
}

func mustPlannerABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
