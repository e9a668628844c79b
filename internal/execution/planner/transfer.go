package planner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/id"
)

type TransferRequest struct {
	Chain     id.Chain
	Token     id.Token
	Amount    string
	Sender    string
	Recipient string
	Simulate  bool
	RPCURL    string
}

// BuildTransferAction plans a native value transfer or an ERC20 transfer after
// checking the sender holds the amount.
func BuildTransferAction(ctx context.Context, reader ChainReader, req TransferRequest) (execution.Action, error) {
	sender, err := parseAddress("sender", req.Sender)
	if err != nil {
		return execution.Action{}, err
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		return execution.Action{}, err
	}
	amount, err := id.ParseUnits(req.Amount, req.Token.Decimals)
	if err != nil {
		return execution.Action{}, err
	}
	if amount.Sign() <= 0 {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "transfer amount must be positive")
	}

	balance, err := TokenBalance(ctx, reader, req.Token, sender)
	if err != nil {
		return execution.Action{}, err
	}
	if err := RequireBalance(balance, amount, req.Token.Symbol, req.Token.Decimals, sender); err != nil {
		return execution.Action{}, err
	}

	action := execution.NewAction(execution.NewActionID(), "transfer", req.Chain.CAIP2, execution.Constraints{Simulate: req.Simulate})
	action.Provider = "native"
	action.FromAddress = sender.Hex()
	action.ToAddress = recipient.Hex()
	action.InputAmount = amount.String()
	action.Metadata = map[string]any{
		"token":          req.Token.Symbol,
		"amount_decimal": id.FormatUnits(amount, req.Token.Decimals),
	}

	step := execution.ActionStep{
		StepID:      "transfer",
		Type:        execution.StepTypeTransfer,
		Status:      execution.StepStatusPending,
		ChainID:     req.Chain.CAIP2,
		RPCURL:      req.RPCURL,
		Description: fmt.Sprintf("Transfer %s %s to %s", id.FormatUnits(amount, req.Token.Decimals), req.Token.Symbol, recipient.Hex()),
		ExpectedOutputs: map[string]string{
			"recipient": recipient.Hex(),
			"amount":    amount.String(),
		},
	}
	if req.Token.IsNative() {
		step.Target = recipient.Hex()
		step.Data = "0x"
		step.Value = amount.String()
	} else {
		data, err := plannerERC20ABI.Pack("transfer", recipient, new(big.Int).Set(amount))
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
		}
		step.Target = req.Token.EVMAddress().Hex()
		step.Data = "0x" + common.Bytes2Hex(data)
		step.Value = "0"
	}
	action.Steps = append(action.Steps, step)
	return action, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s address is required", field))
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a valid EVM address", field))
	}
	return common.HexToAddress(raw), nil
}
