package planner

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/id"
)

func transferRequest(t *testing.T, symbol, amount string) TransferRequest {
	t.Helper()
	reg := id.DefaultRegistry()
	token, err := reg.BySymbol(symbol)
	require.NoError(t, err)
	chain, err := id.ParseChain("edu-chain")
	require.NoError(t, err)
	return TransferRequest{
		Chain:     chain,
		Token:     token,
		Amount:    amount,
		Sender:    testOwner.Hex(),
		Recipient: testSpender.Hex(),
		RPCURL:    "http://127.0.0.1:8545",
	}
}

func TestBuildTransferActionNative(t *testing.T) {
	reader := &fakeReader{native: big.NewInt(2_000_000_000_000_000_000)}
	action, err := BuildTransferAction(context.Background(), reader, transferRequest(t, "EDU", "1.5"))
	require.NoError(t, err)
	require.Len(t, action.Steps, 1)

	step := action.Steps[0]
	assert.Equal(t, execution.StepTypeTransfer, step.Type)
	assert.Equal(t, testSpender.Hex(), step.Target)
	assert.Equal(t, "0x", step.Data)
	assert.Equal(t, "1500000000000000000", step.Value)
	assert.Equal(t, "transfer", action.IntentType)
}

func TestBuildTransferActionERC20(t *testing.T) {
	reader := &fakeReader{balances: map[common.Address]*big.Int{testUSDC: big.NewInt(5_000_000)}}
	action, err := BuildTransferAction(context.Background(), reader, transferRequest(t, "USDC", "2"))
	require.NoError(t, err)

	step := action.Steps[0]
	assert.Equal(t, testUSDC.Hex(), step.Target)
	assert.Equal(t, "0", step.Value)
	args, err := plannerERC20ABI.Methods["transfer"].Inputs.Unpack(common.FromHex(step.Data)[4:])
	require.NoError(t, err)
	assert.Equal(t, testSpender, args[0].(common.Address))
	assert.Equal(t, big.NewInt(2_000_000), args[1].(*big.Int))
}

func TestBuildTransferActionInsufficientBalance(t *testing.T) {
	reader := &fakeReader{balances: map[common.Address]*big.Int{testUSDC: big.NewInt(1)}}
	_, err := BuildTransferAction(context.Background(), reader, transferRequest(t, "USDC", "2"))
	require.Error(t, err)
	assert.True(t, clierr.Is(err, clierr.CodeInsufficientBalance), "got %v", err)
}

func TestBuildTransferActionRejectsBadRecipient(t *testing.T) {
	req := transferRequest(t, "EDU", "1")
	req.Recipient = "not-an-address"
	_, err := BuildTransferAction(context.Background(), &fakeReader{}, req)
	assert.True(t, clierr.Is(err, clierr.CodeUsage), "got %v", err)
}
