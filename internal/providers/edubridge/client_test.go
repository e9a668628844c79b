package edubridge

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

var (
	bscEDU     = common.HexToAddress("0x00000000000000000000000000000000000E0001")
	bscAdapter = common.HexToAddress("0x00000000000000000000000000000000000E0002")
	arbEDU     = common.HexToAddress("0x00000000000000000000000000000000000E0003")
	arbInbox   = common.HexToAddress("0x00000000000000000000000000000000000E0004")
	sender     = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	oneEDU     = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type fakeChain struct {
	mu        sync.Mutex
	balance   *big.Int
	native    *big.Int
	allowance *big.Int
	fee       *big.Int
	methods   []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{balance: big.NewInt(0), native: big.NewInt(0), allowance: big.NewInt(0), fee: big.NewInt(0)}
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(msg.Data) < 4 {
		return nil, errors.New("bad call")
	}
	if m, err := oftABI.MethodById(msg.Data[:4]); err == nil {
		f.methods = append(f.methods, m.Name)
		return m.Outputs.Pack(f.fee, big.NewInt(0))
	}
	erc20 := mustABI(registry.ERC20MinimalABI)
	m, err := erc20.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.methods = append(f.methods, m.Name)
	switch m.Name {
	case "balanceOf":
		return m.Outputs.Pack(f.balance)
	case "allowance":
		return m.Outputs.Pack(f.allowance)
	}
	return nil, errors.New("unexpected call " + m.Name)
}

func (f *fakeChain) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, "eth_getBalance")
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) Close() {}

func (f *fakeChain) calledMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func testContracts() registry.Contracts {
	return registry.Contracts{
		BSCEDUToken:      bscEDU.Hex(),
		BSCOFTAdapter:    bscAdapter.Hex(),
		ArbitrumEDUToken: arbEDU.Hex(),
		ArbitrumInbox:    arbInbox.Hex(),
	}
}

func newTestClient(chain *fakeChain, contracts registry.Contracts) (*Client, *[]string) {
	var dialed []string
	resolve := func(chainID int64) (string, error) { return registry.ResolveRPCURL("", chainID) }
	c := New(contracts, resolve, WithDialer(func(_ context.Context, url string) (ChainClient, error) {
		dialed = append(dialed, url)
		return chain, nil
	}))
	return c, &dialed
}

func eduAmount(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), oneEDU) }

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("BSC-ARB")
	require.NoError(t, err)
	assert.Equal(t, BSCToArbitrum, d)
	d, err = ParseDirection("arbitrum-to-edu")
	require.NoError(t, err)
	assert.Equal(t, ArbitrumToEDU, d)
	_, err = ParseDirection("edu-bsc")
	assert.True(t, clierr.Is(err, clierr.CodeUsage))

	assert.Equal(t, id.Arbitrum, BSCToArbitrum.Destination())
	assert.Equal(t, id.EDUChain, ArbitrumToEDU.Destination())
}

func TestPlanBSCToArbitrumBuildsApprovalAndSend(t *testing.T) {
	chain := newFakeChain()
	chain.balance = eduAmount(10)
	chain.native = big.NewInt(1e17)
	chain.fee = big.NewInt(3e15)
	c, dialed := newTestClient(chain, testContracts())

	action, err := c.PlanBSCToArbitrum(context.Background(), Request{Amount: "2.5", Sender: sender.Hex(), Simulate: true})
	require.NoError(t, err)
	require.Len(t, action.Steps, 2)
	assert.Equal(t, "edubridge", action.Provider)
	assert.Equal(t, "bridge", action.IntentType)
	assert.Equal(t, id.BSC.CAIP2, action.ChainID)
	assert.Equal(t, "3-5 minutes", action.Metadata["settlement_estimate"])
	assert.Equal(t, []string{"source_balance", "gas_balance"}, action.Metadata["checks"])
	assert.Len(t, *dialed, 1)

	approval, send := action.Steps[0], action.Steps[1]
	assert.Equal(t, execution.StepTypeApproval, approval.Type)
	assert.Equal(t, bscEDU.Hex(), approval.Target)
	assert.Equal(t, execution.StepTypeBridge, send.Type)
	assert.Equal(t, bscAdapter.Hex(), send.Target)
	assert.Equal(t, "3000000000000000", send.Value)
	assert.Equal(t, "layerzero", send.ExpectedOutputs["settlement_provider"])
	assert.True(t, registry.IsAllowedBridgeSettlementURL("layerzero", send.ExpectedOutputs["settlement_status_endpoint"]))

	data := common.FromHex(send.Data)
	assert.Equal(t, oftABI.Methods["sendFrom"].ID, data[:4])
	args, err := oftABI.Methods["sendFrom"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, sender, args[0].(common.Address))
	assert.Equal(t, registry.LayerZeroArbitrumEID, args[1].(uint16))
	assert.Equal(t, sender.Bytes(), args[2].([]byte))
	assert.Equal(t, "2500000000000000000", args[3].(*big.Int).String())
	assert.Equal(t, sender, args[4].(common.Address))
	assert.Equal(t, common.Address{}, args[5].(common.Address))
}

func TestPlanBSCToArbitrumHaltsWithoutGasToken(t *testing.T) {
	chain := newFakeChain()
	chain.balance = eduAmount(10)
	chain.fee = big.NewInt(3e15)
	c, _ := newTestClient(chain, testContracts())

	action, err := c.PlanBSCToArbitrum(context.Background(), Request{Amount: "1", Sender: sender.Hex()})
	require.Error(t, err)
	assert.True(t, clierr.Is(err, clierr.CodeInsufficientBalance), "got %v", err)
	assert.Contains(t, err.Error(), "BNB")
	assert.Empty(t, action.Steps)
	assert.NotContains(t, chain.calledMethods(), "allowance")
}

func TestPlanBSCToArbitrumChecksTokenBalanceFirst(t *testing.T) {
	chain := newFakeChain()
	chain.native = big.NewInt(1e18)
	c, _ := newTestClient(chain, testContracts())

	_, err := c.PlanBSCToArbitrum(context.Background(), Request{Amount: "1", Sender: sender.Hex()})
	assert.True(t, clierr.Is(err, clierr.CodeInsufficientBalance), "got %v", err)
	assert.Equal(t, []string{"balanceOf"}, chain.calledMethods())
}

func TestPlanBSCToArbitrumSkipsApprovalWithAllowance(t *testing.T) {
	chain := newFakeChain()
	chain.balance = eduAmount(10)
	chain.native = big.NewInt(1e18)
	chain.allowance = eduAmount(5)
	c, _ := newTestClient(chain, testContracts())

	recipient := common.HexToAddress("0x00000000000000000000000000000000000000BB")
	action, err := c.PlanBSCToArbitrum(context.Background(), Request{Amount: "5", Sender: sender.Hex(), Recipient: recipient.Hex()})
	require.NoError(t, err)
	require.Len(t, action.Steps, 1)
	assert.Equal(t, recipient.Hex(), action.Steps[0].ExpectedOutputs["recipient"])
}

func TestPlanArbitrumToEDUNeedsNoGasToken(t *testing.T) {
	chain := newFakeChain()
	chain.balance = eduAmount(3)
	c, dialed := newTestClient(chain, testContracts())

	action, err := c.PlanArbitrumToEDU(context.Background(), Request{Amount: "3", Sender: sender.Hex()})
	require.NoError(t, err)
	require.Len(t, action.Steps, 2)
	assert.NotContains(t, chain.calledMethods(), "eth_getBalance")
	assert.Equal(t, "15-20 minutes", action.Metadata["settlement_estimate"])
	assert.Equal(t, []string{"https://arb1.arbitrum.io/rpc"}, *dialed)

	approval, deposit := action.Steps[0], action.Steps[1]
	assert.Equal(t, arbEDU.Hex(), approval.Target)
	assert.Equal(t, arbInbox.Hex(), deposit.Target)
	assert.Equal(t, "orbit", deposit.ExpectedOutputs["settlement_provider"])
	assert.Equal(t, "0", deposit.Value)
	data := common.FromHex(deposit.Data)
	assert.Equal(t, inboxABI.Methods["depositERC20"].ID, data[:4])
}

func TestPlanArbitrumToEDURejectsOtherRecipient(t *testing.T) {
	c, _ := newTestClient(newFakeChain(), testContracts())
	_, err := c.PlanArbitrumToEDU(context.Background(), Request{
		Amount:    "1",
		Sender:    sender.Hex(),
		Recipient: "0x00000000000000000000000000000000000000BB",
	})
	assert.True(t, clierr.Is(err, clierr.CodeUsage), "got %v", err)
}

func TestPlanRequiresConfiguredContracts(t *testing.T) {
	chain := newFakeChain()
	c, dialed := newTestClient(chain, registry.Contracts{})

	_, err := c.Plan(context.Background(), BSCToArbitrum, Request{Amount: "1", Sender: sender.Hex()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bsc_edu_token")
	_, err = c.Plan(context.Background(), ArbitrumToEDU, Request{Amount: "1", Sender: sender.Hex()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arbitrum_edu_token")
	assert.Empty(t, *dialed)
}

func TestPlanRejectsBadAmounts(t *testing.T) {
	c, _ := newTestClient(newFakeChain(), testContracts())
	for _, amt := range []string{"0", "-1", "abc", ""} {
		_, err := c.PlanArbitrumToEDU(context.Background(), Request{Amount: amt, Sender: sender.Hex()})
		assert.Error(t, err, "amount %q", amt)
	}
}

func TestEstimateBridgeFee(t *testing.T) {
	chain := newFakeChain()
	chain.fee = big.NewInt(42)
	c, _ := newTestClient(chain, testContracts())

	est, err := c.EstimateBridgeFee(context.Background(), BSCToArbitrum, "1", "")
	require.NoError(t, err)
	assert.Equal(t, "42", est.Fee.AmountBaseUnits)
	assert.Equal(t, "BNB", est.FeeSymbol)
	assert.Equal(t, oneEDU.String(), est.Amount.AmountBaseUnits)

	est, err = c.EstimateBridgeFee(context.Background(), ArbitrumToEDU, "1", "")
	require.NoError(t, err)
	assert.Equal(t, "0", est.Fee.AmountBaseUnits)
	assert.Equal(t, id.EDUChain.CAIP2, est.DestinationChainID)
}

func TestAdapterParamsLayout(t *testing.T) {
	params := AdapterParams(sender)
	require.Len(t, params, 86)
	assert.Equal(t, []byte{0x00, 0x02}, params[:2])
	assert.Equal(t, int64(200_000), new(big.Int).SetBytes(params[2:34]).Int64())
	assert.Equal(t, int64(500_000_000_000_000), new(big.Int).SetBytes(params[34:66]).Int64())
	assert.Equal(t, sender.Bytes(), params[66:])
}
