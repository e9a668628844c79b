package edubridge

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/execution/planner"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "edubridge").Logger()
}

const eduDecimals = 18

// Gas forwarded to the destination with each LayerZero message.
var (
	destinationGasLimit = big.NewInt(200_000)
	destinationGasDrop  = big.NewInt(500_000_000_000_000) // 0.0005 ETH
)

var (
	oftABI   = mustABI(registry.LayerZeroProxyOFTABI)
	inboxABI = mustABI(registry.OrbitERC20InboxABI)
)

type Direction string

const (
	BSCToArbitrum Direction = "bsc-arb"
	ArbitrumToEDU Direction = "arb-edu"
)

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bsc-arb", "bsc-arbitrum", "bsc-to-arbitrum":
		return BSCToArbitrum, nil
	case "arb-edu", "arbitrum-edu", "arbitrum-to-edu", "arb-educhain", "arbitrum-educhain":
		return ArbitrumToEDU, nil
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown bridge direction %q (use bsc-arb or arb-edu)", raw))
	}
}

func (d Direction) Source() id.Chain {
	if d == BSCToArbitrum {
		return id.BSC
	}
	return id.Arbitrum
}

func (d Direction) Destination() id.Chain {
	if d == BSCToArbitrum {
		return id.Arbitrum
	}
	return id.EDUChain
}

// SettlementEstimate is informational; the planner does not watch the destination.
func (d Direction) SettlementEstimate() string {
	if d == BSCToArbitrum {
		return "3-5 minutes"
	}
	return "15-20 minutes"
}

type ChainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

type Dialer func(ctx context.Context, rpcURL string) (ChainClient, error)

// RPCResolver maps a chain id to its RPC endpoint.
type RPCResolver func(chainID int64) (string, error)

type Client struct {
	contracts registry.Contracts
	rpcURL    RPCResolver
	dial      Dialer
}

type Option func(*Client)

func WithDialer(d Dialer) Option { return func(c *Client) { c.dial = d } }

func New(contracts registry.Contracts, rpcURL RPCResolver, opts ...Option) *Client {
	c := &Client{
		contracts: contracts,
		rpcURL:    rpcURL,
		dial: func(ctx context.Context, url string) (ChainClient, error) {
			client, err := ethclient.DialContext(ctx, url)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "edubridge",
		Type:        "bridge",
		RequiresKey: false,
		Capabilities: []string{
			"bridge.quote",
			"bridge.plan",
			"bridge.execute",
		},
	}
}

type Request struct {
	Amount    string
	Sender    string
	Recipient string
	Simulate  bool
}

// Plan dispatches to the planner for the direction.
func (c *Client) Plan(ctx context.Context, dir Direction, req Request) (execution.Action, error) {
	switch dir {
	case BSCToArbitrum:
		return c.PlanBSCToArbitrum(ctx, req)
	case ArbitrumToEDU:
		return c.PlanArbitrumToEDU(ctx, req)
	default:
		return execution.Action{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown bridge direction %q", dir))
	}
}

// PlanBSCToArbitrum checks the EDU balance, then that BNB covers the
// LayerZero fee, and only then adds the approval and the sendFrom call.
func (c *Client) PlanBSCToArbitrum(ctx context.Context, req Request) (execution.Action, error) {
	sender, recipient, amount, err := parseRequest(req)
	if err != nil {
		return execution.Action{}, err
	}
	token, adapter, err := c.contracts.BSCBridge()
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeUsage, "bsc bridge contracts", err)
	}
	rpcURL, client, err := c.connect(ctx, id.BSC)
	if err != nil {
		return execution.Action{}, err
	}
	defer client.Close()

	checks := []string{}
	balance, err := planner.ERC20Balance(ctx, client, token, sender)
	if err != nil {
		return execution.Action{}, err
	}
	if err := planner.RequireBalance(balance, amount, "EDU (BSC)", eduDecimals, sender); err != nil {
		return execution.Action{}, err
	}
	checks = append(checks, "source_balance")

	adapterParams := AdapterParams(recipient)
	fee, err := c.sendFee(ctx, client, adapter, recipient, amount, adapterParams)
	if err != nil {
		return execution.Action{}, err
	}
	gas, err := client.BalanceAt(ctx, sender, nil)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeUnavailable, "read BNB balance", err)
	}
	if err := planner.RequireBalance(gas, fee, "BNB", 18, sender); err != nil {
		return execution.Action{}, err
	}
	checks = append(checks, "gas_balance")

	action := c.newAction(BSCToArbitrum, sender, recipient, amount, req.Simulate, checks)
	action.Metadata["fee"] = fee.String()
	action.Metadata["fee_symbol"] = id.BSC.NativeAsset

	if _, err := planner.AppendApprovalIfNeeded(ctx, client, &action, planner.ApprovalRequest{
		ChainID: id.BSC.CAIP2,
		RPCURL:  rpcURL,
		Token:   token,
		Symbol:  "EDU",
		Owner:   sender,
		Spender: adapter,
		Amount:  amount,
		StepID:  "approve-bridge-token",
	}); err != nil {
		return execution.Action{}, err
	}

	data, err := oftABI.Pack("sendFrom", sender, registry.LayerZeroArbitrumEID, recipient.Bytes(), amount, sender, common.Address{}, adapterParams)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack sendFrom", err)
	}
	statusURL, _ := registry.BridgeSettlementURL("layerzero")
	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      "bridge-send",
		Type:        execution.StepTypeBridge,
		Status:      execution.StepStatusPending,
		ChainID:     id.BSC.CAIP2,
		RPCURL:      rpcURL,
		Description: fmt.Sprintf("Bridge %s EDU from BSC to Arbitrum via LayerZero", id.FormatUnits(amount, eduDecimals)),
		Target:      adapter.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       fee.String(),
		ExpectedOutputs: map[string]string{
			"settlement_provider":        "layerzero",
			"settlement_status_endpoint": statusURL,
			"destination_chain_id":       id.Arbitrum.CAIP2,
			"recipient":                  recipient.Hex(),
			"amount":                     amount.String(),
		},
	})
	log.Info().Str("action_id", action.ActionID).Str("fee", fee.String()).Int("steps", len(action.Steps)).Msg("bsc to arbitrum bridge planned")
	return action, nil
}

// PlanArbitrumToEDU only checks the EDU balance; the deposit carries no
// destination fee, so there is no gas-token check in this direction.
func (c *Client) PlanArbitrumToEDU(ctx context.Context, req Request) (execution.Action, error) {
	sender, recipient, amount, err := parseRequest(req)
	if err != nil {
		return execution.Action{}, err
	}
	if recipient != sender {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "arbitrum to edu chain deposits credit the sender; a different recipient is not supported")
	}
	token, inbox, err := c.contracts.ArbitrumBridge()
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeUsage, "arbitrum bridge contracts", err)
	}
	rpcURL, client, err := c.connect(ctx, id.Arbitrum)
	if err != nil {
		return execution.Action{}, err
	}
	defer client.Close()

	balance, err := planner.ERC20Balance(ctx, client, token, sender)
	if err != nil {
		return execution.Action{}, err
	}
	if err := planner.RequireBalance(balance, amount, "EDU (Arbitrum)", eduDecimals, sender); err != nil {
		return execution.Action{}, err
	}

	action := c.newAction(ArbitrumToEDU, sender, recipient, amount, req.Simulate, []string{"source_balance"})
	if _, err := planner.AppendApprovalIfNeeded(ctx, client, &action, planner.ApprovalRequest{
		ChainID: id.Arbitrum.CAIP2,
		RPCURL:  rpcURL,
		Token:   token,
		Symbol:  "EDU",
		Owner:   sender,
		Spender: inbox,
		Amount:  amount,
		StepID:  "approve-bridge-token",
	}); err != nil {
		return execution.Action{}, err
	}

	data, err := inboxABI.Pack("depositERC20", amount)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack depositERC20", err)
	}
	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      "bridge-deposit",
		Type:        execution.StepTypeBridge,
		Status:      execution.StepStatusPending,
		ChainID:     id.Arbitrum.CAIP2,
		RPCURL:      rpcURL,
		Description: fmt.Sprintf("Deposit %s EDU from Arbitrum to EDU Chain", id.FormatUnits(amount, eduDecimals)),
		Target:      inbox.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
		ExpectedOutputs: map[string]string{
			"settlement_provider":  "orbit",
			"destination_chain_id": id.EDUChain.CAIP2,
			"recipient":            sender.Hex(),
			"amount":               amount.String(),
		},
	})
	log.Info().Str("action_id", action.ActionID).Int("steps", len(action.Steps)).Msg("arbitrum to edu chain bridge planned")
	return action, nil
}

// EstimateBridgeFee reports the source-chain fee for a transfer without
// planning it. The Orbit deposit has no protocol fee.
func (c *Client) EstimateBridgeFee(ctx context.Context, dir Direction, amountDecimal, recipientRaw string) (model.BridgeEstimate, error) {
	amount, err := id.ParseUnits(amountDecimal, eduDecimals)
	if err != nil {
		return model.BridgeEstimate{}, err
	}
	est := model.BridgeEstimate{
		Direction:          string(dir),
		SourceChainID:      dir.Source().CAIP2,
		DestinationChainID: dir.Destination().CAIP2,
		Amount:             amountInfo(amount),
		Fee:                amountInfo(big.NewInt(0)),
		FeeSymbol:          dir.Source().NativeAsset,
		SettlementEstimate: dir.SettlementEstimate(),
	}
	if dir != BSCToArbitrum {
		return est, nil
	}
	recipient := common.Address{}
	if strings.TrimSpace(recipientRaw) != "" {
		if !common.IsHexAddress(recipientRaw) {
			return model.BridgeEstimate{}, clierr.New(clierr.CodeUsage, "recipient must be a valid EVM address")
		}
		recipient = common.HexToAddress(recipientRaw)
	}
	_, adapter, err := c.contracts.BSCBridge()
	if err != nil {
		return model.BridgeEstimate{}, clierr.Wrap(clierr.CodeUsage, "bsc bridge contracts", err)
	}
	_, client, err := c.connect(ctx, id.BSC)
	if err != nil {
		return model.BridgeEstimate{}, err
	}
	defer client.Close()
	fee, err := c.sendFee(ctx, client, adapter, recipient, amount, AdapterParams(recipient))
	if err != nil {
		return model.BridgeEstimate{}, err
	}
	est.Fee = amountInfo(fee)
	return est, nil
}

func (c *Client) sendFee(ctx context.Context, client ChainClient, adapter, recipient common.Address, amount *big.Int, adapterParams []byte) (*big.Int, error) {
	data, err := oftABI.Pack("estimateSendFee", registry.LayerZeroArbitrumEID, recipient.Bytes(), amount, false, adapterParams)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack estimateSendFee", err)
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &adapter, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "estimate LayerZero fee", err)
	}
	values, err := oftABI.Unpack("estimateSendFee", out)
	if err != nil || len(values) < 1 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode estimateSendFee", err)
	}
	fee, ok := values[0].(*big.Int)
	if !ok || fee == nil {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid estimateSendFee response")
	}
	return fee, nil
}

func (c *Client) connect(ctx context.Context, chain id.Chain) (string, ChainClient, error) {
	if c.rpcURL == nil {
		return "", nil, clierr.New(clierr.CodeUsage, "rpc resolver is not configured")
	}
	url, err := c.rpcURL(chain.EVMChainID)
	if err != nil {
		return "", nil, clierr.Wrap(clierr.CodeUsage, "resolve "+chain.Slug+" rpc url", err)
	}
	client, err := c.dial(ctx, url)
	if err != nil {
		return "", nil, clierr.Wrap(clierr.CodeUnavailable, "connect "+chain.Name+" rpc", err)
	}
	return url, client, nil
}

func (c *Client) newAction(dir Direction, sender, recipient common.Address, amount *big.Int, simulate bool, checks []string) execution.Action {
	action := execution.NewAction(execution.NewActionID(), "bridge", dir.Source().CAIP2, execution.Constraints{Simulate: simulate})
	action.Provider = "edubridge"
	action.FromAddress = sender.Hex()
	action.ToAddress = recipient.Hex()
	action.InputAmount = amount.String()
	action.Metadata = map[string]any{
		"direction":            string(dir),
		"destination_chain_id": dir.Destination().CAIP2,
		"amount_decimal":       id.FormatUnits(amount, eduDecimals),
		"checks":               checks,
		"settlement_estimate":  dir.SettlementEstimate(),
	}
	return action
}

// AdapterParams encodes LayerZero adapter params v2: version, gas limit,
// native drop amount and the address that receives the drop.
func AdapterParams(recipient common.Address) []byte {
	out := make([]byte, 0, 2+32+32+20)
	out = append(out, 0x00, 0x02)
	out = append(out, common.LeftPadBytes(destinationGasLimit.Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(destinationGasDrop.Bytes(), 32)...)
	return append(out, recipient.Bytes()...)
}

func parseRequest(req Request) (common.Address, common.Address, *big.Int, error) {
	sender := strings.TrimSpace(req.Sender)
	if sender == "" || !common.IsHexAddress(sender) {
		return common.Address{}, common.Address{}, nil, clierr.New(clierr.CodeUsage, "bridge requires a valid sender address")
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		recipient = sender
	}
	if !common.IsHexAddress(recipient) {
		return common.Address{}, common.Address{}, nil, clierr.New(clierr.CodeUsage, "bridge recipient must be a valid EVM address")
	}
	amount, err := id.ParseUnits(req.Amount, eduDecimals)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	if amount.Sign() <= 0 {
		return common.Address{}, common.Address{}, nil, clierr.New(clierr.CodeUsage, "bridge amount must be greater than zero")
	}
	return common.HexToAddress(sender), common.HexToAddress(recipient), amount, nil
}

func amountInfo(v *big.Int) model.AmountInfo {
	return model.AmountInfo{AmountBaseUnits: v.String(), AmountDecimal: id.FormatUnits(v, 18), Decimals: 18}
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
