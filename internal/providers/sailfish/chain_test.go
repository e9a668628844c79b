package sailfish

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

var (
	testFactory = common.HexToAddress("0x00000000000000000000000000000000000F0001")
	testQuoter  = common.HexToAddress("0x00000000000000000000000000000000000F0002")
	testRouter  = common.HexToAddress("0x00000000000000000000000000000000000F0003")
	testSender  = common.HexToAddress("0x00000000000000000000000000000000000000AA")

	q96     = new(big.Int).Lsh(big.NewInt(1), 96)
	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testContracts() registry.Contracts {
	return registry.Contracts{
		SailfishFactory: testFactory.Hex(),
		SailfishQuoter:  testQuoter.Hex(),
		SailfishRouter:  testRouter.Hex(),
	}
}

type fakePool struct {
	addr      common.Address
	token0    common.Address
	token1    common.Address
	fee       uint32
	liquidity *big.Int
	sqrtPrice *big.Int
}

// fakeChain answers the factory, pool, QuoterV2 and ERC20 calls the client makes.
// Swaps follow out = spot * (1 - fee) * L / (L + in) per hop.
type fakeChain struct {
	mu         sync.Mutex
	pools      map[string]*fakePool
	byAddr     map[common.Address]*fakePool
	balances   map[common.Address]*big.Int
	native     *big.Int
	allowance  *big.Int
	headerTime time.Time
	failNext   int
	methods    []string
	nextPool   int64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		pools:      map[string]*fakePool{},
		byAddr:     map[common.Address]*fakePool{},
		balances:   map[common.Address]*big.Int{},
		native:     big.NewInt(0),
		allowance:  big.NewInt(0),
		headerTime: testNow.Add(-5 * time.Second),
	}
}

func pairKey(a, b common.Address, fee uint32) string {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return fmt.Sprintf("%s-%s-%d", a.Hex(), b.Hex(), fee)
}

func (f *fakeChain) addPool(a, b common.Address, fee uint32, liquidity int64) *fakePool {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	f.nextPool++
	p := &fakePool{
		addr:      common.BigToAddress(big.NewInt(0xB000 + f.nextPool)),
		token0:    a,
		token1:    b,
		fee:       fee,
		liquidity: big.NewInt(liquidity),
		sqrtPrice: new(big.Int).Set(q96),
	}
	f.pools[pairKey(a, b, fee)] = p
	f.byAddr[p.addr] = p
	return p
}

func (f *fakeChain) calledMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("connection reset by peer")
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("bad call")
	}
	return f.respond(*msg.To, msg.Data)
}

func (f *fakeChain) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, "eth_getBalance")
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Header{Number: big.NewInt(4242), Time: uint64(f.headerTime.Unix())}, nil
}

func (f *fakeChain) Close() {}

func (f *fakeChain) respond(to common.Address, data []byte) ([]byte, error) {
	switch {
	case to == testFactory:
		return f.handle(factoryABI, data, func(m *abi.Method, args []any) ([]byte, error) {
			a, b := args[0].(common.Address), args[1].(common.Address)
			fee := uint32(args[2].(*big.Int).Uint64())
			addr := common.Address{}
			if p, ok := f.pools[pairKey(a, b, fee)]; ok {
				addr = p.addr
			}
			return m.Outputs.Pack(addr)
		})
	case to == testQuoter:
		return f.handle(quoterABI, data, f.quote)
	case f.byAddr[to] != nil:
		p := f.byAddr[to]
		return f.handle(poolABI, data, func(m *abi.Method, _ []any) ([]byte, error) {
			switch m.Name {
			case "token0":
				return m.Outputs.Pack(p.token0)
			case "token1":
				return m.Outputs.Pack(p.token1)
			case "liquidity":
				return m.Outputs.Pack(p.liquidity)
			case "slot0":
				return m.Outputs.Pack(p.sqrtPrice, big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)
			}
			return nil, errors.New("unknown pool method")
		})
	default:
		return f.handle(erc20ABI, data, func(m *abi.Method, _ []any) ([]byte, error) {
			switch m.Name {
			case "balanceOf":
				bal := f.balances[to]
				if bal == nil {
					bal = big.NewInt(0)
				}
				return m.Outputs.Pack(bal)
			case "allowance":
				return m.Outputs.Pack(f.allowance)
			}
			return nil, errors.New("unexpected erc20 call")
		})
	}
}

func (f *fakeChain) handle(parsed abi.ABI, data []byte, fn func(*abi.Method, []any) ([]byte, error)) ([]byte, error) {
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	f.methods = append(f.methods, m.Name)
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	return fn(m, args)
}

func (f *fakeChain) quote(m *abi.Method, args []any) ([]byte, error) {
	switch m.Name {
	case "quoteExactInputSingle":
		params := abi.ConvertType(args[0], new(quoteExactInputSingleParams)).(*quoteExactInputSingleParams)
		p, ok := f.pools[pairKey(params.TokenIn, params.TokenOut, uint32(params.Fee.Uint64()))]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		out := simulateHop(p, params.TokenIn, params.AmountIn)
		return m.Outputs.Pack(out, p.sqrtPrice, uint32(1), big.NewInt(90_000))
	case "quoteExactInput":
		path := args[0].([]byte)
		amt := new(big.Int).Set(args[1].(*big.Int))
		var afters []*big.Int
		var ticks []uint32
		for len(path) >= 43 {
			tokenIn := common.BytesToAddress(path[:20])
			fee := uint32(path[20])<<16 | uint32(path[21])<<8 | uint32(path[22])
			tokenOut := common.BytesToAddress(path[23:43])
			p, ok := f.pools[pairKey(tokenIn, tokenOut, fee)]
			if !ok {
				return nil, errors.New("execution reverted")
			}
			amt = simulateHop(p, tokenIn, amt)
			afters = append(afters, p.sqrtPrice)
			ticks = append(ticks, 1)
			path = path[23:]
		}
		return m.Outputs.Pack(amt, afters, ticks, big.NewInt(160_000))
	}
	return nil, errors.New("unknown quoter method")
}

func simulateHop(p *fakePool, tokenIn common.Address, amountIn *big.Int) *big.Int {
	hop := Hop{
		Pool:    Pool{Token0: p.token0, Token1: p.token1, SqrtPriceX96: p.sqrtPrice, FeeTier: p.fee, Liquidity: p.liquidity},
		TokenIn: tokenIn,
	}
	spot := SpotOutput(DirectRoute{Hop: hop}, amountIn)
	out := new(big.Int).Mul(spot, big.NewInt(int64(1_000_000-p.fee)))
	out.Div(out, big.NewInt(1_000_000))
	out.Mul(out, p.liquidity)
	return out.Div(out, new(big.Int).Add(p.liquidity, amountIn))
}

func newTestClient(t *testing.T, chain *fakeChain, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithDialer(func(context.Context, string) (ChainClient, error) { return chain, nil }),
		WithClock(func() time.Time { return testNow }),
		WithRetries(1),
	}
	return New(id.DefaultRegistry(), testContracts(), "http://rpc.test", append(base, opts...)...)
}

func mustToken(t *testing.T, symbol string) id.Token {
	t.Helper()
	tok, err := id.DefaultRegistry().BySymbol(symbol)
	if err != nil {
		t.Fatalf("token %s: %v", symbol, err)
	}
	return tok
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// newMockRPCServer exposes chain over JSON-RPC so the real ethclient dialer is exercised.
func newMockRPCServer(t *testing.T, chain *fakeChain) *httptest.Server {
	t.Helper()
	handler := func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Method != "eth_call" || len(req.Params) == 0 {
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
			return
		}
		var call map[string]string
		if err := json.Unmarshal(req.Params[0], &call); err != nil {
			writeRPCError(w, req.ID, -32602, err.Error())
			return
		}
		input := call["input"]
		if input == "" {
			input = call["data"]
		}
		data, err := hex.DecodeString(strings.TrimPrefix(input, "0x"))
		if err != nil {
			writeRPCError(w, req.ID, -32602, err.Error())
			return
		}
		out, err := chain.CallContract(r.Context(), ethereum.CallMsg{To: ptr(common.HexToAddress(call["to"])), Data: data}, nil)
		if err != nil {
			writeRPCError(w, req.ID, 3, err.Error())
			return
		}
		writeRPCResult(w, req.ID, "0x"+hex.EncodeToString(out))
	}
	return httptest.NewServer(http.HandlerFunc(handler))
}

func ptr(a common.Address) *common.Address { return &a }

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, rawIDOrDefault(id), result)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawIDOrDefault(id), code, message)
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}
