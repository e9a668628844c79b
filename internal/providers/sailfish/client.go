package sailfish

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "sailfish").Logger()
}

var (
	factoryABI = mustABI(registry.UniswapV3FactoryABI)
	poolABI    = mustABI(registry.UniswapV3PoolABI)
	quoterABI  = mustABI(registry.UniswapV3QuoterV2ABI)
	erc20ABI   = mustABI(registry.ERC20MinimalABI)
	routerABI  = mustABI(registry.UniswapV3RouterABI)
)

// ChainClient is the read-only chain surface used for discovery and quoting.
// *ethclient.Client satisfies it.
type ChainClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

type Dialer func(ctx context.Context, rpcURL string) (ChainClient, error)

func dialEthclient(ctx context.Context, rpcURL string) (ChainClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Client holds what the quoter and router share: the token table, the
// configured SailFish deployment and the EDU Chain RPC.
type Client struct {
	registry    *id.Registry
	contracts   registry.Contracts
	rpcURL      string
	dial        Dialer
	retries     int
	maxBlockAge time.Duration
	now         func() time.Time
}

type Option func(*Client)

func WithDialer(d Dialer) Option { return func(c *Client) { c.dial = d } }

func WithRetries(n int) Option { return func(c *Client) { c.retries = n } }

func WithMaxBlockAge(d time.Duration) Option { return func(c *Client) { c.maxBlockAge = d } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func New(reg *id.Registry, contracts registry.Contracts, rpcURL string, opts ...Option) *Client {
	c := &Client{
		registry:    reg,
		contracts:   contracts,
		rpcURL:      rpcURL,
		dial:        dialEthclient,
		retries:     2,
		maxBlockAge: 60 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "sailfish",
		Type:        "swap",
		RequiresKey: false,
		Capabilities: []string{
			"swap.routes",
			"swap.quote",
			"swap.plan",
			"swap.execute",
		},
	}
}

func (c *Client) connect(ctx context.Context) (ChainClient, error) {
	if strings.TrimSpace(c.rpcURL) == "" {
		return nil, clierr.New(clierr.CodeUsage, "edu chain rpc url is not configured")
	}
	client, err := c.dial(ctx, c.rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect edu chain rpc", err)
	}
	return client, nil
}

// call runs a read-only contract call, retrying transport failures with
// backoff. Reverts are returned immediately.
func (c *Client) call(ctx context.Context, client ChainClient, to common.Address, data []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Str("to", to.Hex()).Msg("retrying read call")
	}
	return nil, lastErr
}

func (c *Client) latestHeader(ctx context.Context, client ChainClient) (*types.Header, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
		header, err := client.HeaderByNumber(ctx, nil)
		if err == nil {
			return header, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, clierr.Wrap(clierr.CodeUnavailable, "read latest block", lastErr)
}

// checkFresh fails with Stale when the head block is older than maxBlockAge.
func (c *Client) checkFresh(header *types.Header) error {
	if c.maxBlockAge <= 0 {
		return nil
	}
	blockTime := time.Unix(int64(header.Time), 0)
	age := c.now().Sub(blockTime)
	if age > c.maxBlockAge {
		return clierr.New(clierr.CodeStale, fmt.Sprintf(
			"latest block %s is %s old, older than the %s limit",
			header.Number.String(), age.Truncate(time.Second), c.maxBlockAge,
		))
	}
	return nil
}

func (c *Client) resolvePair(from, to id.Token) (id.Token, id.Token, error) {
	if c.registry == nil {
		return id.Token{}, id.Token{}, clierr.New(clierr.CodeInternal, "token registry is not loaded")
	}
	for _, t := range []id.Token{from, to} {
		key := t.Symbol
		if !t.IsNative() {
			key = t.Address
		}
		if _, err := c.registry.Resolve(key); err != nil {
			return id.Token{}, id.Token{}, err
		}
	}
	a, err := c.registry.RoutingToken(from)
	if err != nil {
		return id.Token{}, id.Token{}, err
	}
	b, err := c.registry.RoutingToken(to)
	if err != nil {
		return id.Token{}, id.Token{}, err
	}
	if a.EVMAddress() == b.EVMAddress() {
		return id.Token{}, id.Token{}, clierr.New(clierr.CodeInvalidToken, fmt.Sprintf("cannot route %s to %s: same pool token", from.Symbol, to.Symbol))
	}
	return a, b, nil
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func backoff(attempt int) time.Duration {
	d := 100 * time.Millisecond * time.Duration(1<<uint(attempt-1))
	if d > time.Second {
		d = time.Second
	}
	return d + time.Duration(rand.Intn(50))*time.Millisecond
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
