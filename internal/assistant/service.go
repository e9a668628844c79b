// Package assistant is the request layer shared by the CLI and the HTTP
// surface. It resolves tokens, calls the providers, persists planned actions
// and turns executed actions into response records.
package assistant

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/execution/planner"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/metrics"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/providers"
	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "assistant").Logger()
}

// ChainReader is a closable planner reader, used for transfer planning.
type ChainReader interface {
	planner.ChainReader
	Close()
}

type Dialer func(ctx context.Context, rpcURL string) (ChainReader, error)

func dialEthclient(ctx context.Context, rpcURL string) (ChainReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Config wires the providers into a Service. Store and Metrics may be nil.
type Config struct {
	Registry *id.Registry
	Swaps    providers.SwapProvider
	Bridge   providers.BridgeProvider
	Market   providers.MarketDataProvider
	Explorer providers.ChainDataProvider
	Store    *execution.Store
	Metrics  *metrics.Metrics
	RPCURL   func(chainID int64) (string, error)
	Dial     Dialer
	Now      func() time.Time
}

type Service struct {
	reg      *id.Registry
	swaps    providers.SwapProvider
	bridge   providers.BridgeProvider
	market   providers.MarketDataProvider
	explorer providers.ChainDataProvider
	store    *execution.Store
	metrics  *metrics.Metrics
	rpcURL   func(chainID int64) (string, error)
	dial     Dialer
	now      func() time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, clierr.New(clierr.CodeInternal, "assistant requires a token registry")
	}
	s := &Service{
		reg:      cfg.Registry,
		swaps:    cfg.Swaps,
		bridge:   cfg.Bridge,
		market:   cfg.Market,
		explorer: cfg.Explorer,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		rpcURL:   cfg.RPCURL,
		dial:     cfg.Dial,
		now:      cfg.Now,
	}
	if s.rpcURL == nil {
		s.rpcURL = func(chainID int64) (string, error) { return registry.ResolveRPCURL("", chainID) }
	}
	if s.dial == nil {
		s.dial = dialEthclient
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Service) Registry() *id.Registry { return s.reg }

// Providers lists the configured data and execution sources.
func (s *Service) Providers() []model.ProviderInfo {
	var out []model.ProviderInfo
	for _, p := range []providers.Provider{s.swaps, s.bridge, s.market, s.explorer} {
		if p == nil {
			continue
		}
		out = append(out, p.Info())
	}
	return out
}

func (s *Service) Tokens() []id.Token { return s.reg.Tokens() }

// Token resolves a symbol or registry address.
func (s *Service) Token(input string) (id.Token, error) {
	return s.reg.Resolve(input)
}

func (s *Service) requireSwaps() error {
	if s.swaps == nil {
		return clierr.New(clierr.CodeUnsupported, "swap routing is not configured")
	}
	return nil
}

func (s *Service) persist(action execution.Action) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(action); err != nil {
		return clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("persist action %s", action.ActionID), err)
	}
	return nil
}

// Action loads a persisted plan.
func (s *Service) Action(actionID string) (execution.Action, error) {
	if s.store == nil {
		return execution.Action{}, clierr.New(clierr.CodeUnsupported, "action store is not configured")
	}
	return s.store.Get(actionID)
}

func (s *Service) Actions(q execution.ListQuery) ([]execution.Action, error) {
	if s.store == nil {
		return nil, clierr.New(clierr.CodeUnsupported, "action store is not configured")
	}
	return s.store.List(q)
}
