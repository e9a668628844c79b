package app

import (
	"time"

	"github.com/ggonzalez94/edufi-cli/internal/assistant"
	"github.com/ggonzalez94/edufi-cli/internal/cache"
	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/httpx"
	"github.com/ggonzalez94/edufi-cli/internal/id"
	"github.com/ggonzalez94/edufi-cli/internal/providers/blockscout"
	"github.com/ggonzalez94/edufi-cli/internal/providers/edubridge"
	"github.com/ggonzalez94/edufi-cli/internal/providers/geckoterminal"
	"github.com/ggonzalez94/edufi-cli/internal/providers/sailfish"
)

// buildService wires the production providers from settings. Each HTTP data
// source gets its own limiter so one busy source cannot starve the other.
func buildService(s *runtimeState) (*assistant.Service, error) {
	settings := s.settings
	reg, err := id.LoadRegistry(settings.TokensPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "load token registry", err)
	}
	eduRPC, err := settings.RPCURL(id.EDUChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve EDU Chain rpc url", err)
	}

	swaps := sailfish.New(reg, settings.Contracts, eduRPC,
		sailfish.WithRetries(settings.Retries),
		sailfish.WithMaxBlockAge(settings.MaxBlockAge),
	)
	bridge := edubridge.New(settings.Contracts, settings.RPCURL)

	marketHTTP := httpx.New(settings.Timeout, settings.Retries).WithLimiter(cache.NewLimiter(settings.RateLimit, time.Minute))
	explorerHTTP := httpx.New(settings.Timeout, settings.Retries).WithLimiter(cache.NewLimiter(settings.RateLimit, time.Minute))

	return assistant.New(assistant.Config{
		Registry: reg,
		Swaps:    swaps,
		Bridge:   bridge,
		Market:   geckoterminal.New(marketHTTP),
		Explorer: blockscout.New(explorerHTTP, reg),
		Store:    s.actionStore,
		Metrics:  s.metrics,
		RPCURL:   settings.RPCURL,
	})
}
