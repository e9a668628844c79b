package app

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/edufi-cli/internal/assistant"
	"github.com/ggonzalez94/edufi-cli/internal/cache"
	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/server"
)

func (s *runtimeState) newAskCommand() *cobra.Command {
	var sender string
	var slippageBps int64
	var simulate bool
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Answer a natural-language DeFi request such as \"swap 10 USDC for WEDU\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return s.runDirect(trimRootPath(cmd.CommandPath()), "", s.planTimeout(), func(ctx context.Context) (any, error) {
				return s.svc.Ask(ctx, text, assistant.HandleOptions{
					Sender:      sender,
					SlippageBps: slippageBps,
					Simulate:    simulate,
				})
			})
		},
	}
	cmd.Flags().StringVar(&sender, "from-address", "", "Sender address; without it swaps are only quoted and bridges only estimated")
	cmd.Flags().Int64Var(&slippageBps, "slippage-bps", 0, "Max slippage in basis points (0 uses the route default)")
	cmd.Flags().BoolVar(&simulate, "simulate", true, "Include simulation checks in planned actions")
	return cmd
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var addr string
	var origins []string
	var ratePerMinute int
	var cacheBytes int64
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP for chat front-ends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			memCache, err := cache.NewMemory(cacheBytes, s.settings.MaxStale)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "create response cache", err)
			}
			defer memCache.Close()

			cfg := server.DefaultConfig()
			cfg.Address = firstNonEmpty(addr, s.settings.ServerAddr, cfg.Address)
			if len(origins) > 0 {
				cfg.AllowedOrigins = origins
			} else if len(s.settings.CORSOrigins) > 0 {
				cfg.AllowedOrigins = s.settings.CORSOrigins
			}
			cfg.RatePerMinute = ratePerMinute
			cfg.RequestTimeout = s.planTimeout() + 5*time.Second
			cfg.ExplorerTTL = s.settings.ExplorerTTL
			cfg.MarketTTL = s.settings.MarketTTL
			cfg.MaxStale = s.settings.MaxStale
			cfg.SweepEvery = s.settings.SweepEvery

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv := server.New(cfg, s.svc, memCache, s.metrics)
			if err := srv.Start(ctx); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "serve", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to configured server.addr)")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "Allowed CORS origins (repeatable)")
	cmd.Flags().IntVar(&ratePerMinute, "rate-limit", 120, "Requests per minute per client IP (0 disables)")
	cmd.Flags().Int64Var(&cacheBytes, "cache-bytes", 64<<20, "Response cache size in bytes")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
