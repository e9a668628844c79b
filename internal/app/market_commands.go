package app

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/edufi-cli/internal/assistant"
	"github.com/ggonzalez94/edufi-cli/internal/model"
)

func (s *runtimeState) newTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List the EDU Chain token registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.svc.Tokens(), nil, cacheMetaBypass(), nil, false)
		},
	}
}

func (s *runtimeState) newRoutesCommand() *cobra.Command {
	var fromArg, toArg string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List candidate SailFish routes between two tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runDirect(trimRootPath(cmd.CommandPath()), "sailfish", 0, func(ctx context.Context) (any, error) {
				return s.svc.Routes(ctx, fromArg, toArg)
			})
		},
	}
	cmd.Flags().StringVar(&fromArg, "from", "", "Input token (symbol or address)")
	cmd.Flags().StringVar(&toArg, "to", "", "Output token (symbol or address)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var fromArg, toArg, amountArg, tradeTypeArg string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a SailFish swap at the latest block",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runDirect(trimRootPath(cmd.CommandPath()), "sailfish", 0, func(ctx context.Context) (any, error) {
				return s.svc.Quote(ctx, assistant.QuoteRequest{
					From:      fromArg,
					To:        toArg,
					Amount:    amountArg,
					TradeType: tradeTypeArg,
				})
			})
		},
	}
	cmd.Flags().StringVar(&fromArg, "from", "", "Input token (symbol or address)")
	cmd.Flags().StringVar(&toArg, "to", "", "Output token (symbol or address)")
	cmd.Flags().StringVar(&amountArg, "amount", "", "Input amount in decimal units")
	cmd.Flags().StringVar(&tradeTypeArg, "trade-type", "EXACT_INPUT", "Trade type (EXACT_INPUT)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newPriceCommand() *cobra.Command {
	var tokenArg string
	cmd := &cobra.Command{
		Use:   "price",
		Short: "USD price of a registry token from GeckoTerminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := trimRootPath(cmd.CommandPath())
			token := strings.ToUpper(strings.TrimSpace(tokenArg))
			key := cacheKey(path, map[string]any{"token": token})
			return s.runCachedCommand(path, key, s.settings.MarketTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				start := time.Now()
				data, err := s.svc.Price(ctx, token)
				return data, providerStatus("geckoterminal", start, err), nil, false, err
			})
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "EDU", "Token symbol or address")
	return cmd
}

func (s *runtimeState) newNetworkCommand() *cobra.Command {
	root := &cobra.Command{Use: "network", Short: "EDU Chain network and market commands"}
	status := &cobra.Command{
		Use:   "status",
		Short: "Chain stats from Blockscout combined with SailFish pool stats from GeckoTerminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := trimRootPath(cmd.CommandPath())
			return s.runCachedCommand(path, cacheKey(path, nil), s.settings.ExplorerTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				start := time.Now()
				data, err := s.svc.NetworkStatus(ctx)
				statuses := append(providerStatus("blockscout", start, err), providerStatus("geckoterminal", start, err)...)
				return data, statuses, nil, false, err
			})
		},
	}
	root.AddCommand(status)
	return root
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var addressArg string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Native and token balances of an EDU Chain address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := trimRootPath(cmd.CommandPath())
			address := strings.ToLower(strings.TrimSpace(addressArg))
			key := cacheKey(path, map[string]any{"address": address})
			return s.runCachedCommand(path, key, s.settings.ExplorerTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				start := time.Now()
				data, err := s.svc.Balance(ctx, address)
				return data, providerStatus("blockscout", start, err), nil, false, err
			})
		},
	}
	cmd.Flags().StringVar(&addressArg, "address", "", "EDU Chain address")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func providerStatus(name string, start time.Time, err error) []model.ProviderStatus {
	return []model.ProviderStatus{{Name: name, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
}
