package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/edufi-cli/internal/assistant"
	"github.com/ggonzalez94/edufi-cli/internal/cache"
	"github.com/ggonzalez94/edufi-cli/internal/config"
	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/metrics"
	"github.com/ggonzalez94/edufi-cli/internal/model"
	"github.com/ggonzalez94/edufi-cli/internal/out"
	"github.com/ggonzalez94/edufi-cli/internal/policy"
	"github.com/ggonzalez94/edufi-cli/internal/schema"
	"github.com/ggonzalez94/edufi-cli/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	cache         *cache.Store
	actionStore   *execution.Store
	metrics       *metrics.Metrics
	svc           *assistant.Service
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastProviders []model.ProviderStatus
	lastPartial   bool
	lastSigner    *model.SignerMeta

	// newService builds the assistant; tests swap it for fakes.
	newService func(*runtimeState) (*assistant.Service, error)
}

func (r *Runner) Run(args []string) int {
	return r.run(&runtimeState{runner: r, newService: buildService}, args)
}

func (r *Runner) run(state *runtimeState, args []string) int {
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	defer state.close()
	if err == nil {
		return 0
	}
	state.renderError("", err, state.lastWarnings, state.lastProviders, state.lastPartial)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.actionStore != nil {
		_ = s.actionStore.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "EDU Chain DeFi assistant: SailFish swaps, EDU bridging, transfers and market data",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			if err := config.ApplyLogLevel(settings.LogLevel); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "apply log level", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			if isIntrospection(path) {
				return nil
			}

			if shouldOpenActionStore(path) && s.actionStore == nil {
				store, err := execution.OpenStore(settings.ActionStorePath, settings.ActionLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open action store", err)
				}
				s.actionStore = store
			}
			if path == "serve" && s.metrics == nil {
				s.metrics = metrics.New()
			}
			if s.svc == nil {
				svc, err := s.newService(s)
				if err != nil {
					return err
				}
				s.svc = svc
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths or groups (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.Strict, "strict", false, "Fail on partial results")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale cache entries")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newRoutesCommand())
	cmd.AddCommand(s.newQuoteCommand())
	cmd.AddCommand(s.newPriceCommand())
	cmd.AddCommand(s.newNetworkCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newBridgeCommand())
	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newAskCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil, false)
		},
	}
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the data sources and on-chain providers in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.svc.Providers(), nil, cacheMetaBypass(), nil, false)
		},
	}
	root.AddCommand(list)
	return root
}

type fetchFn func(ctx context.Context) (data any, providerStatus []model.ProviderStatus, warnings []string, partial bool, err error)

func (s *runtimeState) runCachedCommand(commandPath, key string, ttl time.Duration, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	cacheStatus := cacheMetaMiss()
	warnings := []string{}
	var staleData any
	staleAvailable := false
	staleObservedAge := time.Duration(0)
	staleObservedAt := time.Time{}
	staleCacheStatus := cacheMetaMiss()

	if s.settings.CacheEnabled && s.cache != nil {
		cached, err := s.cache.Get(key, s.settings.MaxStale)
		if err == nil && cached.Hit {
			entryStatus := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
			var data any
			if err := json.Unmarshal(cached.Value, &data); err == nil {
				if !cached.Stale {
					s.captureCommandDiagnostics(warnings, nil, false)
					return s.emitSuccess(commandPath, data, warnings, entryStatus, nil, false)
				}
				staleData = data
				staleAvailable = true
				staleObservedAge = cached.Age
				staleObservedAt = time.Now()
				staleCacheStatus = entryStatus
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	defer cancel()
	data, providerStatus, providerWarnings, partial, err := fetch(ctx)
	warnings = append(warnings, providerWarnings...)
	s.captureCommandDiagnostics(warnings, providerStatus, partial)
	if err != nil {
		if !staleAvailable || !staleFallbackAllowed(err) {
			return err
		}
		currentStaleAge := staleObservedAge + time.Since(staleObservedAt)
		staleCacheStatus.AgeMS = currentStaleAge.Milliseconds()
		if s.settings.NoStale {
			return clierr.Wrap(clierr.CodeStale, "fresh provider fetch failed and stale fallback is disabled (--no-stale)", err)
		}
		if staleExceedsBudget(currentStaleAge, ttl, s.settings.MaxStale) {
			return clierr.Wrap(clierr.CodeStale, "fresh provider fetch failed and cached data exceeded stale budget", err)
		}
		warnings = append(warnings, "provider fetch failed; serving stale data within max-stale budget")
		s.captureCommandDiagnostics(warnings, providerStatus, false)
		return s.emitSuccess(commandPath, staleData, warnings, staleCacheStatus, providerStatus, false)
	}

	if partial && s.settings.Strict {
		s.captureCommandDiagnostics(warnings, providerStatus, true)
		return clierr.New(clierr.CodePartialStrict, "partial results returned in strict mode")
	}

	if s.settings.CacheEnabled && s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			if err := s.cache.Set(key, payload, ttl); err == nil {
				cacheStatus = model.CacheStatus{Status: "write"}
			}
		}
	}

	s.captureCommandDiagnostics(warnings, providerStatus, partial)
	return s.emitSuccess(commandPath, data, warnings, cacheStatus, providerStatus, partial)
}

// runDirect runs a command whose result must never be cached, such as quotes
// pinned to a block or planned actions.
func (s *runtimeState) runDirect(commandPath, providerName string, timeout time.Duration, fetch func(ctx context.Context) (any, error)) error {
	s.resetCommandDiagnostics()
	if timeout <= 0 {
		timeout = s.settings.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	start := time.Now()
	data, err := fetch(ctx)
	var statuses []model.ProviderStatus
	if providerName != "" {
		statuses = []model.ProviderStatus{{Name: providerName, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
	}
	s.captureCommandDiagnostics(nil, statuses, false)
	if err != nil {
		return err
	}
	return s.emitSuccess(commandPath, data, nil, cacheMetaBypass(), statuses, false)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, providers []model.ProviderStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheStatus,
			Partial:   partial,
			Signer:    s.lastSigner,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, providers []model.ProviderStatus, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}
	kind := clierr.Kind(clierr.Code(code))

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    kind,
			Kind:    kind,
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheMetaBypass(),
			Partial:   partial,
			Signer:    s.lastSigner,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func cacheKey(commandPath string, req any) string {
	buf, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(commandPath+"|"), buf...))
	return hex.EncodeToString(sum[:])
}

func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		}
	}
	return "error"
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass"}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss"}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleExceedsBudget(age, ttl, maxStale time.Duration) bool {
	if age <= ttl {
		return false
	}
	if maxStale < 0 {
		return false
	}
	return age > ttl+maxStale
}

func staleFallbackAllowed(err error) bool {
	return clierr.Is(err, clierr.CodeUnavailable) || clierr.Is(err, clierr.CodeRateLimited)
}

// Only explorer and market reads are cached. Quotes, routes and plans read
// live chain state.
func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "price", "network", "network status", "balance":
		return true
	default:
		return false
	}
}

func shouldOpenActionStore(commandPath string) bool {
	parts := strings.Fields(normalizeCommandPath(commandPath))
	if len(parts) == 0 {
		return false
	}
	switch parts[0] {
	case "actions", "ask", "serve":
		return true
	case "swap", "bridge", "transfer":
		if len(parts) < 2 {
			return false
		}
		switch parts[1] {
		case "plan", "run", "submit", "status":
			return true
		}
	}
	return false
}

func isIntrospection(commandPath string) bool {
	switch strings.Fields(normalizeCommandPath(commandPath) + " _")[0] {
	case "version", "schema", "help", "completion":
		return true
	}
	return false
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(commandPath)), " ")
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastProviders = nil
	s.lastPartial = false
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []model.ProviderStatus, partial bool) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(providers) == 0 {
		s.lastProviders = nil
	} else {
		s.lastProviders = append([]model.ProviderStatus(nil), providers...)
	}
	s.lastPartial = partial
}
