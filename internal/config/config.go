package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

const appDir = "edufi"

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Strict         bool
	Timeout        string
	Retries        int
	MaxStale       string
	NoStale        bool
	NoCache        bool
	LogLevel       string
}

type Settings struct {
	OutputMode      string
	SelectFields    []string
	ResultsOnly     bool
	EnableCommands  []string
	Strict          bool
	Timeout         time.Duration
	Retries         int
	MaxStale        time.Duration
	NoStale         bool
	LogLevel        string
	CacheEnabled    bool
	CachePath       string
	CacheLockPath   string
	ActionStorePath string
	ActionLockPath  string

	// Domain settings.
	TokensPath  string
	Contracts   registry.Contracts
	RPCURLs     map[int64]string
	MaxBlockAge time.Duration
	StepTimeout time.Duration
	ExplorerTTL time.Duration
	MarketTTL   time.Duration
	RateLimit   int
	SweepEvery  time.Duration
	ServerAddr  string
	CORSOrigins []string
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Strict   *bool  `yaml:"strict"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	LogLevel string `yaml:"log_level"`
	Tokens   string `yaml:"tokens"`
	Cache    struct {
		Enabled     *bool  `yaml:"enabled"`
		MaxStale    string `yaml:"max_stale"`
		Path        string `yaml:"path"`
		LockPath    string `yaml:"lock_path"`
		ExplorerTTL string `yaml:"explorer_ttl"`
		MarketTTL   string `yaml:"market_ttl"`
		RateLimit   *int   `yaml:"rate_limit_per_minute"`
		SweepEvery  string `yaml:"sweep_interval"`
	} `yaml:"cache"`
	Execution struct {
		ActionsPath     string `yaml:"actions_path"`
		ActionsLockPath string `yaml:"actions_lock_path"`
		StepTimeout     string `yaml:"step_timeout"`
		MaxBlockAge     string `yaml:"max_block_age"`
	} `yaml:"execution"`
	RPC struct {
		EDUChain string `yaml:"edu_chain"`
		BSC      string `yaml:"bsc"`
		Arbitrum string `yaml:"arbitrum"`
	} `yaml:"rpc"`
	Contracts registry.Contracts `yaml:"contracts"`
	Server    struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}
	if settings.MaxBlockAge <= 0 {
		settings.MaxBlockAge = 60 * time.Second
	}
	if settings.StepTimeout <= 0 {
		settings.StepTimeout = 2 * time.Minute
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		MaxStale:        5 * time.Minute,
		LogLevel:        "warn",
		CacheEnabled:    true,
		CachePath:       cachePath,
		CacheLockPath:   lockPath,
		ActionStorePath: filepath.Join(cacheDir, "actions.db"),
		ActionLockPath:  filepath.Join(cacheDir, "actions.lock"),
		RPCURLs:         map[int64]string{},
		MaxBlockAge:     60 * time.Second,
		StepTimeout:     2 * time.Minute,
		ExplorerTTL:     30 * time.Second,
		MarketTTL:       5 * time.Minute,
		RateLimit:       30,
		SweepEvery:      time.Minute,
		ServerAddr:      "127.0.0.1:8787",
	}, nil
}

// RPCURL returns the configured override for chainID or the registry default.
func (s Settings) RPCURL(chainID int64) (string, error) {
	return registry.ResolveRPCURL(s.RPCURLs[chainID], chainID)
}

// ApplyLogLevel sets the process-wide zerolog level.
func ApplyLogLevel(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		return nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv("EDUFI_CONFIG"); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDir, "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, appDir)
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = cfg.LogLevel
	}
	if cfg.Tokens != "" {
		settings.TokensPath = cfg.Tokens
	}
	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Timeout, "timeout", &settings.Timeout},
		{cfg.Cache.MaxStale, "cache.max_stale", &settings.MaxStale},
		{cfg.Cache.ExplorerTTL, "cache.explorer_ttl", &settings.ExplorerTTL},
		{cfg.Cache.MarketTTL, "cache.market_ttl", &settings.MarketTTL},
		{cfg.Cache.SweepEvery, "cache.sweep_interval", &settings.SweepEvery},
		{cfg.Execution.StepTimeout, "execution.step_timeout", &settings.StepTimeout},
		{cfg.Execution.MaxBlockAge, "execution.max_block_age", &settings.MaxBlockAge},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.RateLimit != nil {
		settings.RateLimit = *cfg.Cache.RateLimit
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}
	setRPC(settings, 41923, cfg.RPC.EDUChain)
	setRPC(settings, 56, cfg.RPC.BSC)
	setRPC(settings, 42161, cfg.RPC.Arbitrum)
	mergeContracts(&settings.Contracts, cfg.Contracts)
	if cfg.Server.Addr != "" {
		settings.ServerAddr = cfg.Server.Addr
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		settings.CORSOrigins = cfg.Server.CORSOrigins
	}

	return nil
}

func setRPC(settings *Settings, chainID int64, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	if settings.RPCURLs == nil {
		settings.RPCURLs = map[int64]string{}
	}
	settings.RPCURLs[chainID] = strings.TrimSpace(value)
}

func mergeContracts(dst *registry.Contracts, src registry.Contracts) {
	pairs := []struct {
		dst *string
		src string
	}{
		{&dst.SailfishFactory, src.SailfishFactory},
		{&dst.SailfishQuoter, src.SailfishQuoter},
		{&dst.SailfishRouter, src.SailfishRouter},
		{&dst.BSCEDUToken, src.BSCEDUToken},
		{&dst.BSCOFTAdapter, src.BSCOFTAdapter},
		{&dst.ArbitrumEDUToken, src.ArbitrumEDUToken},
		{&dst.ArbitrumInbox, src.ArbitrumInbox},
	}
	for _, p := range pairs {
		if strings.TrimSpace(p.src) != "" {
			*p.dst = strings.TrimSpace(p.src)
		}
	}
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("EDUFI_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("EDUFI_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Strict = b
		}
	}
	if v := os.Getenv("EDUFI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("EDUFI_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("EDUFI_MAX_STALE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.MaxStale = d
		}
	}
	if v := os.Getenv("EDUFI_NO_STALE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.NoStale = b
		}
	}
	if v := os.Getenv("EDUFI_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("EDUFI_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("EDUFI_TOKENS"); v != "" {
		settings.TokensPath = v
	}
	if v := os.Getenv("EDUFI_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("EDUFI_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("EDUFI_ACTIONS_PATH"); v != "" {
		settings.ActionStorePath = v
	}
	if v := os.Getenv("EDUFI_ACTIONS_LOCK_PATH"); v != "" {
		settings.ActionLockPath = v
	}
	if v := os.Getenv("EDUFI_MAX_BLOCK_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.MaxBlockAge = d
		}
	}
	if v := os.Getenv("EDUFI_STEP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.StepTimeout = d
		}
	}
	setRPC(settings, 41923, os.Getenv("EDUFI_EDU_RPC_URL"))
	setRPC(settings, 56, os.Getenv("EDUFI_BSC_RPC_URL"))
	setRPC(settings, 42161, os.Getenv("EDUFI_ARBITRUM_RPC_URL"))
	mergeContracts(&settings.Contracts, registry.Contracts{
		SailfishFactory:  os.Getenv("EDUFI_SAILFISH_FACTORY"),
		SailfishQuoter:   os.Getenv("EDUFI_SAILFISH_QUOTER"),
		SailfishRouter:   os.Getenv("EDUFI_SAILFISH_ROUTER"),
		BSCEDUToken:      os.Getenv("EDUFI_BSC_EDU_TOKEN"),
		BSCOFTAdapter:    os.Getenv("EDUFI_BSC_OFT_ADAPTER"),
		ArbitrumEDUToken: os.Getenv("EDUFI_ARBITRUM_EDU_TOKEN"),
		ArbitrumInbox:    os.Getenv("EDUFI_ARBITRUM_INBOX"),
	})
	if v := os.Getenv("EDUFI_SERVER_ADDR"); v != "" {
		settings.ServerAddr = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitCSV(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitCSV(flags.EnableCommands)
	}

	if flags.Strict {
		settings.Strict = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.MaxStale != "" {
		d, err := time.ParseDuration(flags.MaxStale)
		if err != nil {
			return fmt.Errorf("parse --max-stale: %w", err)
		}
		settings.MaxStale = d
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel)); err != nil {
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error")
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
