package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

// ErrorBody is the structured failure record; Kind is the stable error name.
type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
	Signer    *SignerMeta      `json:"signer,omitempty"`
}

// SignerMeta identifies the EOA behind an executed action.
type SignerMeta struct {
	Address     string `json:"address"`
	KeySource   string `json:"key_source,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type ProviderInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	RequiresKey  bool     `json:"requires_key"`
	Capabilities []string `json:"capabilities"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type PoolInfo struct {
	Address      string `json:"address"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	FeeTier      uint32 `json:"fee_tier"`
	Liquidity    string `json:"liquidity"`
	SqrtPriceX96 string `json:"sqrt_price_x96,omitempty"`
}

type RouteSummary struct {
	Kind         string     `json:"kind"`
	Path         []string   `json:"path"`
	Intermediary string     `json:"intermediary,omitempty"`
	TotalFee     uint32     `json:"total_fee"`
	Pools        []PoolInfo `json:"pools"`
}

type SwapQuote struct {
	Provider       string          `json:"provider"`
	ChainID        string          `json:"chain_id"`
	FromSymbol     string          `json:"from_symbol"`
	ToSymbol       string          `json:"to_symbol"`
	TradeType      string          `json:"trade_type"`
	InputAmount    AmountInfo      `json:"input_amount"`
	EstimatedOut   AmountInfo      `json:"estimated_out"`
	ExecutionPrice decimal.Decimal `json:"execution_price"`
	PriceImpactPct decimal.Decimal `json:"price_impact_pct"`
	FeeTiers       []uint32        `json:"fee_tiers"`
	GasEstimate    uint64          `json:"gas_estimate"`
	BlockNumber    uint64          `json:"block_number"`
	Route          RouteSummary    `json:"route"`
	FetchedAt      string          `json:"fetched_at"`
}

type BridgeEstimate struct {
	Direction          string     `json:"direction"`
	SourceChainID      string     `json:"source_chain_id"`
	DestinationChainID string     `json:"destination_chain_id"`
	Amount             AmountInfo `json:"amount"`
	Fee                AmountInfo `json:"fee"`
	FeeSymbol          string     `json:"fee_symbol"`
	SettlementEstimate string     `json:"settlement_estimate"`
}

type TokenPrice struct {
	Symbol    string          `json:"symbol"`
	Address   string          `json:"address"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	Source    string          `json:"source"`
	FetchedAt string          `json:"fetched_at"`
}

type PoolMarket struct {
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	ReserveUSD   decimal.Decimal `json:"reserve_usd"`
	Volume24hUSD decimal.Decimal `json:"volume_24h_usd"`
}

type MarketStats struct {
	Network        string          `json:"network"`
	PoolCount      int             `json:"pool_count"`
	TotalReserve   decimal.Decimal `json:"total_reserve_usd"`
	TotalVolume24h decimal.Decimal `json:"total_volume_24h_usd"`
	TopPools       []PoolMarket    `json:"top_pools"`
	FetchedAt      string          `json:"fetched_at"`
}

type NetworkStats struct {
	ChainID        string          `json:"chain_id"`
	TotalSupply    string          `json:"total_supply,omitempty"`
	NativePriceUSD decimal.Decimal `json:"native_price_usd"`
	BlockNumber    uint64          `json:"block_number"`
	GasPriceGwei   decimal.Decimal `json:"gas_price_gwei"`
	Market         *MarketStats    `json:"market,omitempty"`
	FetchedAt      string          `json:"fetched_at"`
}

type TokenHolding struct {
	Symbol   string     `json:"symbol"`
	Address  string     `json:"address"`
	Balance  AmountInfo `json:"balance"`
	Verified bool       `json:"in_registry"`
}

type AccountBalance struct {
	ChainID string         `json:"chain_id"`
	Address string         `json:"address"`
	Native  AmountInfo     `json:"native"`
	Tokens  []TokenHolding `json:"tokens"`
}

// ExecutionResult is the plan-result record returned after a swap, bridge or transfer.
type ExecutionResult struct {
	ActionID        string          `json:"action_id"`
	Status          string          `json:"status"`
	AmountIn        string          `json:"amount_in"`
	AmountOut       string          `json:"amount_out,omitempty"`
	ExecutionPrice  decimal.Decimal `json:"execution_price"`
	PriceImpact     decimal.Decimal `json:"price_impact"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	ExplorerURL     string          `json:"explorer_url,omitempty"`
	Settlement      string          `json:"settlement_estimate,omitempty"`
}
