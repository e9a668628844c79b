package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

const (
	EDUChainID      int64 = 41923
	BSCChainID      int64 = 56
	ArbitrumChainID int64 = 42161
)

type Chain struct {
	Name        string
	Slug        string
	CAIP2       string
	EVMChainID  int64
	NativeAsset string
}

var (
	EDUChain = Chain{Name: "EDU Chain", Slug: "edu-chain", CAIP2: "eip155:41923", EVMChainID: EDUChainID, NativeAsset: "EDU"}
	BSC      = Chain{Name: "BNB Smart Chain", Slug: "bsc", CAIP2: "eip155:56", EVMChainID: BSCChainID, NativeAsset: "BNB"}
	Arbitrum = Chain{Name: "Arbitrum One", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: ArbitrumChainID, NativeAsset: "ETH"}
)

var chainBySlug = map[string]Chain{
	"edu-chain": EDUChain,
	"educhain":  EDUChain,
	"edu":       EDUChain,
	"bsc":       BSC,
	"bnb":       BSC,
	"binance":   BSC,
	"arbitrum":  Arbitrum,
	"arb":       Arbitrum,
}

var chainByID = map[int64]Chain{
	EDUChainID:      EDUChain,
	BSCChainID:      BSC,
	ArbitrumChainID: Arbitrum,
}

// ParseChain accepts a slug, a numeric chain id or a CAIP-2 identifier.
func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if known, ok := chainByID[id]; ok {
			return known, nil
		}
		return Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported chain id: %d", id))
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil {
		if chain, ok := chainByID[id]; ok {
			return chain, nil
		}
		return Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported chain id: %d", id))
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// ChainByID returns the chain for an EVM chain id.
func ChainByID(chainID int64) (Chain, bool) {
	chain, ok := chainByID[chainID]
	return chain, ok
}

// IsEVMAddress reports whether s is a 0x-prefixed 20 byte hex address.
func IsEVMAddress(s string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(s))
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
