package id

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

type TokenType string

const (
	TokenNative TokenType = "native"
	TokenERC20  TokenType = "erc20"
)

// Token is an EDU Chain asset. Native tokens have no address.
type Token struct {
	Symbol       string    `toml:"symbol" json:"symbol"`
	Address      string    `toml:"address" json:"address,omitempty"`
	Decimals     int       `toml:"decimals" json:"decimals"`
	Type         TokenType `toml:"type" json:"type"`
	CoingeckoID  string    `toml:"coingecko_id" json:"coingecko_id,omitempty"`
	Intermediary bool      `toml:"intermediary" json:"intermediary,omitempty"`
	WrapsNative  bool      `toml:"wraps_native" json:"wraps_native,omitempty"`
}

func (t Token) IsNative() bool { return t.Type == TokenNative }

// EVMAddress returns the contract address, or the zero address for the native token.
func (t Token) EVMAddress() common.Address {
	if t.IsNative() {
		return common.Address{}
	}
	return common.HexToAddress(t.Address)
}

var defaultTokens = []Token{
	{Symbol: "EDU", Decimals: 18, Type: TokenNative, CoingeckoID: "edu-coin"},
	{Symbol: "USDC", Address: "0x836d275563bAb5E93Fd6Ca62a95dB7065Da94342", Decimals: 6, Type: TokenERC20, CoingeckoID: "usd-coin"},
	{Symbol: "USDT", Address: "0x7277cc818e3f3ffbb169c6da9cc77fc2d2a34895", Decimals: 6, Type: TokenERC20, CoingeckoID: "tether"},
	{Symbol: "WEDU", Address: "0xd02E8c38a8E3db71f8b2ae30B8186d7874934e12", Decimals: 18, Type: TokenERC20, CoingeckoID: "edu-coin", Intermediary: true, WrapsNative: true},
	{Symbol: "ESD", Address: "0xd282dE0c2bd41556c887f319A5C19fF441dCdf90", Decimals: 18, Type: TokenERC20, CoingeckoID: "edu-stabledollar"},
	{Symbol: "WISER", Address: "0xF9E03759752BE9fAA70a5556f103dbD385a2471C", Decimals: 18, Type: TokenERC20},
}

// Registry is the immutable symbol and address index used by routing and planning.
type Registry struct {
	tokens    []Token
	bySymbol  map[string]int
	byAddress map[string]int
	wrapped   int
}

type registryFile struct {
	Tokens []Token `toml:"tokens"`
}

// DefaultRegistry returns the built-in EDU Chain token table.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(defaultTokens)
	if err != nil {
		panic(err)
	}
	return reg
}

// NewRegistry validates tokens and builds the lookup indexes.
func NewRegistry(tokens []Token) (*Registry, error) {
	reg := &Registry{
		tokens:    make([]Token, 0, len(tokens)),
		bySymbol:  make(map[string]int, len(tokens)),
		byAddress: make(map[string]int, len(tokens)),
		wrapped:   -1,
	}
	natives := 0
	for _, t := range tokens {
		t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
		if t.Symbol == "" {
			return nil, clierr.New(clierr.CodeUsage, "token symbol is required")
		}
		if _, dup := reg.bySymbol[t.Symbol]; dup {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("duplicate token symbol %s", t.Symbol))
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("token %s has invalid decimals %d", t.Symbol, t.Decimals))
		}
		if t.Type == "" {
			t.Type = TokenERC20
		}
		switch t.Type {
		case TokenNative:
			if strings.TrimSpace(t.Address) != "" {
				return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("native token %s must not have an address", t.Symbol))
			}
			natives++
			if natives > 1 {
				return nil, clierr.New(clierr.CodeUsage, "registry declares more than one native token")
			}
		case TokenERC20:
			if !IsEVMAddress(t.Address) {
				return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("token %s has invalid address %q", t.Symbol, t.Address))
			}
			key := normalizeAddress(t.Address)
			if _, dup := reg.byAddress[key]; dup {
				return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("duplicate token address %s", t.Address))
			}
			reg.byAddress[key] = len(reg.tokens)
		default:
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("token %s has unknown type %q", t.Symbol, t.Type))
		}
		if t.WrapsNative {
			reg.wrapped = len(reg.tokens)
		}
		reg.bySymbol[t.Symbol] = len(reg.tokens)
		reg.tokens = append(reg.tokens, t)
	}
	return reg, nil
}

// LoadRegistry merges a TOML token file over the defaults. Entries with a known
// symbol replace the default entry; new symbols are appended.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRegistry(), nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "read token registry", err)
	}
	var file registryFile
	if err := toml.Unmarshal(buf, &file); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse token registry", err)
	}
	merged := append([]Token(nil), defaultTokens...)
	for _, override := range file.Tokens {
		replaced := false
		for i := range merged {
			if strings.EqualFold(merged[i].Symbol, override.Symbol) {
				merged[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, override)
		}
	}
	return NewRegistry(merged)
}

func (r *Registry) Tokens() []Token {
	return append([]Token(nil), r.tokens...)
}

func (r *Registry) BySymbol(symbol string) (Token, error) {
	idx, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, clierr.New(clierr.CodeInvalidToken, fmt.Sprintf("unknown token symbol %q", symbol))
	}
	return r.tokens[idx], nil
}

func (r *Registry) ByAddress(address string) (Token, error) {
	idx, ok := r.byAddress[normalizeAddress(address)]
	if !ok {
		return Token{}, clierr.New(clierr.CodeInvalidToken, fmt.Sprintf("token %s is not in the registry", address))
	}
	return r.tokens[idx], nil
}

// Resolve accepts either a symbol or a contract address.
func (r *Registry) Resolve(input string) (Token, error) {
	if IsEVMAddress(input) {
		return r.ByAddress(input)
	}
	return r.BySymbol(input)
}

// Native returns the native gas token, if declared.
func (r *Registry) Native() (Token, bool) {
	for _, t := range r.tokens {
		if t.IsNative() {
			return t, true
		}
	}
	return Token{}, false
}

// Wrapped returns the ERC20 that wraps the native token.
func (r *Registry) Wrapped() (Token, bool) {
	if r.wrapped < 0 {
		return Token{}, false
	}
	return r.tokens[r.wrapped], true
}

// RoutingToken maps the native token to its wrapped counterpart; pools only hold ERC20s.
func (r *Registry) RoutingToken(t Token) (Token, error) {
	if !t.IsNative() {
		return t, nil
	}
	wrapped, ok := r.Wrapped()
	if !ok {
		return Token{}, clierr.New(clierr.CodeInvalidToken, fmt.Sprintf("no wrapped token configured for native %s", t.Symbol))
	}
	return wrapped, nil
}

// Intermediaries lists the multi-hop candidates, skipping any excluded addresses.
func (r *Registry) Intermediaries(exclude ...common.Address) []Token {
	out := make([]Token, 0, 2)
	for _, t := range r.tokens {
		if !t.Intermediary || t.IsNative() {
			continue
		}
		addr := t.EVMAddress()
		skip := false
		for _, ex := range exclude {
			if ex == addr {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, t)
		}
	}
	return out
}
