// Package intent extracts a structured request from a short chat message.
// It recognises a fixed set of phrasings and is not a general language parser.
package intent

import (
	"fmt"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/id"
)

type Action string

const (
	ActionSwap     Action = "swap"
	ActionQuote    Action = "quote"
	ActionBridge   Action = "bridge"
	ActionTransfer Action = "transfer"
	ActionPrice    Action = "price"
	ActionNetwork  Action = "network"
	ActionBalance  Action = "balance"
)

type Intent struct {
	Action     Action `json:"action"`
	AmountIn   string `json:"amount_in,omitempty"`
	FromSymbol string `json:"from_symbol,omitempty"`
	ToSymbol   string `json:"to_symbol,omitempty"`
	Recipient  string `json:"recipient,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Address    string `json:"address,omitempty"`
}

const (
	amt  = `(\d+(?:\.\d+)?)`
	sym  = `([a-z][a-z0-9.]{0,15})`
	addr = `(0x[0-9a-f]{40})`
	word = `([a-z][a-z0-9-]*)`
)

// Order matters: bridge phrasings share verbs with transfers.
var (
	bridgePattern   = regexp.MustCompile(`^(?:bridge|transfer|move|send)\s+` + amt + `\s+edu\s+from\s+` + word + `(?:\s+chain)?\s+to\s+` + word + `(?:\s+chain)?$`)
	swapPattern     = regexp.MustCompile(`^(?:swap|exchange|trade|convert)\s+` + amt + `\s+` + sym + `\s+(?:for|to|into)\s+` + sym + `(?:\s+(?:to|for)\s+` + addr + `)?$`)
	quotePattern    = regexp.MustCompile(`^(?:quote|get (?:a )?quote for|how much is)\s+` + amt + `\s+` + sym + `\s+(?:for|to|in|into)\s+` + sym + `$`)
	transferPattern = regexp.MustCompile(`^(?:send|transfer|pay)\s+` + amt + `\s+` + sym + `\s+to\s+` + addr + `$`)
	pricePattern    = regexp.MustCompile(`^(?:(?:what(?:'s| is) )?(?:the )?price (?:of|for)|price)\s+` + sym + `$`)
	balancePattern  = regexp.MustCompile(`^(?:(?:what(?:'s| is) )?(?:the )?balance (?:of|for)|balance)\s+` + addr + `$`)
	networkPattern  = regexp.MustCompile(`^(?:show (?:me )?)?(?:the )?(?:edu )?(?:network|chain) (?:status|stats|statistics)$|^(?:show (?:me )?)?(?:the )?market (?:analysis|stats|overview)(?: on edu)?$`)
	spaces          = regexp.MustCompile(`\s+`)
)

// Parse maps text onto an Intent. Unknown phrasings are a usage error.
func Parse(text string) (Intent, error) {
	norm := normalize(text)
	if norm == "" {
		return Intent{}, clierr.New(clierr.CodeUsage, "empty request")
	}

	if m := bridgePattern.FindStringSubmatch(norm); m != nil {
		dir, err := bridgeDirection(m[2], m[3])
		if err != nil {
			return Intent{}, err
		}
		return Intent{Action: ActionBridge, AmountIn: m[1], FromSymbol: "EDU", ToSymbol: "EDU", Direction: dir}, nil
	}
	if m := swapPattern.FindStringSubmatch(norm); m != nil {
		return Intent{Action: ActionSwap, AmountIn: m[1], FromSymbol: upper(m[2]), ToSymbol: upper(m[3]), Recipient: m[4]}, nil
	}
	if m := quotePattern.FindStringSubmatch(norm); m != nil {
		return Intent{Action: ActionQuote, AmountIn: m[1], FromSymbol: upper(m[2]), ToSymbol: upper(m[3])}, nil
	}
	if m := transferPattern.FindStringSubmatch(norm); m != nil {
		return Intent{Action: ActionTransfer, AmountIn: m[1], FromSymbol: upper(m[2]), Recipient: m[3]}, nil
	}
	if m := pricePattern.FindStringSubmatch(norm); m != nil {
		return Intent{Action: ActionPrice, FromSymbol: upper(m[1])}, nil
	}
	if m := balancePattern.FindStringSubmatch(norm); m != nil {
		return Intent{Action: ActionBalance, Address: m[1]}, nil
	}
	if networkPattern.MatchString(norm) {
		return Intent{Action: ActionNetwork}, nil
	}
	return Intent{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("could not understand %q; try \"swap 1 EDU for USDC\" or \"price of EDU\"", strings.TrimSpace(text)))
}

// bridgeDirection only admits the two supported legs.
func bridgeDirection(from, to string) (string, error) {
	src, err := id.ParseChain(from)
	if err != nil {
		return "", err
	}
	dst, err := id.ParseChain(to)
	if err != nil {
		return "", err
	}
	switch {
	case src.EVMChainID == id.BSCChainID && dst.EVMChainID == id.ArbitrumChainID:
		return "bsc-arb", nil
	case src.EVMChainID == id.ArbitrumChainID && dst.EVMChainID == id.EDUChainID:
		return "arb-edu", nil
	default:
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("bridging EDU from %s to %s is not supported; use BSC to Arbitrum or Arbitrum to EDU Chain", src.Name, dst.Name))
	}
}

func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, "?!. ")
	s = strings.TrimPrefix(s, "please ")
	s = strings.TrimPrefix(s, "can you ")
	s = strings.TrimPrefix(s, "could you ")
	return spaces.ReplaceAllString(strings.TrimSpace(s), " ")
}

func upper(s string) string { return strings.ToUpper(s) }
