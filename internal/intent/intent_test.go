package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

func TestParseGrammar(t *testing.T) {
	const to = "0x00000000000000000000000000000000000000aa"
	cases := []struct {
		text string
		want Intent
	}{
		{"swap 1 EDU for USDC", Intent{Action: ActionSwap, AmountIn: "1", FromSymbol: "EDU", ToSymbol: "USDC"}},
		{"  Swap 2.5   usdc into esd? ", Intent{Action: ActionSwap, AmountIn: "2.5", FromSymbol: "USDC", ToSymbol: "ESD"}},
		{"swap 1 EDU for USDC to " + to, Intent{Action: ActionSwap, AmountIn: "1", FromSymbol: "EDU", ToSymbol: "USDC", Recipient: to}},
		{"quote 10 USDC to ESD", Intent{Action: ActionQuote, AmountIn: "10", FromSymbol: "USDC", ToSymbol: "ESD"}},
		{"how much is 3 WEDU in USDT", Intent{Action: ActionQuote, AmountIn: "3", FromSymbol: "WEDU", ToSymbol: "USDT"}},
		{"transfer 0.1 EDU from BSC to Arbitrum", Intent{Action: ActionBridge, AmountIn: "0.1", FromSymbol: "EDU", ToSymbol: "EDU", Direction: "bsc-arb"}},
		{"transfer 1 EDU from Arbitrum to EDUCHAIN", Intent{Action: ActionBridge, AmountIn: "1", FromSymbol: "EDU", ToSymbol: "EDU", Direction: "arb-edu"}},
		{"bridge 4 edu from arb to edu chain", Intent{Action: ActionBridge, AmountIn: "4", FromSymbol: "EDU", ToSymbol: "EDU", Direction: "arb-edu"}},
		{"send 1 USDC to " + to, Intent{Action: ActionTransfer, AmountIn: "1", FromSymbol: "USDC", Recipient: to}},
		{"send 0.5 EDU to " + to, Intent{Action: ActionTransfer, AmountIn: "0.5", FromSymbol: "EDU", Recipient: to}},
		{"price of EDU", Intent{Action: ActionPrice, FromSymbol: "EDU"}},
		{"What's the price of wiser?", Intent{Action: ActionPrice, FromSymbol: "WISER"}},
		{"network status", Intent{Action: ActionNetwork}},
		{"show me the market analysis on edu", Intent{Action: ActionNetwork}},
		{"balance of " + to, Intent{Action: ActionBalance, Address: to}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.text)
		require.NoError(t, err, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestParseRejectsUnsupportedBridgeLeg(t *testing.T) {
	_, err := Parse("transfer 1 EDU from EDU Chain to BSC")
	assert.True(t, clierr.Is(err, clierr.CodeUnsupported), "got %v", err)

	_, err = Parse("bridge 1 EDU from mars to arbitrum")
	assert.True(t, clierr.Is(err, clierr.CodeUsage), "got %v", err)
}

func TestParseUnknownText(t *testing.T) {
	for _, text := range []string{"", "hello there", "swap lots of EDU", "send 1 USDC to bob", "balance of 0x123"} {
		_, err := Parse(text)
		assert.True(t, clierr.Is(err, clierr.CodeUsage), "%q: got %v", text, err)
	}
}
