package out

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/model"
)

// QuoteDisplay holds the numeric fields recovered from a formatted quote line.
type QuoteDisplay struct {
	AmountIn       decimal.Decimal
	FromSymbol     string
	AmountOut      decimal.Decimal
	ToSymbol       string
	ExecutionPrice decimal.Decimal
	PriceImpactPct decimal.Decimal
}

var quoteLinePattern = regexp.MustCompile(
	`^Swap ([0-9.]+) ([A-Za-z0-9]+) -> ([0-9.]+) ([A-Za-z0-9]+) \| price ([0-9.]+) [A-Za-z0-9]+/[A-Za-z0-9]+ \| impact ([0-9.]+)%`,
)

// FormatQuote renders a one-line human summary. Amounts are printed at full
// token precision so the line can be parsed back without loss.
func FormatQuote(q model.SwapQuote) string {
	fees := make([]string, 0, len(q.FeeTiers))
	for _, f := range q.FeeTiers {
		fees = append(fees, decimal.New(int64(f), -4).String()+"%")
	}
	line := fmt.Sprintf(
		"Swap %s %s -> %s %s | price %s %s/%s | impact %s%%",
		q.InputAmount.AmountDecimal, q.FromSymbol,
		q.EstimatedOut.AmountDecimal, q.ToSymbol,
		q.ExecutionPrice.StringFixed(8), q.ToSymbol, q.FromSymbol,
		q.PriceImpactPct.StringFixed(4),
	)
	if len(fees) > 0 {
		line += " | fee " + strings.Join(fees, "+")
	}
	if len(q.Route.Path) > 0 {
		line += " | route " + strings.Join(q.Route.Path, ">")
	}
	return line
}

// ParseQuoteDisplay reverses FormatQuote for its numeric fields.
func ParseQuoteDisplay(line string) (QuoteDisplay, error) {
	m := quoteLinePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return QuoteDisplay{}, clierr.New(clierr.CodeUsage, "unrecognised quote line")
	}
	var (
		d   QuoteDisplay
		err error
	)
	if d.AmountIn, err = decimal.NewFromString(m[1]); err != nil {
		return QuoteDisplay{}, clierr.Wrap(clierr.CodeUsage, "parse amount in", err)
	}
	d.FromSymbol = m[2]
	if d.AmountOut, err = decimal.NewFromString(m[3]); err != nil {
		return QuoteDisplay{}, clierr.Wrap(clierr.CodeUsage, "parse amount out", err)
	}
	d.ToSymbol = m[4]
	if d.ExecutionPrice, err = decimal.NewFromString(m[5]); err != nil {
		return QuoteDisplay{}, clierr.Wrap(clierr.CodeUsage, "parse price", err)
	}
	if d.PriceImpactPct, err = decimal.NewFromString(m[6]); err != nil {
		return QuoteDisplay{}, clierr.Wrap(clierr.CodeUsage, "parse impact", err)
	}
	return d, nil
}
