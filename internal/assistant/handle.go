package assistant

import (
	"context"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/intent"
	"github.com/ggonzalez94/edufi-cli/internal/out"
)

// Reply is the answer to one chat intent. Action is set when a plan was
// persisted; Data carries the read-only answer otherwise.
type Reply struct {
	Intent  intent.Intent     `json:"intent"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Action  *execution.Action `json:"action,omitempty"`
}

type HandleOptions struct {
	// Sender enables planning. Without it swaps are only quoted and bridges
	// only estimated.
	Sender      string
	SlippageBps int64
	Simulate    bool
}

// Ask parses text and handles the resulting intent.
func (s *Service) Ask(ctx context.Context, text string, opts HandleOptions) (Reply, error) {
	in, err := intent.Parse(text)
	if err != nil {
		return Reply{}, err
	}
	return s.Handle(ctx, in, opts)
}

func (s *Service) Handle(ctx context.Context, in intent.Intent, opts HandleOptions) (Reply, error) {
	reply := Reply{Intent: in}
	sender := strings.TrimSpace(opts.Sender)

	switch in.Action {
	case intent.ActionQuote:
		q, err := s.Quote(ctx, QuoteRequest{From: in.FromSymbol, To: in.ToSymbol, Amount: in.AmountIn})
		if err != nil {
			return Reply{}, err
		}
		reply.Data, reply.Message = q, out.FormatQuote(q)

	case intent.ActionSwap:
		if sender == "" {
			q, err := s.Quote(ctx, QuoteRequest{From: in.FromSymbol, To: in.ToSymbol, Amount: in.AmountIn})
			if err != nil {
				return Reply{}, err
			}
			reply.Data = q
			reply.Message = out.FormatQuote(q) + " | quote only, pass a sender address to plan the swap"
			break
		}
		action, q, err := s.PlanSwap(ctx, SwapRequest{
			From:        in.FromSymbol,
			To:          in.ToSymbol,
			Amount:      in.AmountIn,
			Sender:      sender,
			Recipient:   in.Recipient,
			SlippageBps: opts.SlippageBps,
			Simulate:    opts.Simulate,
		})
		if err != nil {
			return Reply{}, err
		}
		reply.Data, reply.Action = q, &action
		reply.Message = fmt.Sprintf("%s | planned %s with %d step(s)", out.FormatQuote(q), action.ActionID, len(action.Steps))

	case intent.ActionBridge:
		if sender == "" {
			est, err := s.EstimateBridge(ctx, in.Direction, in.AmountIn, in.Recipient)
			if err != nil {
				return Reply{}, err
			}
			reply.Data = est
			reply.Message = fmt.Sprintf("Bridge %s EDU %s: fee %s %s, settles in %s | estimate only, pass a sender address to plan it",
				est.Amount.AmountDecimal, est.Direction, est.Fee.AmountDecimal, est.FeeSymbol, est.SettlementEstimate)
			break
		}
		action, err := s.PlanBridge(ctx, BridgeRequest{
			Direction: in.Direction,
			Amount:    in.AmountIn,
			Sender:    sender,
			Recipient: in.Recipient,
			Simulate:  opts.Simulate,
		})
		if err != nil {
			return Reply{}, err
		}
		reply.Action = &action
		reply.Message = fmt.Sprintf("Bridge %s EDU %s planned as %s with %d step(s), settles in %s",
			in.AmountIn, in.Direction, action.ActionID, len(action.Steps), metaString(action.Metadata, "settlement_estimate"))

	case intent.ActionTransfer:
		if sender == "" {
			return Reply{}, clierr.New(clierr.CodeUsage, "a transfer needs a sender address")
		}
		action, err := s.PlanTransfer(ctx, TransferRequest{
			Token:     in.FromSymbol,
			Amount:    in.AmountIn,
			Sender:    sender,
			Recipient: in.Recipient,
			Simulate:  opts.Simulate,
		})
		if err != nil {
			return Reply{}, err
		}
		reply.Action = &action
		reply.Message = fmt.Sprintf("Transfer %s %s to %s planned as %s", in.AmountIn, in.FromSymbol, in.Recipient, action.ActionID)

	case intent.ActionPrice:
		p, err := s.Price(ctx, in.FromSymbol)
		if err != nil {
			return Reply{}, err
		}
		reply.Data = p
		reply.Message = fmt.Sprintf("%s is %s USD", p.Symbol, p.PriceUSD.String())

	case intent.ActionNetwork:
		st, err := s.NetworkStatus(ctx)
		if err != nil {
			return Reply{}, err
		}
		reply.Data = st
		reply.Message = fmt.Sprintf("EDU Chain block %d, gas %s gwei, EDU %s USD", st.BlockNumber, st.GasPriceGwei.String(), st.NativePriceUSD.String())
		if st.Market != nil {
			reply.Message += fmt.Sprintf(", %d pools with %s USD reserves", st.Market.PoolCount, st.Market.TotalReserve.StringFixed(2))
		}

	case intent.ActionBalance:
		bal, err := s.Balance(ctx, in.Address)
		if err != nil {
			return Reply{}, err
		}
		reply.Data = bal
		reply.Message = fmt.Sprintf("%s holds %s EDU and %d token(s)", bal.Address, bal.Native.AmountDecimal, len(bal.Tokens))

	default:
		return Reply{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported intent %q", in.Action))
	}
	return reply, nil
}
