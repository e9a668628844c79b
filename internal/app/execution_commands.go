package app

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/edufi-cli/internal/assistant"
	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/model"
)

// swapPlan is what swap plan prints: the persisted action and the quote it
// was built from.
type swapPlan struct {
	Action execution.Action `json:"action"`
	Quote  model.SwapQuote  `json:"quote"`
}

// Planning reads balances, allowances and quotes, so it gets more room than a
// single provider request.
func (s *runtimeState) planTimeout() time.Duration {
	return 3 * s.settings.Timeout
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	root := &cobra.Command{Use: "swap", Short: "SailFish swap planning and execution"}

	type swapArgs struct {
		from, to, amount, sender, recipient string
		slippageBps                         int64
	}
	bind := func(cmd *cobra.Command, a *swapArgs) {
		cmd.Flags().StringVar(&a.from, "from", "", "Input token (symbol or address)")
		cmd.Flags().StringVar(&a.to, "to", "", "Output token (symbol or address)")
		cmd.Flags().StringVar(&a.amount, "amount", "", "Input amount in decimal units")
		cmd.Flags().StringVar(&a.sender, "from-address", "", "Sender EOA address")
		cmd.Flags().StringVar(&a.recipient, "recipient", "", "Recipient address (defaults to sender)")
		cmd.Flags().Int64Var(&a.slippageBps, "slippage-bps", 0, "Max slippage in basis points (0 uses 50 direct, 100 multihop)")
		_ = cmd.MarkFlagRequired("from")
		_ = cmd.MarkFlagRequired("to")
		_ = cmd.MarkFlagRequired("amount")
	}
	request := func(a swapArgs, sender string, simulate bool) assistant.SwapRequest {
		return assistant.SwapRequest{
			From:        a.from,
			To:          a.to,
			Amount:      a.amount,
			Sender:      sender,
			Recipient:   a.recipient,
			SlippageBps: a.slippageBps,
			Simulate:    simulate,
		}
	}

	var planArgs swapArgs
	var planSimulate bool
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and persist a swap action plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runDirect(trimRootPath(cmd.CommandPath()), "sailfish", s.planTimeout(), func(ctx context.Context) (any, error) {
				action, quote, err := s.svc.PlanSwap(ctx, request(planArgs, planArgs.sender, planSimulate))
				if err != nil {
					return nil, err
				}
				return swapPlan{Action: action, Quote: quote}, nil
			})
		},
	}
	bind(planCmd, &planArgs)
	planCmd.Flags().BoolVar(&planSimulate, "simulate", true, "Include simulation checks during execution")
	_ = planCmd.MarkFlagRequired("from-address")

	var runArgs swapArgs
	var runExec executionFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and execute a swap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := trimRootPath(cmd.CommandPath())
			if err := runExec.requireYes(path); err != nil {
				return err
			}
			txSigner, err := newExecutionSigner(runExec.keySource, runExec.confirmAddress)
			if err != nil {
				return err
			}
			sender, err := senderFor(runArgs.sender, txSigner)
			if err != nil {
				return err
			}
			opts, err := s.executeOptions(&runExec)
			if err != nil {
				return err
			}
			planCtx, cancel := context.WithTimeout(context.Background(), s.planTimeout())
			action, _, err := s.svc.PlanSwap(planCtx, request(runArgs, sender, runExec.simulate))
			cancel()
			if err != nil {
				return err
			}
			return s.executeAction(path, &action, txSigner, opts)
		},
	}
	bind(runCmd, &runArgs)
	runExec.register(runCmd)

	root.AddCommand(planCmd, runCmd)
	return root
}

func (s *runtimeState) newBridgeCommand() *cobra.Command {
	root := &cobra.Command{Use: "bridge", Short: "EDU bridging between BNB Chain, Arbitrum and EDU Chain"}

	type bridgeArgs struct {
		direction, amount, sender, recipient string
	}
	bind := func(cmd *cobra.Command, a *bridgeArgs) {
		cmd.Flags().StringVar(&a.direction, "direction", "", "Bridge direction (bsc-arb|arb-edu)")
		cmd.Flags().StringVar(&a.amount, "amount", "", "EDU amount in decimal units")
		cmd.Flags().StringVar(&a.sender, "from-address", "", "Sender EOA address")
		cmd.Flags().StringVar(&a.recipient, "recipient", "", "Recipient address (defaults to sender)")
		_ = cmd.MarkFlagRequired("direction")
		_ = cmd.MarkFlagRequired("amount")
	}

	var estArgs bridgeArgs
	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the bridge fee and settlement time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runDirect(trimRootPath(cmd.CommandPath()), "edubridge", 0, func(ctx context.Context) (any, error) {
				return s.svc.EstimateBridge(ctx, estArgs.direction, estArgs.amount, estArgs.recipient)
			})
		},
	}
	estimateCmd.Flags().StringVar(&estArgs.direction, "direction", "", "Bridge direction (bsc-arb|arb-edu)")
	estimateCmd.Flags().StringVar(&estArgs.amount, "amount", "", "EDU amount in decimal units")
	estimateCmd.Flags().StringVar(&estArgs.recipient, "recipient", "", "Destination recipient, used by bsc-arb fee quotes")
	_ = estimateCmd.MarkFlagRequired("direction")
	_ = estimateCmd.MarkFlagRequired("amount")

	var planArgs bridgeArgs
	var planSimulate bool
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and persist a bridge action plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runDirect(trimRootPath(cmd.CommandPath()), "edubridge", s.planTimeout(), func(ctx context.Context) (any, error) {
				return s.svc.PlanBridge(ctx, assistant.BridgeRequest{
					Direction: planArgs.direction,
					Amount:    planArgs.amount,
					Sender:    planArgs.sender,
					Recipient: planArgs.recipient,
					Simulate:  planSimulate,
				})
			})
		},
	}
	bind(planCmd, &planArgs)
	planCmd.Flags().BoolVar(&planSimulate, "simulate", true, "Include simulation checks during execution")
	_ = planCmd.MarkFlagRequired("from-address")

	var runArgs bridgeArgs
	var runExec executionFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and execute a bridge transfer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := trimRootPath(cmd.CommandPath())
			if err := runExec.requireYes(path); err != nil {
				return err
			}
			txSigner, err := newExecutionSigner(runExec.keySource, runExec.confirmAddress)
			if err != nil {
				return err
			}
			sender, err := senderFor(runArgs.sender, txSigner)
			if err != nil {
				return err
			}
			opts, err := s.executeOptions(&runExec)
			if err != nil {
				return err
			}
			planCtx, cancel := context.WithTimeout(context.Background(), s.planTimeout())
			action, err := s.svc.PlanBridge(planCtx, assistant.BridgeRequest{
				Direction: runArgs.direction,
				Amount:    runArgs.amount,
				Sender:    sender,
				Recipient: runArgs.recipient,
				Simulate:  runExec.simulate,
			})
			cancel()
			if err != nil {
				return err
			}
			return s.executeAction(path, &action, txSigner, opts)
		},
	}
	bind(runCmd, &runArgs)
	runExec.register(runCmd)

	root.AddCommand(estimateCmd, planCmd, runCmd)
	return root
}

func (s *runtimeState) newTransferCommand() *cobra.Command {
	root := &cobra.Command{Use: "transfer", Short: "Native EDU and ERC-20 transfers on EDU Chain"}

	type transferArgs struct {
		token, amount, sender, recipient string
	}
	bind := func(cmd *cobra.Command, a *transferArgs) {
		cmd.Flags().StringVar(&a.token, "token", "EDU", "Token symbol or address")
		cmd.Flags().StringVar(&a.amount, "amount", "", "Amount in decimal units")
		cmd.Flags().StringVar(&a.sender, "from-address", "", "Sender EOA address")
		cmd.Flags().StringVar(&a.recipient, "recipient", "", "Recipient address")
		_ = cmd.MarkFlagRequired("amount")
		_ = cmd.MarkFlagRequired("recipient")
	}

	var planArgs transferArgs
	var planSimulate bool
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and persist a transfer action plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runDirect(trimRootPath(cmd.CommandPath()), "", s.planTimeout(), func(ctx context.Context) (any, error) {
				return s.svc.PlanTransfer(ctx, assistant.TransferRequest{
					Token:     planArgs.token,
					Amount:    planArgs.amount,
					Sender:    planArgs.sender,
					Recipient: planArgs.recipient,
					Simulate:  planSimulate,
				})
			})
		},
	}
	bind(planCmd, &planArgs)
	planCmd.Flags().BoolVar(&planSimulate, "simulate", true, "Include simulation checks during execution")
	_ = planCmd.MarkFlagRequired("from-address")

	var runArgs transferArgs
	var runExec executionFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and execute a transfer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := trimRootPath(cmd.CommandPath())
			if err := runExec.requireYes(path); err != nil {
				return err
			}
			txSigner, err := newExecutionSigner(runExec.keySource, runExec.confirmAddress)
			if err != nil {
				return err
			}
			sender, err := senderFor(runArgs.sender, txSigner)
			if err != nil {
				return err
			}
			opts, err := s.executeOptions(&runExec)
			if err != nil {
				return err
			}
			planCtx, cancel := context.WithTimeout(context.Background(), s.planTimeout())
			action, err := s.svc.PlanTransfer(planCtx, assistant.TransferRequest{
				Token:     runArgs.token,
				Amount:    runArgs.amount,
				Sender:    sender,
				Recipient: runArgs.recipient,
				Simulate:  runExec.simulate,
			})
			cancel()
			if err != nil {
				return err
			}
			return s.executeAction(path, &action, txSigner, opts)
		},
	}
	bind(runCmd, &runArgs)
	runExec.register(runCmd)

	root.AddCommand(planCmd, runCmd)
	return root
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Inspect and resume persisted actions"}

	var status, intentType string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted actions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := s.svc.Actions(execution.ListQuery{
				Status:     strings.ToLower(strings.TrimSpace(status)),
				IntentType: strings.ToLower(strings.TrimSpace(intentType)),
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil, false)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status (planned|running|completed|failed)")
	listCmd.Flags().StringVar(&intentType, "intent", "", "Filter by intent (swap|bridge|transfer)")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum actions to return")

	var showID, showPlanID string
	var showResult bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show one persisted action",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actionID, err := resolveActionID(showID, showPlanID)
			if err != nil {
				return err
			}
			action, err := s.svc.Action(actionID)
			if err != nil {
				return err
			}
			var data any = action
			if showResult {
				data = s.svc.Result(action)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil, false)
		},
	}
	showCmd.Flags().StringVar(&showID, "action-id", "", "Action identifier")
	showCmd.Flags().StringVar(&showPlanID, "plan-id", "", "Alias for --action-id")
	showCmd.Flags().BoolVar(&showResult, "result", false, "Print the execution result record instead of the raw action")

	var submitID, submitPlanID string
	var submitExec executionFlags
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Execute or resume a persisted action",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := trimRootPath(cmd.CommandPath())
			if err := submitExec.requireYes(path); err != nil {
				return err
			}
			actionID, err := resolveActionID(submitID, submitPlanID)
			if err != nil {
				return err
			}
			action, err := s.svc.Action(actionID)
			if err != nil {
				return err
			}
			if action.Status == execution.ActionStatusCompleted {
				return clierr.New(clierr.CodeUsage, "action "+action.ActionID+" is already completed")
			}
			txSigner, err := newExecutionSigner(submitExec.keySource, submitExec.confirmAddress)
			if err != nil {
				return err
			}
			opts, err := s.executeOptions(&submitExec)
			if err != nil {
				return err
			}
			return s.executeAction(path, &action, txSigner, opts)
		},
	}
	submitCmd.Flags().StringVar(&submitID, "action-id", "", "Action identifier")
	submitCmd.Flags().StringVar(&submitPlanID, "plan-id", "", "Alias for --action-id")
	submitExec.register(submitCmd)

	var estID, estPlanID string
	var estMultiplier float64
	var estMaxFee, estMaxTip string
	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate network fees for the pending steps of a persisted action",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actionID, err := resolveActionID(estID, estPlanID)
			if err != nil {
				return err
			}
			opts := execution.DefaultExecuteOptions()
			opts.GasMultiplier = estMultiplier
			opts.MaxFeeGwei = strings.TrimSpace(estMaxFee)
			opts.MaxPriorityFeeGwei = strings.TrimSpace(estMaxTip)
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			estimate, err := s.svc.EstimateGas(ctx, actionID, opts)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), estimate, nil, cacheMetaBypass(), nil, false)
		},
	}
	estimateCmd.Flags().StringVar(&estID, "action-id", "", "Action identifier")
	estimateCmd.Flags().StringVar(&estPlanID, "plan-id", "", "Alias for --action-id")
	estimateCmd.Flags().Float64Var(&estMultiplier, "gas-multiplier", 1.2, "Gas estimate safety multiplier")
	estimateCmd.Flags().StringVar(&estMaxFee, "max-fee-gwei", "", "Optional EIP-1559 max fee (gwei)")
	estimateCmd.Flags().StringVar(&estMaxTip, "max-priority-fee-gwei", "", "Optional EIP-1559 max priority fee (gwei)")

	root.AddCommand(listCmd, showCmd, estimateCmd, submitCmd)
	return root
}
