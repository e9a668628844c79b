package execution

import "time"

type ActionStatus string

type StepStatus string

type StepType string

const (
	ActionStatusPlanned   ActionStatus = "planned"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSimulated StepStatus = "simulated"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

const (
	StepTypeApproval StepType = "approval"
	StepTypeSwap     StepType = "swap"
	StepTypeBridge   StepType = "bridge_send"
	StepTypeTransfer StepType = "transfer"
)

type Constraints struct {
	SlippageBps int64 `json:"slippage_bps,omitempty"`
	Simulate    bool  `json:"simulate"`
}

type ActionStep struct {
	StepID          string            `json:"step_id"`
	Type            StepType          `json:"type"`
	Status          StepStatus        `json:"status"`
	ChainID         string            `json:"chain_id"`
	RPCURL          string            `json:"rpc_url,omitempty"`
	Description     string            `json:"description,omitempty"`
	Target          string            `json:"target"`
	Data            string            `json:"data"`
	Value           string            `json:"value"`
	ExpectedOutputs map[string]string `json:"expected_outputs,omitempty"`
	TxHash          string            `json:"tx_hash,omitempty"`
	ExplorerURL     string            `json:"explorer_url,omitempty"`
	SubmittedAt     string            `json:"submitted_at,omitempty"`
	ConfirmedAt     string            `json:"confirmed_at,omitempty"`
	BlockNumber     uint64            `json:"block_number,omitempty"`
	GasUsed         uint64            `json:"gas_used,omitempty"`
	Error           string            `json:"error,omitempty"`
}

type Action struct {
	ActionID     string                 `json:"action_id"`
	IntentType   string                 `json:"intent_type"`
	Provider     string                 `json:"provider,omitempty"`
	Status       ActionStatus           `json:"status"`
	ChainID      string                 `json:"chain_id"`
	FromAddress  string                 `json:"from_address,omitempty"`
	ToAddress    string                 `json:"to_address,omitempty"`
	InputAmount  string                 `json:"input_amount,omitempty"`
	CreatedAt    string                 `json:"created_at"`
	UpdatedAt    string                 `json:"updated_at"`
	Constraints  Constraints            `json:"constraints"`
	Steps        []ActionStep           `json:"steps"`
	Metadata     map[string]any         `json:"metadata,omitempty"`
	ProviderData map[string]interface{} `json:"provider_data,omitempty"`
}

func NewAction(actionID, intentType, chainID string, constraints Constraints) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:    actionID,
		IntentType:  intentType,
		Status:      ActionStatusPlanned,
		ChainID:     chainID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Constraints: constraints,
		Steps:       []ActionStep{},
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// FinalStep returns the last state-changing step, which carries the action's outcome.
func (a *Action) FinalStep() *ActionStep {
	if a == nil || len(a.Steps) == 0 {
		return nil
	}
	return &a.Steps[len(a.Steps)-1]
}
