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
	// StepTypeApproval is an ERC20 approve of the vault as spender.
	StepTypeApproval StepType = "approval"
	// StepTypeVaultExecute is PlasmaVault.execute over fuse actions.
	StepTypeVaultExecute StepType = "vault_execute"
	// StepTypeVaultCall is any other direct vault, access manager or withdraw manager call.
	StepTypeVaultCall StepType = "vault_call"
	StepTypeClaim     StepType = "claim"
)

type Constraints struct {
	Deadline string `json:"deadline,omitempty"`
	Simulate bool   `json:"simulate"`
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
	GasUsed         uint64            `json:"gas_used,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// Action is a persisted, replayable plan of transactions against one vault.
type Action struct {
	ActionID     string         `json:"action_id"`
	IntentType   string         `json:"intent_type"`
	Market       string         `json:"market,omitempty"`
	Status       ActionStatus   `json:"status"`
	ChainID      string         `json:"chain_id"`
	VaultAddress string         `json:"vault_address,omitempty"`
	FromAddress  string         `json:"from_address,omitempty"`
	Asset        string         `json:"asset,omitempty"`
	InputAmount  string         `json:"input_amount,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	Constraints  Constraints    `json:"constraints"`
	Steps        []ActionStep   `json:"steps"`
	Metadata     map[string]any `json:"metadata,omitempty"`
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

// TxHashes lists the hashes of submitted steps in order.
func (a Action) TxHashes() []string {
	out := make([]string, 0, len(a.Steps))
	for _, step := range a.Steps {
		if step.TxHash != "" {
			out = append(out, step.TxHash)
		}
	}
	return out
}
