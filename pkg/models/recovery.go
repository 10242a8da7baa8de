package models

import "time"

// RecoveryStrategy names the approach the planner selected for an error.
type RecoveryStrategy string

const (
	StrategyRollback RecoveryStrategy = "rollback"
	StrategyRetry    RecoveryStrategy = "retry"
	StrategySkip     RecoveryStrategy = "skip"
	StrategyEscalate RecoveryStrategy = "escalate"
	StrategyManual   RecoveryStrategy = "manual"
)

// StepAction identifies what a recovery step does. Each action has exactly
// one runner registered with the executor.
type StepAction string

const (
	StepCreateBackup    StepAction = "create_backup"
	StepRollbackState   StepAction = "rollback_state"
	StepRetryTransition StepAction = "retry_transition"
	StepNotifyAdmin     StepAction = "notify_admin"
	StepLockContent     StepAction = "lock_content"
)

// RiskLevel grades how dangerous executing a recovery plan is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RecoveryStep is one unit of work inside a recovery plan. Timeout bounds
// how long the executor waits for the step; RollbackOnFailure marks steps
// whose failure should undo the already-executed part of the plan.
type RecoveryStep struct {
	ID                string         `json:"id"`
	Action            StepAction     `json:"action"`
	Description       string         `json:"description"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Timeout           time.Duration  `json:"timeout"`
	RollbackOnFailure bool           `json:"rollback_on_failure"`
}

// RecoveryPlan is the ordered sequence of steps the executor runs for one
// error occurrence. Plans are deterministic: the same error code and context
// always produce the same strategy and step sequence.
type RecoveryPlan struct {
	Strategy          RecoveryStrategy `json:"strategy"`
	Steps             []RecoveryStep   `json:"steps"`
	EstimatedDuration time.Duration    `json:"estimated_duration"`
	RiskLevel         RiskLevel        `json:"risk_level"`
	RequiresApproval  bool             `json:"requires_approval"`
}

// RecoveryResult reports the outcome of handling one workflow error. Failure
// to recover is a result, not a Go error: the handler only returns an error
// for caller misuse.
type RecoveryResult struct {
	Success              bool             `json:"success"`
	Strategy             RecoveryStrategy `json:"strategy"`
	ExecutedSteps        []string         `json:"executed_steps"`
	Duration             time.Duration    `json:"duration"`
	Message              string           `json:"message"`
	RequiresIntervention bool             `json:"requires_intervention"`
	Err                  *WorkflowError   `json:"error,omitempty"`
}
