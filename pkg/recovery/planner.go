// Package recovery turns workflow errors into executed recovery plans. The
// planner maps an error to a strategy and expands it into steps, the executor
// runs the steps under their timeouts, and the handler orchestrates the whole
// pipeline: audit first, lock the instance, check for deadlocks, plan,
// execute, escalate what cannot be repaired.
package recovery

import (
	"time"

	"github.com/medwise/remedion/pkg/models"
)

// Planner selects recovery strategies and expands them into step sequences.
// Planning is a pure function of the error: the same code and context always
// yield the same plan.
type Planner struct{}

// NewPlanner creates a recovery planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// SelectStrategy maps an error code to its recovery strategy. Codes without a
// fixed mapping retry when the occurrence is retryable and escalate otherwise.
func (p *Planner) SelectStrategy(workflowError *models.WorkflowError) models.RecoveryStrategy {
	switch workflowError.Code {
	case models.ErrCodeInvalidStateTransition:
		return models.StrategyRollback
	case models.ErrCodeWorkflowExecutionTimeout, models.ErrCodeConcurrentStateModified:
		return models.StrategyRetry
	case models.ErrCodeWorkflowDeadlockDetected:
		return models.StrategyEscalate
	case models.ErrCodeContentCorrupted:
		return models.StrategyManual
	default:
		if workflowError.Retryable {
			return models.StrategyRetry
		}

		return models.StrategyEscalate
	}
}

// CreatePlan expands the selected strategy into a fresh step sequence with
// risk grading. The estimated duration is the sum of the step timeouts, the
// worst case when every step runs to its deadline.
func (p *Planner) CreatePlan(workflowError *models.WorkflowError) *models.RecoveryPlan {
	strategy := p.SelectStrategy(workflowError)
	steps := stepsFor(strategy)

	return &models.RecoveryPlan{
		Strategy:          strategy,
		Steps:             steps,
		EstimatedDuration: totalTimeout(steps),
		RiskLevel:         riskFor(workflowError.Code, steps),
		RequiresApproval:  requiresApproval(workflowError, strategy),
	}
}

// stepsFor returns the step template for a strategy. Each call builds a fresh
// slice so executors can annotate their copy without bleeding into later
// plans. The skip strategy has no steps: recovery succeeds by doing nothing.
func stepsFor(strategy models.RecoveryStrategy) []models.RecoveryStep {
	switch strategy {
	case models.StrategyRollback:
		return []models.RecoveryStep{
			{
				ID:          string(models.StepCreateBackup),
				Action:      models.StepCreateBackup,
				Description: "capture the current state for forensics before touching it",
				Timeout:     30 * time.Second,
			},
			{
				ID:                string(models.StepRollbackState),
				Action:            models.StepRollbackState,
				Description:       "restore the instance from its last verified snapshot",
				Timeout:           60 * time.Second,
				RollbackOnFailure: true,
			},
		}
	case models.StrategyRetry:
		return []models.RecoveryStep{
			{
				ID:                string(models.StepRetryTransition),
				Action:            models.StepRetryTransition,
				Description:       "re-validate the failed transition until it passes or attempts run out",
				Parameters:        map[string]any{"max_attempts": 3, "delay_ms": 5000},
				Timeout:           180 * time.Second,
				RollbackOnFailure: true,
			},
		}
	case models.StrategyManual:
		return []models.RecoveryStep{
			{
				ID:          string(models.StepNotifyAdmin),
				Action:      models.StepNotifyAdmin,
				Description: "page an administrator for manual intervention",
				Timeout:     10 * time.Second,
			},
		}
	case models.StrategyEscalate:
		return []models.RecoveryStep{
			{
				ID:          string(models.StepLockContent),
				Action:      models.StepLockContent,
				Description: "lock the content so nothing changes while administrators investigate",
				Timeout:     15 * time.Second,
			},
			{
				ID:          string(models.StepNotifyAdmin),
				Action:      models.StepNotifyAdmin,
				Description: "page an administrator for manual intervention",
				Timeout:     10 * time.Second,
			},
		}
	default:
		return nil
	}
}

func totalTimeout(steps []models.RecoveryStep) time.Duration {
	var total time.Duration
	for _, step := range steps {
		total += step.Timeout
	}

	return total
}

// riskFor grades a plan: corrupted content is always high risk, anything that
// rewrites workflow state is medium, the rest is low.
func riskFor(code models.ErrorCode, steps []models.RecoveryStep) models.RiskLevel {
	if code == models.ErrCodeContentCorrupted {
		return models.RiskHigh
	}

	for _, step := range steps {
		if step.Action == models.StepRollbackState {
			return models.RiskMedium
		}
	}

	return models.RiskLow
}

// requiresApproval flags plans an operator should sign off on: manual
// recoveries by definition, and anything touching platform content because of
// its blast radius. The handler reports the flag; it does not gate execution.
func requiresApproval(workflowError *models.WorkflowError, strategy models.RecoveryStrategy) bool {
	if strategy == models.StrategyManual {
		return true
	}

	return workflowError.Context.ContentType == models.ContentTypePlatform
}
