package models

// ErrorCategory groups workflow error codes by the subsystem that raises them.
type ErrorCategory string

const (
	CategoryStateTransition ErrorCategory = "state_transition"
	CategoryEngine          ErrorCategory = "engine"
	CategoryPermission      ErrorCategory = "permission"
	CategoryContent         ErrorCategory = "content"
	CategoryInfrastructure  ErrorCategory = "infrastructure"
)

// Severity classifies how urgently administrators need to look at an error.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for threshold comparisons. Unknown severities rank
// lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ErrorCode is the symbolic name of a workflow error. Every code maps to a
// stable wire code (WF4001..WF5005) that dashboards and alerting are keyed
// on, so wire codes are never renumbered or reused.
type ErrorCode string

const (
	// State transition errors (WF4001-WF4005).
	ErrCodeInvalidStateTransition    ErrorCode = "INVALID_STATE_TRANSITION"
	ErrCodePrerequisiteNotMet        ErrorCode = "PREREQUISITE_NOT_MET"
	ErrCodeConcurrentStateModified   ErrorCode = "CONCURRENT_STATE_MODIFICATION"
	ErrCodeInvalidWorkflowState      ErrorCode = "INVALID_WORKFLOW_STATE"
	ErrCodeInvalidTransitionMetadata ErrorCode = "INVALID_TRANSITION_METADATA"

	// Workflow engine errors (WF4101-WF4105).
	ErrCodeWorkflowExecutionTimeout ErrorCode = "WORKFLOW_EXECUTION_TIMEOUT"
	ErrCodeWorkflowDeadlockDetected ErrorCode = "WORKFLOW_DEADLOCK_DETECTED"
	ErrCodeWorkflowRecoveryFailed   ErrorCode = "WORKFLOW_RECOVERY_FAILED"
	ErrCodeWorkflowInstanceNotFound ErrorCode = "WORKFLOW_INSTANCE_NOT_FOUND"
	ErrCodeRecoveryStepFailed       ErrorCode = "RECOVERY_STEP_FAILED"

	// Permission errors (WF4201-WF4204).
	ErrCodeInsufficientPermissions ErrorCode = "INSUFFICIENT_WORKFLOW_PERMISSIONS"
	ErrCodeUnauthorizedStateChange ErrorCode = "UNAUTHORIZED_STATE_CHANGE"
	ErrCodeAdminOverrideRequired   ErrorCode = "ADMIN_OVERRIDE_REQUIRED"
	ErrCodeUnknownWorkflowRole     ErrorCode = "UNKNOWN_WORKFLOW_ROLE"

	// Content errors (WF4301-WF4304).
	ErrCodeContentCorrupted        ErrorCode = "CONTENT_CORRUPTED"
	ErrCodeContentValidationFailed ErrorCode = "CONTENT_VALIDATION_FAILED"
	ErrCodeContentNotFound         ErrorCode = "CONTENT_NOT_FOUND"
	ErrCodeContentLocked           ErrorCode = "CONTENT_LOCKED"

	// Infrastructure errors (WF5001-WF5005).
	ErrCodeDatabaseConnectionFailed   ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeAuditLogWriteFailed        ErrorCode = "AUDIT_LOG_WRITE_FAILED"
	ErrCodeNotificationDeliveryFailed ErrorCode = "NOTIFICATION_DELIVERY_FAILED"
	ErrCodeSnapshotPersistenceFailed  ErrorCode = "SNAPSHOT_PERSISTENCE_FAILED"
	ErrCodeSystemResourceExhausted    ErrorCode = "SYSTEM_RESOURCE_EXHAUSTED"
)

type codeInfo struct {
	wireCode  string
	category  ErrorCategory
	retryable bool
	severity  Severity
}

var codeRegistry = map[ErrorCode]codeInfo{
	ErrCodeInvalidStateTransition:    {"WF4001", CategoryStateTransition, false, SeverityLow},
	ErrCodePrerequisiteNotMet:        {"WF4002", CategoryStateTransition, false, SeverityLow},
	ErrCodeConcurrentStateModified:   {"WF4003", CategoryStateTransition, true, SeverityMedium},
	ErrCodeInvalidWorkflowState:      {"WF4004", CategoryStateTransition, false, SeverityHigh},
	ErrCodeInvalidTransitionMetadata: {"WF4005", CategoryStateTransition, false, SeverityLow},

	ErrCodeWorkflowExecutionTimeout: {"WF4101", CategoryEngine, true, SeverityMedium},
	ErrCodeWorkflowDeadlockDetected: {"WF4102", CategoryEngine, false, SeverityHigh},
	ErrCodeWorkflowRecoveryFailed:   {"WF4103", CategoryEngine, false, SeverityCritical},
	ErrCodeWorkflowInstanceNotFound: {"WF4104", CategoryEngine, false, SeverityMedium},
	ErrCodeRecoveryStepFailed:       {"WF4105", CategoryEngine, false, SeverityHigh},

	ErrCodeInsufficientPermissions: {"WF4201", CategoryPermission, false, SeverityMedium},
	ErrCodeUnauthorizedStateChange: {"WF4202", CategoryPermission, false, SeverityHigh},
	ErrCodeAdminOverrideRequired:   {"WF4203", CategoryPermission, false, SeverityMedium},
	ErrCodeUnknownWorkflowRole:     {"WF4204", CategoryPermission, false, SeverityMedium},

	ErrCodeContentCorrupted:        {"WF4301", CategoryContent, false, SeverityCritical},
	ErrCodeContentValidationFailed: {"WF4302", CategoryContent, false, SeverityMedium},
	ErrCodeContentNotFound:         {"WF4303", CategoryContent, false, SeverityMedium},
	ErrCodeContentLocked:           {"WF4304", CategoryContent, true, SeverityMedium},

	ErrCodeDatabaseConnectionFailed:   {"WF5001", CategoryInfrastructure, true, SeverityHigh},
	ErrCodeAuditLogWriteFailed:        {"WF5002", CategoryInfrastructure, true, SeverityCritical},
	ErrCodeNotificationDeliveryFailed: {"WF5003", CategoryInfrastructure, true, SeverityMedium},
	ErrCodeSnapshotPersistenceFailed:  {"WF5004", CategoryInfrastructure, true, SeverityHigh},
	ErrCodeSystemResourceExhausted:    {"WF5005", CategoryInfrastructure, true, SeverityHigh},
}

// WireCode returns the stable external code (e.g. "WF4001") for dashboards
// and API responses. Unknown codes map to "WF0000".
func (c ErrorCode) WireCode() string {
	if info, ok := codeRegistry[c]; ok {
		return info.wireCode
	}

	return "WF0000"
}

// Category returns the taxonomy category the code belongs to.
func (c ErrorCode) Category() ErrorCategory {
	if info, ok := codeRegistry[c]; ok {
		return info.category
	}

	return CategoryEngine
}

// DefaultRetryable reports whether retrying the failed operation unchanged
// could plausibly succeed. Raise sites may override per occurrence.
func (c ErrorCode) DefaultRetryable() bool {
	if info, ok := codeRegistry[c]; ok {
		return info.retryable
	}

	return false
}

// DefaultSeverity returns the notification severity associated with the code.
func (c ErrorCode) DefaultSeverity() Severity {
	if info, ok := codeRegistry[c]; ok {
		return info.severity
	}

	return SeverityMedium
}

// Valid reports whether the code is part of the registered taxonomy.
func (c ErrorCode) Valid() bool {
	_, ok := codeRegistry[c]

	return ok
}

// AllErrorCodes returns every registered code. Intended for validation and
// for exposing the taxonomy through the API.
func AllErrorCodes() []ErrorCode {
	codes := make([]ErrorCode, 0, len(codeRegistry))
	for code := range codeRegistry {
		codes = append(codes, code)
	}

	return codes
}
