// Package models defines the core domain models for content approval workflows:
// workflow instances, the state and action vocabulary, the workflow error
// taxonomy, and the recovery, snapshot and deadlock value types.
package models

import "time"

// WorkflowState represents the lifecycle position of a content item.
type WorkflowState string

const (
	StateDraft     WorkflowState = "DRAFT"     // Editable, not yet submitted
	StateReview    WorkflowState = "REVIEW"    // Under editorial review
	StateApproved  WorkflowState = "APPROVED"  // Approved, awaiting publication
	StateRejected  WorkflowState = "REJECTED"  // Sent back for revision
	StatePublished WorkflowState = "PUBLISHED" // Live
	StateArchived  WorkflowState = "ARCHIVED"  // Retired, restorable
	StateExpired   WorkflowState = "EXPIRED"   // Aged out, restorable
)

// WorkflowAction represents a named transition between workflow states.
type WorkflowAction string

const (
	ActionSubmitForReview WorkflowAction = "SUBMIT_FOR_REVIEW"
	ActionApprove         WorkflowAction = "APPROVE"
	ActionReject          WorkflowAction = "REJECT"
	ActionRequestChanges  WorkflowAction = "REQUEST_CHANGES"
	ActionPublish         WorkflowAction = "PUBLISH"
	ActionWithdraw        WorkflowAction = "WITHDRAW"
	ActionArchive         WorkflowAction = "ARCHIVE"
	ActionRestore         WorkflowAction = "RESTORE"

	// ActionRollback marks a system-initiated restore from a snapshot. It is
	// not part of the transition table and cannot be requested by users.
	ActionRollback WorkflowAction = "ROLLBACK"
)

// WorkflowRole represents the permission level of the user requesting a transition.
type WorkflowRole string

const (
	RoleAuthor    WorkflowRole = "AUTHOR"
	RoleEditor    WorkflowRole = "EDITOR"
	RoleReviewer  WorkflowRole = "REVIEWER"
	RoleApprover  WorkflowRole = "APPROVER"
	RolePublisher WorkflowRole = "PUBLISHER"
	RoleAdmin     WorkflowRole = "ADMIN"
)

// ContentType classifies the content item a workflow instance manages.
// The priority rank is used when a deadlock resolution has to pick a victim.
type ContentType string

const (
	ContentTypePost          ContentType = "post"
	ContentTypePage          ContentType = "page"
	ContentTypeEmailCampaign ContentType = "email_campaign"
	ContentTypeLandingPage   ContentType = "landing_page"
	ContentTypePlatform      ContentType = "platform"
)

// PriorityRank orders content types for deadlock victim selection.
// Higher values survive; lower values are aborted first.
func (c ContentType) PriorityRank() int {
	switch c {
	case ContentTypePlatform:
		return 5
	case ContentTypeLandingPage:
		return 4
	case ContentTypePage:
		return 3
	case ContentTypeEmailCampaign:
		return 2
	case ContentTypePost:
		return 1
	default:
		return 0
	}
}

// WorkflowInstance represents one content item moving through the approval
// workflow. Version increments on every state change and backs the optimistic
// concurrency check.
type WorkflowInstance struct {
	ID            string             `json:"id"             validate:"required"`
	ContentID     string             `json:"content_id"     validate:"required"`
	ContentType   ContentType        `json:"content_type"   validate:"required"`
	CurrentState  WorkflowState      `json:"current_state"  validate:"required"`
	PreviousState WorkflowState      `json:"previous_state,omitempty"`
	Version       int64              `json:"version"`
	Locked        bool               `json:"locked"`
	LockReason    string             `json:"lock_reason,omitempty"`
	Owner         string             `json:"owner,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
	History       []TransitionRecord `json:"history,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// TransitionRecord captures one applied state change on an instance.
type TransitionRecord struct {
	FromState   WorkflowState  `json:"from_state"`
	ToState     WorkflowState  `json:"to_state"`
	Action      WorkflowAction `json:"action"`
	PerformedBy string         `json:"performed_by"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// LastTransition returns the most recent history record, or nil when the
// instance has never transitioned.
func (w *WorkflowInstance) LastTransition() *TransitionRecord {
	if len(w.History) == 0 {
		return nil
	}

	record := w.History[len(w.History)-1]

	return &record
}

// Clone returns a deep copy of the instance so callers can mutate the copy
// without racing readers of the original.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	clone := *w
	clone.Metadata = copyMap(w.Metadata)
	clone.History = make([]TransitionRecord, len(w.History))

	for i, record := range w.History {
		clone.History[i] = record
		clone.History[i].Metadata = copyMap(record.Metadata)
	}

	return &clone
}

func copyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}

	return dst
}
