package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// TransitionDetail describes the transition that produced a snapshot's state.
type TransitionDetail struct {
	Action      WorkflowAction `json:"action,omitempty"`
	PerformedBy string         `json:"performed_by,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StateSnapshot is a point-in-time capture of an instance's state, taken
// before risky operations so a rollback has a verified target. The checksum
// covers every field except itself and detects storage-level tampering or
// corruption before a rollback trusts the snapshot.
type StateSnapshot struct {
	InstanceID     string           `json:"instance_id"`
	State          WorkflowState    `json:"state"`
	PreviousState  WorkflowState    `json:"previous_state,omitempty"`
	Version        int64            `json:"version"`
	LastTransition TransitionDetail `json:"last_transition"`
	Checksum       string           `json:"checksum"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewStateSnapshot captures the current state of an instance, including the
// checksum. The caller decides when a capture is warranted.
func NewStateSnapshot(instance *WorkflowInstance) (*StateSnapshot, error) {
	snapshot := &StateSnapshot{
		InstanceID:    instance.ID,
		State:         instance.CurrentState,
		PreviousState: instance.PreviousState,
		Version:       instance.Version,
		CreatedAt:     time.Now().UTC(),
	}

	if last := instance.LastTransition(); last != nil {
		snapshot.LastTransition = TransitionDetail{
			Action:      last.Action,
			PerformedBy: last.PerformedBy,
			Timestamp:   last.Timestamp,
			Metadata:    copyMap(last.Metadata),
		}
	}

	checksum, err := snapshot.ComputeChecksum()
	if err != nil {
		return nil, err
	}

	snapshot.Checksum = checksum

	return snapshot, nil
}

// ComputeChecksum hashes the snapshot payload (everything except the checksum
// field itself). JSON marshaling is deterministic for this struct, so equal
// snapshots always hash equal.
func (s *StateSnapshot) ComputeChecksum() (string, error) {
	clone := *s
	clone.Checksum = ""

	payload, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("failed to serialize snapshot for checksum: %w", err)
	}

	digest := sha256.Sum256(payload)

	return hex.EncodeToString(digest[:]), nil
}

// VerifyChecksum recomputes the checksum and reports whether it matches the
// stored one. A mismatch means the snapshot must not be used for rollback.
func (s *StateSnapshot) VerifyChecksum() (bool, error) {
	expected, err := s.ComputeChecksum()
	if err != nil {
		return false, err
	}

	return expected == s.Checksum, nil
}

// RollbackResult reports the outcome of restoring an instance from its
// snapshot. NoOp is set when the instance was already in the snapshot state,
// which keeps rollback idempotent.
type RollbackResult struct {
	InstanceID    string        `json:"instance_id"`
	RestoredState WorkflowState `json:"restored_state"`
	RevertedState WorkflowState `json:"reverted_state,omitempty"`
	PerformedBy   string        `json:"performed_by"`
	Reason        string        `json:"reason"`
	NoOp          bool          `json:"no_op"`
	Duration      time.Duration `json:"duration"`
	CompletedAt   time.Time     `json:"completed_at"`
}
