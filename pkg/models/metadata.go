package models

import (
	"encoding/json"
	"fmt"
)

// TransitionMetadata is the typed view of the metadata bag a transition
// request carries. Actions with prerequisites decode their bag into one of
// the concrete types below; other actions keep the raw map.
type TransitionMetadata interface {
	TransitionAction() WorkflowAction
}

// PublishMetadata carries the publication prerequisites. Field names match
// the wire keys produced by the CMS frontend.
type PublishMetadata struct {
	ContentValidated bool `json:"contentValidated"`
	SEOOptimized     bool `json:"seoOptimized"`
}

func (PublishMetadata) TransitionAction() WorkflowAction { return ActionPublish }

// ApprovalMetadata carries the approval prerequisite.
type ApprovalMetadata struct {
	ReviewCompleted bool `json:"reviewCompleted"`
}

func (ApprovalMetadata) TransitionAction() WorkflowAction { return ActionApprove }

// GenericMetadata wraps the raw bag for actions without typed requirements.
type GenericMetadata struct {
	Action WorkflowAction `json:"-"`
	Values map[string]any `json:"-"`
}

func (m GenericMetadata) TransitionAction() WorkflowAction { return m.Action }

// DecodeTransitionMetadata converts a raw metadata bag into its typed form
// for the given action. A nil bag decodes to zero values so prerequisite
// checks treat missing flags as unmet rather than erroring.
func DecodeTransitionMetadata(action WorkflowAction, raw map[string]any) (TransitionMetadata, error) {
	switch action {
	case ActionPublish:
		var meta PublishMetadata
		if err := decodeInto(raw, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode publish metadata: %w", err)
		}

		return meta, nil
	case ActionApprove:
		var meta ApprovalMetadata
		if err := decodeInto(raw, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode approval metadata: %w", err)
		}

		return meta, nil
	default:
		return GenericMetadata{Action: action, Values: raw}, nil
	}
}

func decodeInto(raw map[string]any, target any) error {
	if raw == nil {
		return nil
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	return json.Unmarshal(payload, target)
}
