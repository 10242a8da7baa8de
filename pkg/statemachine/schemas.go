package statemachine

import (
	"fmt"
	"strings"

	"github.com/medwise/remedion/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// metadataSchemas describes the wire shape of the metadata bag per action.
// The schemas check types only, not presence: a missing prerequisite flag is
// a business-rule failure (PREREQUISITE_NOT_MET) for the validator to report,
// while a wrongly typed one is a malformed request the web layer rejects
// before the validator ever runs.
var metadataSchemas = map[models.WorkflowAction]map[string]any{
	models.ActionPublish: {
		"type": "object",
		"properties": map[string]any{
			"contentValidated": map[string]any{"type": "boolean"},
			"seoOptimized":     map[string]any{"type": "boolean"},
			"scheduledFor":     map[string]any{"type": "string"},
		},
		"additionalProperties": true,
	},
	models.ActionApprove: {
		"type": "object",
		"properties": map[string]any{
			"reviewCompleted": map[string]any{"type": "boolean"},
			"reviewNotes":     map[string]any{"type": "string"},
		},
		"additionalProperties": true,
	},
	models.ActionReject: {
		"type": "object",
		"properties": map[string]any{
			"rejectionReason": map[string]any{"type": "string"},
		},
		"additionalProperties": true,
	},
}

// ValidateMetadataShape validates a raw metadata bag against the action's
// JSON schema. Actions without a registered schema accept any object. A nil
// bag always passes; absent flags are the prerequisite checks' concern.
func ValidateMetadataShape(action models.WorkflowAction, raw map[string]any) error {
	schema, ok := metadataSchemas[action]
	if !ok || raw == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to run metadata schema validation: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, schemaErr := range result.Errors() {
			details = append(details, schemaErr.String())
		}

		return fmt.Errorf("metadata schema validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}
