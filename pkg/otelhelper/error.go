package otelhelper

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medwise/remedion/pkg/models"
)

// SetError marks the span failed. Workflow errors additionally carry their
// taxonomy code and wire code as attributes, so traces can be filtered the
// same way the audit trail is.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	var workflowError *models.WorkflowError
	if errors.As(err, &workflowError) {
		attrs = append(attrs,
			attribute.String(ErrorCodeKey, string(workflowError.Code)),
			attribute.String(WireCodeKey, workflowError.Code.WireCode()),
		)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}
