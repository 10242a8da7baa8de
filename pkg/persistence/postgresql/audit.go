package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// AuditRepository handles audit trail database operations. Entries are
// append-only; nothing here updates or deletes them.
type AuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditRepository creates a new audit trail repository.
func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Append stores a single audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return persistence.NewAuditError("Append", entry.CorrelationID, fmt.Errorf("failed to marshal details: %w", err))
	}

	query := `
		INSERT INTO audit_entries (id, correlation_id, sequence, instance_id, kind,
			severity, code, message, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.CorrelationID,
		entry.Sequence,
		entry.InstanceID,
		entry.Kind,
		entry.Severity,
		entry.Code,
		entry.Message,
		entry.Actor,
		detailsJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return persistence.NewAuditError("Append", entry.CorrelationID, err)
	}

	return nil
}

// ListByCorrelationID returns the full trail for one correlation ID in
// sequence order.
func (r *AuditRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT
			id
		  , correlation_id
		  , sequence
		  , instance_id
		  , kind
		  , severity
		  , code
		  , message
		  , actor
		  , details
		  , created_at
		FROM audit_entries
		WHERE correlation_id = $1
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, correlationID)
	if err != nil {
		return nil, persistence.NewAuditError("ListByCorrelationID", correlationID, err)
	}

	return r.collectEntries(ctx, rows, correlationID)
}

// ListByInstanceID returns entries touching an instance, newest first. A
// positive limit caps the result.
func (r *AuditRepository) ListByInstanceID(ctx context.Context, instanceID string, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT
			id
		  , correlation_id
		  , sequence
		  , instance_id
		  , kind
		  , severity
		  , code
		  , message
		  , actor
		  , details
		  , created_at
		FROM audit_entries
		WHERE instance_id = $1
		ORDER BY created_at DESC, sequence DESC
	`

	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, persistence.NewAuditError("ListByInstanceID", instanceID, err)
	}

	return r.collectEntries(ctx, rows, instanceID)
}

func (r *AuditRepository) collectEntries(ctx context.Context, rows *sql.Rows, id string) ([]*models.AuditEntry, error) {
	defer func(ctx context.Context, r *AuditRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	entries := make([]*models.AuditEntry, 0)

	for rows.Next() {
		var (
			entry       models.AuditEntry
			detailsJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.CorrelationID,
			&entry.Sequence,
			&entry.InstanceID,
			&entry.Kind,
			&entry.Severity,
			&entry.Code,
			&entry.Message,
			&entry.Actor,
			&detailsJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, persistence.NewAuditError("scan", id, err)
		}

		if detailsJSON != nil {
			err := json.Unmarshal(detailsJSON, &entry.Details)
			if err != nil {
				return nil, persistence.NewAuditError("scan", id, fmt.Errorf("failed to unmarshal details: %w", err))
			}
		}

		entries = append(entries, &entry)
	}

	err := rows.Err()
	if err != nil {
		return nil, persistence.NewAuditError("iterate", id, err)
	}

	return entries, nil
}
