package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new workflow instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

// Save upserts an instance by its ID.
func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	now := time.Now().UTC()

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	metadataJSON, err := json.Marshal(instance.Metadata)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, fmt.Errorf("failed to marshal metadata: %w", err))
	}

	historyJSON, err := json.Marshal(instance.History)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, fmt.Errorf("failed to marshal history: %w", err))
	}

	if instance.History == nil {
		historyJSON = []byte("[]")
	}

	query := `
		INSERT INTO workflow_instances (id, content_id, content_type, current_state, previous_state,
			version, locked, lock_reason, owner, metadata, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			content_id = EXCLUDED.content_id,
			content_type = EXCLUDED.content_type,
			current_state = EXCLUDED.current_state,
			previous_state = EXCLUDED.previous_state,
			version = EXCLUDED.version,
			locked = EXCLUDED.locked,
			lock_reason = EXCLUDED.lock_reason,
			owner = EXCLUDED.owner,
			metadata = EXCLUDED.metadata,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.ContentID,
		instance.ContentType,
		instance.CurrentState,
		instance.PreviousState,
		instance.Version,
		instance.Locked,
		instance.LockReason,
		instance.Owner,
		metadataJSON,
		historyJSON,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

// GetByID returns an instance by its ID, or (nil, nil) when none exists.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `
		SELECT
			id
		  , content_id
		  , content_type
		  , current_state
		  , previous_state
		  , version
		  , locked
		  , lock_reason
		  , owner
		  , metadata
		  , history
		  , created_at
		  , updated_at
		FROM workflow_instances
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	instance, err := r.scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return instance, nil
}

// List returns every instance, most recently updated first.
func (r *InstanceRepository) List(ctx context.Context) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT
			id
		  , content_id
		  , content_type
		  , current_state
		  , previous_state
		  , version
		  , locked
		  , lock_reason
		  , owner
		  , metadata
		  , history
		  , created_at
		  , updated_at
		FROM workflow_instances
		ORDER BY updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func(ctx context.Context, r *InstanceRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// UpdateState applies a state change guarded by the optimistic version check.
// The guard and the mutation run in one statement, so concurrent writers
// cannot interleave between check and update.
func (r *InstanceRepository) UpdateState(ctx context.Context, id string, expectedVersion int64, newState models.WorkflowState, record models.TransitionRecord) (*models.WorkflowInstance, error) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, persistence.NewInstanceError("UpdateState", id, fmt.Errorf("failed to marshal transition record: %w", err))
	}

	query := `
		UPDATE workflow_instances
		SET previous_state = current_state
		  , current_state = $3
		  , version = version + 1
		  , history = history || $4::jsonb
		  , updated_at = $5
		WHERE id = $1 AND version = $2
		RETURNING
			id
		  , content_id
		  , content_type
		  , current_state
		  , previous_state
		  , version
		  , locked
		  , lock_reason
		  , owner
		  , metadata
		  , history
		  , created_at
		  , updated_at
	`

	row := r.db.QueryRowContext(ctx, query, id, expectedVersion, newState, recordJSON, time.Now().UTC())

	instance, err := r.scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.classifyUpdateMiss(ctx, id)
		}

		return nil, persistence.NewInstanceError("UpdateState", id, err)
	}

	return instance, nil
}

// classifyUpdateMiss distinguishes a missing instance from a lost version race.
func (r *InstanceRepository) classifyUpdateMiss(ctx context.Context, id string) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return persistence.NewInstanceError("UpdateState", id, err)
	}

	if !exists {
		return persistence.NewInstanceError("UpdateState", id, persistence.ErrInstanceNotFound)
	}

	return persistence.NewInstanceError("UpdateState", id, persistence.ErrVersionConflict)
}

// SetContentLock locks or unlocks the content behind an instance. The lock is
// administrative state, so the optimistic version is left untouched.
func (r *InstanceRepository) SetContentLock(ctx context.Context, id string, locked bool, reason string) error {
	if !locked {
		reason = ""
	}

	query := `
		UPDATE workflow_instances
		SET locked = $2
		  , lock_reason = $3
		  , updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, locked, reason, time.Now().UTC())
	if err != nil {
		return persistence.NewInstanceError("SetContentLock", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewInstanceError("SetContentLock", id, err)
	}

	if affected == 0 {
		return persistence.NewInstanceError("SetContentLock", id, persistence.ErrInstanceNotFound)
	}

	return nil
}

// Delete removes an instance by its ID.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM workflow_instances WHERE id = $1", id)
	if err != nil {
		return persistence.NewInstanceError("Delete", id, err)
	}

	return nil
}

func (r *InstanceRepository) scanInstance(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowInstance, error) {
	var (
		instance                  models.WorkflowInstance
		metadataJSON, historyJSON []byte
	)

	err := scanner.Scan(
		&instance.ID,
		&instance.ContentID,
		&instance.ContentType,
		&instance.CurrentState,
		&instance.PreviousState,
		&instance.Version,
		&instance.Locked,
		&instance.LockReason,
		&instance.Owner,
		&metadataJSON,
		&historyJSON,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Unmarshal JSON fields
	if metadataJSON != nil {
		err := json.Unmarshal(metadataJSON, &instance.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if historyJSON != nil {
		err := json.Unmarshal(historyJSON, &instance.History)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}

	return &instance, nil
}
