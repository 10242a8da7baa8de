package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// SnapshotRepository handles state snapshot database operations. Snapshots
// are stored as an opaque JSONB payload so the bytes the checksum was
// computed over survive the round-trip unchanged.
type SnapshotRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSnapshotRepository creates a new state snapshot repository.
func NewSnapshotRepository(db *sql.DB, logger *slog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// Save stores a snapshot, replacing any previous snapshot for the instance.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *models.StateSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return persistence.NewSnapshotError("Save", snapshot.InstanceID, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	query := `
		INSERT INTO state_snapshots (instance_id, payload, checksum, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instance_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			checksum = EXCLUDED.checksum,
			created_at = EXCLUDED.created_at
	`

	_, err = r.db.ExecContext(ctx, query, snapshot.InstanceID, payload, snapshot.Checksum, snapshot.CreatedAt)
	if err != nil {
		return persistence.NewSnapshotError("Save", snapshot.InstanceID, err)
	}

	return nil
}

// GetByInstanceID returns the snapshot for an instance, or (nil, nil) when
// none exists.
func (r *SnapshotRepository) GetByInstanceID(ctx context.Context, instanceID string) (*models.StateSnapshot, error) {
	query := `
		SELECT payload
		FROM state_snapshots
		WHERE instance_id = $1
	`

	var payload []byte

	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewSnapshotError("GetByInstanceID", instanceID, err)
	}

	var snapshot models.StateSnapshot

	err = json.Unmarshal(payload, &snapshot)
	if err != nil {
		return nil, persistence.NewSnapshotError("GetByInstanceID", instanceID, fmt.Errorf("failed to unmarshal snapshot: %w", err))
	}

	return &snapshot, nil
}

// List returns all snapshots, newest first.
func (r *SnapshotRepository) List(ctx context.Context) ([]*models.StateSnapshot, error) {
	query := `
		SELECT payload
		FROM state_snapshots
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	defer func(ctx context.Context, r *SnapshotRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	snapshots := make([]*models.StateSnapshot, 0)

	for rows.Next() {
		var payload []byte

		err := rows.Scan(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		var snapshot models.StateSnapshot

		err = json.Unmarshal(payload, &snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}

		snapshots = append(snapshots, &snapshot)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// Delete removes the snapshot for an instance.
func (r *SnapshotRepository) Delete(ctx context.Context, instanceID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM state_snapshots WHERE instance_id = $1", instanceID)
	if err != nil {
		return persistence.NewSnapshotError("Delete", instanceID, err)
	}

	return nil
}
