package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/medwise/remedion/pkg/models"
)

// SnapshotRepository handles state snapshot file operations. One file per
// instance; saving replaces the previous snapshot.
type SnapshotRepository struct {
	root string
	mu   sync.Mutex
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(root string) *SnapshotRepository {
	return &SnapshotRepository{root: root}
}

// Save writes a snapshot to the file system, replacing any previous one for
// the same instance.
func (sr *SnapshotRepository) Save(_ context.Context, snapshot *models.StateSnapshot) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	err := os.MkdirAll(sr.root+"/snapshots", 0750)
	if err != nil {
		return fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for %s: %w", snapshot.InstanceID, err)
	}

	filePath := path.Join(sr.root+"/snapshots", snapshot.InstanceID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// GetByInstanceID retrieves the snapshot for an instance, or (nil, nil) when
// none exists.
func (sr *SnapshotRepository) GetByInstanceID(_ context.Context, instanceID string) (*models.StateSnapshot, error) {
	filePath := filepath.Clean(path.Join(sr.root, "snapshots", instanceID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch snapshot for %s: %w", instanceID, err)
	}

	var snapshot models.StateSnapshot

	err = json.Unmarshal(body, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for %s: %w", instanceID, err)
	}

	return &snapshot, nil
}

// List returns every stored snapshot.
func (sr *SnapshotRepository) List(ctx context.Context) ([]*models.StateSnapshot, error) {
	root := os.DirFS(sr.root + "/snapshots")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot files: %w", err)
	}

	snapshots := make([]*models.StateSnapshot, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		instanceID := file[:len(file)-5] // Remove .json extension

		snapshot, err := sr.GetByInstanceID(ctx, instanceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot %s: %w", instanceID, err)
		}

		if snapshot != nil {
			snapshots = append(snapshots, snapshot)
		}
	}

	return snapshots, nil
}

// Delete removes the snapshot for an instance.
func (sr *SnapshotRepository) Delete(_ context.Context, instanceID string) error {
	filePath := path.Join(sr.root+"/snapshots", instanceID+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete snapshot for %s: %w", instanceID, err)
	}

	return nil
}
