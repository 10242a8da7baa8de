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
	"time"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// InstanceRepository handles workflow instance file operations. The mutex
// serializes read-modify-write operations; the file backend only serves a
// single process.
type InstanceRepository struct {
	root string
	mu   sync.Mutex
}

// NewInstanceRepository creates a new workflow instance repository.
func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

// Save writes an instance to the file system.
func (ir *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	return ir.save(instance)
}

func (ir *InstanceRepository) save(instance *models.WorkflowInstance) error {
	err := os.MkdirAll(ir.root+"/instances", 0750)
	if err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.ID, err)
	}

	filePath := path.Join(ir.root+"/instances", instance.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// GetByID retrieves an instance by its ID from the file system.
func (ir *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	return ir.load(id)
}

func (ir *InstanceRepository) load(id string) (*models.WorkflowInstance, error) {
	filePath := filepath.Clean(path.Join(ir.root, "instances", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch instance %s: %w", id, err)
	}

	var instance models.WorkflowInstance

	err = json.Unmarshal(body, &instance)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", id, err)
	}

	return &instance, nil
}

// List returns every stored instance.
func (ir *InstanceRepository) List(ctx context.Context) ([]*models.WorkflowInstance, error) {
	root := os.DirFS(ir.root + "/instances")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		instanceID := file[:len(file)-5] // Remove .json extension

		instance, err := ir.GetByID(ctx, instanceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
		}

		if instance != nil {
			instances = append(instances, instance)
		}
	}

	return instances, nil
}

// UpdateState applies a state change guarded by the optimistic version check.
func (ir *InstanceRepository) UpdateState(_ context.Context, id string, expectedVersion int64, newState models.WorkflowState, record models.TransitionRecord) (*models.WorkflowInstance, error) {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	instance, err := ir.load(id)
	if err != nil {
		return nil, persistence.NewInstanceError("UpdateState", id, err)
	}

	if instance == nil {
		return nil, persistence.NewInstanceError("UpdateState", id, persistence.ErrInstanceNotFound)
	}

	if instance.Version != expectedVersion {
		return nil, persistence.NewInstanceError("UpdateState", id, persistence.ErrVersionConflict)
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	instance.PreviousState = instance.CurrentState
	instance.CurrentState = newState
	instance.Version++
	instance.History = append(instance.History, record)

	if err := ir.save(instance); err != nil {
		return nil, persistence.NewInstanceError("UpdateState", id, err)
	}

	return instance, nil
}

// SetContentLock locks or unlocks the content behind an instance.
func (ir *InstanceRepository) SetContentLock(_ context.Context, id string, locked bool, reason string) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	instance, err := ir.load(id)
	if err != nil {
		return persistence.NewInstanceError("SetContentLock", id, err)
	}

	if instance == nil {
		return persistence.NewInstanceError("SetContentLock", id, persistence.ErrInstanceNotFound)
	}

	instance.Locked = locked

	instance.LockReason = ""
	if locked {
		instance.LockReason = reason
	}

	if err := ir.save(instance); err != nil {
		return persistence.NewInstanceError("SetContentLock", id, err)
	}

	return nil
}

// Delete removes an instance by its ID.
func (ir *InstanceRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(ir.root+"/instances", id+".json")

	err := os.Remove(filePath)

	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}

	return nil
}
