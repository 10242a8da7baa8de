// Package file provides a file-based persistence implementation for workflow
// instances, snapshots and the audit trail. It backs local development and
// unit tests; production deployments use the postgresql implementation.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/medwise/remedion/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	instanceRepo *InstanceRepository
	snapshotRepo *SnapshotRepository
	auditRepo    *AuditRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		instanceRepo: NewInstanceRepository(cleanRoot),
		snapshotRepo: NewSnapshotRepository(cleanRoot),
		auditRepo:    NewAuditRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// InstanceRepository returns the workflow instance repository implementation for file persistence.
func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instanceRepo
}

// SnapshotRepository returns the snapshot repository implementation for file persistence.
func (fp *Persistence) SnapshotRepository() persistence.SnapshotRepository {
	return fp.snapshotRepo
}

// AuditRepository returns the audit repository implementation for file persistence.
func (fp *Persistence) AuditRepository() persistence.AuditRepository {
	return fp.auditRepo
}
