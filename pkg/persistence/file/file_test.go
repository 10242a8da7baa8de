package file

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

func TestNewPersistence(t *testing.T) {
	// Test with regular path
	p := NewPersistence("/tmp/test")
	fp := p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)

	// Test with file:// prefix
	p = NewPersistence("file:///tmp/test")
	fp = p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_Close(t *testing.T) {
	p := NewPersistence("./test-data")
	err := p.Close(t.Context())
	assert.NoError(t, err)
}

func testInstance(id string) *models.WorkflowInstance {
	return &models.WorkflowInstance{
		ID:           id,
		ContentID:    "content-" + id,
		ContentType:  models.ContentTypePost,
		CurrentState: models.StateDraft,
		Owner:        "author-1",
	}
}

func TestInstanceRepository_SaveAndGetByID(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.InstanceRepository()

	instance := testInstance("wf-1")

	err := repo.Save(t.Context(), instance)
	require.NoError(t, err)

	assert.False(t, instance.CreatedAt.IsZero())
	assert.False(t, instance.UpdatedAt.IsZero())

	loaded, err := repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "content-wf-1", loaded.ContentID)
	assert.Equal(t, models.StateDraft, loaded.CurrentState)
}

func TestInstanceRepository_GetByID_NotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	loaded, err := p.InstanceRepository().GetByID(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestInstanceRepository_List(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.InstanceRepository()

	require.NoError(t, repo.Save(t.Context(), testInstance("wf-a")))
	require.NoError(t, repo.Save(t.Context(), testInstance("wf-b")))

	instances, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

func TestInstanceRepository_List_EmptyRoot(t *testing.T) {
	p := NewPersistence(t.TempDir())

	instances, err := p.InstanceRepository().List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestInstanceRepository_UpdateState(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.InstanceRepository()

	instance := testInstance("wf-1")
	require.NoError(t, repo.Save(t.Context(), instance))

	updated, err := repo.UpdateState(t.Context(), "wf-1", 0, models.StateReview, models.TransitionRecord{
		FromState:   models.StateDraft,
		ToState:     models.StateReview,
		Action:      models.ActionSubmitForReview,
		PerformedBy: "author-1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateReview, updated.CurrentState)
	assert.Equal(t, models.StateDraft, updated.PreviousState)
	assert.Equal(t, int64(1), updated.Version)
	require.Len(t, updated.History, 1)
	assert.Equal(t, models.ActionSubmitForReview, updated.History[0].Action)
	assert.False(t, updated.History[0].Timestamp.IsZero())

	// The change is durable
	loaded, err := repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateReview, loaded.CurrentState)
	assert.Equal(t, int64(1), loaded.Version)
}

func TestInstanceRepository_UpdateState_VersionConflict(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.InstanceRepository()

	require.NoError(t, repo.Save(t.Context(), testInstance("wf-1")))

	_, err := repo.UpdateState(t.Context(), "wf-1", 5, models.StateReview, models.TransitionRecord{})
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))

	// The losing update must not have touched the instance
	loaded, err := repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, loaded.CurrentState)
	assert.Equal(t, int64(0), loaded.Version)
}

func TestInstanceRepository_UpdateState_NotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.InstanceRepository().UpdateState(t.Context(), "missing", 0, models.StateReview, models.TransitionRecord{})
	require.Error(t, err)
	assert.True(t, persistence.IsInstanceNotFound(err))
}

func TestInstanceRepository_SetContentLock(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.InstanceRepository()

	require.NoError(t, repo.Save(t.Context(), testInstance("wf-1")))

	err := repo.SetContentLock(t.Context(), "wf-1", true, "deadlock resolution")
	require.NoError(t, err)

	loaded, err := repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, loaded.Locked)
	assert.Equal(t, "deadlock resolution", loaded.LockReason)
	assert.Equal(t, int64(0), loaded.Version, "locking must not bump the version")

	err = repo.SetContentLock(t.Context(), "wf-1", false, "")
	require.NoError(t, err)

	loaded, err = repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.False(t, loaded.Locked)
	assert.Empty(t, loaded.LockReason)
}

func TestInstanceRepository_Delete(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.InstanceRepository()

	require.NoError(t, repo.Save(t.Context(), testInstance("wf-1")))
	require.NoError(t, repo.Delete(t.Context(), "wf-1"))

	loaded, err := repo.GetByID(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting a missing instance is not an error
	assert.NoError(t, repo.Delete(t.Context(), "wf-1"))
}

func TestSnapshotRepository_SaveReplacesAndVerifies(t *testing.T) {
	testDir := t.TempDir()
	p := NewPersistence(testDir)
	repo := p.SnapshotRepository()

	instance := testInstance("wf-1")
	instance.CurrentState = models.StateReview

	first, err := models.NewStateSnapshot(instance)
	require.NoError(t, err)
	require.NoError(t, repo.Save(t.Context(), first))

	assert.FileExists(t, filepath.Join(testDir, "snapshots", "wf-1.json"))

	instance.CurrentState = models.StateApproved
	instance.Version = 2

	second, err := models.NewStateSnapshot(instance)
	require.NoError(t, err)
	require.NoError(t, repo.Save(t.Context(), second))

	loaded, err := repo.GetByInstanceID(t.Context(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.StateApproved, loaded.State)
	assert.Equal(t, int64(2), loaded.Version)

	ok, err := loaded.VerifyChecksum()
	require.NoError(t, err)
	assert.True(t, ok, "checksum must survive the file round trip")
}

func TestSnapshotRepository_GetByInstanceID_NotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	loaded, err := p.SnapshotRepository().GetByInstanceID(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSnapshotRepository_ListAndDelete(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.SnapshotRepository()

	for _, id := range []string{"wf-1", "wf-2"} {
		snapshot, err := models.NewStateSnapshot(testInstance(id))
		require.NoError(t, err)
		require.NoError(t, repo.Save(t.Context(), snapshot))
	}

	snapshots, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)

	require.NoError(t, repo.Delete(t.Context(), "wf-1"))

	snapshots, err = repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
}

func auditEntry(correlationID, instanceID string, sequence int64) *models.AuditEntry {
	return &models.AuditEntry{
		ID:            correlationID + "-" + time.Now().Format("150405.000000000"),
		CorrelationID: correlationID,
		Sequence:      sequence,
		InstanceID:    instanceID,
		Kind:          models.AuditRecoveryAttempt,
		Severity:      models.SeverityMedium,
		Message:       "attempting recovery",
		CreatedAt:     time.Now().UTC(),
	}
}

func TestAuditRepository_AppendAndListByCorrelationID(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.AuditRepository()

	// Append out of order on purpose; listing must come back in sequence order.
	require.NoError(t, repo.Append(t.Context(), auditEntry("corr-1", "wf-1", 2)))
	require.NoError(t, repo.Append(t.Context(), auditEntry("corr-1", "wf-1", 1)))
	require.NoError(t, repo.Append(t.Context(), auditEntry("corr-1", "wf-1", 3)))

	entries, err := repo.ListByCorrelationID(t.Context(), "corr-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, entry := range entries {
		assert.Equal(t, int64(i+1), entry.Sequence)
	}
}

func TestAuditRepository_ListByCorrelationID_Empty(t *testing.T) {
	p := NewPersistence(t.TempDir())

	entries, err := p.AuditRepository().ListByCorrelationID(t.Context(), "missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuditRepository_ListByInstanceID(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.AuditRepository()

	older := auditEntry("corr-1", "wf-1", 1)
	older.CreatedAt = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	newer := auditEntry("corr-2", "wf-1", 1)
	newer.CreatedAt = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	unrelated := auditEntry("corr-3", "wf-2", 1)

	require.NoError(t, repo.Append(t.Context(), older))
	require.NoError(t, repo.Append(t.Context(), newer))
	require.NoError(t, repo.Append(t.Context(), unrelated))

	entries, err := repo.ListByInstanceID(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "corr-2", entries[0].CorrelationID, "newest first")

	limited, err := repo.ListByInstanceID(t.Context(), "wf-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "corr-2", limited[0].CorrelationID)
}
