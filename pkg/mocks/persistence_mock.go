package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// MockInstanceRepository is a mock implementation of persistence.InstanceRepository interface.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) List(ctx context.Context) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) UpdateState(ctx context.Context, id string, expectedVersion int64, newState models.WorkflowState, record models.TransitionRecord) (*models.WorkflowInstance, error) {
	args := m.Called(ctx, id, expectedVersion, newState, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) SetContentLock(ctx context.Context, id string, locked bool, reason string) error {
	args := m.Called(ctx, id, locked, reason)

	return args.Error(0)
}

func (m *MockInstanceRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockSnapshotRepository is a mock implementation of persistence.SnapshotRepository interface.
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Save(ctx context.Context, snapshot *models.StateSnapshot) error {
	args := m.Called(ctx, snapshot)

	return args.Error(0)
}

func (m *MockSnapshotRepository) GetByInstanceID(ctx context.Context, instanceID string) (*models.StateSnapshot, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.StateSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) List(ctx context.Context) ([]*models.StateSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StateSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) Delete(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)

	return args.Error(0)
}

// MockAuditRepository is a mock implementation of persistence.AuditRepository interface.
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockAuditRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AuditEntry), args.Error(1)
}

func (m *MockAuditRepository) ListByInstanceID(ctx context.Context, instanceID string, limit int) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, instanceID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AuditEntry), args.Error(1)
}

// AppendedKinds returns the kinds of all entries appended so far, in call
// order. Lets failure tests assert on the recorded trail without replaying
// mock call arguments by hand.
func (m *MockAuditRepository) AppendedKinds() []models.AuditEntryKind {
	kinds := make([]models.AuditEntryKind, 0, len(m.Calls))

	for _, call := range m.Calls {
		if call.Method != "Append" {
			continue
		}

		entry, ok := call.Arguments.Get(1).(*models.AuditEntry)
		if !ok {
			continue
		}

		kinds = append(kinds, entry.Kind)
	}

	return kinds
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	instanceRepo *MockInstanceRepository
	snapshotRepo *MockSnapshotRepository
	auditRepo    *MockAuditRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		instanceRepo: &MockInstanceRepository{},
		snapshotRepo: &MockSnapshotRepository{},
		auditRepo:    &MockAuditRepository{},
	}
}

// GetMockInstanceRepository returns the underlying mock instance repository for setting up expectations.
func (m *MockPersistence) GetMockInstanceRepository() *MockInstanceRepository {
	return m.instanceRepo
}

// GetMockSnapshotRepository returns the underlying mock snapshot repository for setting up expectations.
func (m *MockPersistence) GetMockSnapshotRepository() *MockSnapshotRepository {
	return m.snapshotRepo
}

// GetMockAuditRepository returns the underlying mock audit repository for setting up expectations.
func (m *MockPersistence) GetMockAuditRepository() *MockAuditRepository {
	return m.auditRepo
}

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository {
	return m.instanceRepo
}

func (m *MockPersistence) SnapshotRepository() persistence.SnapshotRepository {
	return m.snapshotRepo
}

func (m *MockPersistence) AuditRepository() persistence.AuditRepository {
	return m.auditRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
