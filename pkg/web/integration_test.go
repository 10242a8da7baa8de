//go:build integration

package web_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/medwise/remedion/pkg/audit"
	"github.com/medwise/remedion/pkg/channels/gochannel"
	"github.com/medwise/remedion/pkg/deadlock"
	"github.com/medwise/remedion/pkg/eventbus"
	"github.com/medwise/remedion/pkg/lock"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/notification"
	"github.com/medwise/remedion/pkg/persistence/postgresql"
	"github.com/medwise/remedion/pkg/recovery"
	"github.com/medwise/remedion/pkg/snapshot"
	"github.com/medwise/remedion/pkg/statemachine"
	"github.com/medwise/remedion/pkg/web"
)

func setupTestDB(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "test_remedion",
				"POSTGRES_USER":     "test_user",
				"POSTGRES_PASSWORD": "test_pass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbURL := fmt.Sprintf("postgres://test_user:test_pass@%s:%s/test_remedion?sslmode=disable", host, port.Port())

	// Give the container a moment to settle after the ready log line.
	time.Sleep(2 * time.Second)

	cleanup := func() {
		_ = container.Terminate(ctx)
	}

	return dbURL, cleanup
}

func setupIntegrationApp(t *testing.T, dbURL string) (*fiber.App, *postgresql.Persistence, *audit.Logger) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Migrations run on initialization.
	store, err := postgresql.NewPersistence(context.Background(), logger, dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	publisher, subscriber, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(publisher, subscriber)
	t.Cleanup(func() { _ = bus.Close() })

	notifier := notification.NewBusNotifier(bus, nil, logger)
	auditor := audit.NewLogger(store.AuditRepository(), notifier, logger)
	t.Cleanup(auditor.Close)

	snapshots := snapshot.NewManager(store.SnapshotRepository(), store.InstanceRepository(), auditor, notifier, logger)
	graph := deadlock.NewGraph()
	detector := deadlock.NewDetector(graph, store.InstanceRepository(), logger)
	machine := statemachine.NewValidator()
	executor := recovery.NewExecutor(snapshots, store.InstanceRepository(), machine, auditor, notifier, logger)
	handler := recovery.NewHandler(
		recovery.NewPlanner(),
		executor,
		auditor,
		notifier,
		detector,
		store.InstanceRepository(),
		lock.NewMemoryLocker(),
		logger,
	)

	handlers := web.NewAPIHandlers(store, machine, handler, snapshots, detector,
		validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	app.Post("/transitions/validate", handlers.ValidateTransition)
	app.Post("/errors", handlers.ReportError)
	app.Post("/timeouts", handlers.ReportTimeout)
	app.Get("/instances", handlers.ListInstances)
	app.Get("/instances/:id", handlers.GetInstance)
	app.Put("/instances/:id", handlers.UpsertInstance)
	app.Post("/instances/:id/snapshot", handlers.CreateSnapshot)
	app.Post("/instances/:id/rollback", handlers.RollbackInstance)
	app.Get("/audit", handlers.GetAuditTrail)
	app.Get("/deadlocks", handlers.GetDeadlocks)
	app.Get("/alerts", handlers.GetAlerts)
	app.Get("/health", handlers.HealthCheck)

	return app, store, auditor
}

func TestRecoveryLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbURL, cleanup := setupTestDB(t)
	defer cleanup()

	app, store, auditor := setupIntegrationApp(t, dbURL)
	env := &testEnv{app: app, store: store, auditor: auditor}

	t.Run("Create Instance", func(t *testing.T) {
		resp := env.request(t, http.MethodPut, "/instances/wf-int-1", web.UpsertInstanceRequest{
			ContentID:   "content-int-1",
			ContentType: "post",
			Owner:       "author-int",
			Metadata:    map[string]any{"locale": "en-US"},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created models.WorkflowInstance

		decodeJSON(t, resp, &created)
		assert.Equal(t, "wf-int-1", created.ID)
		assert.Equal(t, models.StateDraft, created.CurrentState)
		assert.NotZero(t, created.CreatedAt)
	})

	t.Run("Validate Transition Against Stored Instance", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/transitions/validate", web.ValidateTransitionRequest{
			InstanceID: "wf-int-1",
			Action:     "SUBMIT_FOR_REVIEW",
			UserID:     "author-int",
			UserRole:   "AUTHOR",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.ValidationResult

		decodeJSON(t, resp, &result)
		assert.True(t, result.Valid)
	})

	t.Run("Snapshot Then Recover By Rollback", func(t *testing.T) {
		snapResp := env.request(t, http.MethodPost, "/instances/wf-int-1/snapshot", nil)
		require.Equal(t, http.StatusCreated, snapResp.StatusCode)

		var captured models.StateSnapshot

		decodeJSON(t, snapResp, &captured)
		assert.Equal(t, models.StateDraft, captured.State)
		assert.NotEmpty(t, captured.Checksum)

		env.advanceState(t, "wf-int-1", 0, models.StateReview)

		resp := env.request(t, http.MethodPost, "/errors", web.ReportErrorRequest{
			Code:          string(models.ErrCodeInvalidStateTransition),
			Message:       "batch import moved the instance through an illegal edge",
			InstanceID:    "wf-int-1",
			CorrelationID: "corr-int-roll",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.RecoveryResult

		decodeJSON(t, resp, &result)
		assert.True(t, result.Success)
		assert.Equal(t, models.StrategyRollback, result.Strategy)
		assert.Equal(t, []string{"create_backup", "rollback_state"}, result.ExecutedSteps)

		var restored models.WorkflowInstance

		decodeJSON(t, env.request(t, http.MethodGet, "/instances/wf-int-1", nil), &restored)
		assert.Equal(t, models.StateDraft, restored.CurrentState)
	})

	t.Run("Audit Trail Persisted In Order", func(t *testing.T) {
		auditor.Flush()

		resp := env.request(t, http.MethodGet, "/audit?correlation_id=corr-int-roll", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var trail struct {
			Entries []*models.AuditEntry `json:"entries"`
			Count   int                  `json:"count"`
		}

		decodeJSON(t, resp, &trail)
		require.Equal(t, 8, trail.Count)
		assert.Equal(t, models.AuditErrorRaised, trail.Entries[0].Kind)
		assert.Equal(t, models.AuditRecoverySuccess, trail.Entries[len(trail.Entries)-1].Kind)

		for i, entry := range trail.Entries {
			assert.Equal(t, int64(i+1), entry.Sequence)
			assert.Equal(t, "corr-int-roll", entry.CorrelationID)
		}
	})

	t.Run("Escalation Locks Content", func(t *testing.T) {
		createResp := env.request(t, http.MethodPut, "/instances/wf-int-2", web.UpsertInstanceRequest{
			ContentID:    "content-int-2",
			ContentType:  "page",
			CurrentState: "REVIEW",
			Owner:        "author-int",
		})
		require.Equal(t, http.StatusCreated, createResp.StatusCode)

		resp := env.request(t, http.MethodPost, "/errors", web.ReportErrorRequest{
			Code:       string(models.ErrCodeUnauthorizedStateChange),
			Message:    "state forced without the reviewer role",
			InstanceID: "wf-int-2",
			UserRole:   "AUTHOR",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.RecoveryResult

		decodeJSON(t, resp, &result)
		assert.True(t, result.Success)
		assert.True(t, result.RequiresIntervention)

		var locked models.WorkflowInstance

		decodeJSON(t, env.request(t, http.MethodGet, "/instances/wf-int-2", nil), &locked)
		assert.True(t, locked.Locked)

		var alerts struct {
			Alerts []recovery.Alert `json:"alerts"`
			Count  int              `json:"count"`
		}

		decodeJSON(t, env.request(t, http.MethodGet, "/alerts", nil), &alerts)
		assert.Equal(t, 1, alerts.Count)
	})

	t.Run("Manual Rollback Endpoint", func(t *testing.T) {
		createResp := env.request(t, http.MethodPut, "/instances/wf-int-3", web.UpsertInstanceRequest{
			ContentID:   "content-int-3",
			ContentType: "post",
			Owner:       "author-int",
		})
		require.Equal(t, http.StatusCreated, createResp.StatusCode)

		snapResp := env.request(t, http.MethodPost, "/instances/wf-int-3/snapshot?correlation_id=corr-int-manual", nil)
		require.Equal(t, http.StatusCreated, snapResp.StatusCode)

		env.advanceState(t, "wf-int-3", 0, models.StateReview)

		resp := env.request(t, http.MethodPost, "/instances/wf-int-3/rollback", web.RollbackRequest{
			Reason:        "submitted by mistake",
			PerformedBy:   "admin-int",
			CorrelationID: "corr-int-manual",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.RollbackResult

		decodeJSON(t, resp, &result)
		assert.Equal(t, models.StateDraft, result.RestoredState)
		assert.Equal(t, models.StateReview, result.RevertedState)
	})

	t.Run("Health Check", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var health struct {
			Status   string            `json:"status"`
			Checkers map[string]string `json:"checkers"`
		}

		decodeJSON(t, resp, &health)
		assert.Equal(t, "healthy", health.Status)
		assert.Equal(t, "ok", health.Checkers["repository"])
	})
}

func TestConcurrentVersioning_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbURL, cleanup := setupTestDB(t)
	defer cleanup()

	app, store, auditor := setupIntegrationApp(t, dbURL)
	env := &testEnv{app: app, store: store, auditor: auditor}

	createResp := env.request(t, http.MethodPut, "/instances/wf-int-ver", web.UpsertInstanceRequest{
		ContentID:   "content-int-ver",
		ContentType: "post",
		Owner:       "author-int",
	})
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	env.advanceState(t, "wf-int-ver", 0, models.StateReview)

	// A validation pinned to the pre-transition version must conflict.
	resp := env.request(t, http.MethodPost, "/transitions/validate", web.ValidateTransitionRequest{
		InstanceID:      "wf-int-ver",
		Action:          "APPROVE",
		UserID:          "reviewer-int",
		UserRole:        "APPROVER",
		ExpectedVersion: 5,
		Metadata:        map[string]any{"reviewCompleted": true},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var problem struct {
		Type string `json:"type"`
	}

	decodeJSON(t, resp, &problem)
	assert.Equal(t, "WF4003", problem.Type)

	// The same request pinned to the live version passes.
	resp = env.request(t, http.MethodPost, "/transitions/validate", web.ValidateTransitionRequest{
		InstanceID:      "wf-int-ver",
		Action:          "APPROVE",
		UserID:          "reviewer-int",
		UserRole:        "APPROVER",
		ExpectedVersion: 1,
		Metadata:        map[string]any{"reviewCompleted": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.ValidationResult

	decodeJSON(t, resp, &result)
	assert.True(t, result.Valid)
}
