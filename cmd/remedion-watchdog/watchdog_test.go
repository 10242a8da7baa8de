package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/medwise/remedion/pkg/channels/gochannel"
	"github.com/medwise/remedion/pkg/cmd"
	"github.com/medwise/remedion/pkg/config"
	"github.com/medwise/remedion/pkg/eventbus"
	"github.com/medwise/remedion/pkg/lock"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence/file"
)

func setupTestEngine(t *testing.T) *cmd.Engine {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	publisher, subscriber, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(publisher, subscriber)
	t.Cleanup(func() { _ = bus.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := cmd.NewEngine(store, bus, lock.NewMemoryLocker(), logger)
	t.Cleanup(engine.Close)

	return engine
}

func setupTestWatchdog(t *testing.T) (*Watchdog, *cmd.Engine) {
	t.Helper()

	engine := setupTestEngine(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	watchdog, err := NewWatchdog("watchdog-test", engine, config.DefaultWatchdogConfig(), otel.Tracer("test"), logger)
	require.NoError(t, err)

	return watchdog, engine
}

func seedInstance(t *testing.T, engine *cmd.Engine, id string, contentType models.ContentType) *models.WorkflowInstance {
	t.Helper()

	instance := &models.WorkflowInstance{
		ID:           id,
		ContentID:    "content-" + id,
		ContentType:  contentType,
		CurrentState: models.StateReview,
		Owner:        "author-1",
	}
	require.NoError(t, engine.Store.InstanceRepository().Save(t.Context(), instance))

	return instance
}

func TestWatchdog_ScanDeadlocks_EmptyGraph(t *testing.T) {
	watchdog, engine := setupTestWatchdog(t)

	detected, err := watchdog.ScanDeadlocks(t.Context())
	require.NoError(t, err)

	assert.Zero(t, detected)
	assert.Empty(t, engine.Recovery.ActiveAlerts())
}

func TestWatchdog_ScanDeadlocks_MinorCycleWaitsOut(t *testing.T) {
	watchdog, engine := setupTestWatchdog(t)

	seedInstance(t, engine, "wf-a", models.ContentTypePost)
	seedInstance(t, engine, "wf-b", models.ContentTypePost)

	engine.Graph.RegisterWait("wf-a", "wf-b")
	engine.Graph.RegisterWait("wf-b", "wf-a")

	detected, err := watchdog.ScanDeadlocks(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, detected)

	// A two-instance cycle resolves by letting the pending waits expire:
	// nobody gets paged and the waits stay registered until their timeouts
	// fire.
	assert.Empty(t, engine.Recovery.ActiveAlerts())
	assert.Equal(t, 2, engine.Graph.WaitCount())
}

func TestWatchdog_ScanDeadlocks_CriticalCyclePagesAdministrators(t *testing.T) {
	watchdog, engine := setupTestWatchdog(t)

	seedInstance(t, engine, "wf-platform", models.ContentTypePlatform)
	seedInstance(t, engine, "wf-post", models.ContentTypePost)

	engine.Graph.RegisterWait("wf-platform", "wf-post")
	engine.Graph.RegisterWait("wf-post", "wf-platform")

	detected, err := watchdog.ScanDeadlocks(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, detected)

	alerts := engine.Recovery.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.ErrCodeWorkflowDeadlockDetected, alerts[0].Code)
	assert.Equal(t, "WF4102", alerts[0].WireCode)
	assert.Contains(t, alerts[0].Message, "manual resolution")
}

func TestWatchdog_SweepSnapshots_CleanStore(t *testing.T) {
	watchdog, engine := setupTestWatchdog(t)

	instance := seedInstance(t, engine, "wf-clean", models.ContentTypePost)

	_, err := engine.Snapshots.Create(t.Context(), "corr-sweep-clean", instance)
	require.NoError(t, err)

	corrupted, err := watchdog.SweepSnapshots(t.Context())
	require.NoError(t, err)

	assert.Zero(t, corrupted)
	assert.Empty(t, engine.Recovery.ActiveAlerts())
}

func TestWatchdog_SweepSnapshots_RaisesCorruption(t *testing.T) {
	watchdog, engine := setupTestWatchdog(t)

	instance := seedInstance(t, engine, "wf-corrupt", models.ContentTypePost)

	snapshot, err := engine.Snapshots.Create(t.Context(), "corr-sweep-1", instance)
	require.NoError(t, err)

	// Tamper with the stored copy so the checksum no longer matches.
	snapshot.State = models.StateApproved
	require.NoError(t, engine.Store.SnapshotRepository().Save(t.Context(), snapshot))

	corrupted, err := watchdog.SweepSnapshots(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, corrupted)

	alerts := engine.Recovery.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.ErrCodeContentCorrupted, alerts[0].Code)
	assert.Equal(t, "wf-corrupt", alerts[0].InstanceID)

	// Corruption pages an administrator but leaves the instance unlocked
	// for them to inspect.
	stored, err := engine.Store.InstanceRepository().GetByID(t.Context(), "wf-corrupt")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Locked)
}

func TestWatchdog_ClearStaleAlerts(t *testing.T) {
	watchdog, engine := setupTestWatchdog(t)

	seedInstance(t, engine, "wf-p", models.ContentTypePlatform)
	seedInstance(t, engine, "wf-q", models.ContentTypePost)

	engine.Graph.RegisterWait("wf-p", "wf-q")
	engine.Graph.RegisterWait("wf-q", "wf-p")

	_, err := watchdog.ScanDeadlocks(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, engine.Recovery.ActiveAlerts())

	// Fresh alerts survive the default 24h window.
	assert.Zero(t, watchdog.ClearStaleAlerts(t.Context()))
	assert.NotEmpty(t, engine.Recovery.ActiveAlerts())

	watchdog.config.StaleAlertMaxAge = time.Nanosecond
	time.Sleep(2 * time.Millisecond)

	assert.Equal(t, 1, watchdog.ClearStaleAlerts(t.Context()))
	assert.Empty(t, engine.Recovery.ActiveAlerts())
}

func TestWatchdog_StopBeforeStart(t *testing.T) {
	watchdog, _ := setupTestWatchdog(t)

	// Stop before Start must not panic: the cron is nil and the digest
	// scheduler never ran.
	watchdog.Stop()
}

func TestNewWatchdog_RejectsInvalidDigestSchedule(t *testing.T) {
	engine := setupTestEngine(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.DefaultWatchdogConfig()
	cfg.Digests = append(cfg.Digests, &models.DigestSchedule{
		ID:             "broken",
		Channel:        "ops",
		CronExpression: "not-a-cron",
	})

	_, err := NewWatchdog("watchdog-test", engine, cfg, otel.Tracer("test"), logger)
	require.Error(t, err)
}
