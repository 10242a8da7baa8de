// Package main provides the Remedion watchdog daemon. It runs the scheduled
// maintenance the recovery pipeline needs but no request triggers: wait-for
// graph scans, snapshot integrity sweeps, stale alert cleanup and
// notification digest flushes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/medwise/remedion/pkg/cmd"
	"github.com/medwise/remedion/pkg/config"
	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/notification"
	"github.com/medwise/remedion/pkg/otelhelper"
)

type Watchdog struct {
	id      string
	engine  *cmd.Engine
	config  config.WatchdogConfig
	digests *notification.DigestScheduler
	tracer  trace.Tracer
	logger  *slog.Logger
	cron    *cron.Cron
}

func NewWatchdog(
	id string,
	engine *cmd.Engine,
	cfg config.WatchdogConfig,
	tracer trace.Tracer,
	logger *slog.Logger,
) (*Watchdog, error) {
	digests, err := notification.NewDigestScheduler(engine.Notifier, cfg.Digests, logger)
	if err != nil {
		return nil, err
	}

	return &Watchdog{
		id:      id,
		engine:  engine,
		config:  cfg,
		digests: digests,
		tracer:  tracer,
		logger:  logger.With("module", "remedion-watchdog", "watchdog_id", id),
	}, nil
}

// Start schedules the maintenance jobs and blocks until SIGINT or SIGTERM.
func (w *Watchdog) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting watchdog",
		"deadlock_scan", w.config.DeadlockScanSchedule,
		"integrity_sweep", w.config.IntegritySweepSchedule,
		"alert_cleanup", w.config.AlertCleanupSchedule,
		"digests", len(w.config.Digests))

	w.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"deadlock_scan", w.config.DeadlockScanSchedule, func() { _, _ = w.ScanDeadlocks(ctx) }},
		{"integrity_sweep", w.config.IntegritySweepSchedule, func() { _, _ = w.SweepSnapshots(ctx) }},
		{"alert_cleanup", w.config.AlertCleanupSchedule, func() { w.ClearStaleAlerts(ctx) }},
	}

	for _, job := range jobs {
		if _, err := w.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
	}

	w.digests.Start(ctx)
	w.cron.Start()

	w.logger.InfoContext(ctx, "Watchdog started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down watchdog...")

	w.Stop()

	return nil
}

// Stop halts both schedulers, waiting for any job still mid-run.
func (w *Watchdog) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}

	w.digests.Stop()
}

// ScanDeadlocks walks the wait-for graph and hands every detected cycle to
// the recovery handler for resolution. Returns the number of cycles found.
func (w *Watchdog) ScanDeadlocks(ctx context.Context) (int, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "watchdog.deadlock_scan",
		attribute.String(otelhelper.ServiceIDKey, w.id))
	defer span.End()

	cycles, err := w.engine.Detector.DetectDeadlocks(ctx)
	if err != nil {
		otelhelper.SetError(span, err)
		w.logger.ErrorContext(ctx, "deadlock scan failed", "error", err)

		return 0, err
	}

	span.SetAttributes(attribute.Int("remedion.deadlock.cycles", len(cycles)))

	for _, cycle := range cycles {
		result := w.engine.Recovery.ResolveDeadlock(ctx, cycle)

		w.logger.InfoContext(ctx, "deadlock resolution finished",
			"deadlock_id", cycle.ID,
			"severity", cycle.Severity,
			"strategy", cycle.ResolutionStrategy,
			"success", result.Success,
			"requires_intervention", result.RequiresIntervention)
	}

	return len(cycles), nil
}

// SweepSnapshots re-verifies every stored snapshot checksum and reports each
// mismatch as CONTENT_CORRUPTED. Returns the number of corrupted snapshots.
func (w *Watchdog) SweepSnapshots(ctx context.Context) (int, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "watchdog.integrity_sweep",
		attribute.String(otelhelper.ServiceIDKey, w.id))
	defer span.End()

	corrupted, err := w.engine.Snapshots.VerifyAll(ctx)
	if err != nil {
		otelhelper.SetError(span, err)
		w.logger.ErrorContext(ctx, "snapshot integrity sweep failed", "error", err)

		return 0, err
	}

	span.SetAttributes(attribute.Int("remedion.snapshot.corrupted", len(corrupted)))

	for _, snapshot := range corrupted {
		w.raiseCorruption(ctx, snapshot)
	}

	return len(corrupted), nil
}

// raiseCorruption pushes one corrupted snapshot through the recovery
// pipeline so an administrator gets paged about it.
func (w *Watchdog) raiseCorruption(ctx context.Context, snapshot *models.StateSnapshot) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "watchdog.raise_corruption",
		attribute.String(otelhelper.InstanceIDKey, snapshot.InstanceID))
	defer span.End()

	instance, err := w.engine.Store.InstanceRepository().GetByID(ctx, snapshot.InstanceID)
	if err != nil {
		otelhelper.SetError(span, err)
		w.logger.ErrorContext(ctx, "failed to load instance for corrupted snapshot",
			"instance_id", snapshot.InstanceID,
			"error", err)

		return
	}

	ectx := models.NewErrorContext(instance)
	ectx.WorkflowInstanceID = snapshot.InstanceID

	workflowError := models.NewWorkflowError(models.ErrCodeContentCorrupted,
		"snapshot checksum mismatch for instance "+snapshot.InstanceID, ectx)

	span.SetAttributes(
		attribute.String(otelhelper.CorrelationIDKey, workflowError.Context.CorrelationID),
		attribute.String(otelhelper.WireCodeKey, workflowError.Code.WireCode()),
	)

	result, err := w.engine.Recovery.HandleWorkflowError(ctx, workflowError, instance)
	if err != nil {
		otelhelper.SetError(span, err)
		w.logger.ErrorContext(ctx, "corruption report rejected",
			"instance_id", snapshot.InstanceID,
			"error", err)

		return
	}

	w.logger.WarnContext(ctx, "corrupted snapshot escalated",
		"instance_id", snapshot.InstanceID,
		"snapshot_captured_at", snapshot.CreatedAt,
		"strategy", result.Strategy,
		"requires_intervention", result.RequiresIntervention,
		"correlation_id", workflowError.Context.CorrelationID)
}

// ClearStaleAlerts drops active alerts older than the configured max age.
func (w *Watchdog) ClearStaleAlerts(ctx context.Context) int {
	_, span := otelhelper.StartSpan(ctx, w.tracer, "watchdog.alert_cleanup",
		attribute.String(otelhelper.ServiceIDKey, w.id))
	defer span.End()

	cleared := w.engine.Recovery.ClearStaleAlerts(w.config.StaleAlertMaxAge)

	span.SetAttributes(attribute.Int("remedion.alerts.cleared", cleared))

	if cleared > 0 {
		w.logger.InfoContext(ctx, "stale alerts cleared",
			"count", cleared,
			"max_age", w.config.StaleAlertMaxAge.String())
	}

	return cleared
}
