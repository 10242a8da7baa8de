package cmd

import (
	"log/slog"

	"github.com/medwise/remedion/pkg/audit"
	"github.com/medwise/remedion/pkg/deadlock"
	"github.com/medwise/remedion/pkg/eventbus"
	"github.com/medwise/remedion/pkg/lock"
	"github.com/medwise/remedion/pkg/notification"
	"github.com/medwise/remedion/pkg/persistence"
	"github.com/medwise/remedion/pkg/recovery"
	"github.com/medwise/remedion/pkg/snapshot"
	"github.com/medwise/remedion/pkg/statemachine"
)

// Engine bundles the assembled recovery pipeline shared by the API and
// watchdog binaries.
type Engine struct {
	Store     persistence.Persistence
	Bus       eventbus.EventBus
	Notifier  *notification.BusNotifier
	Auditor   *audit.Logger
	Snapshots *snapshot.Manager
	Graph     *deadlock.Graph
	Detector  *deadlock.Detector
	Machine   *statemachine.Validator
	Recovery  *recovery.Handler
}

// NewEngine wires the recovery pipeline on top of the store, bus and locker
// the binary selected.
func NewEngine(store persistence.Persistence, bus eventbus.EventBus, locker lock.InstanceLocker, logger *slog.Logger) *Engine {
	notifier := notification.NewBusNotifier(bus, nil, logger)
	auditor := audit.NewLogger(store.AuditRepository(), notifier, logger)
	notifier.BindAuditor(auditor)

	snapshots := snapshot.NewManager(store.SnapshotRepository(), store.InstanceRepository(), auditor, notifier, logger)
	graph := deadlock.NewGraph()
	detector := deadlock.NewDetector(graph, store.InstanceRepository(), logger)
	machine := statemachine.NewValidator()
	executor := recovery.NewExecutor(snapshots, store.InstanceRepository(), machine, auditor, notifier, logger)
	handler := recovery.NewHandler(recovery.NewPlanner(), executor, auditor, notifier, detector,
		store.InstanceRepository(), locker, logger)

	return &Engine{
		Store:     store,
		Bus:       bus,
		Notifier:  notifier,
		Auditor:   auditor,
		Snapshots: snapshots,
		Graph:     graph,
		Detector:  detector,
		Machine:   machine,
		Recovery:  handler,
	}
}

// Close drains the audit pipeline, then the notifier. The store and bus are
// closed by the binary that opened them.
func (e *Engine) Close() {
	e.Auditor.Close()
	e.Notifier.Close()
}
