package events

import "github.com/medwise/remedion/pkg/models"

// DeadlockDetected is published the moment a wait-for cycle is found, before
// any resolution is attempted, so operators see stuck workflows immediately.
type DeadlockDetected struct {
	BaseEvent

	DeadlockID        string                    `json:"deadlock_id"`
	InvolvedInstances []string                  `json:"involved_instances"`
	Severity          models.DeadlockSeverity   `json:"severity"`
	Resolution        models.DeadlockResolution `json:"resolution"`
	CycleDescription  string                    `json:"cycle_description"`
}

func (d DeadlockDetected) GetType() EventType {
	return DeadlockDetectedEvent
}

func NewDeadlockDetected(deadlock *models.Deadlock) DeadlockDetected {
	return DeadlockDetected{
		BaseEvent:         NewBaseEvent(DeadlockDetectedEvent, ""),
		DeadlockID:        deadlock.ID,
		InvolvedInstances: deadlock.InvolvedInstances,
		Severity:          deadlock.Severity,
		Resolution:        deadlock.ResolutionStrategy,
		CycleDescription:  deadlock.CycleDescription,
	}
}

// DeadlockResolved reports how a detected cycle was broken. VictimInstanceID
// is empty for timeout and manual resolutions, which do not abort anyone.
type DeadlockResolved struct {
	BaseEvent

	DeadlockID        string                    `json:"deadlock_id"`
	Resolution        models.DeadlockResolution `json:"resolution"`
	VictimInstanceID  string                    `json:"victim_instance_id,omitempty"`
	InvolvedInstances []string                  `json:"involved_instances"`
}

func (d DeadlockResolved) GetType() EventType {
	return DeadlockResolvedEvent
}

func NewDeadlockResolved(deadlock *models.Deadlock, victimInstanceID string) DeadlockResolved {
	return DeadlockResolved{
		BaseEvent:         NewBaseEvent(DeadlockResolvedEvent, victimInstanceID),
		DeadlockID:        deadlock.ID,
		Resolution:        deadlock.ResolutionStrategy,
		VictimInstanceID:  victimInstanceID,
		InvolvedInstances: deadlock.InvolvedInstances,
	}
}
