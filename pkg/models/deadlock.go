package models

import "time"

// DeadlockSeverity grades a detected cycle by blast radius.
type DeadlockSeverity string

const (
	DeadlockMinor    DeadlockSeverity = "minor"    // Two instances
	DeadlockMajor    DeadlockSeverity = "major"    // Three or four instances
	DeadlockCritical DeadlockSeverity = "critical" // Five or more, or platform content involved
)

// DeadlockResolution names how a detected deadlock should be broken.
type DeadlockResolution string

const (
	ResolutionTimeout  DeadlockResolution = "timeout"  // Let the pending waits expire naturally
	ResolutionPriority DeadlockResolution = "priority" // Abort the lowest-priority instances
	ResolutionAbort    DeadlockResolution = "abort"    // Abort every instance in the cycle
	ResolutionManual   DeadlockResolution = "manual"   // Page an administrator
)

// Deadlock describes one cycle found in the wait-for graph.
type Deadlock struct {
	ID                 string             `json:"id"`
	DetectedAt         time.Time          `json:"detected_at"`
	InvolvedInstances  []string           `json:"involved_instances"`
	CycleDescription   string             `json:"cycle_description"`
	Severity           DeadlockSeverity   `json:"severity"`
	ResolutionStrategy DeadlockResolution `json:"resolution_strategy"`
	EstimatedImpact    string             `json:"estimated_impact"`
}
