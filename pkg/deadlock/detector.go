package deadlock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// Detector finds cycles in the wait-for graph and grades them. Detection is
// read-only: resolution is the recovery handler's job.
type Detector struct {
	graph     *Graph
	instances persistence.InstanceRepository
	logger    *slog.Logger
}

// NewDetector wires a detector over the shared wait-for graph. The instance
// repository is consulted to grade cycles by the content they block.
func NewDetector(graph *Graph, instances persistence.InstanceRepository, logger *slog.Logger) *Detector {
	return &Detector{
		graph:     graph,
		instances: instances,
		logger:    logger.With("module", "deadlock"),
	}
}

// Graph returns the wait-for graph the detector watches.
func (d *Detector) Graph() *Graph {
	return d.graph
}

// DetectDeadlocks scans the wait-for graph and returns one report per cycle.
// Each cycle is canonicalized to start at its smallest instance ID, so
// repeated scans of an unchanged graph produce identical reports apart from
// the freshly minted deadlock IDs.
func (d *Detector) DetectDeadlocks(ctx context.Context) ([]*models.Deadlock, error) {
	cycles := findCycles(d.graph.Snapshot())
	if len(cycles) == 0 {
		return nil, nil
	}

	deadlocks := make([]*models.Deadlock, 0, len(cycles))

	for _, cycle := range cycles {
		deadlock, err := d.buildReport(ctx, cycle)
		if err != nil {
			return nil, err
		}

		d.logger.WarnContext(ctx, "deadlock detected",
			"deadlock_id", deadlock.ID,
			"instances", deadlock.InvolvedInstances,
			"severity", deadlock.Severity,
			"resolution", deadlock.ResolutionStrategy)

		deadlocks = append(deadlocks, deadlock)
	}

	return deadlocks, nil
}

// CheckInstance reports the cycle a specific instance is part of, or nil when
// the instance is not deadlocked.
func (d *Detector) CheckInstance(ctx context.Context, instanceID string) (*models.Deadlock, error) {
	deadlocks, err := d.DetectDeadlocks(ctx)
	if err != nil {
		return nil, err
	}

	for _, deadlock := range deadlocks {
		for _, involved := range deadlock.InvolvedInstances {
			if involved == instanceID {
				return deadlock, nil
			}
		}
	}

	return nil, nil
}

// buildReport grades a cycle and assembles the report.
func (d *Detector) buildReport(ctx context.Context, cycle []string) (*models.Deadlock, error) {
	platform, err := d.involvesPlatformContent(ctx, cycle)
	if err != nil {
		return nil, err
	}

	severity := gradeCycle(len(cycle), platform)

	impact := fmt.Sprintf("%d instance(s) blocked", len(cycle))
	if platform {
		impact += ", platform content affected"
	}

	return &models.Deadlock{
		ID:                 uuid.Must(uuid.NewV7()).String(),
		DetectedAt:         time.Now().UTC(),
		InvolvedInstances:  cycle,
		CycleDescription:   formatCycle(cycle),
		Severity:           severity,
		ResolutionStrategy: resolutionFor(severity),
		EstimatedImpact:    impact,
	}, nil
}

func (d *Detector) involvesPlatformContent(ctx context.Context, cycle []string) (bool, error) {
	for _, instanceID := range cycle {
		instance, err := d.instances.GetByID(ctx, instanceID)
		if err != nil {
			return false, err
		}

		if instance != nil && instance.ContentType == models.ContentTypePlatform {
			return true, nil
		}
	}

	return false, nil
}

// gradeCycle maps cycle size to severity. Cycles touching platform content
// always grade critical, whatever their size.
func gradeCycle(size int, platform bool) models.DeadlockSeverity {
	if platform {
		return models.DeadlockCritical
	}

	switch {
	case size >= 5:
		return models.DeadlockCritical
	case size >= 3:
		return models.DeadlockMajor
	default:
		return models.DeadlockMinor
	}
}

func resolutionFor(severity models.DeadlockSeverity) models.DeadlockResolution {
	switch severity {
	case models.DeadlockCritical:
		return models.ResolutionManual
	case models.DeadlockMajor:
		return models.ResolutionPriority
	default:
		return models.ResolutionTimeout
	}
}

func formatCycle(cycle []string) string {
	return strings.Join(append(append([]string(nil), cycle...), cycle[0]), " -> ")
}

const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

type frame struct {
	node string
	next int
}

// findCycles walks the snapshot with an iterative depth-first search using
// tri-color marking. A back edge to a gray node closes a cycle; the cycle is
// read off the current path. Roots are visited in sorted order and each cycle
// is canonicalized and deduplicated, so output order is deterministic.
func findCycles(adjacency map[string][]string) [][]string {
	nodes := make([]string, 0, len(adjacency))
	for node := range adjacency {
		nodes = append(nodes, node)
	}

	sort.Strings(nodes)

	colors := make(map[string]int, len(nodes))
	seen := make(map[string]struct{})

	var cycles [][]string

	for _, root := range nodes {
		if colors[root] != white {
			continue
		}

		stack := []frame{{node: root}}
		path := []string{root}
		onPath := map[string]int{root: 0}
		colors[root] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := adjacency[top.node]

			if top.next < len(neighbors) {
				neighbor := neighbors[top.next]
				top.next++

				switch colors[neighbor] {
				case gray:
					if start, ok := onPath[neighbor]; ok {
						cycle := canonicalize(path[start:])
						key := strings.Join(cycle, "\x00")

						if _, dup := seen[key]; !dup {
							seen[key] = struct{}{}

							cycles = append(cycles, cycle)
						}
					}
				case white:
					colors[neighbor] = gray
					onPath[neighbor] = len(path)
					path = append(path, neighbor)
					stack = append(stack, frame{node: neighbor})
				}

				continue
			}

			colors[top.node] = black
			delete(onPath, top.node)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}

	return cycles
}

// canonicalize rotates a cycle so it starts at its smallest instance ID,
// keeping the original wait order.
func canonicalize(cycle []string) []string {
	smallest := 0
	for i, node := range cycle {
		if node < cycle[smallest] {
			smallest = i
		}
	}

	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[smallest:]...)
	rotated = append(rotated, cycle[:smallest]...)

	return rotated
}
