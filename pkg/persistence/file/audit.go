package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/persistence"
)

// AuditRepository stores audit entries as one JSON-lines file per
// correlation ID. Appends never rewrite existing lines, which keeps the
// trail append-only even on the file backend.
type AuditRepository struct {
	root string
	mu   sync.Mutex
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(root string) *AuditRepository {
	return &AuditRepository{root: root}
}

// Append writes one entry to the trail of its correlation ID.
func (ar *AuditRepository) Append(_ context.Context, entry *models.AuditEntry) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	err := os.MkdirAll(ar.root+"/audit", 0750)
	if err != nil {
		return persistence.NewAuditError("Append", entry.CorrelationID, err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return persistence.NewAuditError("Append", entry.CorrelationID, err)
	}

	filePath := path.Join(ar.root+"/audit", entry.CorrelationID+".jsonl")

	file, err := os.OpenFile(filepath.Clean(filePath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return persistence.NewAuditError("Append", entry.CorrelationID, err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return persistence.NewAuditError("Append", entry.CorrelationID, err)
	}

	return nil
}

// ListByCorrelationID returns the trail for one correlation in sequence order.
func (ar *AuditRepository) ListByCorrelationID(_ context.Context, correlationID string) ([]*models.AuditEntry, error) {
	entries, err := ar.readTrail(correlationID)
	if err != nil {
		return nil, persistence.NewAuditError("ListByCorrelationID", correlationID, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})

	return entries, nil
}

// ListByInstanceID returns entries touching one instance, newest first,
// capped at limit when limit is positive.
func (ar *AuditRepository) ListByInstanceID(_ context.Context, instanceID string, limit int) ([]*models.AuditEntry, error) {
	root := os.DirFS(ar.root + "/audit")

	trailFiles, err := fs.Glob(root, "*.jsonl")
	if err != nil {
		return nil, persistence.NewAuditError("ListByInstanceID", instanceID, err)
	}

	var entries []*models.AuditEntry

	for _, file := range trailFiles {
		correlationID := file[:len(file)-6] // Remove .jsonl extension

		trail, err := ar.readTrail(correlationID)
		if err != nil {
			return nil, persistence.NewAuditError("ListByInstanceID", instanceID, err)
		}

		for _, entry := range trail {
			if entry.InstanceID == instanceID {
				entries = append(entries, entry)
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Sequence > entries[j].Sequence
		}

		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

func (ar *AuditRepository) readTrail(correlationID string) ([]*models.AuditEntry, error) {
	filePath := filepath.Clean(path.Join(ar.root, "audit", correlationID+".jsonl"))

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to open audit trail %s: %w", correlationID, err)
	}
	defer file.Close()

	var entries []*models.AuditEntry

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry models.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entry in %s: %w", correlationID, err)
		}

		entries = append(entries, &entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit trail %s: %w", correlationID, err)
	}

	return entries, nil
}
