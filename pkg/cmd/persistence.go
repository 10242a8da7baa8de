// Package cmd provides common initialization for the remedion binaries:
// persistence, event bus, instance locker and the assembled recovery engine.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/medwise/remedion/pkg/persistence"
	"github.com/medwise/remedion/pkg/persistence/file"
	"github.com/medwise/remedion/pkg/persistence/postgresql"
)

// NewPersistence builds the persistence layer for a database URL. Postgres
// URLs get the SQL implementation; a file URL (or a bare path) is treated as
// the root directory of the filesystem implementation.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	scheme, rest := splitScheme(databaseURL)

	switch scheme {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file", "":
		return file.NewPersistence(rest), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider: %s", scheme)
	}
}

func splitScheme(databaseURL string) (string, string) {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) == 1 {
		return "", parts[0]
	}

	return parts[0], parts[1]
}
