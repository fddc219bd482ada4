// Package store persists the intelligence record of retired sessions.
package store

import (
	"context"

	"github.com/honeygrid/scamtrap/internal/domain"
)

// Archive is the durable audit trail for sessions leaving active storage.
// Write-only from the pipeline's perspective: archived intelligence is
// never loaded back into a live session.
type Archive interface {
	// SaveSession appends the session's final state to the archive.
	SaveSession(ctx context.Context, s *domain.Session) error

	// CountSessions returns the number of archived session records.
	CountSessions(ctx context.Context) (int64, error)

	// Ping verifies the archive is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying database.
	Close() error
}
