// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/evac-dialogue/internal/domain"
)

// Repository defines the interface for archiving conversation turns.
type Repository interface {
	// SaveTurn appends a turn and sets its ID.
	SaveTurn(ctx context.Context, turn *domain.Turn) error

	// ListTurns returns a session's turns in insertion order. A limit > 0
	// keeps only the most recent turns.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)

	// ListSessions returns the archived session ids, most recently active first.
	ListSessions(ctx context.Context) ([]string, error)

	// DeleteSession removes every turn of a session.
	DeleteSession(ctx context.Context, sessionID string) (int64, error)

	// CleanupOlderThan removes turns created before now minus ttl.
	CleanupOlderThan(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
