// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/avesely/opsdeck/internal/domain"
)

// Repository defines the interface for persisting user and trace data.
type Repository interface {
	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// SaveTrace appends one turn trace record.
	SaveTrace(ctx context.Context, rec *domain.TraceRecord) error

	// ListTraces returns the most recent traces, optionally filtered by
	// session ID. Results are ordered newest first.
	ListTraces(ctx context.Context, sessionID string, limit int) ([]*domain.TraceRecord, error)

	// DeleteTracesBefore removes traces created before the cutoff and
	// returns the number of rows deleted.
	DeleteTracesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
