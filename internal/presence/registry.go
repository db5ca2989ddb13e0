//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_registry.go -package=mocks

// Package presence tracks who is behind each live connection and which users
// are currently online.
package presence

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a connection has no presence entry.
var ErrNotFound = errors.New("presence entry not found")

// Registry maps connection identifiers to the user authenticated on them.
// Entries live until deleted; a backend TTL, when configured, only bounds
// the lifetime of entries orphaned by a crash.
type Registry interface {
	Put(ctx context.Context, connectionID, userID string) error
	Get(ctx context.Context, connectionID string) (string, error)
	Delete(ctx context.Context, connectionID string) error
}
