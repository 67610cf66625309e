// Package store provides the shared session document storage: keyed
// read/write plus a per-session change feed. There is no compare-and-swap;
// the single-writer host guard makes last-writer-wins acceptable for the
// narrative fields.
package store

import (
	"context"

	"saga-server/internal/models"
)

// SessionStore is the document storage every component reads and writes
// through. Implementations must publish the new snapshot to all subscribers
// after every successful write.
type SessionStore interface {
	// Create stores a new session document. Returns models.ErrSessionExists
	// if the id is already taken.
	Create(ctx context.Context, session *models.Session) error

	// Get returns the current session document, or models.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Put replaces the whole session document and publishes it.
	Put(ctx context.Context, session *models.Session) error

	// Update performs a read-modify-write: it reads the current document,
	// applies fn to it, writes it back and publishes it. If fn returns an
	// error the write is skipped and the error is returned unchanged. This
	// is the narrow-patch path; ordering against concurrent writers is
	// last-writer-wins.
	Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error)

	// Subscribe returns a channel delivering each published snapshot of the
	// session until ctx is cancelled. Slow consumers may miss intermediate
	// snapshots but always eventually observe the latest one.
	Subscribe(ctx context.Context, id string) (<-chan *models.Session, error)
}
