// Package session holds accumulated Stage-1 outputs for a batch identified
// by an opaque token, across pluggable storage backends.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/billscan/internal/model"
)

// ErrUnknownSession marks a token that does not name a live session.
var ErrUnknownSession = errors.New("unknown session")

// ErrInvalidToken marks a malformed token. Tokens are validated before any
// backing storage is touched, regardless of storage medium: a token that
// could traverse paths must never reach a lookup.
var ErrInvalidToken = errors.New("invalid session token")

// ErrSessionFinalizing marks an append attempted while the session's one
// aggregation attempt is in flight.
var ErrSessionFinalizing = errors.New("session is finalizing")

// Store defines the persistence interface for session accumulation. Appends
// for the same token may race from parallel uploads; every implementation
// must make each append an atomic add so no batch is lost and readers never
// observe a torn collection.
type Store interface {
	// Create allocates a fresh session with a unique opaque token.
	Create(ctx context.Context) (string, error)

	// Append adds page records to an open session, preserving arrival order.
	Append(ctx context.Context, token string, pages []model.PageRecord) error

	// ReadAll returns the accumulated records without mutating the session.
	ReadAll(ctx context.Context, token string) ([]model.PageRecord, error)

	// Finalize moves an open session to the finalizing state, barring
	// further appends while its single aggregation attempt runs.
	Finalize(ctx context.Context, token string) error

	// Destroy idempotently removes all state for the session. Destroying
	// an already-destroyed token is a no-op, not an error.
	Destroy(ctx context.Context, token string) error

	// List returns the live sessions without their page records.
	List(ctx context.Context) ([]model.Session, error)

	// DeleteExpired removes sessions idle longer than the store's TTL and
	// returns how many were removed.
	DeleteExpired(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// DefaultTTL bounds unbounded session growth when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// ValidateToken rejects tokens outside the strict allowed character set
// (hex digits and dashes, the UUID alphabet) or of unreasonable length.
// Path separators and dot sequences can never pass.
func ValidateToken(token string) error {
	if len(token) == 0 || len(token) > 64 {
		return ErrInvalidToken
	}
	for _, c := range token {
		switch {
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return ErrInvalidToken
		}
	}
	return nil
}
