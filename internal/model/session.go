package model

import "time"

// SessionState tracks where a session is in its lifecycle.
type SessionState string

const (
	// SessionOpen accepts appends from file uploads.
	SessionOpen SessionState = "open"
	// SessionFinalizing has an aggregation attempt in flight.
	SessionFinalizing SessionState = "finalizing"
	// SessionClosed has been destroyed; the token is dead.
	SessionClosed SessionState = "closed"
)

// Session is a server-side accumulator for Stage-1 outputs belonging to one
// multi-file batch, identified by an opaque token. A session is single-use:
// it is destroyed after its one aggregation attempt, success or failure.
type Session struct {
	Token     string       `json:"token"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	Pages     []PageRecord `json:"pages,omitempty"`
}
