// Package session keeps per-session conversation history.
package session

import (
	"regexp"
	"time"
)

const (
	// DefaultID is used when a request carries no session identifier.
	DefaultID = "default"

	// IDPattern is the accepted shape of a session identifier. Identifiers
	// are embedded in file names, so path separators and dots are excluded.
	IDPattern = `^[A-Za-z0-9_-]{1,128}$`
)

var idRe = regexp.MustCompile(IDPattern)

// ValidID reports whether id matches IDPattern.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}

// Turn is one exchange between the user and the assistant.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Session is a snapshot of a conversation.
type Session struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"session_id"`
	Turns     []Turn    `json:"turns"`
}

// Store maps session identifiers to conversation history. Implementations
// must be safe for concurrent use. Returned sessions are copies.
type Store interface {
	// GetOrCreate returns the session for id, creating an empty one if needed.
	GetOrCreate(id string) Session

	// Append adds a turn to the session for id, creating it if needed.
	Append(id string, turn Turn) Session

	// Get returns the session for id when it exists.
	Get(id string) (Session, bool)
}
