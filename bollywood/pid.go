package bollywood

import "github.com/google/uuid"

// PID is a stable, opaque identity for an actor. It survives migration
// between workers - only the actor's owner reference changes.
type PID struct {
	id string
}

func newPID() PID {
	return PID{id: uuid.NewString()}
}

// String returns the string representation of the PID.
func (p PID) String() string {
	return p.id
}

// IsZero reports whether p is the zero PID (never assigned by the runtime).
func (p PID) IsZero() bool {
	return p.id == ""
}
