package core

import "github.com/google/uuid"

// TaskID identifies a single observed task execution for TaskExecutionRecord
// and barrier bookkeeping. It is a UUID rather than a counter so that IDs
// stay unique across process restarts when history is exported externally.
type TaskID struct {
	id uuid.UUID
}

// GenerateTaskID returns a fresh, non-zero TaskID.
func GenerateTaskID() TaskID {
	return TaskID{id: uuid.New()}
}

// IsZero reports whether this is the zero TaskID (never generated).
func (t TaskID) IsZero() bool {
	return t.id == uuid.Nil
}

// String returns the canonical UUID representation.
func (t TaskID) String() string {
	return t.id.String()
}
