package entities

import (
	"strings"

	"github.com/google/uuid"
)

const draftIDPrefix = "draft/"

// TaskID identifies a task either by a locally generated draft id or by the
// id assigned by the remote task service. The zero value identifies nothing.
type TaskID struct {
	value string
	draft bool
}

// NewDraftID returns a fresh local-only id.
func NewDraftID() TaskID {
	return TaskID{value: uuid.NewString(), draft: true}
}

// PersistedID wraps a server-assigned id.
func PersistedID(id string) TaskID {
	return TaskID{value: id}
}

// ParseTaskID is the inverse of TaskID.String.
func ParseTaskID(s string) TaskID {
	if local, ok := strings.CutPrefix(s, draftIDPrefix); ok {
		return TaskID{value: local, draft: true}
	}
	return PersistedID(s)
}

func (id TaskID) IsDraft() bool { return id.draft }

func (id TaskID) IsZero() bool { return id.value == "" }

// RemoteID returns the server id. ok is false for drafts and the zero id.
func (id TaskID) RemoteID() (string, bool) {
	if id.draft || id.value == "" {
		return "", false
	}
	return id.value, true
}

func (id TaskID) String() string {
	if id.draft {
		return draftIDPrefix + id.value
	}
	return id.value
}

func (id TaskID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TaskID) UnmarshalText(b []byte) error {
	*id = ParseTaskID(string(b))
	return nil
}
