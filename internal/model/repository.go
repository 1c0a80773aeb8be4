package model

import (
	"strings"
	"time"
)

type CloneStatus string

const (
	ClonePending CloneStatus = "PENDING"
	CloneSuccess CloneStatus = "SUCCESS"
	CloneFailure CloneStatus = "FAILURE"
)

type DocStatus string

const (
	DocNotDocumented DocStatus = "Not Documented"
	DocDocumented    DocStatus = "documented"
)

// provisionalPrefix marks repository keys that were assigned locally at clone
// submission time and have not been confirmed by the backend yet.
const provisionalPrefix = "task:"

// Repository is a registered source repository as held by the store.
type Repository struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	URL            string      `json:"repo_url"`
	VersionedAt    time.Time   `json:"date_of_version"`
	SpecificPrompt string      `json:"specific_prompt,omitempty"`
	CloneStatus    CloneStatus `json:"clone_status"`
	DocStatus      DocStatus   `json:"doc_status"`

	// StatusMessage holds the last failure reason reported for this row.
	StatusMessage string `json:"status_message,omitempty"`
}

// RepositoryPatch carries the fields of an update; nil fields are left alone.
type RepositoryPatch struct {
	Name           *string
	Description    *string
	SpecificPrompt *string
}

func (p RepositoryPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.SpecificPrompt == nil
}

// ProvisionalID returns the key an optimistic repository row uses until the
// clone task reports the server-assigned identifier.
func ProvisionalID(taskID string) string {
	return provisionalPrefix + taskID
}

func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}
