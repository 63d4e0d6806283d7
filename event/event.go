// Package event implements the append-only event log: durable records of
// entity mutations, segmented into bounded chunks under
// events/<namespace>/<segment-id>.parquet, with an in-memory tail buffer
// for events not yet flushed to a segment.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Op classifies the mutation an Event describes.
type Op string

const (
	Create Op = "CREATE"
	Update Op = "UPDATE"
	Delete Op = "DELETE"
	Revert Op = "REVERT"
)

// Event is a single mutation record. Events within an entity form a total
// order by TS with a stable tiebreak on ID.
type Event struct {
	ID       string         `json:"id"`
	TS       time.Time      `json:"ts"`
	Op       Op             `json:"op"`
	Target   string         `json:"target"` // EntityId
	Actor    string         `json:"actor,omitempty"`
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after,omitempty"`
	Mutation map[string]any `json:"mutation,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewID generates a unique event identifier, generalized from
// semantic/runtime/event.go's generateEventID to a collision-resistant
// UUID instead of a timestamp-plus-random-char scheme.
func NewID() string {
	return uuid.NewString()
}

// Filter selects a subset of events for GetEvents/GetEventsByNamespace.
type Filter struct {
	From   *time.Time
	To     *time.Time
	Op     Op
	Actor  string
	Limit  int
	Cursor string
}

// Page is a chronologically ordered, cursor-paginated result.
type Page struct {
	Items      []Event
	HasMore    bool
	NextCursor string
}

func (f Filter) matches(e Event) bool {
	if f.From != nil && e.TS.Before(*f.From) {
		return false
	}
	if f.To != nil && e.TS.After(*f.To) {
		return false
	}
	if f.Op != "" && e.Op != f.Op {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	return true
}
