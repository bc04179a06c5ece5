// Package event defines the value objects flare pipelines carry: events,
// their subjects, and the exposure constructors that produce dedup keys.
package event

import "time"

// Event is one loggable occurrence. It is immutable by convention once
// enqueued: the outbound queue owns it from enqueue until it is moved into a
// batch, and nothing mutates it afterwards.
type Event struct {
	Name               string                 `json:"name"`
	User               *User                  `json:"user,omitempty"`
	Value              interface{}            `json:"value,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	SecondaryExposures []map[string]string    `json:"secondaryExposures,omitempty"`
	Time               int64                  `json:"time"`
	// Extra carries per-event delivery metadata (string or number values).
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// EvalDetails describes how the evaluation engine arrived at a decision.
// flare only records it; it never evaluates anything itself.
type EvalDetails struct {
	Reason string
	Time   int64
}

// New builds an event stamped with the current time. The user is sanitized
// (private attributes stripped, maps copied) at construction, never later.
func New(name string, user *User, value interface{}, metadata map[string]interface{}) Event {
	return Event{
		Name:     name,
		User:     user.sanitized(),
		Value:    value,
		Metadata: metadata,
		Time:     time.Now().UnixMilli(),
	}
}
