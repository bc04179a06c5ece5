package logger

import "github.com/rzbill/flare/pkg/event"

// Batch is a drained queue snapshot bound for the collector. Time is the
// drain time while the batch is live and is re-stamped to the failure time
// when the batch enters the spool; the persisted layout reuses the same
// field.
type Batch struct {
	Events   []event.Event     `json:"events"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Time     int64             `json:"time"`
}
