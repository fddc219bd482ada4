// Package domain defines the core conversation, entity and session types.
package domain

import (
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	// SenderScammer marks inbound messages from the scammer.
	SenderScammer Sender = "scammer"
	// SenderAgent marks replies authored by the honeypot persona.
	SenderAgent Sender = "agent"
)

// Valid reports whether the sender is one of the known values.
func (s Sender) Valid() bool {
	return s == SenderScammer || s == SenderAgent
}

// Message is a single message on the wire. Immutable once recorded.
type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Time returns the message timestamp as time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Turn is a recorded message plus the annotations computed when it was
// ingested. Annotations are computed exactly once and never recomputed.
type Turn struct {
	Message
	Index              int      `json:"index"`
	DetectedCategories []string `json:"detected_categories,omitempty"`
	ExtractedEntities  []Entity `json:"extracted_entities,omitempty"`
}
