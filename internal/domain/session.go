package domain

import (
	"sort"
	"time"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
)

// Session accumulates conversation state for one scammer engagement.
// Owned exclusively by the session store; turns are append-only and
// entities are merge-only.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Status       SessionStatus

	Turns        []Turn
	Entities     map[EntityKey]Entity
	VerdictTrend []Verdict

	// MaxScore is the running maximum verdict score for the session.
	MaxScore float64
	// Categories is the union of all verdict categories seen so far.
	Categories map[string]struct{}

	// Reporting thresholds fire at most once per session each.
	PaymentReported   bool
	HighScoreReported bool
}

// NewSession creates an empty active session.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		Status:       SessionActive,
		Entities:     make(map[EntityKey]Entity),
		Categories:   make(map[string]struct{}),
	}
}

// AppendTurn records a message as the next turn and returns it. The caller
// attaches annotations before or after via the returned pointer; a turn is
// annotated exactly once, at ingestion.
func (s *Session) AppendTurn(msg Message) *Turn {
	s.Turns = append(s.Turns, Turn{Message: msg, Index: len(s.Turns)})
	return &s.Turns[len(s.Turns)-1]
}

// MergeEntity folds an extracted entity into the session set. Existing
// entities keep their FirstSeenTurn; confidence only ever goes up.
// Returns true if the entity was new to the session.
func (s *Session) MergeEntity(e Entity) bool {
	key := e.Key()
	existing, ok := s.Entities[key]
	if !ok {
		s.Entities[key] = e
		return true
	}
	if e.Confidence > existing.Confidence {
		existing.Confidence = e.Confidence
		s.Entities[key] = existing
	}
	return false
}

// RecordVerdict appends a verdict and updates the running trend.
func (s *Session) RecordVerdict(v Verdict) {
	s.VerdictTrend = append(s.VerdictTrend, v)
	if v.Score > s.MaxScore {
		s.MaxScore = v.Score
	}
	for _, c := range v.Categories {
		s.Categories[c] = struct{}{}
	}
}

// HasPaymentEntity reports whether any payment identifier has been extracted.
func (s *Session) HasPaymentEntity() bool {
	for key := range s.Entities {
		if key.Kind.PaymentKind() {
			return true
		}
	}
	return false
}

// EntityList returns the session entities ordered by first-seen turn, then
// kind and value for a stable ordering.
func (s *Session) EntityList() []Entity {
	out := make([]Entity, 0, len(s.Entities))
	for _, e := range s.Entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeenTurn != out[j].FirstSeenTurn {
			return out[i].FirstSeenTurn < out[j].FirstSeenTurn
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// CategoryList returns the union of verdict categories in sorted order.
func (s *Session) CategoryList() []string {
	out := make([]string, 0, len(s.Categories))
	for c := range s.Categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ScammerTurnCount counts turns authored by the scammer.
func (s *Session) ScammerTurnCount() int {
	n := 0
	for _, t := range s.Turns {
		if t.Sender == SenderScammer {
			n++
		}
	}
	return n
}
