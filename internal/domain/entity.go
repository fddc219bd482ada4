package domain

// EntityKind classifies a piece of extracted intelligence.
type EntityKind string

const (
	KindPhone       EntityKind = "phone"
	KindUPI         EntityKind = "upi"
	KindBankAccount EntityKind = "bankAccount"
	KindURL         EntityKind = "url"
)

// PaymentKind reports whether the kind is a payment identifier. The first
// payment identifier seen in a session is a reporting trigger.
func (k EntityKind) PaymentKind() bool {
	return k == KindUPI || k == KindBankAccount
}

// EntityKey uniquely identifies an entity within a session.
type EntityKey struct {
	Kind  EntityKind
	Value string
}

// Entity is a normalized piece of intelligence extracted from the
// conversation. Within a session there is at most one entity per
// (kind, normalized value); repeats raise confidence via max.
type Entity struct {
	Kind          EntityKind `json:"kind"`
	Value         string     `json:"value"`
	FirstSeenTurn int        `json:"first_seen_turn"`
	Confidence    float64    `json:"confidence"`
}

// Key returns the dedup key for this entity.
func (e Entity) Key() EntityKey {
	return EntityKey{Kind: e.Kind, Value: e.Value}
}
