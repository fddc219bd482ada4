// Package intel extracts normalized, confidence-scored entities from
// scammer messages and merges them against accumulated session intelligence.
package intel

import (
	"sort"
	"strings"

	"github.com/honeygrid/scamtrap/internal/domain"
	"github.com/honeygrid/scamtrap/internal/patterns"
)

// Confidence levels by match specificity. An exact UPI handle is near
// certain; a bare ten-digit number on its own barely means anything.
const (
	confExact      = 0.9
	confContextual = 0.6
	confBankNear   = 0.7
	confURL        = 0.8
	confWeak       = 0.4
	confBankWeak   = 0.35
)

var (
	bankContext    = []string{"account", "a/c", "acct", "ifsc", "bank", "neft", "imps"}
	contactContext = []string{"call", "whatsapp", "phone", "contact", "mobile"}
	paymentContext = []string{"pay", "payment", "transfer", "send", "upi", "paytm", "phonepe", "gpay"}
	linkContext    = []string{"click", "link", "visit", "open"}
)

// Extractor turns raw pattern matches into session entities.
type Extractor struct {
	lib *patterns.Library
}

// NewExtractor creates an extractor over the shared pattern library.
func NewExtractor(lib *patterns.Library) *Extractor {
	return &Extractor{lib: lib}
}

// Extract returns the entities in text that are new to the session or carry
// a higher confidence than the session already has. Inputs are never
// mutated and identical inputs always produce identical output.
func (x *Extractor) Extract(text string, turn int, existing map[domain.EntityKey]domain.Entity) []domain.Entity {
	lower := strings.ToLower(text)
	found := make(map[domain.EntityKey]domain.Entity)

	for _, m := range x.lib.Match(text) {
		kind := resolveKind(m, lower)
		value := Normalize(kind, m.Raw)
		if value == "" {
			continue
		}
		e := domain.Entity{
			Kind:          kind,
			Value:         value,
			FirstSeenTurn: turn,
			Confidence:    confidence(kind, m, lower),
		}
		if prev, ok := found[e.Key()]; !ok || e.Confidence > prev.Confidence {
			found[e.Key()] = e
		}
	}

	out := make([]domain.Entity, 0, len(found))
	for key, e := range found {
		if prev, ok := existing[key]; ok {
			if e.Confidence <= prev.Confidence {
				continue
			}
			// Upgraded confidence keeps the original first-seen turn.
			e.FirstSeenTurn = prev.FirstSeenTurn
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// resolveKind picks a single kind for an ambiguous match using context
// keywords from the surrounding message. With no deciding context a
// mobile-looking number is treated as a phone, at low confidence.
func resolveKind(m patterns.Match, lower string) domain.EntityKind {
	if len(m.Kinds) == 1 {
		return m.Kinds[0]
	}
	if hasAny(lower, bankContext) && !hasAny(lower, contactContext) {
		return domain.KindBankAccount
	}
	return domain.KindPhone
}

func confidence(kind domain.EntityKind, m patterns.Match, lower string) float64 {
	switch kind {
	case domain.KindUPI:
		return confExact
	case domain.KindPhone:
		if len(m.Kinds) == 1 {
			// Explicit country prefix, nothing else matches that shape.
			return confExact
		}
		if hasAny(lower, paymentContext) || hasAny(lower, contactContext) {
			return confContextual
		}
		return confWeak
	case domain.KindBankAccount:
		if hasAny(lower, bankContext) {
			return confBankNear
		}
		return confBankWeak
	case domain.KindURL:
		if hasAny(lower, linkContext) {
			return confExact
		}
		return confURL
	}
	return confWeak
}

// Normalize canonicalizes a raw match for the given kind: phones get a +91
// country code and separators stripped, UPI handles are lowercased, bank
// accounts keep digits only, URLs lose trailing punctuation.
func Normalize(kind domain.EntityKind, raw string) string {
	switch kind {
	case domain.KindPhone:
		digits := keepDigits(raw)
		switch {
		case len(digits) == 10:
			return "+91" + digits
		case len(digits) == 12 && strings.HasPrefix(digits, "91"):
			return "+" + digits
		default:
			return ""
		}
	case domain.KindUPI:
		return strings.ToLower(strings.TrimSpace(raw))
	case domain.KindBankAccount:
		return keepDigits(raw)
	case domain.KindURL:
		return strings.TrimRight(raw, ".,;:!?)")
	}
	return strings.TrimSpace(raw)
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
