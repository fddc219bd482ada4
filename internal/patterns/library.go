// Package patterns holds the compiled matchers and indicator tables used by
// extraction, detection and the self-leak guard. A Library is immutable after
// New and safe for concurrent use.
package patterns

import (
	"regexp"
	"sort"
	"strings"

	"github.com/honeygrid/scamtrap/internal/domain"
)

// Match is a typed raw match in a message. Ambiguous digit runs carry more
// than one candidate kind; the extractor disambiguates via context keywords.
type Match struct {
	Kinds []domain.EntityKind
	Raw   string
	Start int
	End   int
}

// Entity-form matchers. UPI handles look like name@bank; a trailing
// dot-and-letters run means it is an email/domain, not a UPI handle.
var (
	upiRe   = regexp.MustCompile(`[A-Za-z0-9._-]+@[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?91[-\s]?)?[6-9][0-9]{9}`)
	digitRe = regexp.MustCompile(`[0-9]{9,18}`)
	urlRe   = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")
)

var urgencyRes = compileAll(
	`within\s+\d+\s*(?:hour|minute|day|hr|min)`,
	`expire[sd]?\s+(?:today|tomorrow|soon)`,
	`last\s+chance`,
	`final\s+(?:notice|warning)`,
	`immediate(?:ly)?`,
	`urgent(?:ly)?`,
	`\basap\b`,
	`right\s+now`,
	`don'?t\s+(?:miss|delay|wait)`,
	`time\s+(?:is\s+)?running\s+out`,
	`act\s+(?:fast|now|quickly)`,
	`before\s+it'?s?\s+too\s+late`,
)

var financialRes = compileAll(
	`send\s+(?:money|payment|amount)`,
	`(?:bank|account)\s*(?:details|number|info)`,
	`(?:share|send|give)\s*(?:otp|pin|password)`,
	`(?:transfer|deposit)\s*\d+`,
)

// Indicator categories. Each keyword carries a weight; category strength is
// the capped sum of matched weights. Weights tuned for Indian scam traffic
// where lottery, KYC and OTP scams dominate.
const (
	CategoryLottery       = "lottery"
	CategoryUrgency       = "urgency"
	CategoryThreat        = "threat"
	CategoryCredential    = "credential-request"
	CategoryPayment       = "payment-request"
	CategoryImpersonation = "impersonation"
	CategoryKYC           = "kyc"
	CategoryInvestment    = "investment"
	CategoryLinkBait      = "link-bait"
)

type weightedKeyword struct {
	re     *regexp.Regexp
	word   string
	weight float64
}

type category struct {
	name     string
	keywords []weightedKeyword
	// extra patterns contribute a flat boost, counted once per category.
	extra      []*regexp.Regexp
	extraBoost float64
}

// Library matches entity forms and scores scam-indicator categories.
type Library struct {
	categories []category
	suspicious []weightedKeyword
}

// New compiles the pattern library. Call once at startup and share the value.
func New() *Library {
	return &Library{
		categories: []category{
			{name: CategoryLottery, keywords: keywords(map[string]float64{
				"lottery": 0.35, "winner": 0.30, "won": 0.25, "prize": 0.30,
				"jackpot": 0.35, "lucky draw": 0.35, "congratulations": 0.15,
				"lakh": 0.20, "lakhs": 0.20, "crore": 0.25, "crores": 0.25,
			})},
			{name: CategoryUrgency, keywords: keywords(map[string]float64{
				"urgent": 0.20, "immediately": 0.20, "expire": 0.15,
				"expiring": 0.15, "last chance": 0.25, "limited time": 0.20,
				"act now": 0.25, "hurry": 0.15,
			}), extra: urgencyRes, extraBoost: 0.15},
			{name: CategoryThreat, keywords: keywords(map[string]float64{
				"blocked": 0.25, "suspended": 0.25, "deactivate": 0.25,
				"legal action": 0.30, "police": 0.20, "arrest": 0.30,
			})},
			{name: CategoryCredential, keywords: keywords(map[string]float64{
				"otp": 0.40, "pin": 0.35, "cvv": 0.40, "password": 0.35,
			})},
			{name: CategoryPayment, keywords: keywords(map[string]float64{
				"bank details": 0.35, "account number": 0.30, "ifsc": 0.25,
				"processing fee": 0.35, "advance payment": 0.40,
				"transfer": 0.15, "pay": 0.10, "deposit": 0.15,
				"gift card": 0.30, "refund": 0.20, "cashback": 0.20,
				"reward": 0.15, "claim": 0.20,
			}), extra: financialRes, extraBoost: 0.20},
			{name: CategoryImpersonation, keywords: keywords(map[string]float64{
				"customer care": 0.20, "customer support": 0.20,
				"bank manager": 0.25, "rbi": 0.25, "income tax": 0.20,
				"it department": 0.20,
			})},
			{name: CategoryKYC, keywords: keywords(map[string]float64{
				"kyc": 0.30, "verify": 0.15, "verification": 0.15, "update": 0.10,
			})},
			{name: CategoryInvestment, keywords: keywords(map[string]float64{
				"bitcoin": 0.20, "crypto": 0.15, "cryptocurrency": 0.20,
				"investment": 0.15, "guaranteed returns": 0.40,
				"double your money": 0.45,
			})},
			{name: CategoryLinkBait, keywords: keywords(map[string]float64{
				"click here": 0.25, "click link": 0.25, "click below": 0.25,
			})},
		},
		suspicious: keywords(map[string]float64{
			"lottery": 0, "prize": 0, "winner": 0, "won": 0, "jackpot": 0,
			"lucky draw": 0, "congratulations": 0, "transfer": 0, "payment": 0,
			"pay": 0, "deposit": 0, "withdraw": 0, "bank": 0, "account": 0,
			"upi": 0, "paytm": 0, "phonepe": 0, "gpay": 0, "verify": 0,
			"verification": 0, "kyc": 0, "update": 0, "confirm": 0,
			"blocked": 0, "suspended": 0, "locked": 0, "deactivated": 0,
			"otp": 0, "pin": 0, "password": 0, "cvv": 0, "card number": 0,
			"urgent": 0, "immediately": 0, "asap": 0, "hurry": 0,
			"gift card": 0, "bitcoin": 0, "crypto": 0, "investment": 0,
			"customer care": 0, "support": 0, "helpline": 0, "toll free": 0,
			"refund": 0, "cashback": 0, "reward": 0, "claim": 0, "bonus": 0,
		}),
	}
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// keywords compiles a word-boundary matcher per keyword so "pay" does not
// fire inside "repay". Multi-word keywords tolerate any whitespace run.
func keywords(table map[string]float64) []weightedKeyword {
	out := make([]weightedKeyword, 0, len(table))
	for word, weight := range table {
		expr := `(?i)\b` + strings.ReplaceAll(regexp.QuoteMeta(word), ` `, `\s+`) + `\b`
		out = append(out, weightedKeyword{
			re:     regexp.MustCompile(expr),
			word:   word,
			weight: weight,
		})
	}
	return out
}

// Match returns all entity-form matches in the text. Pure function of the
// input; no side effects.
func (l *Library) Match(text string) []Match {
	var matches []Match
	claimed := make([]bool, len(text))

	claim := func(start, end int) {
		for i := start; i < end && i < len(claimed); i++ {
			claimed[i] = true
		}
	}
	overlaps := func(start, end int) bool {
		for i := start; i < end && i < len(claimed); i++ {
			if claimed[i] {
				return true
			}
		}
		return false
	}

	// URLs first so handles and digits inside them are not re-matched.
	for _, span := range urlRe.FindAllStringIndex(text, -1) {
		matches = append(matches, Match{
			Kinds: []domain.EntityKind{domain.KindURL},
			Raw:   text[span[0]:span[1]],
			Start: span[0],
			End:   span[1],
		})
		claim(span[0], span[1])
	}

	for _, span := range upiRe.FindAllStringIndex(text, -1) {
		if overlaps(span[0], span[1]) || looksLikeEmail(text, span[1]) {
			continue
		}
		matches = append(matches, Match{
			Kinds: []domain.EntityKind{domain.KindUPI},
			Raw:   text[span[0]:span[1]],
			Start: span[0],
			End:   span[1],
		})
		claim(span[0], span[1])
	}

	// Phone numbers with an explicit country prefix are unambiguous.
	for _, span := range phoneRe.FindAllStringIndex(text, -1) {
		if overlaps(span[0], span[1]) || !standaloneDigits(text, span[0], span[1]) {
			continue
		}
		raw := text[span[0]:span[1]]
		if !hasCountryPrefix(raw) {
			continue // bare numbers handled below with both candidate kinds
		}
		matches = append(matches, Match{
			Kinds: []domain.EntityKind{domain.KindPhone},
			Raw:   raw,
			Start: span[0],
			End:   span[1],
		})
		claim(span[0], span[1])
	}

	// Remaining digit runs: 9-18 digits could be a bank account; a
	// mobile-looking 10-digit run is also a phone candidate.
	for _, span := range digitRe.FindAllStringIndex(text, -1) {
		if overlaps(span[0], span[1]) || !standaloneDigits(text, span[0], span[1]) {
			continue
		}
		raw := text[span[0]:span[1]]
		kinds := []domain.EntityKind{domain.KindBankAccount}
		if mobileLooking(raw) {
			kinds = []domain.EntityKind{domain.KindPhone, domain.KindBankAccount}
		}
		matches = append(matches, Match{
			Kinds: kinds,
			Raw:   raw,
			Start: span[0],
			End:   span[1],
		})
		claim(span[0], span[1])
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
	return matches
}

// ScoreIndicators scores each indicator category in [0,1] for the text.
func (l *Library) ScoreIndicators(text string) map[string]float64 {
	scores := make(map[string]float64)
	for _, cat := range l.categories {
		var strength float64
		for _, kw := range cat.keywords {
			if kw.re.MatchString(text) {
				strength += kw.weight
			}
		}
		for _, re := range cat.extra {
			if re.MatchString(text) {
				strength += cat.extraBoost
				break // extra patterns count once per category
			}
		}
		if strength > 0 {
			if strength > 1 {
				strength = 1
			}
			scores[cat.name] = strength
		}
	}
	return scores
}

// SuspiciousKeywords returns the flat keyword hits collected for reporting.
func (l *Library) SuspiciousKeywords(text string) []string {
	var found []string
	seen := make(map[string]struct{})
	for _, kw := range l.suspicious {
		if _, dup := seen[kw.word]; dup {
			continue
		}
		if kw.re.MatchString(text) {
			found = append(found, kw.word)
			seen[kw.word] = struct{}{}
		}
	}
	sort.Strings(found)
	return found
}

// Redact replaces every entity-form match with the placeholder. Used as the
// self-leak guard on generated replies.
func (l *Library) Redact(text, placeholder string) string {
	matches := l.Match(text)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		if m.Start < last {
			continue
		}
		b.WriteString(text[last:m.Start])
		b.WriteString(placeholder)
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func looksLikeEmail(text string, end int) bool {
	// A dot followed by letters right after the handle means a mail domain.
	if end >= len(text) || text[end] != '.' {
		return false
	}
	i := end + 1
	for i < len(text) && isAlpha(text[i]) {
		i++
	}
	return i > end+1
}

func standaloneDigits(text string, start, end int) bool {
	if start > 0 && isDigit(text[start-1]) {
		return false
	}
	if end < len(text) && isDigit(text[end]) {
		return false
	}
	return true
}

func hasCountryPrefix(raw string) bool {
	return strings.HasPrefix(raw, "+91") ||
		(strings.HasPrefix(raw, "91") && len(raw) > 10)
}

func mobileLooking(raw string) bool {
	return len(raw) == 10 && raw[0] >= '6' && raw[0] <= '9'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
