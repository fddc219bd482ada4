// Package detect scores messages for scam likelihood. The rule scorer is
// pure and authoritative; an optional generation assist refines scores that
// land in the ambiguous band around the threshold.
package detect

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/honeygrid/scamtrap/internal/domain"
	"github.com/honeygrid/scamtrap/internal/llm"
	"github.com/honeygrid/scamtrap/internal/patterns"
)

const (
	// categoryWeight scales each indicator category's contribution.
	categoryWeight = 0.4
	// urgencyBoost is added once when time-pressure phrasing is present.
	urgencyBoost = 0.15
	// paymentEntityBoost is added per distinct payment-identifier kind
	// appearing in the turn, capped at two kinds.
	paymentEntityBoost = 0.1
	// carryOverDamping discounts the session's running max score when it
	// floors the current turn. A scammy conversation stays suspicious.
	carryOverDamping = 0.85
	// assistRuleWeight / assistModelWeight blend the two opinions when the
	// assist succeeds inside the band.
	assistRuleWeight  = 0.3
	assistModelWeight = 0.7
)

// Config holds the detector tunables.
type Config struct {
	// Threshold is the score at or above which IsScam is true.
	Threshold float64
	// AssistBand is the half-width of the ambiguous band around the
	// threshold inside which the assist is consulted.
	AssistBand float64
}

// Detector is a rule-based scorer with an optional model assist.
type Detector struct {
	lib       *patterns.Library
	assist    llm.Generator // nil disables the assist entirely
	threshold float64
	band      float64
}

// New creates a detector. assist may be nil.
func New(lib *patterns.Library, assist llm.Generator, cfg Config) *Detector {
	return &Detector{
		lib:       lib,
		assist:    assist,
		threshold: cfg.Threshold,
		band:      cfg.AssistBand,
	}
}

// Threshold returns the configured scam threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// Detect scores a message against the indicator library. priorMax is the
// session's running maximum score; it floors the result after damping so a
// conversation that has already shown scam signals does not reset to benign
// on a single harmless turn. The rule path is deterministic; assist failure
// degrades to rule-only.
func (d *Detector) Detect(ctx context.Context, text string, history []domain.Turn, priorMax float64) domain.Verdict {
	score, cats := d.ruleScore(text)

	if floor := priorMax * carryOverDamping; score < floor {
		score = floor
	}
	if score > 1 {
		score = 1
	}

	if d.assist != nil && inBand(score, d.threshold, d.band) {
		if assisted, ok := d.consultAssist(ctx, text, history); ok {
			score = assistRuleWeight*score + assistModelWeight*assisted.score
			cats = mergeCategories(cats, assisted.categories)
			if score > 1 {
				score = 1
			}
		}
	}

	return domain.Verdict{
		IsScam:     score >= d.threshold,
		Score:      score,
		Categories: cats,
	}
}

// ruleScore is the pure part: indicator categories plus structural boosts.
func (d *Detector) ruleScore(text string) (float64, []string) {
	indicators := d.lib.ScoreIndicators(text)

	var score float64
	cats := make([]string, 0, len(indicators))
	for name, strength := range indicators {
		score += strength * categoryWeight
		cats = append(cats, name)
	}
	sort.Strings(cats)

	if indicators[patterns.CategoryUrgency] > 0 {
		score += urgencyBoost
	}

	// Payment identifiers surfacing in the same turn sharpen the signal.
	paymentKinds := make(map[domain.EntityKind]struct{})
	for _, m := range d.lib.Match(text) {
		for _, k := range m.Kinds {
			if k.PaymentKind() {
				paymentKinds[k] = struct{}{}
			}
		}
	}
	boost := float64(len(paymentKinds)) * paymentEntityBoost
	if boost > 2*paymentEntityBoost {
		boost = 2 * paymentEntityBoost
	}
	score += boost

	if score > 1 {
		score = 1
	}
	return score, cats
}

type assistVerdict struct {
	score      float64
	categories []string
}

type assistPayload struct {
	Confidence float64  `json:"confidence"`
	Categories []string `json:"categories"`
}

func (d *Detector) consultAssist(ctx context.Context, text string, history []domain.Turn) (assistVerdict, bool) {
	prompt := buildAssistPrompt(text, history)
	raw, err := d.assist.GenerateJSON(ctx, prompt)
	if err != nil {
		slog.Warn("detector assist failed, keeping rule score", "error", err)
		return assistVerdict{}, false
	}

	var payload assistPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		slog.Warn("detector assist returned unparseable JSON", "error", err)
		return assistVerdict{}, false
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		slog.Warn("detector assist confidence out of range", "confidence", payload.Confidence)
		return assistVerdict{}, false
	}
	return assistVerdict{score: payload.Confidence, categories: payload.Categories}, true
}

func buildAssistPrompt(text string, history []domain.Turn) string {
	var b strings.Builder
	b.WriteString("You analyze messages for scam intent. ")
	b.WriteString("Given the conversation context and the latest message, respond with JSON ")
	b.WriteString(`{"confidence": <0.0-1.0>, "categories": ["..."]}` + ".\n")
	if len(history) > 0 {
		b.WriteString("Context:\n")
		start := 0
		if len(history) > 5 {
			start = len(history) - 5
		}
		for _, t := range history[start:] {
			snippet := t.Text
			if len(snippet) > 100 {
				snippet = snippet[:100]
			}
			b.WriteString(string(t.Sender))
			b.WriteString(": ")
			b.WriteString(snippet)
			b.WriteString("\n")
		}
	}
	b.WriteString("Latest message: ")
	b.WriteString(text)
	return b.String()
}

func inBand(score, threshold, band float64) bool {
	diff := score - threshold
	if diff < 0 {
		diff = -diff
	}
	return diff < band
}

func mergeCategories(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if _, dup := seen[c]; dup || c == "" {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
