// Package persona generates the honeypot's replies. The persona is a fixed
// identity; generation is delegated to the llm.Generator and every draft
// passes the self-leak guard before it is returned.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/honeygrid/scamtrap/internal/domain"
	"github.com/honeygrid/scamtrap/internal/llm"
	"github.com/honeygrid/scamtrap/internal/patterns"
)

// RedactionPlaceholder replaces any entity-shaped value the model drafts.
// The persona must never emit a real-looking phone, UPI or account number.
const RedactionPlaceholder = "[redacted]"

// Agent produces persona replies for a session.
type Agent struct {
	persona domain.Persona
	lib     *patterns.Library
	gen     llm.Generator // nil means template-only operation
}

// NewAgent creates a reply agent. gen may be nil; the agent then always
// answers from the static template set.
func NewAgent(p domain.Persona, lib *patterns.Library, gen llm.Generator) *Agent {
	return &Agent{persona: p, lib: lib, gen: gen}
}

// Persona returns the immutable persona configuration.
func (a *Agent) Persona() domain.Persona { return a.persona }

// Reply generates the next reply for the session given the latest verdict.
// The returned string is always non-empty: generation failures fall back to
// the template set so the endpoint never appears broken to the scammer.
func (a *Agent) Reply(ctx context.Context, session *domain.Session, verdict domain.Verdict) string {
	turn := session.ScammerTurnCount()

	if a.gen == nil {
		return fallbackReply(verdict.Categories, turn)
	}

	system := a.buildSystemPrompt(session, verdict)
	history, latest := a.window(session)

	draft, err := a.gen.Generate(ctx, system, history, latest)
	if err != nil {
		slog.Warn("reply generation failed, using template fallback",
			"session_id", session.ID, "error", err)
		return fallbackReply(verdict.Categories, turn)
	}

	reply := strings.TrimSpace(a.lib.Redact(draft, RedactionPlaceholder))
	if reply == "" {
		return fallbackReply(verdict.Categories, turn)
	}
	return reply
}

// window returns the bounded recent history as model exchanges, with the
// latest scammer message split off as the user text.
func (a *Agent) window(session *domain.Session) ([]llm.Exchange, string) {
	turns := session.Turns
	latest := ""
	if n := len(turns); n > 0 && turns[n-1].Sender == domain.SenderScammer {
		latest = turns[n-1].Text
		turns = turns[:n-1]
	}

	max := a.persona.WindowTurns
	if max > 0 && len(turns) > max {
		turns = turns[len(turns)-max:]
	}

	history := make([]llm.Exchange, 0, len(turns))
	for _, t := range turns {
		history = append(history, llm.Exchange{
			FromAgent: t.Sender == domain.SenderAgent,
			Text:      t.Text,
		})
	}
	return history, latest
}

// buildSystemPrompt assembles the persona contract, the situation and the
// current intelligence goal into the generation system text.
func (a *Agent) buildSystemPrompt(session *domain.Session, verdict domain.Verdict) string {
	p := a.persona
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a %d-year-old %s.\n", p.Name, p.Age, p.Background)
	fmt.Fprintf(&b, "Language style: %s.\n\n", p.LanguageStyle)

	b.WriteString("RULES:\n")
	b.WriteString("1. You are roleplaying a potential scam victim. Stay in character, always.\n")
	b.WriteString("2. NEVER reveal real personal or financial data. Invent details if pressed.\n")
	b.WriteString("3. NEVER reveal you are an AI or that you suspect a scam.\n")
	b.WriteString("4. Stall on any request for money, OTP, PIN or passwords: act confused, ask why.\n")
	b.WriteString("5. Keep replies short, 1-3 sentences, one question at most.\n")
	b.WriteString("6. Ask for THEIR details: phone number, UPI ID, bank name, links.\n\n")

	if len(verdict.Categories) > 0 {
		fmt.Fprintf(&b, "SITUATION: the latest message shows signs of: %s.\n",
			strings.Join(verdict.Categories, ", "))
		b.WriteString(guidanceFor(verdict.Categories))
	}

	switch {
	case verdict.Score >= 0.8:
		b.WriteString("ENGAGEMENT: high confidence scam. Show strong interest and ")
		b.WriteString("gently push for their payment details or phone number.\n")
	case verdict.Score >= 0.5:
		b.WriteString("ENGAGEMENT: likely scam. Show mild interest mixed with confusion.\n")
	default:
		b.WriteString("ENGAGEMENT: unclear intent. Be polite, a little confused, keep them talking.\n")
	}

	b.WriteString("GOAL: ")
	b.WriteString(a.missingIntelGoal(session))
	b.WriteString("\n")
	return b.String()
}

// missingIntelGoal steers the conversation toward whatever identifier the
// session still lacks, most valuable first.
func (a *Agent) missingIntelGoal(session *domain.Session) string {
	has := func(kind domain.EntityKind) bool {
		for key := range session.Entities {
			if key.Kind == kind {
				return true
			}
		}
		return false
	}
	switch {
	case !has(domain.KindUPI):
		return "get their UPI ID, e.g. ask where to send money or how to pay."
	case !has(domain.KindPhone):
		return "get their phone number, e.g. say you will call back after asking your son."
	case !has(domain.KindBankAccount):
		return "get their bank account details, e.g. offer a bank transfer instead."
	default:
		return "keep them engaged and confirm the details they already gave."
	}
}

func guidanceFor(categories []string) string {
	switch {
	case contains(categories, patterns.CategoryLottery):
		return "They claim you won something. Act excited but puzzled: you never bought a ticket. Ask how to claim it.\n"
	case contains(categories, patterns.CategoryCredential):
		return "They want a code or password. Act like you do not understand what that is. Never provide one.\n"
	case contains(categories, patterns.CategoryThreat):
		return "They are threatening you. Act worried and cooperative but slow; ask who they are and for a callback number.\n"
	case contains(categories, patterns.CategoryKYC):
		return "They want you to verify something. Act willing but lost; ask them to walk you through it.\n"
	default:
		return ""
	}
}
