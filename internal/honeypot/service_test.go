package honeypot

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/honeygrid/scamtrap/internal/detect"
	"github.com/honeygrid/scamtrap/internal/domain"
	"github.com/honeygrid/scamtrap/internal/intel"
	"github.com/honeygrid/scamtrap/internal/llm"
	"github.com/honeygrid/scamtrap/internal/patterns"
	"github.com/honeygrid/scamtrap/internal/persona"
	"github.com/honeygrid/scamtrap/internal/report"
	"github.com/honeygrid/scamtrap/internal/session"
)

type fakeReporter struct {
	mu       sync.Mutex
	payloads []report.Payload
	done     chan struct{}
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{done: make(chan struct{}, 8)}
}

func (f *fakeReporter) Report(ctx context.Context, p report.Payload) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeReporter) sent() []report.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]report.Payload(nil), f.payloads...)
}

func (f *fakeReporter) waitOne(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a report")
	}
}

func (f *fakeReporter) expectNone(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
		t.Fatal("unexpected report dispatched")
	case <-time.After(100 * time.Millisecond):
	}
}

type testEnv struct {
	svc      *Service
	sessions *session.MemoryStore
	reporter *fakeReporter
}

func newTestEnv() *testEnv {
	lib := patterns.New()
	detector := detect.New(lib, nil, detect.Config{Threshold: 0.5, AssistBand: 0.15})
	extractor := intel.NewExtractor(lib)
	agent := persona.NewAgent(domain.DefaultPersona(), lib, nil)
	sessions := session.NewMemoryStore(time.Hour, nil)
	reporter := newFakeReporter()

	svc := NewService(sessions, detector, extractor, agent, lib, Options{
		Reporter:           reporter,
		HighScoreThreshold: 0.8,
	})
	return &testEnv{svc: svc, sessions: sessions, reporter: reporter}
}

func scammerMsg(text string) domain.Message {
	return domain.Message{Sender: domain.SenderScammer, Text: text, Timestamp: time.Now().UnixMilli()}
}

func TestHandleLotteryPitch(t *testing.T) {
	env := newTestEnv()

	reply, err := env.svc.Handle(context.Background(), Request{
		SessionID: "s-1",
		Message:   scammerMsg("Congratulations! You won 10 lakh lottery. Send bank details."),
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply == "" {
		t.Fatal("reply must never be empty")
	}
	if regexp.MustCompile(`[0-9]{10,}`).MatchString(reply) {
		t.Errorf("reply leaked an identifier-shaped number: %q", reply)
	}

	snap, ok := env.sessions.Snapshot("s-1")
	if !ok {
		t.Fatal("session not stored")
	}
	if len(snap.Turns) != 2 {
		t.Fatalf("turns = %d, want scammer + agent", len(snap.Turns))
	}
	if snap.Turns[1].Sender != domain.SenderAgent || snap.Turns[1].Text != reply {
		t.Errorf("agent turn not recorded: %+v", snap.Turns[1])
	}
	if len(snap.VerdictTrend) != 1 || !snap.VerdictTrend[0].IsScam {
		t.Errorf("verdict trend = %+v, want one scam verdict", snap.VerdictTrend)
	}
	if _, ok := snap.Categories[patterns.CategoryLottery]; !ok {
		t.Errorf("lottery category missing from %v", snap.Categories)
	}
}

func TestHandleValidation(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name string
		req  Request
	}{
		{"missing session id", Request{Message: scammerMsg("hi")}},
		{"missing text", Request{SessionID: "s-1", Message: domain.Message{Sender: domain.SenderScammer}}},
		{"bad sender", Request{SessionID: "s-1", Message: domain.Message{Sender: "robot", Text: "hi"}}},
		{"bad history sender", Request{
			SessionID: "s-1",
			Message:   scammerMsg("hi"),
			History:   []domain.Message{{Sender: "robot", Text: "x"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.Handle(context.Background(), tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}

	if env.sessions.Active() != 0 {
		t.Errorf("invalid requests created %d sessions", env.sessions.Active())
	}
}

func TestHandlePaymentEntityTriggersReport(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Handle(ctx, Request{
		SessionID: "s-2",
		Message:   scammerMsg("Paise bhejo scammer@ybl pe"),
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	env.reporter.waitOne(t)

	sent := env.reporter.sent()
	if len(sent) != 1 {
		t.Fatalf("reports sent = %d, want 1", len(sent))
	}
	p := sent[0]
	if p.SessionID != "s-2" {
		t.Errorf("payload session = %q, want s-2", p.SessionID)
	}
	if len(p.ExtractedIntelligence.UpiIDs) != 1 || p.ExtractedIntelligence.UpiIDs[0] != "scammer@ybl" {
		t.Errorf("upi ids = %v, want [scammer@ybl]", p.ExtractedIntelligence.UpiIDs)
	}

	// The same identifier again must not re-fire the threshold.
	if _, err := env.svc.Handle(ctx, Request{
		SessionID: "s-2",
		Message:   scammerMsg("haan scammer@ybl pe hi bhejna"),
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	env.reporter.expectNone(t)
}

func TestHandleHighScoreTriggersReport(t *testing.T) {
	env := newTestEnv()

	if _, err := env.svc.Handle(context.Background(), Request{
		SessionID: "s-3",
		Message:   scammerMsg("Congratulations! You won 10 lakh lottery prize. Share OTP immediately to claim your urgent reward"),
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	env.reporter.waitOne(t)

	sent := env.reporter.sent()
	if len(sent) != 1 {
		t.Fatalf("reports sent = %d, want 1", len(sent))
	}
	p := sent[0]
	if !p.ScamDetected {
		t.Error("high-score payload should mark scamDetected")
	}
	if p.MaxScore < 0.8 {
		t.Errorf("maxScore = %v, want >= 0.8", p.MaxScore)
	}
	found := map[string]bool{}
	for _, kw := range p.ExtractedIntelligence.SuspiciousKeywords {
		found[kw] = true
	}
	if !found["lottery"] || !found["otp"] {
		t.Errorf("suspicious keywords missing: %v", p.ExtractedIntelligence.SuspiciousKeywords)
	}
}

func TestHandleBelowThresholdsNoReport(t *testing.T) {
	env := newTestEnv()

	if _, err := env.svc.Handle(context.Background(), Request{
		SessionID: "s-4",
		Message:   scammerMsg("Namaste, kaise ho aap?"),
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	env.reporter.expectNone(t)
}

func TestHandleSeedsFromHistory(t *testing.T) {
	env := newTestEnv()

	reply, err := env.svc.Handle(context.Background(), Request{
		SessionID: "s-5",
		Message:   scammerMsg("Soch lo, offer abhi bhi khula hai"),
		History: []domain.Message{
			{Sender: domain.SenderScammer, Text: "Pay to fraudster@paytm for your prize", Timestamp: 1},
			{Sender: domain.SenderAgent, Text: "Achha beta, kaise?", Timestamp: 2},
		},
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply == "" {
		t.Fatal("reply must never be empty")
	}
	env.reporter.waitOne(t) // seeded UPI entity trips the payment threshold

	snap, ok := env.sessions.Snapshot("s-5")
	if !ok {
		t.Fatal("session not stored")
	}
	// 2 seeded + inbound + agent reply.
	if len(snap.Turns) != 4 {
		t.Fatalf("turns = %d, want 4", len(snap.Turns))
	}
	key := domain.EntityKey{Kind: domain.KindUPI, Value: "fraudster@paytm"}
	if _, ok := snap.Entities[key]; !ok {
		t.Errorf("seeded entity missing from %v", snap.Entities)
	}
}

func TestHandleHistoryOnlySeedsFreshSessions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Handle(ctx, Request{
		SessionID: "s-6",
		Message:   scammerMsg("hello ji"),
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// A later request with history must not re-seed the known session.
	if _, err := env.svc.Handle(ctx, Request{
		SessionID: "s-6",
		Message:   scammerMsg("sun rahe ho?"),
		History: []domain.Message{
			{Sender: domain.SenderScammer, Text: "stale transcript", Timestamp: 1},
		},
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	snap, _ := env.sessions.Snapshot("s-6")
	if len(snap.Turns) != 4 {
		t.Errorf("turns = %d, want 4 (history must be ignored)", len(snap.Turns))
	}
}

type requestScopeKey struct{}

// scopeCheckAssist records whether each consultation ran on a context
// carrying the request-scoped marker value.
type scopeCheckAssist struct {
	mu      sync.Mutex
	inScope []bool
}

func (a *scopeCheckAssist) Generate(ctx context.Context, system string, history []llm.Exchange, userText string) (string, error) {
	return "", errors.New("not used by the detector")
}

func (a *scopeCheckAssist) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	a.inScope = append(a.inScope, ctx.Value(requestScopeKey{}) != nil)
	a.mu.Unlock()
	return `{"confidence": 0.6, "categories": []}`, nil
}

func TestHandleSeedingUsesRequestContext(t *testing.T) {
	lib := patterns.New()
	assist := &scopeCheckAssist{}
	detector := detect.New(lib, assist, detect.Config{Threshold: 0.5, AssistBand: 0.15})
	extractor := intel.NewExtractor(lib)
	agent := persona.NewAgent(domain.DefaultPersona(), lib, nil)
	sessions := session.NewMemoryStore(time.Hour, nil)
	svc := NewService(sessions, detector, extractor, agent, lib, Options{})

	ctx := context.WithValue(context.Background(), requestScopeKey{}, "r-1")
	if _, err := svc.Handle(ctx, Request{
		SessionID: "s-8",
		Message:   scammerMsg("theek hai ji"),
		History: []domain.Message{
			// Rule score 0.55 sits inside the assist band.
			{Sender: domain.SenderScammer, Text: "urgent kyc verification needed immediately", Timestamp: 1},
		},
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	assist.mu.Lock()
	defer assist.mu.Unlock()
	if len(assist.inScope) == 0 {
		t.Fatal("assist never consulted while seeding a borderline turn")
	}
	for i, ok := range assist.inScope {
		if !ok {
			t.Errorf("assist call %d ran outside the request context", i)
		}
	}
}

func TestHandleDoesNotExtractFromAgentTurns(t *testing.T) {
	env := newTestEnv()

	if _, err := env.svc.Handle(context.Background(), Request{
		SessionID: "s-7",
		Message:   scammerMsg("You won a lottery!"),
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	snap, _ := env.sessions.Snapshot("s-7")
	if len(snap.Entities) != 0 {
		t.Errorf("agent reply was mined for entities: %v", snap.Entities)
	}
	agentTurn := snap.Turns[1]
	if agentTurn.DetectedCategories != nil || agentTurn.ExtractedEntities != nil {
		t.Errorf("agent turn carries annotations: %+v", agentTurn)
	}
}
