// Package honeypot composes detection, extraction, persona reply and
// session state into the per-message pipeline.
package honeypot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/honeygrid/scamtrap/internal/detect"
	"github.com/honeygrid/scamtrap/internal/domain"
	"github.com/honeygrid/scamtrap/internal/events"
	"github.com/honeygrid/scamtrap/internal/intel"
	"github.com/honeygrid/scamtrap/internal/patterns"
	"github.com/honeygrid/scamtrap/internal/persona"
	"github.com/honeygrid/scamtrap/internal/report"
	"github.com/honeygrid/scamtrap/internal/session"
)

// ErrValidation marks malformed requests. The only error class surfaced to
// the caller; everything else degrades to a usable reply.
var ErrValidation = errors.New("validation")

// Request is one inbound message plus its context.
type Request struct {
	SessionID string
	Message   domain.Message
	// History is the caller-supplied transcript. Server-side session
	// state is authoritative; History only seeds a session the store has
	// not seen yet.
	History  []domain.Message
	Channel  string
	Language string
	Locale   string
}

// Validate checks the request shape before any session mutation.
func (r Request) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if r.Message.Text == "" {
		return fmt.Errorf("%w: message text is required", ErrValidation)
	}
	if !r.Message.Sender.Valid() {
		return fmt.Errorf("%w: unknown sender %q", ErrValidation, r.Message.Sender)
	}
	for _, m := range r.History {
		if !m.Sender.Valid() {
			return fmt.Errorf("%w: unknown sender %q in history", ErrValidation, m.Sender)
		}
	}
	return nil
}

// Service is the orchestrator called once per inbound message.
type Service struct {
	store     session.Store
	detector  *detect.Detector
	extractor *intel.Extractor
	agent     *persona.Agent
	lib       *patterns.Library
	reporter  report.Reporter // nil disables reporting
	hub       *events.Hub     // nil disables the operator feed

	highScore       float64
	callbackTimeout time.Duration
	nowFn           func() time.Time
}

// Options carries the optional collaborators and thresholds.
type Options struct {
	Reporter           report.Reporter
	Hub                *events.Hub
	HighScoreThreshold float64
	CallbackTimeout    time.Duration
}

// NewService wires the pipeline.
func NewService(store session.Store, detector *detect.Detector, extractor *intel.Extractor,
	agent *persona.Agent, lib *patterns.Library, opts Options) *Service {
	if opts.HighScoreThreshold <= 0 {
		opts.HighScoreThreshold = 0.8
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = 10 * time.Second
	}
	return &Service{
		store:           store,
		detector:        detector,
		extractor:       extractor,
		agent:           agent,
		lib:             lib,
		reporter:        opts.Reporter,
		hub:             opts.Hub,
		highScore:       opts.HighScoreThreshold,
		callbackTimeout: opts.CallbackTimeout,
		nowFn:           time.Now,
	}
}

// Handle processes one inbound message and returns the persona's reply.
// Only validation failures return an error; collaborator failures degrade
// so the scammer never sees the service stumble.
func (s *Service) Handle(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var (
		reply         string
		reportPayload *report.Payload
	)

	err := s.store.Update(ctx, req.SessionID, func(sess *domain.Session, created bool) error {
		if created {
			s.publish(events.Event{Type: events.TypeSessionCreated, SessionID: sess.ID})
			s.seed(ctx, sess, req.History)
		}

		turn := sess.AppendTurn(req.Message)

		// Detection and extraction are independent of each other; both
		// read the pre-turn session state.
		verdict := s.detector.Detect(ctx, req.Message.Text, sess.Turns[:turn.Index], sess.MaxScore)
		extracted := s.extractor.Extract(req.Message.Text, turn.Index, sess.Entities)

		turn.DetectedCategories = verdict.Categories
		turn.ExtractedEntities = extracted

		for _, e := range extracted {
			if sess.MergeEntity(e) {
				s.publish(events.Event{
					Type:      events.TypeEntityNew,
					SessionID: sess.ID,
					Data:      e,
				})
			}
		}
		sess.RecordVerdict(verdict)
		s.publish(events.Event{Type: events.TypeVerdict, SessionID: sess.ID, Data: verdict})

		reply = s.agent.Reply(ctx, sess, verdict)

		// The agent's own words are recorded but never fed back through
		// detection or extraction.
		sess.AppendTurn(domain.Message{
			Sender:    domain.SenderAgent,
			Text:      reply,
			Timestamp: s.nowFn().UnixMilli(),
		})

		if p := s.reportDue(sess); p != nil {
			reportPayload = p
		}

		slog.Info("turn processed",
			"session_id", sess.ID,
			"channel", req.Channel,
			"is_scam", verdict.IsScam,
			"score", verdict.Score,
			"entities", len(sess.Entities),
			"turns", len(sess.Turns))
		return nil
	})
	if err != nil {
		return "", err
	}

	if reportPayload != nil {
		s.dispatchReport(*reportPayload)
	}
	return reply, nil
}

// seed bootstraps a fresh session from caller-supplied history. Scammer
// turns get their one-time annotations at seeding; agent turns are recorded
// verbatim.
func (s *Service) seed(ctx context.Context, sess *domain.Session, history []domain.Message) {
	for _, msg := range history {
		turn := sess.AppendTurn(msg)
		if msg.Sender != domain.SenderScammer {
			continue
		}
		verdict := s.detector.Detect(ctx, msg.Text, sess.Turns[:turn.Index], sess.MaxScore)
		extracted := s.extractor.Extract(msg.Text, turn.Index, sess.Entities)
		turn.DetectedCategories = verdict.Categories
		turn.ExtractedEntities = extracted
		for _, e := range extracted {
			sess.MergeEntity(e)
		}
		sess.RecordVerdict(verdict)
	}
	if len(history) > 0 {
		slog.Info("session seeded from caller history",
			"session_id", sess.ID, "turns", len(history))
	}
}

// reportDue checks the reporting thresholds and marks them fired. Each
// threshold reports at most once per session.
func (s *Service) reportDue(sess *domain.Session) *report.Payload {
	due := false
	if !sess.PaymentReported && sess.HasPaymentEntity() {
		sess.PaymentReported = true
		due = true
	}
	if !sess.HighScoreReported && sess.MaxScore >= s.highScore {
		sess.HighScoreReported = true
		due = true
	}
	if !due || s.reporter == nil {
		return nil
	}
	p := report.BuildPayload(sess, s.suspiciousKeywords(sess))
	return &p
}

// dispatchReport sends the callback on its own goroutine with a detached,
// bounded context. Failure is logged and never reaches the caller.
func (s *Service) dispatchReport(p report.Payload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.callbackTimeout)
		defer cancel()
		if err := s.reporter.Report(ctx, p); err != nil {
			slog.Warn("intelligence report failed", "session_id", p.SessionID, "error", err)
			return
		}
		s.publish(events.Event{Type: events.TypeReportSent, SessionID: p.SessionID})
		slog.Info("intelligence report sent",
			"session_id", p.SessionID, "entities",
			len(p.ExtractedIntelligence.UpiIDs)+
				len(p.ExtractedIntelligence.PhoneNumbers)+
				len(p.ExtractedIntelligence.BankAccounts)+
				len(p.ExtractedIntelligence.PhishingLinks))
	}()
}

// suspiciousKeywords unions the flat keyword hits across scammer turns.
func (s *Service) suspiciousKeywords(sess *domain.Session) []string {
	seen := make(map[string]struct{})
	for _, t := range sess.Turns {
		if t.Sender != domain.SenderScammer {
			continue
		}
		for _, kw := range s.lib.SuspiciousKeywords(t.Text) {
			seen[kw] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for kw := range seen {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

func (s *Service) publish(evt events.Event) {
	if s.hub != nil {
		s.hub.Publish(evt)
	}
}
