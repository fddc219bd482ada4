// Package report delivers extracted intelligence to the external callback
// collaborator. Delivery is fire-and-forget from the pipeline's point of
// view: failures are logged here and never surfaced to the honeypot caller.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/honeygrid/scamtrap/internal/domain"
)

// Intelligence is the wire shape of the extracted entity set.
type Intelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UpiIDs             []string `json:"upiIds"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	PhishingLinks      []string `json:"phishingLinks"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Payload is the callback request body.
type Payload struct {
	SessionID              string           `json:"sessionId"`
	ScamDetected           bool             `json:"scamDetected"`
	MaxScore               float64          `json:"maxScore"`
	Categories             []string         `json:"categories"`
	TotalMessagesExchanged int              `json:"totalMessagesExchanged"`
	ExtractedIntelligence  Intelligence     `json:"extractedIntelligence"`
	VerdictTrend           []domain.Verdict `json:"verdictTrend"`
}

// Reporter sends intelligence reports.
type Reporter interface {
	Report(ctx context.Context, p Payload) error
}

// HTTPReporter posts payloads to the configured callback URL.
type HTTPReporter struct {
	url    string
	client *http.Client
}

// NewHTTPReporter creates a reporter with a bounded per-call timeout.
func NewHTTPReporter(url string, timeout time.Duration) *HTTPReporter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReporter{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Report implements Reporter.
func (r *HTTPReporter) Report(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal report payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("report rejected with status %d", resp.StatusCode)
	}
	return nil
}

// BuildPayload assembles the callback body from a session snapshot.
// keywords is the accumulated suspicious-keyword set for the session.
func BuildPayload(s *domain.Session, keywords []string) Payload {
	intel := Intelligence{
		BankAccounts:       []string{},
		UpiIDs:             []string{},
		PhoneNumbers:       []string{},
		PhishingLinks:      []string{},
		SuspiciousKeywords: keywords,
	}
	if intel.SuspiciousKeywords == nil {
		intel.SuspiciousKeywords = []string{}
	}
	for _, e := range s.EntityList() {
		switch e.Kind {
		case domain.KindBankAccount:
			intel.BankAccounts = append(intel.BankAccounts, e.Value)
		case domain.KindUPI:
			intel.UpiIDs = append(intel.UpiIDs, e.Value)
		case domain.KindPhone:
			intel.PhoneNumbers = append(intel.PhoneNumbers, e.Value)
		case domain.KindURL:
			intel.PhishingLinks = append(intel.PhishingLinks, e.Value)
		}
	}

	scam := false
	for _, v := range s.VerdictTrend {
		if v.IsScam {
			scam = true
			break
		}
	}

	return Payload{
		SessionID:              s.ID,
		ScamDetected:           scam,
		MaxScore:               s.MaxScore,
		Categories:             s.CategoryList(),
		TotalMessagesExchanged: len(s.Turns),
		ExtractedIntelligence:  intel,
		VerdictTrend:           append([]domain.Verdict(nil), s.VerdictTrend...),
	}
}
