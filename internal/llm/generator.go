// Package llm wraps the external text-generation capability. The rest of
// the pipeline depends only on the Generator interface so the model can be
// stubbed in tests and the service degrades cleanly when it is absent.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("generation returned empty response")

// Exchange is one turn of model-visible conversation history.
type Exchange struct {
	FromAgent bool
	Text      string
}

// Generator defines the text-generation capability used by the persona
// agent and the detector assist. Implementations must honor ctx deadlines.
type Generator interface {
	// Generate produces the next reply given a system contract, prior
	// exchanges and the latest inbound text.
	Generate(ctx context.Context, system string, history []Exchange, userText string) (string, error)

	// GenerateJSON produces a JSON document for a single prompt.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Gemini implements Generator over the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini-backed generator. The client is constructed
// once; a nil-safe zero timeout defaults to 15s per call.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, system string, history []Exchange, userText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, buildContents(system, history, userText), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// buildContents lays out the generation request. The system contract rides
// as the first model-role content, the same way a spawned character agent
// carries its character sheet, followed by the windowed history and the
// latest inbound text.
func buildContents(system string, history []Exchange, userText string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+2)
	contents = append(contents, genai.NewContentFromText(system, genai.RoleModel))
	for _, ex := range history {
		var role genai.Role = genai.RoleUser
		if ex.FromAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(ex.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(userText, genai.RoleUser))
	return contents
}

// GenerateJSON implements Generator.
func (g *Gemini) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		genConfig)
	if err != nil {
		return "", fmt.Errorf("generate json: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
