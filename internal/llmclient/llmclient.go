// Package llmclient wraps an llm.Provider with the three higher-level
// operations the memory core actually needs — free-form generation, concept
// extraction, and hypothesis generation — plus last-call diagnostics.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/semem-go/semem/pkg/provider/llm"
)

// ErrParse is returned by ExtractConcepts when no balanced span in the
// model's response parses as a JSON array, and by Decompose when its
// response yields no usable JSON object.
var ErrParse = errors.New("llmclient: no balanced JSON array found in response")

// Mode selects how much instruction-following scaffolding Generate adds
// around the caller's prompt.
type Mode string

const (
	// ModeStandard sends the prompt with minimal wrapping.
	ModeStandard Mode = "standard"

	// ModeComprehensive asks for a thorough, well-structured answer.
	ModeComprehensive Mode = "comprehensive"
)

// GenerateOptions configures a single Generate call.
type GenerateOptions struct {
	MaxTokens     int
	Temperature   float64
	StopSequences []string
	Mode          Mode
}

// Hypothesis is the result of GenerateHypothesis.
type Hypothesis struct {
	Text       string
	Confidence float64
}

// CallInfo records diagnostics for the most recently completed call.
type CallInfo struct {
	Provider string
	Model    string
	Latency  time.Duration
	Status   string // "ok" or "error"
}

// Client wraps an llm.Provider with generate/extractConcepts/generateHypothesis
// and tracks last-call diagnostics. Safe for concurrent use.
type Client struct {
	provider     llm.Provider
	providerName string
	model        string

	mu       sync.Mutex
	lastCall CallInfo
}

// New wraps provider, identified as providerName/model for diagnostics
// (e.g. "openai", "gpt-4o").
func New(provider llm.Provider, providerName, model string) *Client {
	return &Client{provider: provider, providerName: providerName, model: model}
}

// LastCall returns diagnostics for the most recently completed call.
func (c *Client) LastCall() CallInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCall
}

func (c *Client) record(start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.mu.Lock()
	c.lastCall = CallInfo{
		Provider: c.providerName,
		Model:    c.model,
		Latency:  time.Since(start),
		Status:   status,
	}
	c.mu.Unlock()
}

// Generate sends prompt (optionally preceded by context) to the backend and
// returns the generated text.
func (c *Client) Generate(ctx context.Context, prompt string, background string, opts GenerateOptions) (string, error) {
	start := time.Now()

	var sb strings.Builder
	if background != "" {
		sb.WriteString(background)
		sb.WriteString("\n\n")
	}
	sb.WriteString(prompt)

	system := ""
	if opts.Mode == ModeComprehensive {
		system = "Provide a thorough, well-structured answer that covers relevant context."
	}

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: sb.String()}},
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
		SystemPrompt: system,
	})
	c.record(start, err)
	if err != nil {
		return "", fmt.Errorf("llmclient: generate: %w", err)
	}
	return resp.Content, nil
}

// ExtractConcepts asks the backend to list the salient concepts in text and
// parses the response per §4.3: it scans for the first balanced `[...]`
// outside quoted strings, parses it as JSON, and flattens one level of
// nesting; spans that fail to parse are skipped. Returns an empty slice for
// empty input. Returns ErrParse only when no balanced span parses as a JSON
// array.
func (c *Client) ExtractConcepts(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	start := time.Now()
	prompt := "Extract the key concepts from the following text. " +
		"Respond with a JSON array of short strings, and nothing else.\n\n" + text

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	c.record(start, err)
	if err != nil {
		return nil, fmt.Errorf("llmclient: extractConcepts: %w", err)
	}

	return ParseConceptArray(resp.Content)
}

// GenerateHypothesis produces a hypothetical answer to query (used by the
// HyDE hypothesis engine) along with a confidence score. Confidence is
// derived from a length/hedging heuristic, since llm.Provider does not
// surface token log-probabilities.
func (c *Client) GenerateHypothesis(ctx context.Context, query string, opts GenerateOptions) (Hypothesis, error) {
	start := time.Now()

	prompt := "Write a plausible, concise answer to the following question, " +
		"as if you were confident in the facts. Question: " + query

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	c.record(start, err)
	if err != nil {
		return Hypothesis{}, fmt.Errorf("llmclient: generateHypothesis: %w", err)
	}

	return Hypothesis{
		Text:       resp.Content,
		Confidence: heuristicConfidence(resp.Content),
	}, nil
}

// hedgingTokens lowers confidence when present in a generated hypothesis —
// they signal the model itself is unsure.
var hedgingTokens = []string{
	"i'm not sure", "i am not sure", "might be", "possibly", "perhaps",
	"it is unclear", "i don't know", "i do not know", "unverified", "unconfirmed",
}

// heuristicConfidence derives a confidence score in [0,1] from response
// length and the presence of hedging language, for backends that do not
// expose log-probabilities.
func heuristicConfidence(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	lower := strings.ToLower(trimmed)
	confidence := 0.5 + 0.3*lengthFactor(len(trimmed))

	for _, tok := range hedgingTokens {
		if strings.Contains(lower, tok) {
			confidence -= 0.2
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// lengthFactor maps a response character count to [0,1], saturating around
// 400 characters — longer, more elaborated answers read as more confident.
func lengthFactor(n int) float64 {
	const saturationLen = 400
	if n >= saturationLen {
		return 1
	}
	return float64(n) / float64(saturationLen)
}
