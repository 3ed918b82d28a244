package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/semem-go/semem/pkg/provider/llm"
)

// ExtractedEntity is one entity surfaced by [Client.Decompose].
type ExtractedEntity struct {
	Label      string  `json:"label"`
	SubType    string  `json:"subType"`
	Confidence float64 `json:"confidence"`
}

// ExtractedRelation is one relation surfaced by [Client.Decompose], naming
// its endpoints by label (the corpus decomposer resolves labels to entity
// URIs after dedup, §4.7 step 4).
type ExtractedRelation struct {
	Source string  `json:"source"`
	Type   string  `json:"type"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// Extraction is the structured output of [Client.Decompose] (§4.7 step 1).
type Extraction struct {
	Summary   string
	Entities  []ExtractedEntity
	Relations []ExtractedRelation
}

const decomposePromptTemplate = `Analyse the following text chunk. Respond with a single JSON object and nothing else, shaped exactly as:
{"summary": "...", "entities": [{"label": "...", "subType": "person|place|organisation|concept|other", "confidence": 0.0}], "relations": [{"source": "...", "type": "...", "target": "...", "weight": 0.0}]}

Text:
%s`

// Decompose asks the backend to summarise text and extract its entities and
// relations as a structured object (§4.7 step 1). It parses the response by
// scanning for the first balanced `{...}` span outside quoted strings, the
// same quote-aware scanning idiom ExtractConcepts uses for `[...]`.
func (c *Client) Decompose(ctx context.Context, text string) (Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return Extraction{}, nil
	}

	start := time.Now()
	prompt := fmt.Sprintf(decomposePromptTemplate, text)

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	c.record(start, err)
	if err != nil {
		return Extraction{}, fmt.Errorf("llmclient: decompose: %w", err)
	}

	return parseExtraction(resp.Content)
}

func parseExtraction(s string) (Extraction, error) {
	span, ok := findBalancedObject(s)
	if !ok {
		return Extraction{}, ErrParse
	}

	var raw struct {
		Summary   string              `json:"summary"`
		Entities  []ExtractedEntity   `json:"entities"`
		Relations []ExtractedRelation `json:"relations"`
	}
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return Extraction{}, ErrParse
	}

	return Extraction{Summary: raw.Summary, Entities: raw.Entities, Relations: raw.Relations}, nil
}

// findBalancedObject returns the first top-level-balanced `{...}` substring
// of s, ignoring braces that appear inside double-quoted JSON string
// literals — the object counterpart of findBalancedArray.
func findBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
