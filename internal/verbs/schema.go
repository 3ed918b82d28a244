package verbs

import (
	"bytes"
	"encoding/json"

	"github.com/semem-go/semem/internal/errs"
)

// decodeStrict unmarshals raw into dst, rejecting unknown fields, the same
// way internal/config's loader validates config.json (§6 "inputs validated
// against a schema; unknown fields rejected").
func decodeStrict(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidParameter, "malformed request body", err)
	}
	return nil
}

// TellRequest is the `tell` verb's input (§4.10).
type TellRequest struct {
	Content  string         `json:"content"`
	Type     string         `json:"type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AskRequest is the `ask` verb's input (§4.10).
type AskRequest struct {
	Question     string  `json:"question"`
	Mode         string  `json:"mode,omitempty"`
	UseContext   *bool   `json:"useContext,omitempty"`
	UseHyDE      bool    `json:"useHyDE,omitempty"`
	UseWikipedia bool    `json:"useWikipedia,omitempty"`
	UseWikidata  bool    `json:"useWikidata,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	Limit        int     `json:"limit,omitempty"`
}

// AugmentRequest is the `augment` verb's input (§4.10).
type AugmentRequest struct {
	Target    string         `json:"target"`
	Operation string         `json:"operation,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// RememberRequest is the `remember` verb's input (§4.10).
type RememberRequest struct {
	Content    string         `json:"content"`
	Domain     string         `json:"domain"`
	DomainID   string         `json:"domainId,omitempty"`
	Importance float64        `json:"importance,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TimeRange bounds `recall` results by interaction timestamp. Start and End
// are RFC 3339 timestamps; either may be empty to leave that side open.
type TimeRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// RecallRequest is the `recall` verb's input (§4.10).
type RecallRequest struct {
	Query              string     `json:"query"`
	Domains            []string   `json:"domains,omitempty"`
	TimeRange          *TimeRange `json:"timeRange,omitempty"`
	RelevanceThreshold float64    `json:"relevanceThreshold,omitempty"`
	MaxResults         int        `json:"maxResults,omitempty"`
}

// ForgetRequest is the `forget`/`fade` verbs' input (§4.10).
type ForgetRequest struct {
	Target     string  `json:"target,omitempty"`
	Domain     string  `json:"domain,omitempty"`
	FadeFactor float64 `json:"fadeFactor,omitempty"`
}

// ZoomRequest is the `zoom` verb's input (§4.10).
type ZoomRequest struct {
	Level string `json:"level"`
}

// PanRequest is the `pan` verb's input (§4.10). Nil pointer fields leave the
// corresponding dimension unchanged; an explicit empty slice resets it.
type PanRequest struct {
	Domains   *[]string `json:"domains,omitempty"`
	Keywords  *[]string `json:"keywords,omitempty"`
	Entities  *[]string `json:"entities,omitempty"`
	Temporal  *string   `json:"temporal,omitempty"`
	Corpuscle *[]string `json:"corpuscle,omitempty"`
}

// TiltRequest is the `tilt` verb's input (§4.10).
type TiltRequest struct {
	Style string `json:"style"`
}

// InspectRequest is the `inspect` verb's input (§4.10).
type InspectRequest struct {
	What    string `json:"what,omitempty"`
	Details bool   `json:"details,omitempty"`
}

// ComposeRequest is the `compose` verb's input (§4.11). IncludeSession and
// IncludeMemory default to true when absent.
type ComposeRequest struct {
	Query          string  `json:"query"`
	Context        string  `json:"context,omitempty"`
	Template       string  `json:"template,omitempty"`
	MaxResults     int     `json:"maxResults,omitempty"`
	MaxTokens      int     `json:"maxTokens,omitempty"`
	Threshold      float64 `json:"threshold,omitempty"`
	IncludeSession *bool   `json:"includeSession,omitempty"`
	IncludeMemory  *bool   `json:"includeMemory,omitempty"`
}

// DecomposeRequest is the `decompose` verb's input (§4.7, §4.10).
type DecomposeRequest struct {
	Content string   `json:"content"`
	Source  string   `json:"source,omitempty"`
	Chunks  []string `json:"chunks,omitempty"`
	Store   bool     `json:"store,omitempty"`
}
