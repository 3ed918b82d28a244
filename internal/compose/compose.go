// Package compose implements the Answer Composer (C11): it assembles a
// bounded, deduplicated context window from a session's own recent
// interactions (K_session) and the hybrid retriever's ranked candidates
// (K_memory), then renders it into a named prompt template (§4.11).
package compose

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/interactions"
	"github.com/semem-go/semem/internal/retriever"
	"github.com/semem-go/semem/internal/zptstate"
	"github.com/semem-go/semem/pkg/memory"
)

// DefaultTemplateName is used when a caller does not name a template.
const DefaultTemplateName = "compose-context"

// AskTemplateName renders only the context block, with no question echoed
// into the body — `ask` passes the rendered result to the LLM client as
// background and sends the question itself as the prompt.
const AskTemplateName = "ask-context"

// DefaultSessionLimit and DefaultMemoryLimit bound K_session/K_memory when
// Config leaves them zero.
const (
	DefaultSessionLimit = 5
	DefaultMemoryLimit  = 10
)

// defaultTemplate renders the composed context ahead of the question, the
// shape every `ask` call falls back to.
const defaultTemplate = "{{context}}\n\nQuestion: {{query}}"

// Config configures a [Composer].
type Config struct {
	// Templates maps a template name to its body. Bodies are interpolated
	// via simple {{slot}} substitution — {{query}}, {{context}}, {{memory}},
	// {{zoom}}, {{pan}}, {{tilt}}, {{maxTokens}}.
	Templates map[string]string

	// SessionLimit bounds K_session (§4.11); defaults to DefaultSessionLimit.
	SessionLimit int

	// MemoryLimit bounds K_memory (§4.11); defaults to DefaultMemoryLimit.
	MemoryLimit int
}

// Composer is the C11 Answer Composer.
type Composer struct {
	interactions *interactions.Store
	retriever    *retriever.Retriever
	templates    map[string]string
	sessionLimit int
	memoryLimit  int
	now          func() time.Time
}

// New constructs a Composer. ia may be nil to disable K_session (tests that
// only exercise memory-side assembly); ret may be nil to disable K_memory.
func New(ia *interactions.Store, ret *retriever.Retriever, cfg Config) *Composer {
	templates := make(map[string]string, len(cfg.Templates)+1)
	for k, v := range cfg.Templates {
		templates[k] = v
	}
	if _, ok := templates[DefaultTemplateName]; !ok {
		templates[DefaultTemplateName] = defaultTemplate
	}
	if _, ok := templates[AskTemplateName]; !ok {
		templates[AskTemplateName] = "{{context}}"
	}

	sessionLimit := cfg.SessionLimit
	if sessionLimit <= 0 {
		sessionLimit = DefaultSessionLimit
	}
	memoryLimit := cfg.MemoryLimit
	if memoryLimit <= 0 {
		memoryLimit = DefaultMemoryLimit
	}

	return &Composer{
		interactions: ia,
		retriever:    ret,
		templates:    templates,
		sessionLimit: sessionLimit,
		memoryLimit:  memoryLimit,
		now:          time.Now,
	}
}

// Options configures one [Composer.Assemble] call.
type Options struct {
	// Template names the body to render into. Empty uses DefaultTemplateName.
	Template string

	SessionURI string
	Zoom       string
	Tilt       string
	Pan        zptstate.Pan
	Threshold  float64
	MaxTokens  int

	// MemoryLimit overrides the Composer's configured K_memory for this call
	// when positive.
	MemoryLimit int

	// SkipSession/SkipMemory drop the corresponding context source entirely
	// (the `compose` verb's includeSession/includeMemory set to false).
	SkipSession bool
	SkipMemory  bool

	// Extra is caller-supplied background prepended to the rendered context
	// block, ahead of session and memory items.
	Extra string

	// Hypotheses are HyDE-generated candidates folded into K_memory's
	// retrieval call (§4.8); nil disables HyDE augmentation.
	Hypotheses []retriever.Candidate
}

// Item is a single rendered context entry, combining a session interaction
// or a retrieved candidate into one uniform view.
type Item struct {
	URI        string
	Prompt     string
	Response   string
	Similarity float64
}

// Context is the result of [Composer.Assemble]: the final rendered prompt
// plus the items that went into it, for the caller to cite as sources.
type Context struct {
	Rendered     string
	SessionItems []Item
	MemoryItems  []Item
	Degraded     bool
}

// Assemble fetches K_session and K_memory concurrently, dedupes by
// (prompt, response), and renders the named template (§4.11). Returns
// errs.TemplateNotFound if opts.Template names a template this Composer was
// not configured with — composition never falls back to a different
// template silently.
func (c *Composer) Assemble(ctx context.Context, query string, opts Options) (Context, error) {
	name := opts.Template
	if name == "" {
		name = DefaultTemplateName
	}
	tmpl, ok := c.templates[name]
	if !ok {
		return Context{}, errs.New(errs.TemplateNotFound, "no template named "+name)
	}

	var (
		sessionInteractions []memory.Interaction
		memoryCandidates    []retriever.Candidate
		degraded            bool
	)

	memoryLimit := c.memoryLimit
	if opts.MemoryLimit > 0 {
		memoryLimit = opts.MemoryLimit
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if opts.SkipSession || c.interactions == nil || opts.SessionURI == "" {
			return nil
		}
		items, err := c.interactions.Scan(egCtx, interactions.ScanFilter{SessionURI: opts.SessionURI})
		if err != nil {
			return fmt.Errorf("compose: scan session history: %w", err)
		}
		sessionInteractions = items
		return nil
	})

	eg.Go(func() error {
		if opts.SkipMemory || c.retriever == nil {
			return nil
		}
		result, err := c.retriever.Retrieve(egCtx, query, retriever.Options{
			SessionURI: opts.SessionURI,
			Threshold:  opts.Threshold,
			Limit:      memoryLimit,
			Zoom:       opts.Zoom,
			Tilt:       opts.Tilt,
			Pan:        opts.Pan,
			Hypotheses: opts.Hypotheses,
		})
		if err != nil {
			return fmt.Errorf("compose: retrieve memory context: %w", err)
		}
		memoryCandidates = result.Candidates
		degraded = result.Degraded
		return nil
	})

	if err := eg.Wait(); err != nil {
		return Context{}, errs.Wrap(errs.ProviderError, "context assembly failed", err)
	}

	sessionItems := recentInteractionItems(sessionInteractions, c.sessionLimit)
	memoryItems := candidateItems(memoryCandidates, memoryLimit)
	memoryItems = dedupeAgainst(memoryItems, sessionItems)

	rendered := render(tmpl, query, sessionItems, memoryItems, opts)

	return Context{
		Rendered:     rendered,
		SessionItems: sessionItems,
		MemoryItems:  memoryItems,
		Degraded:     degraded,
	}, nil
}

// recentInteractionItems sorts ia by CreatedAt descending and keeps the
// most recent limit entries, each given full similarity (session context is
// always maximally relevant by construction).
func recentInteractionItems(ia []memory.Interaction, limit int) []Item {
	sorted := make([]memory.Interaction, len(ia))
	copy(sorted, ia)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	items := make([]Item, 0, len(sorted))
	for _, a := range sorted {
		items = append(items, Item{URI: a.URI, Prompt: a.Prompt, Response: a.Response, Similarity: 1})
	}
	return items
}

// candidateItems converts retriever candidates (already ranked descending
// by the retriever) into Items, keeping at most limit.
func candidateItems(cands []retriever.Candidate, limit int) []Item {
	if len(cands) > limit {
		cands = cands[:limit]
	}
	items := make([]Item, 0, len(cands))
	for _, c := range cands {
		items = append(items, Item{URI: c.URI, Prompt: c.Prompt, Response: c.Response, Similarity: c.Score()})
	}
	return items
}

// dedupeAgainst drops memory items whose (prompt, response) pair already
// appears among session items, so the same exchange never appears twice in
// the rendered context (§4.11 "deduplicated by interaction identity").
func dedupeAgainst(memoryItems, sessionItems []Item) []Item {
	seen := make(map[string]bool, len(sessionItems))
	for _, s := range sessionItems {
		seen[s.Prompt+"\x00"+s.Response] = true
	}
	out := make([]Item, 0, len(memoryItems))
	for _, m := range memoryItems {
		key := m.Prompt + "\x00" + m.Response
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func render(tmpl, query string, sessionItems, memoryItems []Item, opts Options) string {
	all := append(append([]Item(nil), sessionItems...), memoryItems...)
	contextBlock := renderItems(all)
	if opts.Extra != "" {
		if contextBlock == "" {
			contextBlock = opts.Extra
		} else {
			contextBlock = opts.Extra + "\n" + contextBlock
		}
	}

	replacer := strings.NewReplacer(
		"{{query}}", query,
		"{{context}}", contextBlock,
		"{{memory}}", renderItems(memoryItems),
		"{{zoom}}", opts.Zoom,
		"{{tilt}}", opts.Tilt,
		"{{pan}}", strings.Join(opts.Pan.Domains, ","),
		"{{maxTokens}}", fmt.Sprintf("%d", opts.MaxTokens),
	)
	return replacer.Replace(tmpl)
}

// renderItems renders items as `[i] prompt (similarity: s.ss)\nresponse`,
// one per line pair, 1-indexed (§4.11).
func renderItems(items []Item) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%d] %s (similarity: %.2f)\n%s", i+1, it.Prompt, it.Similarity, it.Response)
	}
	return sb.String()
}
