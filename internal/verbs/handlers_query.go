package verbs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/semem-go/semem/internal/compose"
	"github.com/semem-go/semem/internal/decompose"
	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/hyde"
	"github.com/semem-go/semem/internal/llmclient"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/retriever"
	"github.com/semem-go/semem/internal/zpt"
	"github.com/semem-go/semem/internal/zptstate"
	"github.com/semem-go/semem/pkg/memory"
)

// DefaultResultLimit bounds ask/recall result sets when the caller doesn't
// specify one.
const DefaultResultLimit = 10

// handleAsk implements `ask`: retrieves context under the session's current
// ZPT state, optionally augmented with HyDE hypotheses, composes it into a
// prompt, generates an answer, and records both the answer interaction and
// a NavigationView snapshot (§4.6, §4.8, §4.9, §4.10).
func handleAsk(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req AskRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, errs.New(errs.InvalidParameter, "question is required")
	}
	mode := llmclient.ModeStandard
	switch req.Mode {
	case "", "standard":
	case "comprehensive":
		mode = llmclient.ModeComprehensive
	default:
		return nil, errs.New(errs.InvalidParameter, "unknown mode: "+req.Mode)
	}

	now := d.now()
	sess := d.deps.Sessions.GetOrCreate(sessionID, now)
	state := sess.Snapshot()
	sessionURI := d.deps.Namespace.MintURI(namespace.SessionKind, sessionID)

	threshold := req.Threshold
	if threshold == 0 {
		threshold = state.Threshold
	}

	var hypotheses []retriever.Candidate
	hydeRan := false
	if req.UseHyDE && d.deps.Hyde != nil {
		result, err := d.deps.Hyde.Generate(ctx, req.Question, d.deps.Resolver)
		if err != nil {
			return nil, err
		}
		if d.deps.Quads != nil && len(result.Quads) > 0 {
			if err := d.deps.Quads.InsertQuads(ctx, result.Quads); err != nil {
				return nil, errs.Wrap(errs.EndpointUnavailable, "failed to persist hypotheses", err)
			}
		}
		hypotheses = hyde.ToCandidates(result)
		hydeRan = true
	}

	useContext := req.UseContext == nil || *req.UseContext
	var composed compose.Context
	if useContext && d.deps.Composer != nil {
		var err error
		composed, err = d.deps.Composer.Assemble(ctx, req.Question, compose.Options{
			Template:   compose.AskTemplateName,
			SessionURI: sessionURI,
			Zoom:       state.Zoom,
			Tilt:       state.Tilt,
			Pan:        state.Pan,
			Threshold:  threshold,
			Hypotheses: hypotheses,
		})
		if err != nil {
			return nil, err
		}
	}

	background := composed.Rendered
	var enrichmentSources []string
	for _, src := range []struct {
		name    string
		enabled bool
	}{{"wikipedia", req.UseWikipedia}, {"wikidata", req.UseWikidata}} {
		if !src.enabled {
			continue
		}
		enricher, ok := d.deps.Enrichers[src.name]
		if !ok {
			continue
		}
		// Enrichment is best-effort: an unavailable external source degrades
		// the answer's background, it never fails the verb (§7).
		enr, err := enricher.Enrich(ctx, req.Question)
		if err != nil {
			continue
		}
		if enr.Content != "" {
			background += "\n\n" + enr.Content
		}
		enrichmentSources = append(enrichmentSources, enr.Sources...)
	}

	answer, err := d.deps.LLM.Generate(ctx, req.Question, background, llmclient.GenerateOptions{Mode: mode})
	if err != nil {
		return nil, err
	}

	concepts, _ := d.deps.LLM.ExtractConcepts(ctx, answer)

	ia, err := d.deps.Interactions.Append(ctx, memory.Interaction{
		SessionURI: sessionURI,
		Prompt:     req.Question,
		Response:   answer,
		Concepts:   concepts,
	})
	if err != nil {
		return nil, err
	}
	sess.RememberInteraction(ia, now)

	var selected []string
	for _, item := range composed.MemoryItems {
		if item.URI != "" {
			selected = append(selected, item.URI)
		}
	}

	view, viewQuads := zpt.ToNavigationView(d.deps.Namespace, state, d.cfg.NavGraph, sessionURI, req.Question, selected, now)
	if d.deps.Quads != nil {
		if err := d.deps.Quads.InsertQuads(ctx, viewQuads); err != nil {
			return nil, errs.Wrap(errs.EndpointUnavailable, "failed to persist navigation view", err)
		}
	}

	if mutErr := sess.Mutate(func(s zptstate.State) (zptstate.State, error) {
		s.LastQuery = req.Question
		s.Timestamp = now
		return s, nil
	}, now); mutErr != nil {
		return nil, mutErr
	}

	payload := map[string]any{
		"answer":         answer,
		"interactionId":  ia.ID,
		"navigationView": view.URI,
		"degraded":       composed.Degraded,
		"hypotheses":     hydeRan,
	}
	if len(enrichmentSources) > 0 {
		payload["enrichmentSources"] = enrichmentSources
	}
	return withOutputs(payload, ia.URI, view.URI), nil
}

// handleRecall implements `recall`: a read-mostly retrieval whose pan is the
// request's explicit domain scope rather than the session's persisted pan;
// zoom and tilt are taken from the session's ZPT state, which recall reads
// but does not change (§4.10).
func handleRecall(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req RecallRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errs.New(errs.InvalidParameter, "query is required")
	}
	after, before, err := parseTimeRange(req.TimeRange)
	if err != nil {
		return nil, err
	}

	now := d.now()
	sess := d.deps.Sessions.GetOrCreate(sessionID, now)
	state := sess.Snapshot()
	sessionURI := d.deps.Namespace.MintURI(namespace.SessionKind, sessionID)

	limit := req.MaxResults
	if limit <= 0 {
		limit = DefaultResultLimit
	}

	result, err := d.deps.Retriever.Retrieve(ctx, req.Query, retriever.Options{
		SessionURI: sessionURI,
		Threshold:  req.RelevanceThreshold,
		Limit:      limit,
		Zoom:       state.Zoom,
		Tilt:       state.Tilt,
		Pan:        zptstate.Pan{Domains: req.Domains},
	})
	if err != nil {
		return nil, err
	}
	sess.Touch(now)

	results := make([]map[string]any, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		if !after.IsZero() && c.Timestamp.Before(after) {
			continue
		}
		if !before.IsZero() && c.Timestamp.After(before) {
			continue
		}
		results = append(results, map[string]any{
			"uri":        c.URI,
			"prompt":     c.Prompt,
			"response":   c.Response,
			"similarity": c.Score(),
			"maybe":      c.Maybe,
		})
	}

	return map[string]any{
		"results":  results,
		"degraded": result.Degraded,
	}, nil
}

// parseTimeRange validates tr and returns its bounds; a nil tr means
// unbounded. A malformed timestamp or an inverted range is InvalidParameter
// (§4.10 "invalid timeRange").
func parseTimeRange(tr *TimeRange) (after, before time.Time, err error) {
	if tr == nil {
		return time.Time{}, time.Time{}, nil
	}
	if tr.Start != "" {
		after, err = time.Parse(time.RFC3339, tr.Start)
		if err != nil {
			return time.Time{}, time.Time{}, errs.Wrap(errs.InvalidParameter, "invalid timeRange.start", err)
		}
	}
	if tr.End != "" {
		before, err = time.Parse(time.RFC3339, tr.End)
		if err != nil {
			return time.Time{}, time.Time{}, errs.Wrap(errs.InvalidParameter, "invalid timeRange.end", err)
		}
	}
	if !after.IsZero() && !before.IsZero() && after.After(before) {
		return time.Time{}, time.Time{}, errs.New(errs.InvalidParameter, "invalid timeRange: start is after end")
	}
	return after, before, nil
}

// handleAugment implements `augment`: runs a single named operation against
// arbitrary text, independent of any session's stored interactions
// (§4.10). Unknown operations are rejected as InvalidParameter rather than
// silently defaulting to one.
func handleAugment(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req AugmentRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Target) == "" {
		return nil, errs.New(errs.InvalidParameter, "target is required")
	}
	op := req.Operation
	if op == "" {
		op = "enhance_concepts"
	}
	if op == "auto" {
		op = autoAugmentOp(req.Target)
	}

	switch op {
	case "enhance_concepts":
		concepts, err := d.deps.LLM.ExtractConcepts(ctx, req.Target)
		if err != nil {
			return nil, err
		}
		return map[string]any{"concepts": concepts}, nil

	case "analyze_relationships", "full_processing":
		if d.deps.Decomposer == nil {
			return nil, errs.New(errs.Internal, "decomposer not configured")
		}
		seed := namespace.CanonicalSeed(sessionID, req.Target)
		sourceURI := d.deps.Namespace.MintURI(namespace.CorpuscleKind, seed)
		chunk := decompose.Chunk{SourceURI: sourceURI, Index: 0, Text: req.Target}
		result, err := d.deps.Decomposer.Decompose(ctx, []decompose.Chunk{chunk}, d.deps.Resolver, false)
		if err != nil {
			return nil, err
		}
		payload := map[string]any{
			"entities":      len(result.Entities),
			"relationships": len(result.Relationships),
		}
		if op == "full_processing" {
			payload["units"] = len(result.Units)
			if d.deps.Quads != nil && len(result.Quads) > 0 {
				if err := d.deps.Quads.InsertQuads(ctx, result.Quads); err != nil {
					return nil, errs.Wrap(errs.EndpointUnavailable, "failed to persist augmentation", err)
				}
			}
			d.persistGraph(ctx, result)
		}
		return payload, nil

	case "batch_extract_concepts":
		texts, err := batchTexts(req)
		if err != nil {
			return nil, err
		}
		batches := make([][]string, 0, len(texts))
		for _, t := range texts {
			concepts, err := d.deps.LLM.ExtractConcepts(ctx, t)
			if err != nil {
				return nil, err
			}
			batches = append(batches, concepts)
		}
		return map[string]any{"concepts": batches}, nil

	default:
		return nil, errs.New(errs.InvalidParameter, "unknown augment operation: "+op)
	}
}

// autoAugmentOp picks the sub-pipeline for augment's `auto` operation by
// target shape (§4.10): multi-sentence, document-sized text goes through the
// full decomposition pipeline, anything shorter just gets concepts.
func autoAugmentOp(target string) string {
	if len(target) >= 280 && strings.Count(target, ".") >= 2 {
		return "full_processing"
	}
	return "enhance_concepts"
}

// batchTexts reads batch_extract_concepts's inputs: options.texts when
// present, else the target split into non-empty lines.
func batchTexts(req AugmentRequest) ([]string, error) {
	if raw, ok := req.Options["texts"]; ok {
		items, ok := raw.([]any)
		if !ok {
			return nil, errs.New(errs.InvalidParameter, "options.texts must be an array of strings")
		}
		texts := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, errs.New(errs.InvalidParameter, "options.texts must be an array of strings")
			}
			if strings.TrimSpace(s) != "" {
				texts = append(texts, s)
			}
		}
		return texts, nil
	}

	var texts []string
	for _, line := range strings.Split(req.Target, "\n") {
		if strings.TrimSpace(line) != "" {
			texts = append(texts, line)
		}
	}
	return texts, nil
}

// handleCompose implements the `compose` verb: context assembly only, no
// generation step (§4.11, §4.10's distinction from `ask`).
func handleCompose(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req ComposeRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errs.New(errs.InvalidParameter, "query is required")
	}
	if d.deps.Composer == nil {
		return nil, errs.New(errs.Internal, "composer not configured")
	}

	now := d.now()
	sess := d.deps.Sessions.GetOrCreate(sessionID, now)
	state := sess.Snapshot()
	sessionURI := d.deps.Namespace.MintURI(namespace.SessionKind, sessionID)

	result, err := d.deps.Composer.Assemble(ctx, req.Query, compose.Options{
		Template:    req.Template,
		SessionURI:  sessionURI,
		Zoom:        state.Zoom,
		Tilt:        state.Tilt,
		Pan:         state.Pan,
		Threshold:   req.Threshold,
		MaxTokens:   req.MaxTokens,
		MemoryLimit: req.MaxResults,
		SkipSession: req.IncludeSession != nil && !*req.IncludeSession,
		SkipMemory:  req.IncludeMemory != nil && !*req.IncludeMemory,
		Extra:       req.Context,
	})
	if err != nil {
		return nil, err
	}
	sess.Touch(now)

	return map[string]any{
		"context":      result.Rendered,
		"sessionCount": len(result.SessionItems),
		"memoryCount":  len(result.MemoryItems),
		"degraded":     result.Degraded,
	}, nil
}
