package verbs

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/semem-go/semem/internal/decompose"
	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/interactions"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/pkg/memory"
)

// handleTell implements `tell`: append content to C5, triggering corpus
// decomposition when type=="document" (§4.10).
func handleTell(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req TellRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, errs.New(errs.InvalidParameter, "content is required")
	}
	if req.Type == "" {
		req.Type = "interaction"
	}

	now := d.now()
	sess := d.deps.Sessions.GetOrCreate(sessionID, now)
	sessionURI := d.deps.Namespace.MintURI(namespace.SessionKind, sessionID)
	ia, err := d.deps.Interactions.Append(ctx, memory.Interaction{
		SessionURI: sessionURI,
		Prompt:     req.Content,
		Response:   "",
		Domains:    metadataDomains(req.Metadata),
	})
	if err != nil {
		return nil, err
	}
	sess.RememberInteraction(ia, now)

	outputs := []string{ia.URI}
	payload := map[string]any{
		"interactionId": ia.ID,
		"uri":           ia.URI,
	}

	if req.Type == "document" && d.deps.Decomposer != nil {
		chunk := decompose.Chunk{SourceURI: ia.URI, Index: 0, Text: req.Content}
		result, derr := d.deps.Decomposer.Decompose(ctx, []decompose.Chunk{chunk}, d.deps.Resolver, false)
		if derr != nil {
			return nil, derr
		}
		if d.deps.Quads != nil && len(result.Quads) > 0 {
			if err := d.deps.Quads.InsertQuads(ctx, result.Quads); err != nil {
				return nil, errs.Wrap(errs.EndpointUnavailable, "failed to persist decomposition", err)
			}
		}
		d.persistGraph(ctx, result)
		payload["entities"] = len(result.Entities)
		payload["relationships"] = len(result.Relationships)
		payload["units"] = len(result.Units)
		for _, e := range result.Entities {
			outputs = append(outputs, e.ID)
		}
	}

	return withOutputs(payload, outputs...), nil
}

// metadataDomains reads domain tags from a tell's metadata — either a
// single "domain" string or a "domains" string array — so told content
// participates in `recall`'s domain scoping without going through `remember`.
func metadataDomains(metadata map[string]any) []string {
	var out []string
	if d, ok := metadata["domain"].(string); ok && d != "" {
		out = append(out, d)
	}
	if ds, ok := metadata["domains"].([]any); ok {
		for _, v := range ds {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// handleRemember implements `remember`: a domain-scoped `tell` (§4.10).
func handleRemember(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req RememberRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, errs.New(errs.InvalidParameter, "content is required")
	}
	if req.Domain == "" {
		return nil, errs.New(errs.InvalidParameter, "domain is required")
	}
	if req.Importance < 0 || req.Importance > 1 {
		return nil, errs.New(errs.InvalidParameter, "importance must be in [0,1]")
	}

	now := d.now()
	sess := d.deps.Sessions.GetOrCreate(sessionID, now)
	sessionURI := d.deps.Namespace.MintURI(namespace.SessionKind, sessionID)

	ia, err := d.deps.Interactions.Append(ctx, memory.Interaction{
		SessionURI:  sessionURI,
		Prompt:      req.Content,
		Domains:     []string{req.Domain},
		DecayFactor: 1,
	})
	if err != nil {
		return nil, err
	}
	sess.RememberInteraction(ia, now)

	return withOutputs(map[string]any{
		"interactionId": ia.ID,
		"uri":           ia.URI,
		"domain":        req.Domain,
	}, ia.URI), nil
}

// handleForget implements both `forget` and `fade` (§4.10): multiplicative
// decay, never hard deletion — `forget` without a fadeFactor zeroes the
// matched interactions' weight, but the records themselves stay in their
// tiers (the Store's own Forget primitive is not part of this verb's
// contract). A named target is just a one-interaction filter on the same
// path. System-flagged interactions are always preserved by
// [interactions.Store.Fade].
func handleForget(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req ForgetRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if req.FadeFactor < 0 || req.FadeFactor > 1 {
		return nil, errs.New(errs.InvalidParameter, "fadeFactor must be in [0,1]")
	}
	if req.FadeFactor == 0 {
		req.FadeFactor = 1
	}

	filter := interactions.ScanFilter{ID: req.Target}
	if req.Domain != "" {
		filter.Domains = []string{req.Domain}
	}

	count, err := d.deps.Interactions.Fade(ctx, filter, req.FadeFactor)
	if err != nil {
		return nil, err
	}
	return map[string]any{"faded": count}, nil
}

// Size bounds for a single `decompose` call (§4.10 "size bounds exceeded").
const (
	MaxDecomposeBytes  = 1 << 20
	MaxDecomposeChunks = 1000
)

// handleDecompose implements `decompose` (§4.7, §4.10): runs the corpus
// decomposer over explicit chunks or, if none are given, the whole content
// as a single chunk, optionally persisting the resulting quads.
func handleDecompose(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req DecomposeRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	total := len(req.Content)
	for _, c := range req.Chunks {
		total += len(c)
	}
	if total > MaxDecomposeBytes || len(req.Chunks) > MaxDecomposeChunks {
		return nil, errs.New(errs.InvalidParameter, "size bounds exceeded")
	}
	if d.deps.Decomposer == nil {
		return nil, errs.New(errs.Internal, "decomposer not configured")
	}

	// A caller-supplied source keeps unit URIs stable across sessions and
	// re-submissions of the same document (§4.7 step 2's determinism).
	seed := req.Source
	if seed == "" {
		seed = namespace.CanonicalSeed(sessionID, req.Content)
	}
	sourceURI := d.deps.Namespace.MintURI(namespace.CorpuscleKind, seed)

	var chunks []decompose.Chunk
	if len(req.Chunks) > 0 {
		for i, text := range req.Chunks {
			chunks = append(chunks, decompose.Chunk{SourceURI: sourceURI, Index: i, Text: text})
		}
	} else {
		if strings.TrimSpace(req.Content) == "" {
			return nil, errs.New(errs.InvalidParameter, "content or chunks is required")
		}
		chunks = []decompose.Chunk{{SourceURI: sourceURI, Index: 0, Text: req.Content}}
	}

	result, err := d.deps.Decomposer.Decompose(ctx, chunks, d.deps.Resolver, false)
	if err != nil {
		return nil, err
	}

	if req.Store {
		if d.deps.Quads != nil && len(result.Quads) > 0 {
			if err := d.deps.Quads.InsertQuads(ctx, result.Quads); err != nil {
				return nil, errs.Wrap(errs.EndpointUnavailable, "failed to persist decomposition", err)
			}
		}
		d.persistGraph(ctx, result)
	}

	var outputs []string
	for _, e := range result.Entities {
		outputs = append(outputs, e.ID)
	}

	return withOutputs(map[string]any{
		"units":         len(result.Units),
		"entities":      len(result.Entities),
		"relationships": len(result.Relationships),
		"stored":        req.Store,
	}, outputs...), nil
}
