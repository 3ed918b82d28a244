// Package verbs implements the Verb Dispatcher (C10): the single entry
// point every transport (HTTP, MCP) calls through to run tell/ask/augment/
// remember/recall/forget/fade/zoom/pan/tilt/inspect/compose/decompose
// against the memory core (§4.10).
//
// Execution is serialised per session and parallel across sessions: each
// session gets its own bounded FIFO queue (a single worker goroutine reading
// a buffered channel), so two calls against the same session never race on
// its ZPT state or recent-interaction cache, while unrelated sessions make
// progress concurrently (§5).
package verbs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/semem-go/semem/internal/compose"
	"github.com/semem-go/semem/internal/decompose"
	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/hyde"
	"github.com/semem-go/semem/internal/interactions"
	"github.com/semem-go/semem/internal/llmclient"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/observe"
	"github.com/semem-go/semem/internal/retriever"
	"github.com/semem-go/semem/internal/sessionregistry"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/pkg/memory"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultVerbTimeout bounds a single verb execution when Config.VerbTimeout
// is zero (§5).
const DefaultVerbTimeout = 30 * time.Second

// DefaultQueueDepth bounds a session's pending-call queue when
// Config.QueueDepth is zero (§5).
const DefaultQueueDepth = 64

// Config tunes the dispatcher's concurrency behaviour and quad placement.
type Config struct {
	QueueDepth  int
	VerbTimeout time.Duration

	// Graph is the named graph PROV-O activity quads are written into.
	Graph string

	// NavGraph is the named graph NavigationView quads are written into (§6's
	// navigation graph); empty falls back to per-session graph naming.
	NavGraph string
}

// Deps wires every component a verb handler may need. Hyde, Composer, Graph,
// Decomposer, Quads, Metrics, Now and Enrichers may be left nil: without Hyde,
// ask runs without HyDE augmentation; without Composer, ask answers without
// assembled context and the compose verb fails; without Graph, entities are
// not persisted to a secondary entity graph; without Decomposer, tell skips
// decomposition and decompose/augment fail; without Quads, no RDF quads are
// written; without Metrics, nothing is recorded; a nil Now means time.Now.
type Deps struct {
	Namespace    *namespace.Factory
	Sessions     *sessionregistry.Registry
	Interactions *interactions.Store
	Retriever    *retriever.Retriever
	Decomposer   *decompose.Decomposer
	Resolver     decompose.EntityResolver
	LLM          *llmclient.Client
	Hyde         *hyde.Engine
	Composer     *compose.Composer
	Quads        QuadWriter
	Graph        EntityGraph
	Metrics      *observe.Metrics
	Now          func() time.Time

	// Enrichers maps a source name ("wikipedia", "wikidata", "web") to its
	// external enrichment collaborator. `ask` consults an entry only when the
	// caller sets the matching use* flag; a missing entry means that flag is
	// acknowledged but contributes nothing.
	Enrichers map[string]Enricher
}

// Enrichment is external background content folded into an answer's context.
type Enrichment struct {
	Content string
	Sources []string
}

// Enricher is an external knowledge source (Wikipedia, Wikidata, web search)
// consulted by `ask` when the caller opts in. Real providers plug in here
// without touching the composer.
type Enricher interface {
	Enrich(ctx context.Context, query string) (Enrichment, error)
}

// QuadWriter persists RDF quads produced by verb execution (PROV-O
// activities, navigation views, interaction records).
type QuadWriter interface {
	InsertQuads(ctx context.Context, quads []triplestore.Quad) error
}

// EntityGraph is the subset of [memory.KnowledgeGraph] the dispatcher uses to
// persist a decomposition's entities/relationships to a label-indexed store
// outside the triple store, so the same labels resolve to the same entity
// IDs across calls (§4.7 step 3). This is the write side of [decompose.GraphResolver].
type EntityGraph interface {
	AddEntity(ctx context.Context, entity memory.Entity) error
	AddRelationship(ctx context.Context, rel memory.Relationship) error
}

// Dispatcher is the C10 Verb Dispatcher.
type Dispatcher struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	queues *queueTable
}

// New constructs a Dispatcher. A zero Config.QueueDepth/VerbTimeout falls
// back to DefaultQueueDepth/DefaultVerbTimeout.
func New(deps Deps, cfg Config) *Dispatcher {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.VerbTimeout <= 0 {
		cfg.VerbTimeout = DefaultVerbTimeout
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		deps:   deps,
		cfg:    cfg,
		now:    now,
		queues: newQueueTable(cfg.QueueDepth),
	}
}

// Response is the envelope every verb call returns: `{success, verb,
// ...payload, timestamp}` on success, `{success:false, verb, error,
// timestamp}` on failure (§6).
type Response struct {
	Success   bool
	Verb      string
	Payload   map[string]any
	Error     *ErrorPayload
	Timestamp time.Time
}

// ErrorPayload is the machine-readable error surfaced on failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MarshalJSON flattens Payload's keys into the top-level object alongside
// success/verb/timestamp/error, matching §6's response shape.
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+4)
	for k, v := range r.Payload {
		if k == activityOutputsKey {
			continue
		}
		out[k] = v
	}
	out["success"] = r.Success
	out["verb"] = r.Verb
	out["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339)
	if r.Error != nil {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// Dispatch decodes raw strictly against verb's schema, queues it behind
// every other pending call for sessionID, and runs it with a per-call
// timeout. A full session queue returns an errs.Busy response immediately
// without ever touching raw (§5's "Busy" overflow semantics).
func (d *Dispatcher) Dispatch(ctx context.Context, verb, sessionID string, raw json.RawMessage) Response {
	start := d.now()
	handler, ok := handlers[verb]
	if !ok {
		return d.errorResponse(verb, start, errs.New(errs.InvalidParameter, "unknown verb: "+verb))
	}

	q := d.queues.get(sessionID)
	resultCh := make(chan Response, 1)
	job := func() {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.VerbTimeout)
		defer cancel()
		resultCh <- d.execute(callCtx, handler, verb, sessionID, raw)
	}

	if !q.submit(job) {
		return d.errorResponse(verb, start, errs.New(errs.Busy, "session "+sessionID+" has too many pending calls"))
	}

	select {
	case resp := <-resultCh:
		return resp
	case <-ctx.Done():
		return d.errorResponse(verb, start, errs.Wrap(errs.Cancelled, "request cancelled", ctx.Err()))
	}
}

// execute runs handler, records metrics/provenance, and converts any
// returned error into a failure Response.
func (d *Dispatcher) execute(ctx context.Context, handler verbHandler, verb, sessionID string, raw json.RawMessage) Response {
	callStart := d.now()
	payload, err := handler(ctx, d, sessionID, raw)
	elapsed := d.now().Sub(callStart)

	// A deadline hit inside a handler surfaces as a bare context error;
	// re-kind it so callers see Timeout/Cancelled rather than Internal (§5).
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = errs.Wrap(errs.Timeout, "verb "+verb+" timed out", err)
	case errors.Is(err, context.Canceled):
		err = errs.Wrap(errs.Cancelled, "verb "+verb+" cancelled", err)
	}

	status := "ok"
	if err != nil {
		status = string(errs.KindOf(err))
	}
	if d.deps.Metrics != nil {
		d.deps.Metrics.VerbDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("verb", verb)))
		d.deps.Metrics.RecordVerbDispatch(ctx, verb, status)
	}

	d.recordActivity(ctx, verb, sessionID, raw, payload, err)

	if err != nil {
		return d.errorResponse(verb, callStart, err)
	}
	return Response{Success: true, Verb: verb, Payload: payload, Timestamp: d.now()}
}

func (d *Dispatcher) errorResponse(verb string, ts time.Time, err error) Response {
	return Response{
		Success:   false,
		Verb:      verb,
		Timestamp: d.now(),
		Error: &ErrorPayload{
			Code:    string(errs.KindOf(err)),
			Message: err.Error(),
		},
	}
}

// verbHandler implements one verb. raw is the still-undecoded request body;
// handlers strictly decode it into their own request struct via decodeStrict.
type verbHandler func(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error)

var handlers = map[string]verbHandler{
	"tell":      handleTell,
	"ask":       handleAsk,
	"augment":   handleAugment,
	"remember":  handleRemember,
	"recall":    handleRecall,
	"forget":    handleForget,
	"fade":      handleForget,
	"zoom":      handleZoom,
	"pan":       handlePan,
	"tilt":      handleTilt,
	"inspect":   handleInspect,
	"compose":   handleCompose,
	"decompose": handleDecompose,
}
