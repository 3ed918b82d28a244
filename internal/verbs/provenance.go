package verbs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/semem-go/semem/internal/decompose"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
)

const (
	predStartedAt      = "startedAtTime"
	predEndedAt        = "endedAtTime"
	predWasAssociated  = "wasAssociatedWith"
	predVerb           = "verb"
	predInputHash      = "usedInputHash"
	predGenerated      = "generated"
	predStatus         = "status"
)

// activityOutputsKey is a payload map key handlers set to the list of URIs
// they minted, so recordActivity can link them via prov:generated without
// every handler writing its own provenance quads. It is stripped from the
// payload before the response is serialised.
const activityOutputsKey = "_activityOutputs"

// withOutputs attaches uris to payload under activityOutputsKey. Handlers
// call this on their returned map when they minted URIs worth recording in
// the verb's PROV-O activity.
func withOutputs(payload map[string]any, uris ...string) map[string]any {
	if len(uris) == 0 {
		return payload
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload[activityOutputsKey] = uris
	return payload
}

// popOutputs removes and returns the activity-outputs hint from payload.
func popOutputs(payload map[string]any) []string {
	if payload == nil {
		return nil
	}
	v, ok := payload[activityOutputsKey]
	if !ok {
		return nil
	}
	delete(payload, activityOutputsKey)
	uris, _ := v.([]string)
	return uris
}

// recordActivity mints and persists a PROV-O activity quad set for one verb
// dispatch, linking the session, a hash of the raw input (never the input
// itself, per §7's "never leak request bodies"), and any output URIs the
// handler produced (§4.10 "records a PROV-O activity linking the session,
// inputs (hashed), and outputs"). Persistence failures are swallowed: a
// provenance write must never fail an otherwise-successful verb call.
func (d *Dispatcher) recordActivity(ctx context.Context, verb, sessionID string, raw json.RawMessage, payload map[string]any, callErr error) {
	outputs := popOutputs(payload)
	if d.deps.Quads == nil || d.deps.Namespace == nil {
		return
	}

	ns := d.deps.Namespace
	now := d.now()
	activityURI := ns.MintURI(namespace.ActivityKind, "")
	sessURI := ns.MintURI(namespace.SessionKind, sessionID)

	status := "ok"
	if callErr != nil {
		status = "error"
	}

	quads := []triplestore.Quad{
		{Subject: activityURI, Predicate: namespace.DefaultRDF + "type", Object: triplestore.Term{Type: "uri", Value: ns.ProvBase() + "Activity"}, Graph: d.cfg.Graph},
		{Subject: activityURI, Predicate: ns.ProvBase() + predStartedAt, Object: literalDateTime(now.Unix()), Graph: d.cfg.Graph},
		{Subject: activityURI, Predicate: ns.ProvBase() + predEndedAt, Object: literalDateTime(now.Unix()), Graph: d.cfg.Graph},
		{Subject: activityURI, Predicate: ns.ProvBase() + predWasAssociated, Object: triplestore.Term{Type: "uri", Value: sessURI}, Graph: d.cfg.Graph},
		{Subject: activityURI, Predicate: ns.ZPTBase() + predVerb, Object: triplestore.Term{Type: "literal", Value: verb}, Graph: d.cfg.Graph},
		{Subject: activityURI, Predicate: ns.ZPTBase() + predInputHash, Object: triplestore.Term{Type: "literal", Value: hashInput(raw)}, Graph: d.cfg.Graph},
		{Subject: activityURI, Predicate: ns.ZPTBase() + predStatus, Object: triplestore.Term{Type: "literal", Value: status}, Graph: d.cfg.Graph},
	}
	for _, uri := range outputs {
		quads = append(quads, triplestore.Quad{
			Subject: activityURI, Predicate: ns.ProvBase() + predGenerated,
			Object: triplestore.Term{Type: "uri", Value: uri}, Graph: d.cfg.Graph,
		})
	}

	// Provenance writes run detached from the caller's (now-cancelled or
	// timed-out) context so a slow verb call doesn't also lose its record.
	_ = d.deps.Quads.InsertQuads(context.WithoutCancel(ctx), quads)
}

// persistGraph writes result's entities and relationships into the
// dispatcher's secondary entity graph (§4.7 step 3), if one is configured.
// Writes are best-effort: a graph persistence failure must never fail the
// verb call that triggered it, matching recordActivity's swallow-on-error
// idiom.
func (d *Dispatcher) persistGraph(ctx context.Context, result decompose.Result) {
	if d.deps.Graph == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, e := range result.Entities {
		_ = d.deps.Graph.AddEntity(detached, e)
	}
	for _, r := range result.Relationships {
		_ = d.deps.Graph.AddRelationship(detached, r)
	}
}

func hashInput(raw json.RawMessage) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func literalDateTime(unix int64) triplestore.Term {
	return triplestore.Term{Type: "literal", Value: strconv.FormatInt(unix, 10), Datatype: "http://www.w3.org/2001/XMLSchema#integer"}
}
