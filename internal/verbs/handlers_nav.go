package verbs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/retriever"
	"github.com/semem-go/semem/internal/sessionregistry"
	"github.com/semem-go/semem/internal/zpt"
	"github.com/semem-go/semem/internal/zptstate"
)

// handleZoom implements `zoom`: sets the session's zoom level and, if a
// last query exists, re-runs retrieval under the new state (§4.9 step 4).
func handleZoom(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req ZoomRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Level) == "" {
		return nil, errs.New(errs.InvalidParameter, "level is required")
	}
	return d.applyNavigationMutation(ctx, sessionID, func(s zptstate.State, now time.Time) (zptstate.State, error) {
		return zpt.SetZoom(d.deps.Namespace, s, req.Level, now)
	})
}

// handlePan implements `pan`: updates the session's pan filters and, if a
// last query exists, re-runs retrieval under the new state.
func handlePan(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req PanRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	update := zpt.PanUpdate{
		Domains:   req.Domains,
		Keywords:  req.Keywords,
		Entities:  req.Entities,
		Temporal:  req.Temporal,
		Corpuscle: req.Corpuscle,
	}
	return d.applyNavigationMutation(ctx, sessionID, func(s zptstate.State, now time.Time) (zptstate.State, error) {
		return zpt.SetPan(d.deps.Namespace, s, update, now)
	})
}

// handleTilt implements `tilt`: sets the session's tilt style and, if a
// last query exists, re-runs retrieval under the new state.
func handleTilt(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req TiltRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Style) == "" {
		return nil, errs.New(errs.InvalidParameter, "style is required")
	}
	return d.applyNavigationMutation(ctx, sessionID, func(s zptstate.State, now time.Time) (zptstate.State, error) {
		return zpt.SetTilt(d.deps.Namespace, s, req.Style, now)
	})
}

// applyNavigationMutation applies mutate to the session's ZPT state and, if
// a query was already in flight for this session, re-runs C6 under the new
// state and records a fresh NavigationView (§4.9's "re-run under the new
// state" requirement for zoom/pan/tilt).
func (d *Dispatcher) applyNavigationMutation(ctx context.Context, sessionID string, mutate func(zptstate.State, time.Time) (zptstate.State, error)) (map[string]any, error) {
	now := d.now()
	sess := d.deps.Sessions.GetOrCreate(sessionID, now)
	sessionURI := d.deps.Namespace.MintURI(namespace.SessionKind, sessionID)

	if err := sess.Mutate(func(s zptstate.State) (zptstate.State, error) {
		return mutate(s, now)
	}, now); err != nil {
		return nil, err
	}
	state := sess.Snapshot()

	payload := map[string]any{
		"zoom":      state.Zoom,
		"tilt":      state.Tilt,
		"pan":       state.Pan,
		"threshold": state.Threshold,
	}
	if state.LastQuery == "" || d.deps.Retriever == nil {
		return payload, nil
	}

	result, err := d.deps.Retriever.Retrieve(ctx, state.LastQuery, retriever.Options{
		SessionURI: sessionURI,
		Threshold:  state.Threshold,
		Limit:      DefaultResultLimit,
		Zoom:       state.Zoom,
		Tilt:       state.Tilt,
		Pan:        state.Pan,
	})
	if err != nil {
		return nil, err
	}

	view, quads := zpt.ToNavigationView(d.deps.Namespace, state, d.cfg.NavGraph, sessionURI, state.LastQuery, nil, now)
	if d.deps.Quads != nil {
		if err := d.deps.Quads.InsertQuads(ctx, quads); err != nil {
			return nil, errs.Wrap(errs.EndpointUnavailable, "failed to persist navigation view", err)
		}
	}

	payload["navigationView"] = view.URI
	payload["resultCount"] = len(result.Candidates)
	payload["degraded"] = result.Degraded
	return withOutputs(payload, view.URI), nil
}

// handleInspect implements `inspect`: read-only introspection of a
// session's state or recent memory, never mutating ZPT state or activity
// timestamps (§4.10).
func handleInspect(ctx context.Context, d *Dispatcher, sessionID string, raw json.RawMessage) (map[string]any, error) {
	var req InspectRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	what := req.What
	if what == "" {
		what = "state"
	}

	sess, ok := d.deps.Sessions.Get(sessionID)
	if !ok {
		return nil, errs.New(errs.NotFound, "no such session: "+sessionID)
	}

	switch what {
	case "state":
		return stateSnapshot(sess), nil
	case "session":
		now := d.now()
		payload := map[string]any{
			"sessionId":   sess.ID(),
			"idleSeconds": sess.IdleSince(now).Seconds(),
			"recentCount": len(sess.Recent()),
		}
		if req.Details {
			payload["state"] = stateSnapshot(sess)
		}
		return payload, nil
	case "memory":
		recent := sess.Recent()
		items := make([]map[string]any, 0, len(recent))
		for _, ia := range recent {
			item := map[string]any{
				"uri":      ia.URI,
				"prompt":   ia.Prompt,
				"response": ia.Response,
			}
			if req.Details {
				item["concepts"] = ia.Concepts
				item["accessCount"] = ia.AccessCount
				item["decayFactor"] = ia.DecayFactor
			}
			items = append(items, item)
		}
		return map[string]any{"recent": items}, nil
	default:
		return nil, errs.New(errs.InvalidParameter, "unknown inspect target: "+what)
	}
}

func stateSnapshot(sess *sessionregistry.Session) map[string]any {
	s := sess.Snapshot()
	return map[string]any{
		"zoom":      s.Zoom,
		"tilt":      s.Tilt,
		"pan":       s.Pan,
		"threshold": s.Threshold,
		"lastQuery": s.LastQuery,
	}
}
