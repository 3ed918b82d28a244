// Package api exposes the Verb Dispatcher (internal/verbs) over HTTP: the
// canonical verb surface named in §6 (`POST /tell`, `POST /ask`, …), a
// catch-all route for verbs with no dedicated path, the `/mcp` bidirectional
// session envelope, and a `GET /health` summary distinct from
// internal/health's liveness/readiness probes.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/sessionregistry"
	"github.com/semem-go/semem/internal/verbs"
)

// SessionHeader names the HTTP header callers use to scope a request to a
// session. A missing header falls back to [DefaultSessionID], matching §4.12's
// "the first call for an unrecognised session ID creates it" rule: stateless
// callers that never set the header simply share one implicit session.
const SessionHeader = "X-Session-Id"

// DefaultSessionID is used when a request carries no [SessionHeader].
const DefaultSessionID = "default"

// Server adapts [verbs.Dispatcher] to net/http.
type Server struct {
	dispatcher *verbs.Dispatcher
	sessions   *sessionregistry.Registry
	mcp        http.Handler
	now        func() time.Time
}

// New constructs a Server. sessions is used only for the `/health` summary's
// activeSessions count; all verb execution goes through dispatcher.
func New(dispatcher *verbs.Dispatcher, sessions *sessionregistry.Registry) *Server {
	s := &Server{dispatcher: dispatcher, sessions: sessions, now: time.Now}
	s.mcp = newMCPHandler(dispatcher)
	return s
}

// chatAliasVerb is the verb `POST /chat` and `POST /chat/enhanced` dispatch
// to — both are `ask` under the hood (§6 names them separately from `ask`
// only because voice/chat-style clients expect conversational paths).
const chatAliasVerb = "ask"

// namedRoutes maps each of §6's canonical paths to the verb it dispatches.
// zpt/navigate is handled separately since it fans out to zoom/pan/tilt.
var namedRoutes = map[string]string{
	"POST /tell":      "tell",
	"POST /ask":       "ask",
	"POST /augment":   "augment",
	"POST /compose":   "compose",
	"POST /decompose": "decompose",
	"POST /inspect":   "inspect",
}

// Routes registers every HTTP endpoint this Server serves onto mux. Callers
// wrap the whole mux in [observe.Middleware], the same way cmd/semem/main.go
// wires its own mux, so routes registered here stay transport-only.
func (s *Server) Routes(mux *http.ServeMux) {
	for pattern, verb := range namedRoutes {
		mux.Handle(pattern, s.verbHandler(verb))
	}
	mux.Handle("POST /chat", s.verbHandler(chatAliasVerb))
	mux.Handle("POST /chat/enhanced", s.chatEnhancedHandler())
	mux.Handle("GET /state", s.stateHandler())
	mux.Handle("POST /zpt/navigate", s.zptNavigateHandler())

	// §6 names ten paths but the dispatcher serves thirteen verbs; verbs with
	// no dedicated path (remember/recall/forget/fade/zoom/pan/tilt) remain
	// reachable here, as well as via /mcp.
	mux.Handle("POST /verb/{verb}", s.genericVerbHandler())

	mux.Handle("GET /health", s.healthHandler())
	mux.Handle("POST /mcp", s.mcp)
}

// verbHandler returns a handler that dispatches verb against the request
// body, writing the resulting [verbs.Response] as JSON.
func (s *Server) verbHandler(verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.dispatchAndWrite(w, r, verb)
	}
}

// chatEnhancedHandler dispatches `ask` with useHyDE forced true, regardless
// of what the caller's body says — `/chat/enhanced` is defined as the
// HyDE-augmented variant of `/chat` (§6).
func (s *Server) chatEnhancedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			writeError(w, s.now(), chatAliasVerb, errs.New(errs.InvalidParameter, "failed to read request body"))
			return
		}
		merged := map[string]any{}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &merged); err != nil {
				writeError(w, s.now(), chatAliasVerb, errs.Wrap(errs.InvalidParameter, "malformed request body", err))
				return
			}
		}
		merged["useHyDE"] = true
		raw, err := json.Marshal(merged)
		if err != nil {
			writeError(w, s.now(), chatAliasVerb, errs.Wrap(errs.Internal, "failed to re-encode request", err))
			return
		}
		resp := s.dispatcher.Dispatch(r.Context(), chatAliasVerb, sessionID(r), raw)
		writeResponse(w, resp)
	}
}

// genericVerbHandler serves `POST /verb/{verb}` for verbs not named in §6's
// canonical path list (remember/recall/forget/fade/zoom/pan/tilt), and
// redundantly for the named verbs too.
func (s *Server) genericVerbHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verb := r.PathValue("verb")
		s.dispatchAndWrite(w, r, verb)
	}
}

// stateHandler serves `GET /state`: a read-only view of the caller's session
// ZPT state, implemented as `inspect` with what=state (§4.9, §4.10).
func (s *Server) stateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := json.Marshal(map[string]any{"what": "state"})
		resp := s.dispatcher.Dispatch(r.Context(), "inspect", sessionID(r), raw)
		writeResponse(w, resp)
	}
}

// navigateRequest is the `POST /zpt/navigate` body: any subset of
// zoom/pan/tilt present is applied, in that order, each via its own verb
// call so every field keeps its own validation and re-run semantics (§4.9).
type navigateRequest struct {
	Zoom *string         `json:"zoom,omitempty"`
	Pan  json.RawMessage `json:"pan,omitempty"`
	Tilt *string         `json:"tilt,omitempty"`
}

// zptNavigateHandler implements `POST /zpt/navigate`: a combined entry point
// over the zoom/pan/tilt verbs for clients that want to change more than one
// navigation dimension in a single round trip (§6).
func (s *Server) zptNavigateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			writeError(w, s.now(), "zoom", errs.New(errs.InvalidParameter, "failed to read request body"))
			return
		}
		var req navigateRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, s.now(), "zoom", errs.Wrap(errs.InvalidParameter, "malformed request body", err))
				return
			}
		}
		if req.Zoom == nil && req.Pan == nil && req.Tilt == nil {
			writeError(w, s.now(), "zoom", errs.New(errs.InvalidParameter, "zpt/navigate requires at least one of zoom, pan, tilt"))
			return
		}

		var last verbs.Response
		sid := sessionID(r)
		if req.Zoom != nil {
			raw, _ := json.Marshal(map[string]any{"level": *req.Zoom})
			last = s.dispatcher.Dispatch(r.Context(), "zoom", sid, raw)
			if !last.Success {
				writeResponse(w, last)
				return
			}
		}
		if req.Pan != nil {
			last = s.dispatcher.Dispatch(r.Context(), "pan", sid, req.Pan)
			if !last.Success {
				writeResponse(w, last)
				return
			}
		}
		if req.Tilt != nil {
			raw, _ := json.Marshal(map[string]any{"style": *req.Tilt})
			last = s.dispatcher.Dispatch(r.Context(), "tilt", sid, raw)
			if !last.Success {
				writeResponse(w, last)
				return
			}
		}
		writeResponse(w, last)
	}
}

// healthResponse is `GET /health`'s body shape (§6: "Health is GET /health
// returning {status, activeSessions, timestamp}").
type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
	Timestamp      string `json:"timestamp"`
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := 0
		if s.sessions != nil {
			count = s.sessions.Count()
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:         "ok",
			ActiveSessions: count,
			Timestamp:      s.now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) dispatchAndWrite(w http.ResponseWriter, r *http.Request, verb string) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, s.now(), verb, errs.New(errs.InvalidParameter, "failed to read request body"))
		return
	}
	resp := s.dispatcher.Dispatch(r.Context(), verb, sessionID(r), body)
	writeResponse(w, resp)
}

// sessionID extracts the caller's session scope from the request header,
// falling back to [DefaultSessionID].
func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	return DefaultSessionID
}

func readBody(r *http.Request) (json.RawMessage, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	return data, nil
}

// writeResponse writes a [verbs.Response], mapping failure kinds to HTTP
// status codes per §7.
func writeResponse(w http.ResponseWriter, resp verbs.Response) {
	status := http.StatusOK
	if !resp.Success && resp.Error != nil {
		status = statusForKind(errs.Kind(resp.Error.Code))
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, ts time.Time, verb string, err error) {
	resp := verbs.Response{
		Success:   false,
		Verb:      verb,
		Timestamp: ts,
		Error: &verbs.ErrorPayload{
			Code:    string(errs.KindOf(err)),
			Message: err.Error(),
		},
	}
	writeJSON(w, statusForKind(errs.KindOf(err)), resp)
}

// statusForKind maps an [errs.Kind] to its HTTP status code per §7:
// InvalidParameter → 400, NotFound → 404, Busy → 429, Timeout/Cancelled →
// 408, and everything else → 500 with the code embedded in the body.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.InvalidParameter:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Busy:
		return http.StatusTooManyRequests
	case errs.Timeout, errs.Cancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: failed to encode response", "error", err)
	}
}
