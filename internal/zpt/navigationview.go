package zpt

import (
	"time"

	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/triplestore"
	"github.com/semem-go/semem/internal/zptstate"
	"github.com/semem-go/semem/pkg/memory"
)

const (
	predQuery                = "query"
	predHasZoom              = "hasZoom"
	predHasTilt              = "hasTilt"
	predHasPan               = "hasPan"
	predHasSession           = "hasSession"
	predHasSelectedCorpuscle = "hasSelectedCorpuscle"
	predTimestamp            = "timestamp"
)

// ToNavigationView materialises s into a [memory.NavigationView] and its
// equivalent RDF quads, written into the named navigation graph (§6's
// "…/navigation for ZPT metadata"; an empty graph falls back to sessionURI
// as the graph name). Per §3's NavigationView invariant, zoom/tilt/pan URIs
// come from the closed controlled vocabulary. zoom/tilt tokens that fail to
// resolve (an inconsistent or zero-value state) are omitted from the view's
// URI fields rather than causing a panic; callers that need a hard guarantee
// should validate the state via SetZoom/SetTilt before calling this.
func ToNavigationView(ns *namespace.Factory, s zptstate.State, graph, sessionURI, query string, selectedCorpuscles []string, now time.Time) (memory.NavigationView, []triplestore.Quad) {
	if graph == "" {
		graph = sessionURI
	}
	zoomURI, _ := ns.Resolve(namespace.ZoomKind, s.Zoom)
	tiltURI, _ := ns.Resolve(namespace.TiltKind, s.Tilt)

	var panURIs []string
	for _, d := range s.Pan.Domains {
		if uri, ok := ns.Resolve(namespace.PanKind, d); ok {
			panURIs = append(panURIs, uri)
		}
	}

	view := memory.NavigationView{
		URI:                ns.MintURI(namespace.NavigationViewKind, ""),
		Query:              query,
		ZoomURI:            zoomURI,
		TiltURI:            tiltURI,
		PanURIs:            panURIs,
		SessionURI:         sessionURI,
		SelectedCorpuscles: selectedCorpuscles,
		Timestamp:          now,
	}

	quads := []triplestore.Quad{
		{Subject: view.URI, Predicate: namespace.DefaultRDF + "type", Object: triplestore.Term{Type: "uri", Value: ns.ZPTBase() + "NavigationView"}, Graph: graph},
		{Subject: view.URI, Predicate: ns.ZPTBase() + predQuery, Object: triplestore.Term{Type: "literal", Value: query}, Graph: graph},
		{Subject: view.URI, Predicate: ns.ZPTBase() + predHasSession, Object: triplestore.Term{Type: "uri", Value: sessionURI}, Graph: graph},
		{Subject: view.URI, Predicate: ns.ZPTBase() + predTimestamp, Object: triplestore.Term{Type: "literal", Value: formatUnix(now)}, Graph: graph},
	}
	if zoomURI != "" {
		quads = append(quads, triplestore.Quad{Subject: view.URI, Predicate: ns.ZPTBase() + predHasZoom, Object: triplestore.Term{Type: "uri", Value: zoomURI}, Graph: graph})
	}
	if tiltURI != "" {
		quads = append(quads, triplestore.Quad{Subject: view.URI, Predicate: ns.ZPTBase() + predHasTilt, Object: triplestore.Term{Type: "uri", Value: tiltURI}, Graph: graph})
	}
	for _, p := range panURIs {
		quads = append(quads, triplestore.Quad{Subject: view.URI, Predicate: ns.ZPTBase() + predHasPan, Object: triplestore.Term{Type: "uri", Value: p}, Graph: graph})
	}
	for _, c := range selectedCorpuscles {
		quads = append(quads, triplestore.Quad{Subject: view.URI, Predicate: ns.ZPTBase() + predHasSelectedCorpuscle, Object: triplestore.Term{Type: "uri", Value: c}, Graph: graph})
	}

	return view, quads
}

func formatUnix(t time.Time) string {
	return time.Unix(t.Unix(), 0).UTC().Format(time.RFC3339)
}

// FromNavigationView reconstructs the navigational axes of a
// [zptstate.State] from a persisted view: zoom and tilt URIs resolve back to
// their vocabulary tokens, pan URIs back to domain tokens, and the view's
// query becomes LastQuery. Threshold is not part of a NavigationView (§3),
// so it is restored to the session default. Returns an
// [errs.MalformedResponse] error when a zoom or tilt URI lies outside the
// controlled vocabulary — such a view could not have been written by
// [ToNavigationView].
func FromNavigationView(ns *namespace.Factory, view memory.NavigationView) (zptstate.State, error) {
	s := zptstate.Default("", view.Timestamp)
	s.LastQuery = view.Query
	s.Timestamp = view.Timestamp

	if view.ZoomURI != "" {
		token, ok := ns.ResolveURI(namespace.ZoomKind, view.ZoomURI)
		if !ok {
			return zptstate.State{}, errs.New(errs.MalformedResponse, "navigation view has unknown zoom URI "+view.ZoomURI)
		}
		s.Zoom = token
	}
	if view.TiltURI != "" {
		token, ok := ns.ResolveURI(namespace.TiltKind, view.TiltURI)
		if !ok {
			return zptstate.State{}, errs.New(errs.MalformedResponse, "navigation view has unknown tilt URI "+view.TiltURI)
		}
		s.Tilt = token
	}
	for _, uri := range view.PanURIs {
		token, ok := ns.ResolveURI(namespace.PanKind, uri)
		if !ok {
			return zptstate.State{}, errs.New(errs.MalformedResponse, "navigation view has unknown pan URI "+uri)
		}
		s.Pan.Domains = append(s.Pan.Domains, token)
	}
	return s, nil
}
