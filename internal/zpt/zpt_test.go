package zpt

import (
	"testing"
	"time"

	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/zptstate"
	"github.com/semem-go/semem/pkg/memory"
)

func TestSetZoomRejectsUnknownToken(t *testing.T) {
	ns := namespace.New()
	s := zptstate.Default("session-1", time.Now())

	_, err := SetZoom(ns, s, "bogus", time.Now())
	if errs.KindOf(err) != errs.InvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
}

func TestSetZoomUpdatesStateLeavingInputUnchanged(t *testing.T) {
	ns := namespace.New()
	now := time.Now()
	s := zptstate.Default("session-1", now)
	originalZoom := s.Zoom

	next, err := SetZoom(ns, s, "entity", now.Add(time.Second))
	if err != nil {
		t.Fatalf("SetZoom: %v", err)
	}
	if next.Zoom != "entity" {
		t.Fatalf("expected zoom 'entity', got %q", next.Zoom)
	}
	if s.Zoom != originalZoom {
		t.Fatal("expected input state left unchanged")
	}
}

func TestSetPanAccumulatesDomains(t *testing.T) {
	ns := namespace.New()
	now := time.Now()
	s := zptstate.Default("session-1", now)

	first := []string{"topic"}
	s, err := SetPan(ns, s, PanUpdate{Domains: &first}, now)
	if err != nil {
		t.Fatalf("SetPan (1): %v", err)
	}

	second := []string{"entity"}
	s, err = SetPan(ns, s, PanUpdate{Domains: &second}, now)
	if err != nil {
		t.Fatalf("SetPan (2): %v", err)
	}

	if len(s.Pan.Domains) != 2 {
		t.Fatalf("expected pan domains to accumulate to 2, got %v", s.Pan.Domains)
	}
}

func TestSetPanExplicitResetClearsDimension(t *testing.T) {
	ns := namespace.New()
	now := time.Now()
	s := zptstate.Default("session-1", now)

	domains := []string{"topic"}
	s, err := SetPan(ns, s, PanUpdate{Domains: &domains}, now)
	if err != nil {
		t.Fatalf("SetPan (1): %v", err)
	}

	empty := []string{}
	s, err = SetPan(ns, s, PanUpdate{Domains: &empty}, now)
	if err != nil {
		t.Fatalf("SetPan (2): %v", err)
	}
	if len(s.Pan.Domains) != 0 {
		t.Fatalf("expected domains reset to empty, got %v", s.Pan.Domains)
	}
}

func TestSetPanRejectsUnknownDomain(t *testing.T) {
	ns := namespace.New()
	now := time.Now()
	s := zptstate.Default("session-1", now)

	bad := []string{"bogus"}
	_, err := SetPan(ns, s, PanUpdate{Domains: &bad}, now)
	if errs.KindOf(err) != errs.InvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
}

func TestSetThresholdValidatesRange(t *testing.T) {
	s := zptstate.Default("session-1", time.Now())

	if _, err := SetThreshold(s, -0.1, time.Now()); errs.KindOf(err) != errs.InvalidParameter {
		t.Fatalf("expected InvalidParameter for negative threshold, got %v", err)
	}
	if _, err := SetThreshold(s, 1.1, time.Now()); errs.KindOf(err) != errs.InvalidParameter {
		t.Fatalf("expected InvalidParameter for threshold > 1, got %v", err)
	}
	next, err := SetThreshold(s, 0.5, time.Now())
	if err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if next.Threshold != 0.5 {
		t.Fatalf("expected threshold 0.5, got %v", next.Threshold)
	}
}

func TestToNavigationViewBelongsToOneSession(t *testing.T) {
	ns := namespace.New()
	now := time.Now()
	s := zptstate.Default("session-1", now)
	s, err := SetZoom(ns, s, "entity", now)
	if err != nil {
		t.Fatalf("SetZoom: %v", err)
	}

	view, quads := ToNavigationView(ns, s, "", "http://example.org/session/1", "query text", []string{"http://example.org/corpuscle/1"}, now)
	if view.SessionURI != "http://example.org/session/1" {
		t.Fatalf("expected view bound to session, got %q", view.SessionURI)
	}
	if view.ZoomURI == "" {
		t.Fatal("expected zoom URI resolved")
	}
	if len(quads) == 0 {
		t.Fatal("expected non-empty quad set")
	}
}

func TestNavigationViewRoundTrip(t *testing.T) {
	ns := namespace.New()
	now := time.Now()

	for _, zoom := range namespace.ZoomTokens() {
		for _, tilt := range namespace.TiltTokens() {
			s := zptstate.Default("session-1", now)
			var err error
			if s, err = SetZoom(ns, s, zoom, now); err != nil {
				t.Fatalf("SetZoom(%q): %v", zoom, err)
			}
			if s, err = SetTilt(ns, s, tilt, now); err != nil {
				t.Fatalf("SetTilt(%q): %v", tilt, err)
			}
			domains := []string{"topic", "entity"}
			if s, err = SetPan(ns, s, PanUpdate{Domains: &domains}, now); err != nil {
				t.Fatalf("SetPan: %v", err)
			}
			s.LastQuery = "where is the eiffel tower"

			view, _ := ToNavigationView(ns, s, "", "http://example.org/session/1", s.LastQuery, nil, now)
			got, err := FromNavigationView(ns, view)
			if err != nil {
				t.Fatalf("FromNavigationView(%s/%s): %v", zoom, tilt, err)
			}
			if got.Zoom != s.Zoom || got.Tilt != s.Tilt {
				t.Fatalf("round-trip changed zoom/tilt: got (%s,%s), want (%s,%s)", got.Zoom, got.Tilt, s.Zoom, s.Tilt)
			}
			if len(got.Pan.Domains) != len(s.Pan.Domains) {
				t.Fatalf("round-trip changed pan domains: got %v, want %v", got.Pan.Domains, s.Pan.Domains)
			}
			for i := range got.Pan.Domains {
				if got.Pan.Domains[i] != s.Pan.Domains[i] {
					t.Fatalf("round-trip changed pan domains: got %v, want %v", got.Pan.Domains, s.Pan.Domains)
				}
			}
			if got.LastQuery != s.LastQuery {
				t.Fatalf("round-trip changed query: got %q, want %q", got.LastQuery, s.LastQuery)
			}
		}
	}
}

func TestFromNavigationViewRejectsForeignZoomURI(t *testing.T) {
	ns := namespace.New()
	_, err := FromNavigationView(ns, memory.NavigationView{ZoomURI: "http://example.org/not-a-zoom"})
	if errs.KindOf(err) != errs.MalformedResponse {
		t.Fatalf("expected MalformedResponse, got %v", err)
	}
}
