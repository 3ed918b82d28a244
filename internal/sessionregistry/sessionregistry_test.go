package sessionregistry

import (
	"sync"
	"testing"
	"time"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/zptstate"
	"github.com/semem-go/semem/pkg/memory"
)

func TestGetOrCreateIsLazyAndIdempotent(t *testing.T) {
	r := New(Config{})
	now := time.Now()

	s1 := r.GetOrCreate("session-1", now)
	s2 := r.GetOrCreate("session-1", now.Add(time.Second))

	if s1 != s2 {
		t.Fatal("expected GetOrCreate to return the same session on repeated calls")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Count())
	}
	if s1.Snapshot().Zoom != "entity" {
		t.Fatalf("expected default zoom 'entity', got %q", s1.Snapshot().Zoom)
	}
}

func TestGetDoesNotCreate(t *testing.T) {
	r := New(Config{})
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected Get to report false for an unknown session")
	}
	if r.Count() != 0 {
		t.Fatalf("expected Get to not create a session, count=%d", r.Count())
	}
}

func TestMutateSerializesAndLeavesCallerStateless(t *testing.T) {
	r := New(Config{})
	now := time.Now()
	s := r.GetOrCreate("session-1", now)

	err := s.Mutate(func(st zptstate.State) (zptstate.State, error) {
		st.Zoom = "community"
		return st, nil
	}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if s.Snapshot().Zoom != "community" {
		t.Fatalf("expected zoom 'community', got %q", s.Snapshot().Zoom)
	}
}

func TestMutateConcurrentCallsDoNotRace(t *testing.T) {
	r := New(Config{})
	now := time.Now()
	s := r.GetOrCreate("session-1", now)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Mutate(func(st zptstate.State) (zptstate.State, error) {
				st.Threshold = 0.5
				return st, nil
			}, time.Now())
		}()
	}
	wg.Wait()

	if s.Snapshot().Threshold != 0.5 {
		t.Fatalf("expected threshold 0.5 after concurrent mutations, got %v", s.Snapshot().Threshold)
	}
}

func TestRememberInteractionBoundsRecentCache(t *testing.T) {
	r := New(Config{RecentCap: 3})
	now := time.Now()
	s := r.GetOrCreate("session-1", now)

	for i := 0; i < 5; i++ {
		s.RememberInteraction(memory.Interaction{Prompt: string(rune('a' + i))}, now)
	}

	recent := s.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected recent cache bounded to 3, got %d", len(recent))
	}
	if recent[0].Prompt != "c" || recent[2].Prompt != "e" {
		t.Fatalf("expected oldest entries evicted first, got %+v", recent)
	}
}

func TestEvictIdleRemovesStaleSessionsAndEmitsClosingQuads(t *testing.T) {
	ns := namespace.New()
	r := New(Config{IdleTimeout: time.Minute, Namespace: ns, Graph: "http://example.org/graph"})

	start := time.Now()
	r.GetOrCreate("session-1", start)

	quads := r.EvictIdle(start.Add(2 * time.Minute))
	if len(quads) == 0 {
		t.Fatal("expected closing quads for the evicted session")
	}
	if r.Count() != 0 {
		t.Fatalf("expected session evicted, count=%d", r.Count())
	}
}

func TestEvictIdleLeavesActiveSessionsAlone(t *testing.T) {
	ns := namespace.New()
	r := New(Config{IdleTimeout: time.Minute, Namespace: ns})

	start := time.Now()
	s := r.GetOrCreate("session-1", start)
	s.Touch(start.Add(90 * time.Second))

	quads := r.EvictIdle(start.Add(100 * time.Second))
	if len(quads) != 0 {
		t.Fatalf("expected no eviction for a recently touched session, got %d quads", len(quads))
	}
	if r.Count() != 1 {
		t.Fatalf("expected session to remain registered, count=%d", r.Count())
	}
}

func TestEvictIdleDisabledWhenTimeoutZero(t *testing.T) {
	r := New(Config{})
	now := time.Now()
	r.GetOrCreate("session-1", now)

	quads := r.EvictIdle(now.Add(24 * time.Hour))
	if quads != nil {
		t.Fatalf("expected nil quads when IdleTimeout is zero, got %v", quads)
	}
	if r.Count() != 1 {
		t.Fatalf("expected eviction disabled, count=%d", r.Count())
	}
}
