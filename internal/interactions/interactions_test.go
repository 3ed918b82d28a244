package interactions

import (
	"context"
	"testing"

	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/pkg/memory"
)

func newTestStore() *Store {
	return New(Config{CapacityPerSession: 3, PromoteBelow: 0.2, AgeFactor: 0.5}, namespace.New(), nil, nil)
}

func TestAppend_AssignsIDAndDefaults(t *testing.T) {
	s := newTestStore()
	ia, err := s.Append(context.Background(), memory.Interaction{SessionURI: "sess1", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ia.ID == "" || ia.URI == "" {
		t.Fatalf("expected ID and URI to be assigned, got %+v", ia)
	}
	if ia.AccessCount != 0 || ia.DecayFactor != 1.0 {
		t.Fatalf("expected fresh access/decay fields, got %+v", ia)
	}
}

func TestAppend_EvictsOverCapacity(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		ia, err := s.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "p"})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		ids = append(ids, ia.ID)
	}

	if got := len(s.ShortTerm("sess1")); got != 3 {
		t.Fatalf("expected short-term deque capped at 3, got %d", got)
	}
	if ia, _ := s.GetByID(ctx, ids[0]); ia != nil {
		t.Fatalf("expected oldest entry evicted, still present: %+v", ia)
	}
}

func TestTouch_BumpsDecayAndPromotesToFront(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	a, _ := s.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "a"})
	_, _ = s.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "b"})

	if err := s.Touch(ctx, a.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	items := s.ShortTerm("sess1")
	if items[0].ID != a.ID {
		t.Fatalf("expected touched item promoted to front, got order %+v", items)
	}
	if items[0].AccessCount != 1 {
		t.Fatalf("expected AccessCount=1, got %d", items[0].AccessCount)
	}
	if items[0].DecayFactor <= 1.0-1e-9 && items[0].DecayFactor != 1.0 {
		// decay was already 1.0, bump keeps it at 1.0 (min(1.0, ...))
		t.Fatalf("expected decay to remain at cap 1.0, got %v", items[0].DecayFactor)
	}
}

func TestDecayPass_PromotesBelowThreshold(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	ia, _ := s.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "a"})

	// No long-term tier configured: DecayPass still ages and evicts from
	// short-term even though nothing can absorb the promotion.
	for i := 0; i < 5; i++ {
		if err := s.DecayPass(ctx); err != nil {
			t.Fatalf("DecayPass: %v", err)
		}
	}

	if got, _ := s.GetByID(ctx, ia.ID); got != nil {
		t.Fatalf("expected decayed entry removed from short-term, found %+v", got)
	}
}

func TestForget_RemovesFromShortTerm(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	ia, _ := s.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "a"})

	if err := s.Forget(ctx, ia.ID); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if got, _ := s.GetByID(ctx, ia.ID); got != nil {
		t.Fatalf("expected entry forgotten, found %+v", got)
	}
}

func TestForget_PreservesSystemInteractions(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	ia, _ := s.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "ZPT State Change: zoom=entity"})

	s.mu.Lock()
	el := s.byID[ia.ID]
	el.Value.(*entry).interaction.System = true
	s.mu.Unlock()

	if err := s.Forget(ctx, ia.ID); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if got, _ := s.GetByID(ctx, ia.ID); got == nil {
		t.Fatalf("expected system interaction preserved")
	}
}

func TestFade_SkipsSystemInteractions(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	ia, _ := s.Append(ctx, memory.Interaction{SessionURI: "sess1", Prompt: "System: notice"})

	s.mu.Lock()
	el := s.byID[ia.ID]
	el.Value.(*entry).interaction.System = true
	s.mu.Unlock()

	n, err := s.Fade(ctx, ScanFilter{SessionURI: "sess1"}, 0.5)
	if err != nil {
		t.Fatalf("Fade: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 faded (system-protected), got %d", n)
	}
}
