package embedclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProvider struct {
	dim       int
	model     string
	calls     int32
	mu        sync.Mutex
	callsText []string
	err       error
	vector    []float32
}

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.callsText = append(f.callsText, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float32{1, 2, 3}, nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) Dimensions() int { return f.dim }
func (f *fakeProvider) ModelID() string { return f.model }

func TestEmbed_CachesByNormalisedText(t *testing.T) {
	fp := &fakeProvider{dim: 3}
	c := New(fp, 16, 0)

	if _, err := c.Embed(context.Background(), "hello world"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Embed(context.Background(), "  hello world  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt32(&fp.calls); got != 1 {
		t.Errorf("provider calls = %d, want 1 (second call should hit cache)", got)
	}
}

func TestEmbed_DistinctTextsAreNotCached(t *testing.T) {
	fp := &fakeProvider{dim: 3}
	c := New(fp, 16, 0)

	if _, err := c.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Embed(context.Background(), "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt32(&fp.calls); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
}

func TestEmbed_EvictsLeastRecentlyUsed(t *testing.T) {
	fp := &fakeProvider{dim: 3}
	c := New(fp, 2, 0)
	ctx := context.Background()

	c.Embed(ctx, "a")
	c.Embed(ctx, "b")
	c.Embed(ctx, "a") // touches "a", making "b" the LRU entry
	c.Embed(ctx, "c") // evicts "b"

	atomic.StoreInt32(&fp.calls, 0)
	c.Embed(ctx, "b")
	if got := atomic.LoadInt32(&fp.calls); got != 1 {
		t.Errorf("expected \"b\" to have been evicted and re-fetched, got %d provider calls", got)
	}
}

func TestEmbed_ProviderErrorIsWrapped(t *testing.T) {
	fp := &fakeProvider{dim: 3, err: errors.New("boom")}
	c := New(fp, 16, 0)

	_, err := c.Embed(context.Background(), "x")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want wrapped ErrProvider", err)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	fp := &fakeProvider{dim: 3, vector: []float32{1, 2}}
	c := New(fp, 16, 0)

	_, err := c.Embed(context.Background(), "x")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbed_ConcurrentIdenticalRequestsCoalesce(t *testing.T) {
	fp := &fakeProvider{dim: 3}
	c := New(fp, 16, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Embed(context.Background(), "same text")
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&fp.calls); got != 1 {
		t.Errorf("provider calls = %d, want 1 (concurrent identical requests should coalesce)", got)
	}
}

func TestEmbed_TTLExpiryRevalidates(t *testing.T) {
	fp := &fakeProvider{dim: 3}
	c := New(fp, 16, 10*time.Second)

	current := time.Unix(0, 0)
	c.now = func() time.Time { return current }

	ctx := context.Background()
	if _, err := c.Embed(ctx, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = current.Add(5 * time.Second)
	if _, err := c.Embed(ctx, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&fp.calls); got != 1 {
		t.Fatalf("provider calls = %d, want 1 (within TTL)", got)
	}

	current = current.Add(10 * time.Second) // now 15s after first store, past the 10s TTL
	if _, err := c.Embed(ctx, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&fp.calls); got != 2 {
		t.Errorf("provider calls = %d, want 2 (stale entry should be revalidated)", got)
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	fp := &fakeProvider{dim: 3}
	c := New(fp, 16, 0)

	vectors, err := c.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("len(vectors) = %d, want 3", len(vectors))
	}
}
