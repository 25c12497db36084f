package indexcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/synapsedb/synapse/internal/bm25index"
)

func buildCounting(counter *int64) BuildFunc {
	return func(ctx context.Context, corpus string) (*bm25index.Index, error) {
		atomic.AddInt64(counter, 1)
		return bm25index.Build(bm25index.DefaultParams(), []bm25index.DocInput{
			{ID: corpus, Tokens: []string{corpus}},
		}), nil
	}
}

func TestGetCachesUntilInvalidated(t *testing.T) {
	var builds int64
	c := New(buildCounting(&builds), 0)

	if _, err := c.Get(context.Background(), "code"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(context.Background(), "code"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if builds != 1 {
		t.Fatalf("expected 1 build, got %d", builds)
	}

	c.Invalidate("code")
	if _, err := c.Get(context.Background(), "code"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if builds != 2 {
		t.Fatalf("expected 2 builds after invalidate, got %d", builds)
	}
}

func TestGetCoalescesConcurrentRebuilds(t *testing.T) {
	var builds int64
	c := New(buildCounting(&builds), 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), "memories"); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if builds != 1 {
		t.Fatalf("expected exactly 1 build from coalesced concurrent Get calls, got %d", builds)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	var builds int64
	c := New(buildCounting(&builds), 2)

	ctx := context.Background()
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "a"); err != nil { // touch a, making b least-recently-used
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "c"); err != nil { // should evict b
		t.Fatal(err)
	}

	builds = 0
	if _, err := c.Get(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if builds != 1 {
		t.Fatalf("expected b to have been evicted and rebuilt, got %d builds", builds)
	}
}
