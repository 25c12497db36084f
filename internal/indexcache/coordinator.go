package indexcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/synapsedb/synapse/internal/bm25index"
)

// BuildFunc rebuilds the full BM25 snapshot for one corpus from its
// backing store (documents, code chunks, or memories).
type BuildFunc func(ctx context.Context, corpus string) (*bm25index.Index, error)

// entry is one cached corpus snapshot plus its LRU list element.
type entry struct {
	index *bm25index.Index
	dirty bool
	elem  *list.Element // element in Coordinator.order, value is the corpus name
}

// Coordinator is a singleflight-coalesced, LRU-bounded cache of per-corpus
// BM25 indexes. Safe for concurrent use.
type Coordinator struct {
	build      BuildFunc
	maxCorpora int

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front = most recently used

	group singleflight.Group
}

// New creates a Coordinator. maxCorpora bounds how many distinct corpus
// snapshots are retained at once; a value <= 0 means unbounded (safe given
// the small, fixed set of corpora in practice: code, docs, memories).
func New(build BuildFunc, maxCorpora int) *Coordinator {
	return &Coordinator{
		build:      build,
		maxCorpora: maxCorpora,
		entries:    make(map[string]*entry),
		order:      list.New(),
	}
}

// Invalidate marks a corpus's cached snapshot as stale. The next Get for
// that corpus triggers a rebuild; callers already holding a previously
// returned *bm25index.Index may keep using it until they call Get again.
func (c *Coordinator) Invalidate(corpus string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[corpus]; ok {
		e.dirty = true
	}
}

// Get returns the current snapshot for corpus, rebuilding it first if it is
// missing or has been invalidated. Concurrent Get calls for the same corpus
// while a rebuild is in flight share the single rebuild via singleflight.
func (c *Coordinator) Get(ctx context.Context, corpus string) (*bm25index.Index, error) {
	c.mu.Lock()
	e, ok := c.entries[corpus]
	if ok && !e.dirty {
		c.order.MoveToFront(e.elem)
		idx := e.index
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(corpus, func() (interface{}, error) {
		idx, buildErr := c.build(ctx, corpus)
		if buildErr != nil {
			return nil, buildErr
		}
		c.store(corpus, idx)
		return idx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild corpus %q: %w", corpus, err)
	}
	return v.(*bm25index.Index), nil
}

func (c *Coordinator) store(corpus string, idx *bm25index.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[corpus]; ok {
		e.index = idx
		e.dirty = false
		c.order.MoveToFront(e.elem)
		return
	}

	elem := c.order.PushFront(corpus)
	c.entries[corpus] = &entry{index: idx, elem: elem}
	c.evictIfNeeded()
}

func (c *Coordinator) evictIfNeeded() {
	if c.maxCorpora <= 0 {
		return
	}
	for len(c.entries) > c.maxCorpora {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.order.Remove(back)
		delete(c.entries, back.Value.(string))
	}
}
