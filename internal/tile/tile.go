package tile

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
)

// Resource is renderer-side state owned by a tile, such as an uploaded texture.
type Resource interface {
	Release()
}

// Tile is one cache entry. Data, Loaded and Pending are mutated only by the source that owns
// the cache, under its lock; consumers read them after the tile was handed out.
type Tile[C any] struct {
	Num   Num
	Bound orb.Bound

	data    C
	loaded  bool
	pending *Task
	fresh   atomic.Bool

	resMu sync.Mutex
	res   Resource
}

// New creates an empty tile carrying the lng/lat bound of num.
func New[C any](num Num) *Tile[C] {
	return &Tile[C]{Num: num, Bound: num.Bound()}
}

func (t *Tile[C]) Data() C {
	return t.data
}

func (t *Tile[C]) Loaded() bool {
	return t.loaded
}

// SetData stores the decoded payload and marks the tile loaded.
func (t *Tile[C]) SetData(data C) {
	t.data = data
	t.loaded = true
}

func (t *Tile[C]) Pending() *Task {
	return t.pending
}

func (t *Tile[C]) SetPending(task *Task) {
	t.pending = task
}

// Fresh reports whether the tile was handed out right after its load, as opposed to a cache
// hit. Renderers rebuild their resources for fresh tiles.
func (t *Tile[C]) Fresh() bool {
	return t.fresh.Load()
}

func (t *Tile[C]) SetFresh(fresh bool) {
	t.fresh.Store(fresh)
}

// Resource returns the renderer state attached to the tile, nil if none.
func (t *Tile[C]) Resource() Resource {
	t.resMu.Lock()
	defer t.resMu.Unlock()
	return t.res
}

// AttachResource replaces the renderer state, releasing the previous one.
func (t *Tile[C]) AttachResource(r Resource) {
	t.resMu.Lock()
	old := t.res
	t.res = r
	t.resMu.Unlock()
	if old != nil && old != r {
		old.Release()
	}
}

// ReleaseResource drops the renderer state, called when the tile leaves the cache.
func (t *Tile[C]) ReleaseResource() {
	t.AttachResource(nil)
}

// Task is the in-flight load attached to a tile. It finishes exactly once.
type Task struct {
	done chan struct{}
	once sync.Once
	err  error
}

func NewTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Finish records the outcome and wakes every waiter.
func (p *Task) Finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed when the task finishes.
func (p *Task) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the task finishes or ctx is done.
func (p *Task) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
