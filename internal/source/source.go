// Package source turns lists of needed tile numbers into a stream of loaded tiles, sharing
// in-flight loads and bounding memory through the tile cache.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"simplemap/internal/tile"
)

var (
	// ErrEvicted is the outcome of a load whose tile left the cache before it finished.
	ErrEvicted = errors.New("tile evicted before its load finished")
	// ErrEmptyTile is returned by fetchers for zero byte payloads.
	ErrEmptyTile = errors.New("empty tile")
	// ErrTileNotFound is returned by fetchers when the tile does not exist.
	ErrTileNotFound = errors.New("tile not found")
)

// DefaultWorkers bounds concurrent loads when Options.Workers is unset.
const DefaultWorkers = 8

// TileSource creates typed tiles and loads their content.
type TileSource[C any] interface {
	// CreateTile returns an empty tile carrying the bound of num.
	CreateTile(num tile.Num) *tile.Tile[C]
	// Load fetches and decodes the content of t. It must not mutate t.
	Load(ctx context.Context, t *tile.Tile[C]) (C, error)
}

// Options configures a Source.
type Options struct {
	Name      string
	CacheSize int
	Workers   int
}

// Stats is a snapshot of the Source counters.
type Stats struct {
	Hits     int64
	Misses   int64
	Loads    int64
	Failures int64
	Discards int64
	Cached   int
	// LoadMean is the mean load duration.
	LoadMean time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("hits=%d misses=%d loads=%d failures=%d discards=%d cached=%d mean=%s",
		s.Hits, s.Misses, s.Loads, s.Failures, s.Discards, s.Cached, s.LoadMean)
}

// inflight is a running load and the number of LoadTiles calls still waiting for it.
type inflight struct {
	cancel  context.CancelFunc
	waiters int
}

// Source owns a tile cache and guarantees at most one load per tile in flight.
type Source[C any] struct {
	name  string
	ts    TileSource[C]
	cache *tile.Cache[C]

	// mu guards every cache access, tile mutation and inflight
	mu       sync.Mutex
	inflight map[*tile.Task]*inflight
	workers  chan struct{}

	registry gometrics.Registry
	hits     gometrics.Counter
	misses   gometrics.Counter
	loads    gometrics.Counter
	failures gometrics.Counter
	discards gometrics.Counter
	loadTime gometrics.Timer
}

// New builds a Source around ts. Tiles pushed out of the cache release their renderer
// resources.
func New[C any](ts TileSource[C], opts Options) (*Source[C], error) {
	if ts == nil {
		return nil, errors.New("source needs a tile source")
	}
	size := opts.CacheSize
	if size == 0 {
		size = tile.DefaultCacheSize
	}
	cache, err := tile.NewCache[C](size)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	name := opts.Name
	if name == "" {
		name = "source"
	}

	registry := gometrics.NewRegistry()
	s := &Source[C]{
		name:     name,
		ts:       ts,
		cache:    cache,
		inflight: make(map[*tile.Task]*inflight),
		workers:  make(chan struct{}, workers),
		registry: registry,
		hits:     gometrics.NewRegisteredCounter(name+".hits", registry),
		misses:   gometrics.NewRegisteredCounter(name+".misses", registry),
		loads:    gometrics.NewRegisteredCounter(name+".loads", registry),
		failures: gometrics.NewRegisteredCounter(name+".failures", registry),
		discards: gometrics.NewRegisteredCounter(name+".discards", registry),
		loadTime: gometrics.NewRegisteredTimer(name+".load.time", registry),
	}
	cache.OnEvict(func(t *tile.Tile[C]) {
		t.ReleaseResource()
	})
	return s, nil
}

// Cache exposes the tile cache, mainly for inspection.
func (s *Source[C]) Cache() *tile.Cache[C] {
	return s.cache
}

// Registry is the go-metrics registry holding the counters of this source.
func (s *Source[C]) Registry() gometrics.Registry {
	return s.registry
}

func (s *Source[C]) Stats() Stats {
	return Stats{
		Hits:     s.hits.Count(),
		Misses:   s.misses.Count(),
		Loads:    s.loads.Count(),
		Failures: s.failures.Count(),
		Discards: s.discards.Count(),
		Cached:   s.cache.Len(),
		LoadMean: time.Duration(s.loadTime.Mean()),
	}
}

// LoadTiles resolves every distinct tile of nums and streams each success in completion order.
// Cache hits come back with Fresh unset; loaded tiles with Fresh set. Failed tiles are dropped
// from the stream and from the cache. The channel closes once every tile is resolved.
// Tiles differing only in Offset share one cache entry and are resolved once.
//
// A load is shared by every call waiting for its tile and is cancelled only once all of their
// contexts are done.
func (s *Source[C]) LoadTiles(ctx context.Context, nums []tile.Num) <-chan *tile.Tile[C] {
	ids := distinct(nums)
	out := make(chan *tile.Tile[C], len(ids))

	var wg sync.WaitGroup
	for _, num := range ids {
		t, task := s.claim(ctx, num)
		if task == nil {
			out <- t
			continue
		}
		wg.Add(1)
		go func(t *tile.Tile[C], task *tile.Task) {
			defer wg.Done()
			if err := task.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					s.leave(task)
				}
				log.WithFields(log.Fields{"source": s.name, "tile": t.Num.String()}).Debugf("tile dropped: %s", err)
				return
			}
			out <- t
		}(t, task)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// claim runs the check-then-insert step for num. It returns a ready tile with a nil task, or
// the tile together with the task to wait for, starting a load when num was not cached.
func (s *Source[C]) claim(ctx context.Context, num tile.Num) (*tile.Tile[C], *tile.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.cache.Get(num); ok {
		if task := t.Pending(); task != nil {
			s.hits.Inc(1)
			if f := s.inflight[task]; f != nil {
				f.waiters++
			}
			return t, task
		}
		s.hits.Inc(1)
		t.SetFresh(false)
		return t, nil
	}

	s.misses.Inc(1)
	t := s.ts.CreateTile(num)
	task := tile.NewTask()
	t.SetPending(task)
	s.cache.Set(num, t)
	// detached from ctx so later callers can keep the load alive
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.inflight[task] = &inflight{cancel: cancel, waiters: 1}
	go s.load(loadCtx, t, task)
	return t, task
}

// leave drops one waiter of task and cancels the load when none is left.
func (s *Source[C]) leave(task *tile.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.inflight[task]
	if f == nil {
		return
	}
	f.waiters--
	if f.waiters <= 0 {
		f.cancel()
		delete(s.inflight, task)
	}
}

// done forgets the inflight record of task. Callers hold mu.
func (s *Source[C]) done(task *tile.Task) {
	if f := s.inflight[task]; f != nil {
		f.cancel()
		delete(s.inflight, task)
	}
}

// load runs one tile load under the worker bound and commits the result if the cache still
// holds t.
func (s *Source[C]) load(ctx context.Context, t *tile.Tile[C], task *tile.Task) {
	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		s.fail(t, task, ctx.Err())
		return
	}
	defer func() {
		<-s.workers
	}()

	start := time.Now()
	s.loads.Inc(1)
	data, err := s.ts.Load(ctx, t)
	s.loadTime.UpdateSince(start)
	if err != nil {
		s.fail(t, task, err)
		return
	}

	s.mu.Lock()
	s.done(task)
	if !s.holds(t) {
		s.mu.Unlock()
		s.discards.Inc(1)
		log.WithFields(log.Fields{"source": s.name, "tile": t.Num.String()}).Debug("tile evicted while loading, result discarded")
		task.Finish(ErrEvicted)
		return
	}
	t.SetData(data)
	t.SetPending(nil)
	t.SetFresh(true)
	// re-insert as the youngest entry
	s.cache.Set(t.Num, t)
	s.mu.Unlock()
	task.Finish(nil)
}

func (s *Source[C]) fail(t *tile.Tile[C], task *tile.Task, err error) {
	s.failures.Inc(1)
	s.mu.Lock()
	s.done(task)
	if s.holds(t) {
		s.cache.Delete(t.Num)
	}
	t.SetPending(nil)
	s.mu.Unlock()

	entry := log.WithFields(log.Fields{"source": s.name, "tile": t.Num.String()})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		entry.Debugf("load cancelled: %s", err)
	} else {
		entry.Warnf("load failed: %s", err)
	}
	task.Finish(err)
}

// holds reports whether t is the tile stored under its key. Callers hold mu.
func (s *Source[C]) holds(t *tile.Tile[C]) bool {
	stored, ok := s.cache.Get(t.Num)
	return ok && stored == t
}

// distinct drops repeated keys, keeping the first occurrence.
func distinct(nums []tile.Num) []tile.Num {
	seen := make(map[string]struct{}, len(nums))
	ids := make([]tile.Num, 0, len(nums))
	for _, n := range nums {
		k := n.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ids = append(ids, n)
	}
	return ids
}
