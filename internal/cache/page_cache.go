// Package cache holds rendered pages keyed by request path. All access goes
// through a single actor that owns the LRU.
package cache

import (
	"path"
	"strings"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// Page is a rendered response body.
type Page struct {
	Body        []byte
	ContentType string
	StoredAt    time.Time
}

type entry struct {
	page      Page
	expiresAt time.Time
}

// Message types for the page cache actor
type (
	getPageMsg struct {
		Path string
	}

	putPageMsg struct {
		Path       string
		Generation uint64
		Page       Page
	}

	revalidateMsg struct {
		Path string
	}

	getStatsMsg struct{}
)

type getPageResult struct {
	Page       Page
	Found      bool
	Generation uint64
}

// Stats counts cache activity since start.
type Stats struct {
	Entries       int `json:"entries"`
	Hits          int `json:"hits"`
	Misses        int `json:"misses"`
	Revalidations int `json:"revalidations"`
	Evicted       int `json:"evicted"`
}

type pageCacheActor struct {
	pages *lru.Cache[string, entry]
	// generations counts revalidations per path; query variants share the
	// counter of their path.
	generations map[string]uint64
	ttl         time.Duration
	now   func() time.Time
	stats Stats
}

func newPageCacheActor(size int, ttl time.Duration, now func() time.Time) (*pageCacheActor, error) {
	pages, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &pageCacheActor{
		pages:       pages,
		generations: make(map[string]uint64),
		ttl:         ttl,
		now:         now,
	}, nil
}

func (a *pageCacheActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		log.WithField("pid", context.Self().String()).Debug("Page cache actor started")

	case *getPageMsg:
		e, ok := a.pages.Get(msg.Path)
		if ok && a.ttl > 0 && a.now().After(e.expiresAt) {
			a.pages.Remove(msg.Path)
			ok = false
		}
		if ok {
			a.stats.Hits++
		} else {
			a.stats.Misses++
		}
		context.Respond(&getPageResult{
			Page:       e.page,
			Found:      ok,
			Generation: a.generations[basePath(msg.Path)],
		})

	case *putPageMsg:
		// The page was built before a later revalidation of its path.
		if msg.Generation != a.generations[basePath(msg.Path)] {
			log.WithField("path", msg.Path).Debug("Dropped outdated page")
			return
		}
		now := a.now()
		page := msg.Page
		page.StoredAt = now
		a.pages.Add(msg.Path, entry{page: page, expiresAt: now.Add(a.ttl)})

	case *revalidateMsg:
		removed := a.revalidate(msg.Path)
		a.generations[msg.Path]++
		a.stats.Revalidations++
		a.stats.Evicted += removed
		log.WithFields(log.Fields{
			"path":    msg.Path,
			"evicted": removed,
		}).Debug("Revalidated path")

	case *getStatsMsg:
		stats := a.stats
		stats.Entries = a.pages.Len()
		context.Respond(&stats)
	}
}

// revalidate drops path and every query variant of it.
func (a *pageCacheActor) revalidate(path string) int {
	removed := 0
	for _, key := range a.pages.Keys() {
		if key == path || strings.HasPrefix(key, path+"?") {
			if a.pages.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// basePath strips the query from a cache key.
func basePath(key string) string {
	if i := strings.IndexByte(key, '?'); i >= 0 {
		return key[:i]
	}
	return key
}

// PageCache is the handle used by handlers and the thread repository.
type PageCache struct {
	root    *actor.RootContext
	pid     *actor.PID
	timeout time.Duration
}

// NewPageCache spawns the cache actor on system. A ttl of zero keeps pages
// until they are evicted or revalidated.
func NewPageCache(system *actor.ActorSystem, size int, ttl time.Duration) (*PageCache, error) {
	return newPageCache(system, size, ttl, time.Now)
}

func newPageCache(system *actor.ActorSystem, size int, ttl time.Duration, now func() time.Time) (*PageCache, error) {
	// Fail here rather than inside the producer.
	if _, err := lru.New[string, entry](size); err != nil {
		return nil, err
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		a, _ := newPageCacheActor(size, ttl, now)
		return a
	})

	return &PageCache{
		root:    system.Root,
		pid:     system.Root.Spawn(props),
		timeout: 2 * time.Second,
	}, nil
}

// Get returns the cached page for path and the path's current generation.
// A page built after a miss is stored with Put under that generation. A slow
// or stopped actor counts as a miss.
func (c *PageCache) Get(path string) (Page, uint64, bool) {
	result, err := c.root.RequestFuture(c.pid, &getPageMsg{Path: path}, c.timeout).Result()
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Page cache lookup failed")
		return Page{}, 0, false
	}
	res, ok := result.(*getPageResult)
	if !ok {
		return Page{}, 0, false
	}
	return res.Page, res.Generation, res.Found
}

// Put stores page under path unless path was revalidated since generation
// was read.
func (c *PageCache) Put(path string, generation uint64, page Page) {
	c.root.Send(c.pid, &putPageMsg{Path: path, Generation: generation, Page: page})
}

// Revalidate discards the cached page for path and its query variants.
func (c *PageCache) Revalidate(p string) {
	if p == "" {
		return
	}
	c.root.Send(c.pid, &revalidateMsg{Path: path.Clean(p)})
}

// Stats reports cache counters.
func (c *PageCache) Stats() (Stats, error) {
	result, err := c.root.RequestFuture(c.pid, &getStatsMsg{}, c.timeout).Result()
	if err != nil {
		return Stats{}, err
	}
	return *result.(*Stats), nil
}

// Stop terminates the cache actor.
func (c *PageCache) Stop() {
	c.root.Stop(c.pid)
}
