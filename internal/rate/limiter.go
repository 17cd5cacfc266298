// Package rate limits requests per client id (usually the remote IP) with one token
// bucket per id. Inactive buckets are evicted once the number of ids grows above the
// configured capacity.
package rate

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IDLimiter is the rate limiter keyed by id
type IDLimiter interface {
	AllowN(id string, n int) bool
	WaitN(ctx context.Context, id string, n int) error
	Close()
}

// NewLimiterPerID creates a limiter allowing limit events per second with the given
// burst for every id.
func NewLimiterPerID(limit rate.Limit, burst int, c *Config) IDLimiter {
	lpi := &limiterPerID{
		evictList: list.New(),
		items:     make(map[string]*list.Element),
		t:         defTimer{},
		c:         toConfigInt(limit, burst, c),
		closeC:    make(chan struct{}),
	}
	go lpi.maintainLoop()
	return lpi
}

type limiterPerID struct {
	evictList *list.List
	items     map[string]*list.Element
	t         timer
	c         configInt

	lock      sync.Mutex
	closeOnce sync.Once
	closeC    chan struct{}
}

type limiterItem struct {
	id       string
	limiter  *rate.Limiter
	lastTime time.Time
}

// AllowN reports whether n events may happen for id now.
func (lpi *limiterPerID) AllowN(id string, n int) bool {
	if lpi.whitelisted(id) {
		return true
	}
	lpi.lock.Lock()
	defer lpi.lock.Unlock()

	return lpi.getLimiter(id).AllowN(lpi.t.now(), n)
}

// WaitN blocks until n events are allowed for id or ctx is done.
func (lpi *limiterPerID) WaitN(ctx context.Context, id string, n int) error {
	if lpi.whitelisted(id) {
		return nil
	}
	lpi.lock.Lock()
	l := lpi.getLimiter(id)
	lpi.lock.Unlock()

	return l.WaitN(ctx, n)
}

// Close stops the eviction loop.
func (lpi *limiterPerID) Close() {
	lpi.closeOnce.Do(func() {
		if lpi.closeC != nil {
			close(lpi.closeC)
		}
	})
}

func (lpi *limiterPerID) whitelisted(id string) bool {
	_, ok := lpi.c.whitelist[id]
	return ok
}

// getLimiter returns the limiter of id, creating it if needed. Must hold the lock.
func (lpi *limiterPerID) getLimiter(id string) *rate.Limiter {
	now := lpi.t.now()
	if elem, ok := lpi.items[id]; ok {
		item := elem.Value.(*limiterItem)
		item.lastTime = now
		lpi.evictList.MoveToFront(elem)
		return item.limiter
	}
	item := &limiterItem{
		id:       id,
		limiter:  rate.NewLimiter(lpi.c.limit, lpi.c.burst),
		lastTime: now,
	}
	lpi.items[id] = lpi.evictList.PushFront(item)
	return item.limiter
}

func (lpi *limiterPerID) maintainLoop() {
	ticker := lpi.t.newTicker(lpi.c.checkInt)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lpi.maintain()
		case <-lpi.closeC:
			return
		}
	}
}

// maintain evicts the least recently used ids while there are more than capacity of
// them and they have been inactive longer than minEvictDur.
func (lpi *limiterPerID) maintain() {
	lpi.lock.Lock()
	defer lpi.lock.Unlock()

	for lpi.evictList.Len() > lpi.c.capacity {
		elem := lpi.evictList.Back()
		item := elem.Value.(*limiterItem)
		if lpi.t.since(item.lastTime) <= lpi.c.minEvictDur {
			return
		}
		lpi.evictList.Remove(elem)
		delete(lpi.items, item.id)
	}
}

type timer interface {
	now() time.Time
	since(time.Time) time.Duration
	newTicker(time.Duration) *time.Ticker
}

type defTimer struct{}

func (defTimer) now() time.Time                         { return time.Now() }
func (defTimer) since(t time.Time) time.Duration        { return time.Since(t) }
func (defTimer) newTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }
