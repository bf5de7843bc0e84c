// Package dedup drops messages that were already processed within a TTL window.
// QoS 1 subscriptions may deliver the same command twice; a repeated "Start Manual
// Watering" must not turn into a second rejection notice.
package dedup

import (
	"sync"
	"time"
)

type Deduper struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	seen  map[string]time.Time
	order []string // insertion order, oldest first
	now   func() time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time, max), now: time.Now}
}

// WithClock replaces the wall clock, for tests.
func (d *Deduper) WithClock(now func() time.Time) *Deduper {
	d.now = now
	return d
}

// ShouldProcess returns true the first time id is seen within the TTL.
// Empty ids are never deduplicated.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	if _, ok := d.seen[id]; !ok {
		d.order = append(d.order, id)
	}
	d.seen[id] = now.Add(d.ttl)
	d.evict(now)
	return true
}

// Len is the number of ids currently tracked.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduper) evict(now time.Time) {
	for len(d.order) > 0 {
		oldest := d.order[0]
		exp, ok := d.seen[oldest]
		if ok && now.Before(exp) && len(d.seen) <= d.max {
			return
		}
		delete(d.seen, oldest)
		d.order = d.order[1:]
	}
}
