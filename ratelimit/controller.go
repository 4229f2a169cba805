// backend/ratelimit/controller.go
package ratelimit

import (
	"log"
	"sync"
	"time"
)

// Controller paces outbound fetches per source domain. Each domain gets its
// own critical section, so pacing one domain never blocks another.
//
// Call order for one request:
//
//	wait := c.Admit(domain)   // reserve the next send slot
//	<sleep wait>
//	c.Record(domain)          // count the request as sent and in flight
//	<do the fetch>
//	c.Done(domain)
//
// Admit reserves the slot inside the domain lock, so two concurrent callers
// can never both be granted a zero wait: the second reservation is placed
// after the first one's delay window.
type domainState struct {
	mu sync.Mutex

	delay       time.Duration
	penalty     time.Duration // applied to the next Admit, then cleared
	nextAllowed time.Time     // reservation horizon
	inFlight    int
	requests    int64
}

type Controller struct {
	mu      sync.Mutex
	domains map[string]*domainState

	configured   map[string]time.Duration
	defaultDelay time.Duration

	now func() time.Time // test hook
}

// New builds a controller from the configured domain → delay map. Domains not
// in the map fall back to defaultDelay, which must be non-zero so an unknown
// site is never hammered.
func New(domainDelays map[string]time.Duration, defaultDelay time.Duration) *Controller {
	if defaultDelay <= 0 {
		defaultDelay = 2 * time.Second
	}
	cfg := make(map[string]time.Duration, len(domainDelays))
	for d, delay := range domainDelays {
		cfg[d] = delay
	}
	return &Controller{
		domains:      make(map[string]*domainState),
		configured:   cfg,
		defaultDelay: defaultDelay,
		now:          time.Now,
	}
}

// state returns the per-domain entry, creating it on first sight. Only the
// map lookup holds the controller lock; callers then synchronize on the
// domain's own mutex.
func (c *Controller) state(domain string) *domainState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.domains[domain]
	if !ok {
		delay, configured := c.configured[domain]
		if !configured {
			delay = c.defaultDelay
		}
		st = &domainState{delay: delay}
		c.domains[domain] = st
	}
	return st
}

// Admit returns how long the caller must wait before issuing a request to
// the domain. Zero means the request may proceed immediately. The next send
// slot is reserved before returning, so the spacing between grants is at
// least the configured delay even under concurrent callers.
func (c *Controller) Admit(domain string) time.Duration {
	st := c.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := c.now()
	earliest := st.nextAllowed
	if earliest.Before(now) {
		earliest = now
	}
	if st.penalty > 0 {
		earliest = earliest.Add(st.penalty)
		st.penalty = 0
	}
	st.nextAllowed = earliest.Add(st.delay)
	return earliest.Sub(now)
}

// Record counts one request as sent and in flight. Call it after waiting out
// the duration returned by Admit; spacing itself is enforced by Admit's
// reservation, so Record is pure bookkeeping.
func (c *Controller) Record(domain string) {
	st := c.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.inFlight++
	st.requests++
}

// Done marks a previously recorded request as finished.
func (c *Controller) Done(domain string) {
	st := c.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.inFlight > 0 {
		st.inFlight--
	}
}

// Penalize inflates the domain's next Admit wait by extra, typically after an
// upstream "too many requests" signal. The penalty decays after one cycle: it
// is consumed by the next reservation and does not compound.
func (c *Controller) Penalize(domain string, extra time.Duration) {
	if extra <= 0 {
		return
	}
	st := c.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	if extra > st.penalty {
		st.penalty = extra
	}
	log.Printf("RateLimit: WARN domain %s penalized, next request delayed an extra %s", domain, extra)
}

// InFlight reports how many recorded requests for the domain have not yet
// completed.
func (c *Controller) InFlight(domain string) int {
	st := c.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.inFlight
}

// Requests reports how many requests have been recorded for the domain over
// the life of the process. State is not persisted; restarts reset it.
func (c *Controller) Requests(domain string) int64 {
	st := c.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.requests
}
