// Package limiter implements Conflux's Resource Limiter: a per-node
// admission controller that shapes inbound load before it
// reaches the consensus or state-machine paths. Admission is refused
// immediately when a quota is exhausted — there is no queueing, because
// queueing would turn backpressure into unbounded latency instead of a
// signal the caller can retry on.
package limiter

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// RequestClass names one of the quota buckets the limiter enforces.
type RequestClass string

const (
	ClassRead  RequestClass = "read"
	ClassWrite RequestClass = "write"
	ClassAdmin RequestClass = "admin"
)

// ErrResourceExhausted is returned by Acquire when either the class quota
// or the total quota has no free slot.
var ErrResourceExhausted = errors.New("limiter: resource exhausted")

// Limits holds the quotas configured per request class, plus the total
// ceiling across all classes combined.
type Limits struct {
	MaxConcurrentReads  int64
	MaxConcurrentWrites int64
	MaxConcurrentAdmin  int64
	MaxTotal            int64
}

// ClassStats is one class's slice of Stats: how many permits are
// currently outstanding, how many Acquire calls have been rejected since
// startup, and the configured limit.
type ClassStats struct {
	InUse    int64
	Rejected int64
	Limit    int64
}

// Stats is the admission controller's point-in-time snapshot, keyed by
// class, plus totals across every class.
type Stats struct {
	ByClass       map[RequestClass]ClassStats
	TotalInUse    int64
	TotalRejected int64
	TotalLimit    int64
}

type classState struct {
	sem      *semaphore.Weighted
	limit    int64
	inUse    int64 // atomic
	rejected int64 // atomic
}

// Limiter is a per-node admission controller. It is safe for concurrent
// use by many goroutines.
type Limiter struct {
	total      *semaphore.Weighted
	totalLimit int64
	classes    map[RequestClass]*classState
}

// New constructs a Limiter from limits. A class with a zero limit admits
// nothing for that class; MaxTotal of zero means no request of any class
// is ever admitted.
func New(limits Limits) *Limiter {
	return &Limiter{
		total:      semaphore.NewWeighted(limits.MaxTotal),
		totalLimit: limits.MaxTotal,
		classes: map[RequestClass]*classState{
			ClassRead:  {sem: semaphore.NewWeighted(limits.MaxConcurrentReads), limit: limits.MaxConcurrentReads},
			ClassWrite: {sem: semaphore.NewWeighted(limits.MaxConcurrentWrites), limit: limits.MaxConcurrentWrites},
			ClassAdmin: {sem: semaphore.NewWeighted(limits.MaxConcurrentAdmin), limit: limits.MaxConcurrentAdmin},
		},
	}
}

// Permit is a scoped admission token. Release must be called exactly
// once on every code path that leaves the scope Acquire guarded,
// success or failure; Release is idempotent as a defensive measure for
// callers that defer it alongside an early explicit call.
type Permit struct {
	l        *Limiter
	class    RequestClass
	released atomic.Bool
}

// Acquire admits one request of the given class, or fails immediately
// with ErrResourceExhausted if either the class quota or the total quota
// has no free slot. It never blocks.
func (l *Limiter) Acquire(class RequestClass) (*Permit, error) {
	cs, ok := l.classes[class]
	if !ok {
		return nil, errors.New("limiter: unknown request class")
	}
	if !cs.sem.TryAcquire(1) {
		atomic.AddInt64(&cs.rejected, 1)
		return nil, ErrResourceExhausted
	}
	if !l.total.TryAcquire(1) {
		cs.sem.Release(1)
		atomic.AddInt64(&cs.rejected, 1)
		return nil, ErrResourceExhausted
	}
	atomic.AddInt64(&cs.inUse, 1)
	return &Permit{l: l, class: class}, nil
}

// Release returns the permit's slot to both the class and total quotas.
func (p *Permit) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	cs := p.l.classes[p.class]
	atomic.AddInt64(&cs.inUse, -1)
	p.l.total.Release(1)
	cs.sem.Release(1)
}

// Stats returns a point-in-time snapshot of in-use and rejected counts
// per class, for the rejection-counter metrics pkg/metrics publishes.
func (l *Limiter) Stats() Stats {
	out := Stats{ByClass: make(map[RequestClass]ClassStats, len(l.classes)), TotalLimit: l.totalLimit}
	for class, cs := range l.classes {
		inUse := atomic.LoadInt64(&cs.inUse)
		rejected := atomic.LoadInt64(&cs.rejected)
		out.ByClass[class] = ClassStats{InUse: inUse, Rejected: rejected, Limit: cs.limit}
		out.TotalInUse += inUse
		out.TotalRejected += rejected
	}
	return out
}
