/*
Package limiter implements per-node admission control with
golang.org/x/sync/semaphore.Weighted: one weighted semaphore per request
class plus one covering the total budget across all classes. Acquire
tries both with TryAcquire, which never blocks — exactly the "no
queueing, backpressure is signalled immediately" admission policy, and
exactly what a blocking channel-based or sync.Cond-based semaphore would
not give for free.

A permit is released on both the class and the total semaphore together,
so the two quotas never drift out of sync with each other.
*/
package limiter
