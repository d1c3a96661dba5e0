package limiter

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRespectsClassQuota(t *testing.T) {
	l := New(Limits{MaxConcurrentWrites: 2, MaxConcurrentReads: 5, MaxConcurrentAdmin: 5, MaxTotal: 10})

	p1, err := l.Acquire(ClassWrite)
	require.NoError(t, err)
	p2, err := l.Acquire(ClassWrite)
	require.NoError(t, err)

	_, err = l.Acquire(ClassWrite)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	p1.Release()
	p3, err := l.Acquire(ClassWrite)
	require.NoError(t, err)

	p2.Release()
	p3.Release()
}

func TestAcquireRespectsTotalQuota(t *testing.T) {
	l := New(Limits{MaxConcurrentWrites: 5, MaxConcurrentReads: 5, MaxConcurrentAdmin: 5, MaxTotal: 1})

	p1, err := l.Acquire(ClassRead)
	require.NoError(t, err)

	_, err = l.Acquire(ClassWrite)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	p1.Release()
	p2, err := l.Acquire(ClassAdmin)
	require.NoError(t, err)
	p2.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	l := New(Limits{MaxConcurrentReads: 1, MaxTotal: 1})
	p, err := l.Acquire(ClassRead)
	require.NoError(t, err)
	p.Release()
	p.Release()

	stats := l.Stats()
	assert.Equal(t, int64(0), stats.ByClass[ClassRead].InUse)
}

func TestConcurrentAcquireNeverExceedsQuota(t *testing.T) {
	l := New(Limits{MaxConcurrentWrites: 2, MaxConcurrentReads: 10, MaxConcurrentAdmin: 10, MaxTotal: 10})

	var wg sync.WaitGroup
	var maxObserved int64
	var current int64
	var rejected int64

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := l.Acquire(ClassWrite)
			if err != nil {
				atomic.AddInt64(&rejected, 1)
				return
			}
			n := atomic.AddInt64(&current, 1)
			for {
				m := atomic.LoadInt64(&maxObserved)
				if n <= m || atomic.CompareAndSwapInt64(&maxObserved, m, n) {
					break
				}
			}
			atomic.AddInt64(&current, -1)
			p.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxObserved, int64(2))
	stats := l.Stats()
	assert.Equal(t, rejected, stats.ByClass[ClassWrite].Rejected)
}
