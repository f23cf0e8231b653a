package ringpool_test

import (
	"io"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/strata-mem/strata"
	"github.com/strata-mem/strata/ringpool"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard))
}

func TestPoolInOrderFree(t *testing.T) {
	pool := ringpool.New(256, ringpool.CreateOptions{Logger: quietLogger()})
	require.True(t, pool.IsEmpty())

	a, err := pool.Allocate(16)
	require.NoError(t, err)
	require.Len(t, a, 16)
	b, err := pool.Allocate(16)
	require.NoError(t, err)
	require.False(t, pool.IsEmpty())

	pool.Free(a)
	pool.Free(b)
	require.True(t, pool.IsEmpty())
	require.Equal(t, 0, pool.PendingElements())
}

func TestPoolOutOfOrderFree(t *testing.T) {
	pool := ringpool.New(256, ringpool.CreateOptions{Logger: quietLogger()})

	a, err := pool.Allocate(16)
	require.NoError(t, err)
	b, err := pool.Allocate(16)
	require.NoError(t, err)
	c, err := pool.Allocate(16)
	require.NoError(t, err)

	// b cannot be reclaimed while a is still live
	pool.Free(b)
	require.Equal(t, 1, pool.PendingElements())
	require.False(t, pool.IsEmpty())

	pool.Free(a)
	pool.Free(c)
	require.Equal(t, 0, pool.PendingElements())
	require.True(t, pool.IsEmpty())
}

func TestPoolCleanPendingElements(t *testing.T) {
	pool := ringpool.New(256, ringpool.CreateOptions{Logger: quietLogger()})

	a, err := pool.Allocate(16)
	require.NoError(t, err)
	b, err := pool.Allocate(16)
	require.NoError(t, err)

	pool.Free(b)
	require.Equal(t, 1, pool.PendingElements())

	// the in-order free advances past a but does not touch the pending list
	pool.Free(a)
	require.Equal(t, 1, pool.PendingElements())
	require.False(t, pool.IsEmpty())

	require.True(t, pool.CleanPendingElements())
	require.Equal(t, 0, pool.PendingElements())
	require.True(t, pool.IsEmpty())

	// nothing left to drain
	require.False(t, pool.CleanPendingElements())
}

func TestPoolWrapAround(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{
		Exhaustion: ringpool.ExhaustionError,
		Logger:     quietLogger(),
	})

	a, err := pool.Allocate(16)
	require.NoError(t, err)
	b, err := pool.Allocate(16)
	require.NoError(t, err)

	pool.Free(a)

	// no room at the right edge; the allocation wraps and strands the tail
	c, err := pool.Allocate(8)
	require.NoError(t, err)

	pool.Free(b)
	pool.Free(c)
	require.True(t, pool.IsEmpty())
}

func TestPoolZeroSizedAllocationsAreDistinct(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{Logger: quietLogger()})

	a, err := pool.Allocate(0)
	require.NoError(t, err)
	b, err := pool.Allocate(0)
	require.NoError(t, err)

	pool.Free(a)
	pool.Free(b)
	require.True(t, pool.IsEmpty())
}

func TestPoolExhaustionReturnNil(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{Logger: quietLogger()})

	block, err := pool.Allocate(128)
	require.NoError(t, err)
	require.Nil(t, block)
}

func TestPoolExhaustionError(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{
		Exhaustion: ringpool.ExhaustionError,
		Logger:     quietLogger(),
	})

	_, err := pool.Allocate(128)
	require.ErrorIs(t, err, strata.OutOfMemoryError)
}

func TestPoolExhaustionPanic(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{
		Exhaustion: ringpool.ExhaustionPanic,
		Logger:     quietLogger(),
	})

	require.Panics(t, func() {
		_, _ = pool.Allocate(128)
	})
}

func TestPoolExhaustionOverflow(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{
		Exhaustion: ringpool.ExhaustionOverflow,
		Logger:     quietLogger(),
	})

	block, err := pool.Allocate(128)
	require.NoError(t, err)
	require.Len(t, block, 128)

	// overflow blocks do not occupy pool storage
	inPool, err := pool.Allocate(16)
	require.NoError(t, err)
	require.NotNil(t, inPool)

	pool.Free(block)
	pool.Free(inPool)
	require.True(t, pool.IsEmpty())
}

func TestPoolFreeForeignBlockPanics(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{Logger: quietLogger()})

	require.Panics(t, func() {
		pool.Free(make([]byte, 16))
	})
}

func TestPoolNegativeSize(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{Logger: quietLogger()})

	_, err := pool.Allocate(-1)
	require.Error(t, err)
}

func TestPoolStatsString(t *testing.T) {
	pool := ringpool.New(64, ringpool.CreateOptions{Logger: quietLogger()})

	block, err := pool.Allocate(16)
	require.NoError(t, err)

	str := pool.BuildStatsString()
	require.NotEmpty(t, str)
	require.Contains(t, str, "\"Capacity\":64")
	require.Contains(t, str, "\"ExhaustionPolicy\":\"ExhaustionReturnNil\"")

	pool.Free(block)
}

func TestPoolConcurrentProducersSingleConsumer(t *testing.T) {
	const producers = 8
	const allocationsPerProducer = 500

	pool := ringpool.New(4096, ringpool.CreateOptions{
		Exhaustion: ringpool.ExhaustionError,
		Logger:     quietLogger(),
	})

	blocks := make(chan []byte, producers*4)
	var wg sync.WaitGroup
	wg.Add(producers)

	for i := 0; i < producers; i++ {
		i := i
		go func() {
			defer wg.Done()
			marker := byte(i + 1)
			for j := 0; j < allocationsPerProducer; j++ {
				var block []byte
				for {
					var err error
					block, err = pool.Allocate(32)
					if err == nil {
						break
					}
					runtime.Gosched()
				}
				for k := range block {
					block[k] = marker
				}
				blocks <- block
			}
		}()
	}

	consumed := make(chan int)
	go func() {
		count := 0
		for block := range blocks {
			// a corrupted marker means two live blocks overlapped
			marker := block[0]
			for k := range block {
				if block[k] != marker {
					consumed <- -1
					return
				}
			}
			pool.Free(block)
			count++
		}
		consumed <- count
	}()

	wg.Wait()
	close(blocks)
	require.Equal(t, producers*allocationsPerProducer, <-consumed)

	pool.CleanPendingElements()
	require.True(t, pool.IsEmpty())
	require.Equal(t, 0, pool.PendingElements())
}
