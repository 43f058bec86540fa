package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAllocZeroed(t *testing.T) {
	p := New(nil)
	b, err := p.Alloc(40)
	require.NoError(t, err)
	for i := range b.Bytes() {
		b.Bytes()[i] = 0xFF
	}
	p.Free(b)

	b2, err := p.Alloc(40)
	require.NoError(t, err)
	for _, v := range b2.Bytes() {
		require.Equal(t, byte(0), v)
	}
}

func TestSizeClassSelection(t *testing.T) {
	cases := []struct {
		size int
		want Class
	}{
		{1, Class64}, {64, Class64},
		{65, Class128}, {128, Class128},
		{129, Class256}, {256, Class256},
		{257, Class512}, {512, Class512},
	}
	for _, c := range cases {
		require.Equal(t, c.want, sizeToClass(c.size))
	}
}

// TestLargeFallback covers spec property 9: requests above MaxSize bypass
// the pool entirely and leave its stats untouched.
func TestLargeFallback(t *testing.T) {
	p := New(nil)
	before64, beforeFree64 := p.Stats(Class64)

	b, err := p.Alloc(4096)
	require.NoError(t, err)
	require.Len(t, b.Bytes(), 4096)
	p.Free(b)

	after64, afterFree64 := p.Stats(Class64)
	require.Equal(t, before64, after64)
	require.Equal(t, beforeFree64, afterFree64)
}

// TestStatsConservation covers spec property 8: in_use + on_freelist is a
// multiple of the slab size after any sequence of alloc/free settles.
func TestStatsConservation(t *testing.T) {
	p := New(nil)
	var blocks []*Block
	for i := 0; i < 70; i++ {
		b, err := p.Alloc(64)
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	for _, b := range blocks {
		p.Free(b)
	}
	inUse, onFree := p.Stats(Class64)
	require.Equal(t, int64(0), inUse)
	require.True(t, onFree > 0 && onFree%blocksPerSlab == 0)
}

// TestConcurrentAllocFree exercises spec property 8 (ABA safety) under
// genuine goroutine concurrency: N workers repeatedly allocate and free
// from the same size class; no worker gets an error, and the pool
// settles back to zero in-use with whole slabs on the freelist.
func TestConcurrentAllocFree(t *testing.T) {
	p := New(nil)
	const workers = 8
	const iterations = 500

	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				b, err := p.Alloc(64)
				if err != nil {
					return err
				}
				b.Bytes()[0] = 1
				p.Free(b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	inUse, onFree := p.Stats(Class64)
	require.Equal(t, int64(0), inUse)
	require.True(t, onFree > 0 && onFree%blocksPerSlab == 0)
}

func TestShutdownResetsStats(t *testing.T) {
	p := New(nil)
	b, err := p.Alloc(64)
	require.NoError(t, err)
	_ = b
	p.Shutdown()
	inUse, onFree := p.Stats(Class64)
	require.Equal(t, int64(0), inUse)
	require.Equal(t, int64(0), onFree)
}
