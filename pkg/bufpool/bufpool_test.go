package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSizeClasses(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"Zero", 0, DefaultSmallSize},
		{"CommandLine", 100, DefaultSmallSize},
		{"SmallBoundary", DefaultSmallSize, DefaultSmallSize},
		{"JustAboveSmall", DefaultSmallSize + 1, DefaultMediumSize},
		{"MediumBoundary", DefaultMediumSize, DefaultMediumSize},
		{"JustAboveMedium", DefaultMediumSize + 1, DefaultLargeSize},
		{"LargeBoundary", DefaultLargeSize, DefaultLargeSize},
		{"Oversized", DefaultLargeSize + 1, DefaultLargeSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)
			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestPutIgnoresForeignSlices(t *testing.T) {
	require.NotPanics(t, func() {
		Put(nil)
		Put([]byte{})
		Put(make([]byte, 10))
		Put(make([]byte, DefaultLargeSize+1))
	})
}

func TestCustomPool(t *testing.T) {
	p := NewPool(&Config{SmallSize: 16, MediumSize: 64})
	assert.Equal(t, 16, cap(p.Get(10)))
	assert.Equal(t, 64, cap(p.Get(17)))
	assert.Equal(t, DefaultLargeSize, cap(p.Get(65)), "zero LargeSize keeps the default")
}

func TestBufferOwnership(t *testing.T) {
	t.Run("AcquireHasRequestedLength", func(t *testing.T) {
		b := Acquire(5)
		copy(b.Bytes(), "hello")
		assert.Equal(t, 5, b.Len())
		assert.Equal(t, "hello", string(b.Bytes()))
		assert.False(t, b.Released())
		b.Release()
	})

	t.Run("ReleaseIsIdempotent", func(t *testing.T) {
		b := Acquire(128)
		b.Release()
		require.NotPanics(t, b.Release)
		assert.True(t, b.Released())
		assert.Nil(t, b.Bytes())
		assert.Zero(t, b.Len())
	})

	t.Run("NilBuffer", func(t *testing.T) {
		var b *Buffer
		require.NotPanics(t, b.Release)
		assert.Nil(t, b.Bytes())
	})

	t.Run("HandoffBetweenGoroutines", func(t *testing.T) {
		b := Acquire(3)
		copy(b.Bytes(), "abc")

		handoff := make(chan *Buffer)
		got := make(chan string)
		go func() {
			owned := <-handoff
			defer owned.Release()
			got <- string(owned.Bytes())
		}()
		handoff <- b

		assert.Equal(t, "abc", <-got)
	})
}

func TestConcurrentUse(t *testing.T) {
	p := NewPool(nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b := p.Acquire((g*997 + i*31) % (2 * DefaultMediumSize))
				data := b.Bytes()
				for j := range data {
					data[j] = byte(g)
				}
				b.Release()
			}
		}(g)
	}
	wg.Wait()
}
