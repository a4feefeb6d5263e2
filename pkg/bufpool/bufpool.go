// Package bufpool provides tiered byte buffer pools and a single-owner
// Buffer handle for upload payloads that move between goroutines.
//
// Three size classes are pooled:
//   - Small (4 KiB): command lines and short listings
//   - Medium (64 KiB): typical small files
//   - Large (1 MiB): bulk uploads
//
// Larger requests are allocated directly and left to the GC so that an
// occasional near-quota upload does not pin megabytes in the pool.
package bufpool

import (
	"sync"
)

const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 1 << 20
)

// Pool manages byte slices by size class.
type Pool struct {
	tiers []tier
}

type tier struct {
	size int
	pool *sync.Pool
}

// Config overrides the size classes. Zero values fall back to the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		SmallSize:  DefaultSmallSize,
		MediumSize: DefaultMediumSize,
		LargeSize:  DefaultLargeSize,
	}
}

// NewPool creates a pool. A nil cfg uses DefaultConfig.
func NewPool(cfg *Config) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.SmallSize > 0 {
			c.SmallSize = cfg.SmallSize
		}
		if cfg.MediumSize > 0 {
			c.MediumSize = cfg.MediumSize
		}
		if cfg.LargeSize > 0 {
			c.LargeSize = cfg.LargeSize
		}
	}

	p := &Pool{}
	for _, size := range []int{c.SmallSize, c.MediumSize, c.LargeSize} {
		size := size
		p.tiers = append(p.tiers, tier{
			size: size,
			pool: &sync.Pool{New: func() any {
				b := make([]byte, size)
				return &b
			}},
		})
	}
	return p
}

// Get returns a slice of length size. Its capacity may be larger when it is
// backed by a pooled buffer. Return it with Put when done.
func (p *Pool) Get(size int) []byte {
	if size < 0 {
		size = 0
	}
	for _, t := range p.tiers {
		if size <= t.size {
			b := *(t.pool.Get().(*[]byte))
			return b[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its size class. Slices that did not come from a tier
// (oversized or foreign) are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	for _, t := range p.tiers {
		if c == t.size {
			full := buf[:c]
			t.pool.Put(&full)
			return
		}
	}
}

// Buffer is a pooled byte slice with exactly one owner at a time. Ownership
// moves by handing the *Buffer to another goroutine; the final owner calls
// Release. Release is idempotent so error paths may call it unconditionally.
type Buffer struct {
	mu   sync.Mutex
	data []byte
	pool *Pool
}

// Acquire returns an owned Buffer of length size.
func (p *Pool) Acquire(size int) *Buffer {
	return &Buffer{data: p.Get(size), pool: p}
}

// Bytes returns the buffer contents, or nil once released.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Len returns the buffer length, or 0 once released.
func (b *Buffer) Len() int {
	return len(b.Bytes())
}

// Release returns the underlying slice to the pool. Later calls do nothing.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	data := b.data
	b.data = nil
	b.mu.Unlock()

	if data != nil {
		b.pool.Put(data)
	}
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	return b.Bytes() == nil
}

var globalPool = NewPool(nil)

// Get returns a slice from the global pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a slice to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}

// Acquire returns an owned Buffer from the global pool.
func Acquire(size int) *Buffer {
	return globalPool.Acquire(size)
}
