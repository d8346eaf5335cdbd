package frame

import "sync"

// Handle is a transient reference to one frame's image data, held only until
// the next frame replaces it.
type Handle uint64

// Allocator hands out and revokes frame handles.
type Allocator interface {
	Allocate(data []byte) Handle
	Release(h Handle)
}

// PoolStats is a point-in-time view of handle usage.
type PoolStats struct {
	Allocated      uint64
	Released       uint64
	Live           int
	DoubleReleases uint64
}

// Pool is the in-memory Allocator. It is safe for concurrent use so metrics
// can read it while the session allocates.
type Pool struct {
	mu             sync.Mutex
	next           Handle
	live           map[Handle][]byte
	allocated      uint64
	released       uint64
	doubleReleases uint64
}

// NewPool creates an empty handle pool.
func NewPool() *Pool {
	return &Pool{live: make(map[Handle][]byte)}
}

// Allocate registers data and returns its handle.
func (p *Pool) Allocate(data []byte) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	p.live[p.next] = data
	p.allocated++
	return p.next
}

// Release revokes h. Releasing an unknown or already released handle is
// counted and otherwise ignored.
func (p *Pool) Release(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.live[h]; !ok {
		p.doubleReleases++
		return
	}
	delete(p.live, h)
	p.released++
}

// Bytes returns the data behind a live handle.
func (p *Pool) Bytes(h Handle) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.live[h]
	return data, ok
}

// Stats returns the current counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Allocated:      p.allocated,
		Released:       p.released,
		Live:           len(p.live),
		DoubleReleases: p.doubleReleases,
	}
}
