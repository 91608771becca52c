package nn

import "sync"

const defaultPoolLimit = 256

// Pool is a free list of node arenas. Graphs built through a pool hand their
// arena back on Release so the next build reuses the backing array.
type Pool struct {
	mu    sync.Mutex
	free  [][]node
	limit int
}

func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = defaultPoolLimit
	}
	return &Pool{limit: limit}
}

// Build constructs a graph whose arena is drawn from the pool.
func (p *Pool) Build(layout Layout, brain map[string]float64) (*Graph, error) {
	return build(layout, brain, p)
}

// Free reports how many arenas wait for reuse.
func (p *Pool) Free() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

func (p *Pool) get(capacity int) []node {
	if p == nil {
		return make([]node, 0, capacity)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.free) - 1; i >= 0; i-- {
		arena := p.free[i]
		if cap(arena) < capacity {
			continue
		}
		p.free = append(p.free[:i], p.free[i+1:]...)
		return arena[:0]
	}
	return make([]node, 0, capacity)
}

func (p *Pool) put(arena []node) {
	if p == nil || arena == nil {
		return
	}
	for i := range arena {
		arena[i] = node{in: arena[i].in[:0]}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.limit {
		return
	}
	p.free = append(p.free, arena[:0])
}
