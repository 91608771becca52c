package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrGenomeParse  = errors.New("genome parse error")
	ErrCapacity     = errors.New("node id space exhausted")
	ErrCyclicGenome = errors.New("brain genome contains a cycle")
	ErrEvaluation   = errors.New("brain evaluation failed")
	ErrReleased     = errors.New("graph has been released")
)

type edge struct {
	from   int
	weight float64
}

type node struct {
	id NodeID
	in []edge
}

// Graph is an immutable, evaluable brain built from a brain genome. Nodes live
// in an arena addressed by index; each node keeps its incoming edges.
type Graph struct {
	layout     Layout
	activation ActivationFunc

	nodes   []node
	index   map[NodeID]int
	inputs  []int
	outputs []int
	order   []int

	edges  int
	hidden int

	pool     *Pool
	released bool
}

// Build constructs a graph with a freshly allocated arena.
func Build(layout Layout, brain map[string]float64) (*Graph, error) {
	return build(layout, brain, nil)
}

func build(layout Layout, brain map[string]float64, pool *Pool) (*Graph, error) {
	if layout.Activation == "" {
		layout.Activation = DefaultActivation
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	activation, err := GetActivation(layout.Activation)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		layout:     layout,
		activation: activation,
		nodes:      pool.get(layout.Inputs + layout.Outputs + len(brain)),
		index:      make(map[NodeID]int, layout.Inputs+layout.Outputs+len(brain)),
		inputs:     make([]int, 0, layout.Inputs),
		outputs:    make([]int, 0, layout.Outputs),
		pool:       pool,
	}
	for _, id := range layout.InputIDs() {
		g.inputs = append(g.inputs, g.addNode(id))
	}
	for _, id := range layout.OutputIDs() {
		g.outputs = append(g.outputs, g.addNode(id))
	}

	keys := make([]string, 0, len(brain))
	for key := range brain {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		weight := brain[key]
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			g.Release()
			return nil, fmt.Errorf("%w: connection %s has non-finite weight", ErrGenomeParse, key)
		}
		from, to, err := layout.ParseConnectionKey(key)
		if err != nil {
			g.Release()
			return nil, err
		}
		src, err := g.nodeFor(from)
		if err != nil {
			g.Release()
			return nil, err
		}
		dst, err := g.nodeFor(to)
		if err != nil {
			g.Release()
			return nil, err
		}
		g.nodes[dst].in = append(g.nodes[dst].in, edge{from: src, weight: weight})
		g.edges++
	}

	if err := g.buildOrder(); err != nil {
		g.Release()
		return nil, err
	}
	return g, nil
}

func (g *Graph) addNode(id NodeID) int {
	i := len(g.nodes)
	if i < cap(g.nodes) {
		g.nodes = g.nodes[:i+1]
		g.nodes[i].id = id
		g.nodes[i].in = g.nodes[i].in[:0]
	} else {
		g.nodes = append(g.nodes, node{id: id})
	}
	g.index[id] = i
	return i
}

func (g *Graph) nodeFor(id NodeID) (int, error) {
	if i, ok := g.index[id]; ok {
		return i, nil
	}
	if len(g.nodes) >= g.layout.MaxNodes {
		return 0, fmt.Errorf("%w: %d/%d nodes", ErrCapacity, len(g.nodes), g.layout.MaxNodes)
	}
	g.hidden++
	return g.addNode(id), nil
}

// buildOrder walks backward from the outputs along incoming edges and emits
// nodes in post-order, so every node follows all of its predecessors. Input
// nodes are sources: their incoming edges are never followed.
func (g *Graph) buildOrder() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]uint8, len(g.nodes))
	g.order = make([]int, 0, len(g.nodes))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: through node %s", ErrCyclicGenome, g.nodes[i].id)
		}
		state[i] = visiting
		if g.nodes[i].id.Kind != KindInput {
			for _, e := range g.nodes[i].in {
				if err := visit(e.from); err != nil {
					return err
				}
			}
		}
		state[i] = done
		g.order = append(g.order, i)
		return nil
	}

	for _, out := range g.outputs {
		if err := visit(out); err != nil {
			return err
		}
	}
	return nil
}

// Compute evaluates the graph once. Values live in a scratch buffer local to
// the call, so no state carries over between calls.
func (g *Graph) Compute(inputs []float64) ([]float64, error) {
	if g.released {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, ErrReleased)
	}
	if len(inputs) != len(g.inputs) {
		return nil, fmt.Errorf("%w: got %d inputs, want %d", ErrEvaluation, len(inputs), len(g.inputs))
	}

	values := make([]float64, len(g.nodes))
	for i, idx := range g.inputs {
		values[idx] = inputs[i]
	}
	for _, idx := range g.order {
		n := &g.nodes[idx]
		if n.id.Kind == KindInput {
			continue
		}
		sum := 0.0
		for _, e := range n.in {
			sum += values[e.from] * e.weight
		}
		values[idx] = g.activation(sum)
	}

	out := make([]float64, len(g.outputs))
	for i, idx := range g.outputs {
		v := values[idx]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: output %s is not finite", ErrEvaluation, g.nodes[idx].id)
		}
		out[i] = v
	}
	return out, nil
}

// Complexity is the hidden node count plus a tenth of the edge count.
func (g *Graph) Complexity() float64 {
	return float64(g.hidden) + 0.1*float64(g.edges)
}

func (g *Graph) Layout() Layout   { return g.layout }
func (g *Graph) NodeCount() int   { return len(g.nodes) }
func (g *Graph) HiddenCount() int { return g.hidden }
func (g *Graph) EdgeCount() int   { return g.edges }

// NodeIDs lists node labels in arena order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.id.String()
	}
	return ids
}

// Order lists node labels in evaluation order.
func (g *Graph) Order() []string {
	ids := make([]string, len(g.order))
	for i, idx := range g.order {
		ids[i] = g.nodes[idx].id.String()
	}
	return ids
}

// Release hands the arena back to the pool the graph was built from. The
// graph cannot be evaluated afterwards. Release is idempotent.
func (g *Graph) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.pool.put(g.nodes)
	g.nodes = nil
	g.index = nil
	g.order = nil
}
