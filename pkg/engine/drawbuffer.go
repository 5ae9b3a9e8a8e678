package engine

import "github.com/rmax-ai/clustergraph/pkg/topology"

// drawBuffer queues the edge and move calls of a pass. They reach the GraphConsumer only when
// the pass succeeds, so an abandoned pass leaves the graph untouched.
type drawBuffer struct {
	ops []func(GraphConsumer)
}

func (b *drawBuffer) AddOrderEdge(constraintID string, from, to topology.Node) {
	b.ops = append(b.ops, func(g GraphConsumer) { g.AddOrderEdge(constraintID, from, to) })
}

func (b *drawBuffer) AddColocationEdge(constraintID string, from, to topology.Node) {
	b.ops = append(b.ops, func(g GraphConsumer) { g.AddColocationEdge(constraintID, from, to) })
}

func (b *drawBuffer) MoveNodeToPosition(pos int, n topology.Node) {
	b.ops = append(b.ops, func(g GraphConsumer) { g.MoveNodeToPosition(pos, n) })
}

// flush replays the queued calls in order and empties the buffer.
func (b *drawBuffer) flush(g GraphConsumer) {
	for _, op := range b.ops {
		op(g)
	}
	b.ops = nil
}
