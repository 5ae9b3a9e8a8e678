package engine

import (
	"fmt"

	"github.com/rmax-ai/clustergraph/pkg/crm"
	"github.com/rmax-ai/clustergraph/pkg/topology"
)

// placeholderEntry is one (connection, placeholder) binding known to the pass. A placeholder
// that serves an order and a colocation appears twice.
type placeholderEntry struct {
	conn *crm.ConstraintConnection
	ph   *topology.Placeholder
}

// slotKey identifies the order or colocation slot of a placeholder.
type slotKey struct {
	ph         *topology.Placeholder
	colocation bool
}

type rscSetPass struct {
	*pass
	entries []placeholderEntry
	// fresh holds the placeholders that entered the pass new and unbound.
	fresh []*topology.Placeholder
	// taken holds the fresh placeholders bound in this pass. They accept further connections
	// of the other kind regardless of members.
	taken   map[*topology.Placeholder]bool
	claimed map[slotKey]*crm.ConstraintConnection
	shared  *topology.ResourceSets
}

// reconcileResourceSets binds every resource-set connection to a placeholder, reusing the
// placeholders of the previous pass where possible, and draws the edges through them.
func (p *pass) reconcileResourceSets(conns []*crm.ConstraintConnection) error {
	rp := &rscSetPass{
		pass:    p,
		taken:   make(map[*topology.Placeholder]bool),
		claimed: make(map[slotKey]*crm.ConstraintConnection),
	}
	rp.loadPlaceholders()

	for _, conn := range conns {
		if conn == nil || conn.Empty() {
			id := ""
			if conn != nil {
				id = conn.ConstraintID
			}
			return fmt.Errorf("%w: resource set constraint %q has no members", ErrInvariant, id)
		}
		ph, err := rp.resolve(conn)
		if err != nil {
			return err
		}
		p.present.Add(ph)
		rp.drawEdges(conn, ph)
	}
	return nil
}

// loadPlaceholders rebuilds the old-connection map and the pool of unbound new placeholders
// from the registry.
func (rp *rscSetPass) loadPlaceholders() {
	rp.r.registry.RangePlaceholders(func(_ string, ph *topology.Placeholder) bool {
		ord, col := ph.OrderBinding(), ph.ColocationBinding()
		if ph.IsNew() && ord == nil && col == nil {
			rp.fresh = append(rp.fresh, ph)
		}
		if ord != nil && !ord.Empty() {
			rp.entries = append(rp.entries, placeholderEntry{conn: ord, ph: ph})
		}
		if col != nil && !col.Empty() {
			rp.entries = append(rp.entries, placeholderEntry{conn: col, ph: ph})
		}
		return true
	})
}

// isClaimed reports whether ph already carries a connection of conn's kind in this pass.
func (rp *rscSetPass) isClaimed(ph *topology.Placeholder, conn *crm.ConstraintConnection) bool {
	_, ok := rp.claimed[slotKey{ph, conn.Colocation}]
	return ok
}

// resolve picks the placeholder for conn. The first match wins, in this order: an old binding
// equal to conn (or equal with the sides swapped); a fresh placeholder already taken in this
// pass, or one that carries conn's constraint id on a compatible binding; a fresh unbound
// placeholder; a newly created one.
func (rp *rscSetPass) resolve(conn *crm.ConstraintConnection) (*topology.Placeholder, error) {
	var sets *topology.ResourceSets

	for _, e := range rp.entries {
		if rp.isClaimed(e.ph, conn) {
			continue
		}
		if conn.Equal(e.conn) || conn.EqualReversed(e.conn) {
			return rp.reuse(e.ph, conn, e.ph.Sets())
		}
	}

	for _, e := range rp.entries {
		if rp.isClaimed(e.ph, conn) {
			continue
		}
		sameID := e.ph.SameConstraintID(conn)
		if sameID && sets == nil {
			sets = e.ph.Sets()
		}
		if rp.taken[e.ph] || (sameID && conn.CanUseSamePlaceholder(e.conn)) {
			return rp.reuse(e.ph, conn, e.ph.Sets())
		}
	}

	if len(rp.fresh) > 0 {
		ph := rp.fresh[0]
		rp.fresh = rp.fresh[1:]
		rp.taken[ph] = true
		rp.entries = append(rp.entries, placeholderEntry{conn: conn, ph: ph})
		rp.newPlaceholders = append(rp.newPlaceholders, ph)
		return rp.reuse(ph, conn, sets)
	}

	ph := topology.NewPlaceholder()
	if sets == nil {
		sets = rp.sharedSets()
	}
	rp.r.registry.RegisterPlaceholder(ph)
	if err := rp.bind(ph, conn, sets); err != nil {
		return nil, err
	}
	rp.entries = append(rp.entries, placeholderEntry{conn: conn, ph: ph})
	rp.newPlaceholders = append(rp.newPlaceholders, ph)
	rp.result.PlaceholdersCreated = append(rp.result.PlaceholdersCreated, ph.Name())
	return ph, nil
}

func (rp *rscSetPass) reuse(ph *topology.Placeholder, conn *crm.ConstraintConnection, sets *topology.ResourceSets) (*topology.Placeholder, error) {
	if sets == nil {
		sets = rp.sharedSets()
	}
	if err := rp.bind(ph, conn, sets); err != nil {
		return nil, err
	}
	rp.result.PlaceholdersReused = append(rp.result.PlaceholdersReused, ph.Name())
	return ph, nil
}

// sharedSets returns the container shared by the placeholders of this pass that have none.
func (rp *rscSetPass) sharedSets() *topology.ResourceSets {
	if rp.shared == nil {
		rp.shared = topology.NewResourceSets()
	}
	return rp.shared
}

// bind stores conn on ph. A slot is claimed at most once per pass.
func (rp *rscSetPass) bind(ph *topology.Placeholder, conn *crm.ConstraintConnection, sets *topology.ResourceSets) error {
	key := slotKey{ph, conn.Colocation}
	if prev, ok := rp.claimed[key]; ok && prev != conn {
		return fmt.Errorf("%w: placeholder %s already carries %s constraint %q, cannot also carry %q",
			ErrInvariant, ph.Name(), conn.Kind(), prev.ConstraintID, conn.ConstraintID)
	}
	rp.claimed[key] = conn
	ph.Bind(conn)
	if ph.Sets() == nil {
		ph.SetSets(sets)
	}
	ph.Sets().Add(conn, ph)
	return nil
}

// drawEdges connects side 1 to the placeholder and the placeholder to side 2.
func (rp *rscSetPass) drawEdges(conn *crm.ConstraintConnection, ph *topology.Placeholder) {
	add := rp.draw.AddOrderEdge
	if conn.Colocation {
		add = rp.draw.AddColocationEdge
	}
	for _, id := range conn.Set1.Members() {
		res, ok := rp.pass.resolve(id)
		if !ok {
			rp.result.Unresolved++
			continue
		}
		add(conn.ConstraintID, res, ph)
	}
	for _, id := range conn.Set2.Members() {
		res, ok := rp.pass.resolve(id)
		if !ok {
			rp.result.Unresolved++
			continue
		}
		add(conn.ConstraintID, ph, res)
	}
}
