package engine

import (
	"maps"
	"slices"

	"github.com/rmax-ai/clustergraph/pkg/crm"
	"github.com/rmax-ai/clustergraph/pkg/topology"
)

func colocationKey(a, b string) string {
	return a + "\x00" + b
}

// indexColocations records every plain colocation pair in both directions.
func (p *pass) indexColocations(colocations map[string][]crm.ColocationData) {
	for _, list := range colocations {
		for _, c := range list {
			p.colocated[colocationKey(c.Rsc, c.WithRsc)] = true
			p.colocated[colocationKey(c.WithRsc, c.Rsc)] = true
		}
	}
}

// buildOrders draws an order edge for every plain ordering constraint whose sides are both
// present. Unresolved sides are skipped until a later pass.
func (p *pass) buildOrders(orders map[string][]crm.OrderData) {
	for _, cid := range slices.Sorted(maps.Keys(orders)) {
		for _, o := range orders[cid] {
			first, ok := p.resolve(o.First)
			if !ok {
				p.result.Unresolved++
				continue
			}
			then, ok := p.resolve(o.Then)
			if !ok {
				p.result.Unresolved++
				continue
			}
			p.draw.AddOrderEdge(cid, first, then)
			p.detectStorageDependency(first, then)
		}
	}
}

// buildColocations draws a colocation edge from rsc to with-rsc for every plain colocation
// constraint whose sides are both present.
func (p *pass) buildColocations(colocations map[string][]crm.ColocationData) {
	for _, cid := range slices.Sorted(maps.Keys(colocations)) {
		for _, c := range colocations[cid] {
			rsc, ok := p.resolve(c.Rsc)
			if !ok {
				p.result.Unresolved++
				continue
			}
			with, ok := p.resolve(c.WithRsc)
			if !ok {
				p.result.Unresolved++
				continue
			}
			p.draw.AddColocationEdge(cid, rsc, with)
		}
	}
}

// detectStorageDependency marks then as depending on first when a DRBD device is ordered
// before a filesystem and the two are also colocated. A clone is looked through to its child.
func (p *pass) detectStorageDependency(first, then *topology.Resource) {
	dev := first
	if dev.Kind() == topology.KindClone {
		if child := dev.Child(); child != nil {
			dev = child
		}
	}

	switch [2]crm.AgentKind{dev.AgentKind(), then.AgentKind()} {
	case [2]crm.AgentKind{crm.AgentDRBD, crm.AgentFilesystem}:
		if !p.colocated[colocationKey(first.ID(), then.ID())] && !p.colocated[colocationKey(dev.ID(), then.ID())] {
			return
		}
		p.storageDeps[then] = dev
	}
}

// applyStorageDependencies stores the dependencies found in this pass and clears stale ones
// on filesystems that no longer have one.
func (p *pass) applyStorageDependencies() {
	for fs, dev := range p.storageDeps {
		if fs.StorageDependency() != dev {
			p.r.logger.Info("Storage dependency detected", "filesystem", fs.ID(), "device", dev.ID())
		}
		fs.SetStorageDependency(dev)
		if p.result.StorageDependencies == nil {
			p.result.StorageDependencies = make(map[string]string)
		}
		p.result.StorageDependencies[fs.ID()] = dev.ID()
	}
	for _, n := range p.present.ToSlice() {
		res, ok := n.(*topology.Resource)
		if !ok || res.StorageDependency() == nil {
			continue
		}
		if _, found := p.storageDeps[res]; !found {
			res.SetStorageDependency(nil)
		}
	}
}
