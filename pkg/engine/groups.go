package engine

import (
	"github.com/rmax-ai/clustergraph/pkg/crm"
	"github.com/rmax-ai/clustergraph/pkg/topology"
)

// reconcileGroupOrClone handles one id of the snapshot's group/clone enumeration. The outcome
// does not depend on the enumeration order: ownership is read from the snapshot, and a group
// owned by a clone is reconciled when its clone is.
func (p *pass) reconcileGroupOrClone(id string) error {
	if id == crm.TopLevelGroup {
		return p.reconcileMembers(id, nil)
	}
	if _, owned := p.ownerOf[id]; owned {
		return nil
	}
	if p.snap.IsClone(id) {
		clone, err := p.findOrCreate(id, topology.KindClone)
		if err != nil {
			return err
		}
		clone.Detach()
		return p.reconcileMembers(id, clone)
	}
	group, err := p.findOrCreate(id, topology.KindGroup)
	if err != nil {
		return err
	}
	group.Detach()
	return p.reconcileMembers(id, group)
}

// reconcileContainer reconciles a group or clone met as a member of another container.
func (p *pass) reconcileContainer(id string) (*topology.Resource, error) {
	kind := topology.KindGroup
	if p.snap.IsClone(id) {
		kind = topology.KindClone
	}
	res, err := p.findOrCreate(id, kind)
	if err != nil {
		return nil, err
	}
	if err := p.reconcileMembers(id, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *pass) isContainer(id string) bool {
	if p.snap.IsClone(id) {
		return true
	}
	_, ok := p.snap.GroupResources(id)
	return ok
}
