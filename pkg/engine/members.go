package engine

import (
	"github.com/rmax-ai/clustergraph/pkg/topology"
)

// reconcileMembers walks the ordered member list of groupID once per pass. owner is nil for
// the top-level pseudo group.
func (p *pass) reconcileMembers(groupID string, owner *topology.Resource) error {
	if p.membersDone[groupID] {
		return nil
	}
	p.membersDone[groupID] = true

	ids, ok := p.snap.GroupResources(groupID)
	if !ok && owner == nil {
		return nil
	}

	hideOrphaned := p.r.policy.HideOrphanedResources()
	seen := make(map[*topology.Resource]bool, len(ids))
	pos := 0
	for _, id := range ids {
		if hideOrphaned && p.snap.IsOrphaned(id) {
			continue
		}

		var (
			member *topology.Resource
			err    error
		)
		if p.isContainer(id) {
			member, err = p.reconcileContainer(id)
		} else {
			member, err = p.reconcilePrimitive(id)
		}
		if err != nil {
			return err
		}

		if owner != nil {
			owner.Adopt(member)
			if owner.Kind() == topology.KindGroup {
				owner.MoveMember(pos, member)
			}
		} else {
			member.Detach()
		}
		p.draw.MoveNodeToPosition(pos, member)
		p.result.Moves++
		pos++
		seen[member] = true
	}

	if owner != nil && owner.Kind() == topology.KindGroup {
		owner.RetainMembers(func(m *topology.Resource) bool { return seen[m] })
	}
	return nil
}

func (p *pass) reconcilePrimitive(id string) (*topology.Resource, error) {
	agent, known := p.snap.ResourceType(id)
	if !known {
		p.r.logger.Warn("Unknown resource agent type", "resource_id", id)
		p.result.UnknownAgents = append(p.result.UnknownAgents, id)
	}
	res, err := p.findOrCreate(id, topology.KindPrimitive)
	if err != nil {
		return nil, err
	}
	res.SetAgent(agent)
	return res, nil
}
