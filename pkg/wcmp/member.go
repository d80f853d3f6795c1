package wcmp

import (
	"context"
	"fmt"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

func (mgr *Manager) newMember(groupID string, spec MemberSpec) *member {
	mgr.nextSeq++
	return &member{spec: spec, groupID: groupID, seq: mgr.nextSeq}
}

// programMember creates m on the device under groupOID and takes a
// reference on its next hop.
func (mgr *Manager) programMember(ctx context.Context, groupOID sai.OID, m *member) error {
	nhKey := oidmap.NextHopKey(m.spec.NextHopID)
	nhOID, err := mgr.oids.GetOID(oidmap.ObjectTypeNextHop, nhKey)
	if err != nil {
		return err
	}
	oid, err := mgr.api.CreateMember(ctx, groupOID, nhOID, uint32(m.spec.Weight))
	if err != nil {
		return sai.Wrap(err, "failed to create next hop group member '%s'", m.spec.NextHopID)
	}
	m.oid = oid
	m.stranded = false
	if err := mgr.oids.IncreaseRefCount(oidmap.ObjectTypeNextHop, nhKey); err != nil {
		util.WithGroup(m.groupID).Errorf("next hop %s: %v", m.spec.NextHopID, err)
	}
	util.WithGroup(m.groupID).Debugf("created member %s as %s", m.spec, oid)
	return nil
}

// unprogramMember removes m from the device and drops its next-hop
// reference. On failure m is left active.
func (mgr *Manager) unprogramMember(ctx context.Context, m *member) error {
	if err := mgr.api.RemoveMember(ctx, m.oid); err != nil {
		return sai.Wrap(err, "failed to remove next hop group member '%s'", m.spec.NextHopID)
	}
	util.WithGroup(m.groupID).Debugf("removed member %s (%s)", m.spec, m.oid)
	m.oid = sai.NullOID
	if err := mgr.oids.DecreaseRefCount(oidmap.ObjectTypeNextHop, oidmap.NextHopKey(m.spec.NextHopID)); err != nil {
		util.WithGroup(m.groupID).Errorf("next hop %s: %v", m.spec.NextHopID, err)
	}
	return nil
}

// link records m in the port index, in the pruned set when it has no
// device object, and in its group's reference count.
func (mgr *Manager) link(m *member) {
	if m.linked {
		return
	}
	if p := m.spec.WatchPort; p != "" {
		set, ok := mgr.portMembers[p]
		if !ok {
			set = make(map[*member]struct{})
			mgr.portMembers[p] = set
		}
		set[m] = struct{}{}
	}
	if !m.active() {
		mgr.pruned[m] = struct{}{}
	}
	if err := mgr.oids.IncreaseRefCount(oidmap.ObjectTypeNextHopGroup, oidmap.GroupKey(m.groupID)); err != nil {
		util.WithGroup(m.groupID).Errorf("linking member %s: %v", m.spec, err)
	}
	m.linked = true
}

// unlink undoes link. It does not touch the device object or the
// next-hop reference.
func (mgr *Manager) unlink(m *member) {
	if !m.linked {
		return
	}
	if p := m.spec.WatchPort; p != "" {
		delete(mgr.portMembers[p], m)
		if len(mgr.portMembers[p]) == 0 {
			delete(mgr.portMembers, p)
		}
	}
	delete(mgr.pruned, m)
	if err := mgr.oids.DecreaseRefCount(oidmap.ObjectTypeNextHopGroup, oidmap.GroupKey(m.groupID)); err != nil {
		util.WithGroup(m.groupID).Errorf("unlinking member %s: %v", m.spec, err)
	}
	m.linked = false
}

// attachMember realizes a new member of g. Members watching a port that is
// not up are only recorded as pruned. The inverse is recorded in j.
func (mgr *Manager) attachMember(ctx context.Context, g *group, m *member, j *journal) error {
	if p := m.spec.WatchPort; p != "" && !mgr.ports.IsOperUp(p) {
		util.WithGroup(g.id).WithField("port", p).
			Debugf("watch port is not up, member %s starts pruned", m.spec)
	} else if err := mgr.programMember(ctx, g.oid, m); err != nil {
		return err
	}
	mgr.link(m)
	j.record(fmt.Sprintf("creation of member %s", m.spec), func(ctx context.Context) error {
		return mgr.detachMember(ctx, m, nil)
	})
	return nil
}

// detachMember takes m out of its group: off the device if active, then
// out of every index. On device failure nothing changes. When j is not nil
// the inverse, which restores m in its previous state, is recorded.
func (mgr *Manager) detachMember(ctx context.Context, m *member, j *journal) error {
	wasActive := m.active()
	if wasActive {
		if err := mgr.unprogramMember(ctx, m); err != nil {
			return err
		}
	}
	mgr.unlink(m)
	if j != nil {
		j.record(fmt.Sprintf("removal of member %s", m.spec), func(ctx context.Context) error {
			return mgr.reattachMember(ctx, m, wasActive)
		})
	}
	return nil
}

// reattachMember puts a detached member back with its original weight and
// active/pruned state. If the device refuses, the member is linked as
// pruned so it keeps exactly one state, marked stranded, and the error is
// returned.
func (mgr *Manager) reattachMember(ctx context.Context, m *member, active bool) error {
	var err error
	if active {
		var groupOID sai.OID
		groupOID, err = mgr.oids.GetOID(oidmap.ObjectTypeNextHopGroup, oidmap.GroupKey(m.groupID))
		if err == nil {
			err = mgr.programMember(ctx, groupOID, m)
		}
		m.stranded = err != nil
	}
	mgr.link(m)
	return err
}
