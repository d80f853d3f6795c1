package wcmp

import (
	"context"
	"fmt"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// RemoveGroup removes a group that nothing else references. Active members
// are removed in list order, then the group object. Any failure re-creates
// the members removed so far and leaves the group as it was.
func (mgr *Manager) RemoveGroup(ctx context.Context, groupID string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.removeGroup(ctx, groupID)
}

func (mgr *Manager) removeGroup(ctx context.Context, groupID string) error {
	g, ok := mgr.groups[groupID]
	if !ok {
		return util.NewStatusError(util.ErrNotFound, "wcmp group %q does not exist", groupID)
	}
	groupKey := oidmap.GroupKey(groupID)
	refs, err := mgr.oids.GetRefCount(oidmap.ObjectTypeNextHopGroup, groupKey)
	if err != nil {
		return err
	}
	// Every member holds one reference; anything above that is an
	// external dependent.
	if ext := int64(refs) - int64(len(g.members)); ext > 0 {
		return util.NewInUseError(fmt.Sprintf("wcmp group %q", groupID), uint32(ext))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	var j journal
	for _, m := range g.members {
		if !m.active() {
			continue
		}
		if err := mgr.unprogramMember(ctx, m); err != nil {
			return mgr.rollback(ctx, groupID, &j, err)
		}
		m := m
		j.record(fmt.Sprintf("removal of member %s", m.spec), func(ctx context.Context) error {
			if err := mgr.programMember(ctx, g.oid, m); err != nil {
				mgr.pruned[m] = struct{}{}
				return err
			}
			return nil
		})
	}
	if err := mgr.api.RemoveGroup(ctx, g.oid); err != nil {
		return mgr.rollback(ctx, groupID, &j, sai.Wrap(err, "failed to remove next hop group '%s'", groupID))
	}

	for _, m := range g.members {
		mgr.unlink(m)
	}
	if err := mgr.oids.EraseOID(oidmap.ObjectTypeNextHopGroup, groupKey); err != nil {
		util.WithGroup(groupID).Errorf("erasing group registration: %v", err)
	}
	delete(mgr.groups, groupID)
	util.WithGroup(groupID).Infof("removed next hop group %s", g.oid)
	return nil
}
