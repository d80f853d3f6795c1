package wcmp

import (
	"context"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// CreateGroup programs a new group and its members in list order. If any
// member cannot be created, every member already created and the group
// object are removed again and the member's error is returned.
func (mgr *Manager) CreateGroup(ctx context.Context, e *GroupEntry) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.createGroup(ctx, e)
}

func (mgr *Manager) createGroup(ctx context.Context, e *GroupEntry) error {
	if err := mgr.validateEntry(e); err != nil {
		return err
	}
	if _, ok := mgr.groups[e.GroupID]; ok {
		return util.NewStatusError(util.ErrAlreadyExists, "wcmp group %q already exists", e.GroupID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	log := util.WithGroup(e.GroupID)
	groupKey := oidmap.GroupKey(e.GroupID)

	oid, err := mgr.api.CreateGroup(ctx)
	if err != nil {
		return sai.Wrap(err, "failed to create next hop group '%s'", e.GroupID)
	}
	if err := mgr.oids.SetOID(oidmap.ObjectTypeNextHopGroup, groupKey, oid); err != nil {
		// The registry and the model disagree about this id; give the
		// object back instead of leaking it.
		if rerr := mgr.api.RemoveGroup(ctx, oid); rerr != nil {
			mgr.raiseCritical(CriticalEvent{GroupID: e.GroupID, Err: rerr})
		}
		return err
	}

	g := &group{id: e.GroupID, oid: oid}
	var j journal
	j.record("creation of group "+e.GroupID, func(ctx context.Context) error {
		if err := mgr.api.RemoveGroup(ctx, oid); err != nil {
			return sai.Wrap(err, "failed to remove next hop group '%s'", e.GroupID)
		}
		return nil
	})

	members := make([]*member, 0, len(e.Members))
	for _, s := range e.Members {
		m := mgr.newMember(e.GroupID, s)
		if err := mgr.attachMember(ctx, g, m, &j); err != nil {
			err = mgr.rollback(ctx, e.GroupID, &j, err)
			// Members whose removal failed still exist on the device but
			// the group is gone from the model.
			for _, am := range members {
				mgr.unlink(am)
			}
			if eerr := mgr.oids.EraseOID(oidmap.ObjectTypeNextHopGroup, groupKey); eerr != nil {
				log.Errorf("erasing group registration: %v", eerr)
			}
			return err
		}
		members = append(members, m)
	}

	g.members = members
	mgr.groups[g.id] = g
	log.Infof("created next hop group %s with %d members", oid, len(members))
	return nil
}
