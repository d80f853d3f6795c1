package wcmp

import (
	"context"

	"github.com/newtron-network/wcmpd/pkg/util"
)

// diff compares the current member sequence with the requested one position
// by position. removals lists the old positions that go away, creations the
// new positions that need a fresh member. Positions holding the same next
// hop and weight are in neither list.
func diff(old []*member, want []MemberSpec) (removals, creations []int) {
	for i := 0; i < len(old) || i < len(want); i++ {
		switch {
		case i >= len(want):
			removals = append(removals, i)
		case i >= len(old):
			creations = append(creations, i)
		case !old[i].same(want[i]):
			removals = append(removals, i)
			creations = append(creations, i)
		}
	}
	return removals, creations
}

// UpdateGroup reconciles an existing group to the requested member list.
// Replaced and dropped positions are removed first, in index order, then
// new positions are created in index order. On the first failure every
// applied step is reverted in reverse order.
//
// Reordering is not detected: moving a member to another position replaces
// both positions.
func (mgr *Manager) UpdateGroup(ctx context.Context, e *GroupEntry) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.updateGroup(ctx, e)
}

func (mgr *Manager) updateGroup(ctx context.Context, e *GroupEntry) error {
	if err := mgr.validateEntry(e); err != nil {
		return err
	}
	g, ok := mgr.groups[e.GroupID]
	if !ok {
		return util.NewStatusError(util.ErrNotFound, "wcmp group %q does not exist", e.GroupID)
	}

	removals, creations := diff(g.members, e.Members)
	if len(removals) == 0 && len(creations) == 0 {
		util.WithGroup(g.id).Debug("member list unchanged")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	var j journal
	for _, i := range removals {
		if err := mgr.detachMember(ctx, g.members[i], &j); err != nil {
			return mgr.rollback(ctx, g.id, &j, err)
		}
	}

	created := make(map[int]*member, len(creations))
	for _, i := range creations {
		m := mgr.newMember(g.id, e.Members[i])
		if err := mgr.attachMember(ctx, g, m, &j); err != nil {
			err = mgr.rollback(ctx, g.id, &j, err)
			// New members that could not be removed again are not part of
			// the group any more.
			for _, cm := range created {
				mgr.unlink(cm)
			}
			return err
		}
		created[i] = m
	}

	members := make([]*member, len(e.Members))
	for i := range e.Members {
		if m, ok := created[i]; ok {
			members[i] = m
		} else {
			members[i] = g.members[i]
		}
	}
	g.members = members
	util.WithGroup(g.id).Infof("updated next hop group: %d removed, %d created, %d members",
		len(removals), len(creations), len(members))
	return nil
}
