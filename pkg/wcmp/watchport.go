package wcmp

import (
	"context"
	"errors"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/port"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// PruneNextHops removes every active member watching portName from the
// device. Members stay in their groups. A member that cannot be removed
// stays active and raises a critical event; the others are still pruned.
func (mgr *Manager) PruneNextHops(ctx context.Context, portName string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.pruneNextHops(context.WithoutCancel(ctx), portName)
}

func (mgr *Manager) pruneNextHops(ctx context.Context, portName string) error {
	var errs []error
	n := 0
	for _, m := range sortedMembers(mgr.portMembers[portName]) {
		if !m.active() {
			continue
		}
		if err := mgr.unprogramMember(ctx, m); err != nil {
			mgr.raiseCritical(CriticalEvent{GroupID: m.groupID, Port: portName, Err: err})
			errs = append(errs, err)
			continue
		}
		mgr.pruned[m] = struct{}{}
		n++
	}
	if n > 0 {
		util.WithPort(portName).Infof("pruned %d members", n)
	}
	return errors.Join(errs...)
}

// RestorePrunedNextHops re-creates every pruned member watching portName
// with its current weight. A member that cannot be restored stays pruned
// and raises a critical event.
func (mgr *Manager) RestorePrunedNextHops(ctx context.Context, portName string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.restorePrunedNextHops(context.WithoutCancel(ctx), portName)
}

func (mgr *Manager) restorePrunedNextHops(ctx context.Context, portName string) error {
	var errs []error
	n := 0
	for _, m := range sortedMembers(mgr.portMembers[portName]) {
		if _, ok := mgr.pruned[m]; !ok {
			continue
		}
		groupOID, err := mgr.oids.GetOID(oidmap.ObjectTypeNextHopGroup, oidmap.GroupKey(m.groupID))
		if err == nil {
			err = mgr.programMember(ctx, groupOID, m)
		}
		if err != nil {
			mgr.raiseCritical(CriticalEvent{GroupID: m.groupID, Port: portName, Err: err})
			errs = append(errs, err)
			continue
		}
		delete(mgr.pruned, m)
		n++
	}
	if n > 0 {
		util.WithPort(portName).Infof("restored %d members", n)
	}
	return errors.Join(errs...)
}

// HandlePortStatusChange applies port state changes in order. A transition
// to down prunes, a transition to up restores; repeated or other states
// only update the port table.
func (mgr *Manager) HandlePortStatusChange(ctx context.Context, changes []port.StatusChange) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, c := range changes {
		name, ok := mgr.ports.NameByOID(c.PortID)
		if !ok {
			util.Warnf("port state change for unknown port %s", c.PortID)
			continue
		}
		changed, err := mgr.ports.SetOperStatus(name, c.State)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !changed {
			continue
		}
		util.WithPort(name).Infof("oper status changed to %s", c.State)
		switch c.State {
		case port.OperDown:
			errs = append(errs, mgr.pruneNextHops(ctx, name))
		case port.OperUp:
			errs = append(errs, mgr.restorePrunedNextHops(ctx, name))
		}
	}
	return errors.Join(errs...)
}

// HandlePortNotification decodes a device notification and applies it when
// it is a port state change. Other notifications are ignored.
func (mgr *Manager) HandlePortNotification(ctx context.Context, op, data string) error {
	if op != port.NotificationPortStateChange {
		return nil
	}
	changes, err := port.ParseStatusChange(data)
	if err != nil {
		util.Errorf("dropping %s notification: %v", op, err)
		return err
	}
	return mgr.HandlePortStatusChange(ctx, changes)
}
