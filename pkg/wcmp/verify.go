package wcmp

import (
	"errors"
	"sort"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// MemberReader is implemented by devices that can report the attributes of
// a member object. When the device implements it, VerifyState also compares
// every active member with the device.
type MemberReader interface {
	Member(oid sai.OID) (sai.MemberAttrs, bool)
}

// VerifyState cross-checks the in-memory model against the registry and,
// when possible, the device. It returns nil when everything agrees.
func (mgr *Manager) VerifyState() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, util.NewStatusError(util.ErrInternal, format, args...))
	}
	reader, _ := mgr.api.(MemberReader)

	ids := make([]string, 0, len(mgr.groups))
	for id := range mgr.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	nhRefs := make(map[string]uint32)
	seen := make(map[*member]struct{})
	for _, id := range ids {
		g := mgr.groups[id]
		key := oidmap.GroupKey(id)
		oid, err := mgr.oids.GetOID(oidmap.ObjectTypeNextHopGroup, key)
		if err != nil {
			fail("group %s: %v", id, err)
		} else if oid != g.oid {
			fail("group %s: registry has %s, model has %s", id, oid, g.oid)
		}
		if refs, err := mgr.oids.GetRefCount(oidmap.ObjectTypeNextHopGroup, key); err == nil && int(refs) < len(g.members) {
			fail("group %s: reference count %d is below member count %d", id, refs, len(g.members))
		}

		for i, m := range g.members {
			seen[m] = struct{}{}
			_, pruned := mgr.pruned[m]
			switch {
			case !m.linked:
				fail("group %s member %d (%s): not linked", id, i, m.spec)
			case m.active() && pruned:
				fail("group %s member %d (%s): both active and pruned", id, i, m.spec)
			case !m.active() && !pruned:
				fail("group %s member %d (%s): neither active nor pruned", id, i, m.spec)
			}
			if p := m.spec.WatchPort; p != "" {
				if _, ok := mgr.portMembers[p][m]; !ok {
					fail("group %s member %d (%s): missing from port index", id, i, m.spec)
				}
			}
			if !m.active() {
				continue
			}
			nhRefs[m.spec.NextHopID]++
			if reader == nil {
				continue
			}
			attrs, ok := reader.Member(m.oid)
			if !ok {
				fail("group %s member %d (%s): %s not on device", id, i, m.spec, m.oid)
				continue
			}
			nhOID, _ := mgr.oids.GetOID(oidmap.ObjectTypeNextHop, oidmap.NextHopKey(m.spec.NextHopID))
			if attrs.Group != g.oid || attrs.NextHop != nhOID || attrs.Weight != uint32(m.spec.Weight) {
				fail("group %s member %d (%s): device has group %s next hop %s weight %d",
					id, i, m.spec, attrs.Group, attrs.NextHop, attrs.Weight)
			}
		}
	}

	for m := range mgr.pruned {
		if _, ok := seen[m]; !ok {
			fail("pruned member %s of group %s belongs to no group", m.spec, m.groupID)
		}
	}
	for p, set := range mgr.portMembers {
		for m := range set {
			if _, ok := seen[m]; !ok {
				fail("port %s indexes member %s of group %s that belongs to no group", p, m.spec, m.groupID)
			}
		}
	}

	for _, key := range mgr.oids.Keys(oidmap.ObjectTypeNextHop) {
		refs, err := mgr.oids.GetRefCount(oidmap.ObjectTypeNextHop, key)
		if err != nil {
			continue
		}
		id := key[len(oidmap.NextHopKey("")):]
		if want := nhRefs[id]; refs != want {
			fail("next hop %s: reference count %d, %d active members", id, refs, want)
		}
	}
	return errors.Join(errs...)
}
