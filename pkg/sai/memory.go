package sai

import (
	"context"
	"sort"
	"sync"
)

// Op names a device call.
type Op string

const (
	OpCreateGroup  Op = "create_group"
	OpRemoveGroup  Op = "remove_group"
	OpCreateMember Op = "create_member"
	OpRemoveMember Op = "remove_member"
)

// Call is one entry of the MemoryAPI call log.
type Call struct {
	Op      Op
	OID     OID // created or removed object; null when a create failed
	Group   OID
	NextHop OID
	Weight  uint32
	Status  Status
}

// MemberAttrs are the attributes a group member was created with.
type MemberAttrs struct {
	Group   OID
	NextHop OID
	Weight  uint32
}

// MemoryAPI is an in-process NextHopGroupAPI. It enforces the same
// referential rules as the hardware (a group with members cannot be
// removed, members need an existing group), honors table capacities, keeps a
// call log and lets callers script failures of individual calls.
type MemoryAPI struct {
	mu sync.Mutex

	// MaxGroups and MaxMembers bound the tables; zero means unbounded.
	MaxGroups  int
	MaxMembers int

	next    OID
	groups  map[OID]map[OID]struct{}
	members map[OID]MemberAttrs
	calls   []Call
	seen    map[Op]int
	faults  map[Op]map[int]Status
}

// NewMemoryAPI creates an empty device. Object ids are allocated from
// 0x1000 upwards.
func NewMemoryAPI() *MemoryAPI {
	return &MemoryAPI{
		next:    0x1000,
		groups:  make(map[OID]map[OID]struct{}),
		members: make(map[OID]MemberAttrs),
		seen:    make(map[Op]int),
		faults:  make(map[Op]map[int]Status),
	}
}

// FailNth makes the nth upcoming call of op (1-based, counted from now)
// fail with st. The failed call has no effect on device state.
func (m *MemoryAPI) FailNth(op Op, nth int, st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faults[op] == nil {
		m.faults[op] = make(map[int]Status)
	}
	m.faults[op][m.seen[op]+nth] = st
}

// fault counts the call and returns the scripted status for it, if any.
func (m *MemoryAPI) fault(op Op) (Status, bool) {
	m.seen[op]++
	st, ok := m.faults[op][m.seen[op]]
	if ok {
		delete(m.faults[op], m.seen[op])
	}
	return st, ok
}

func (m *MemoryAPI) allocate() OID {
	m.next++
	return m.next
}

func (m *MemoryAPI) record(c Call) {
	m.calls = append(m.calls, c)
}

// CreateGroup implements NextHopGroupAPI.
func (m *MemoryAPI) CreateGroup(ctx context.Context) (OID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.fault(OpCreateGroup); ok {
		m.record(Call{Op: OpCreateGroup, Status: st})
		return NullOID, st
	}
	if m.MaxGroups > 0 && len(m.groups) >= m.MaxGroups {
		m.record(Call{Op: OpCreateGroup, Status: StatusTableFull})
		return NullOID, StatusTableFull
	}
	oid := m.allocate()
	m.groups[oid] = make(map[OID]struct{})
	m.record(Call{Op: OpCreateGroup, OID: oid})
	return oid, nil
}

// RemoveGroup implements NextHopGroupAPI.
func (m *MemoryAPI) RemoveGroup(ctx context.Context, group OID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := Call{Op: OpRemoveGroup, OID: group}
	st, failed := m.fault(OpRemoveGroup)
	if !failed {
		members, ok := m.groups[group]
		switch {
		case !ok:
			st, failed = StatusItemNotFound, true
		case len(members) > 0:
			st, failed = StatusObjectInUse, true
		}
	}
	if failed {
		c.Status = st
		m.record(c)
		return st
	}
	delete(m.groups, group)
	m.record(c)
	return nil
}

// CreateMember implements NextHopGroupAPI.
func (m *MemoryAPI) CreateMember(ctx context.Context, group, nextHop OID, weight uint32) (OID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := Call{Op: OpCreateMember, Group: group, NextHop: nextHop, Weight: weight}
	st, failed := m.fault(OpCreateMember)
	if !failed {
		if _, ok := m.groups[group]; !ok {
			st, failed = StatusItemNotFound, true
		} else if m.MaxMembers > 0 && len(m.members) >= m.MaxMembers {
			st, failed = StatusTableFull, true
		}
	}
	if failed {
		c.Status = st
		m.record(c)
		return NullOID, st
	}
	oid := m.allocate()
	m.groups[group][oid] = struct{}{}
	m.members[oid] = MemberAttrs{Group: group, NextHop: nextHop, Weight: weight}
	c.OID = oid
	m.record(c)
	return oid, nil
}

// RemoveMember implements NextHopGroupAPI.
func (m *MemoryAPI) RemoveMember(ctx context.Context, member OID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := Call{Op: OpRemoveMember, OID: member}
	st, failed := m.fault(OpRemoveMember)
	attrs, ok := m.members[member]
	if !failed && !ok {
		st, failed = StatusItemNotFound, true
	}
	if failed {
		c.Status = st
		m.record(c)
		return st
	}
	c.Group, c.NextHop, c.Weight = attrs.Group, attrs.NextHop, attrs.Weight
	delete(m.groups[attrs.Group], member)
	delete(m.members, member)
	m.record(c)
	return nil
}

// Calls returns a copy of the call log.
func (m *MemoryAPI) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// ResetCalls clears the call log. Device state and scripted faults are kept.
func (m *MemoryAPI) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// CallCount returns how many calls of op are in the log, failed ones included.
func (m *MemoryAPI) CallCount(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// HasGroup reports whether the group object exists.
func (m *MemoryAPI) HasGroup(group OID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.groups[group]
	return ok
}

// GroupCount returns the number of group objects on the device.
func (m *MemoryAPI) GroupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.groups)
}

// Member returns the attributes of a member object.
func (m *MemoryAPI) Member(member OID) (MemberAttrs, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attrs, ok := m.members[member]
	return attrs, ok
}

// Members returns the member objects of a group, ordered by OID.
func (m *MemoryAPI) Members(group OID) []MemberAttrs {
	m.mu.Lock()
	defer m.mu.Unlock()
	oids := make([]OID, 0, len(m.groups[group]))
	for oid := range m.groups[group] {
		oids = append(oids, oid)
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i] < oids[j] })
	out := make([]MemberAttrs, 0, len(oids))
	for _, oid := range oids {
		out = append(out, m.members[oid])
	}
	return out
}

// MemberCount returns the total number of member objects on the device.
func (m *MemoryAPI) MemberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members)
}
