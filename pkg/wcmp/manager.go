// Package wcmp programs weighted multipath next-hop groups onto the device.
//
// A Manager reconciles the requested member list of each group against the
// device with a positional diff, unwinds every partially applied change when
// a device call fails, and prunes and restores members whose watch port goes
// down or comes back up without dropping them from the group.
//
// All mutating entry points take the manager lock for their full duration,
// including rollback, so at most one protocol runs at a time.
package wcmp

import (
	"sort"
	"sync"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/port"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// Ports is the port table the manager consults for watch ports.
type Ports interface {
	Exists(name string) bool
	IsOperUp(name string) bool
	NameByOID(oid sai.OID) (string, bool)
	SetOperStatus(name string, st port.OperStatus) (bool, error)
}

// CriticalEvent describes a failure that left the device and the model
// divergent.
type CriticalEvent struct {
	GroupID string
	Port    string
	Err     error
}

// Option configures a Manager.
type Option func(*Manager)

// WithCriticalHandler installs a callback invoked for every critical event,
// after it has been logged.
func WithCriticalHandler(fn func(CriticalEvent)) Option {
	return func(m *Manager) {
		m.onCritical = fn
	}
}

// Manager owns every next-hop group it created.
type Manager struct {
	mu sync.Mutex

	api   sai.NextHopGroupAPI
	oids  *oidmap.Mapper
	ports Ports

	groups      map[string]*group
	portMembers map[string]map[*member]struct{}
	pruned      map[*member]struct{}
	nextSeq     uint64

	queue []Entry

	criticals  int
	onCritical func(CriticalEvent)
}

// NewManager creates a manager programming through api. oids is the shared
// registry the next hops are registered in; ports resolves watch ports.
func NewManager(api sai.NextHopGroupAPI, oids *oidmap.Mapper, ports Ports, opts ...Option) *Manager {
	m := &Manager{
		api:         api,
		oids:        oids,
		ports:       ports,
		groups:      make(map[string]*group),
		portMembers: make(map[string]map[*member]struct{}),
		pruned:      make(map[*member]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (mgr *Manager) raiseCritical(ev CriticalEvent) {
	mgr.criticals++
	entry := util.WithGroup(ev.GroupID)
	if ev.Port != "" {
		entry = entry.WithField("port", ev.Port)
	}
	util.Critical(entry, "%v", ev.Err)
	if mgr.onCritical != nil {
		mgr.onCritical(ev)
	}
}

// CriticalEvents returns how many critical events were raised so far.
func (mgr *Manager) CriticalEvents() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.criticals
}

func (mgr *Manager) info(m *member, pos int) MemberInfo {
	_, pruned := mgr.pruned[m]
	return MemberInfo{
		GroupID:   m.groupID,
		Position:  pos,
		NextHopID: m.spec.NextHopID,
		Weight:    m.spec.Weight,
		WatchPort: m.spec.WatchPort,
		OID:       m.oid,
		Pruned:    pruned,
	}
}

func (mgr *Manager) position(m *member) int {
	g, ok := mgr.groups[m.groupID]
	if !ok {
		return -1
	}
	for i, gm := range g.members {
		if gm == m {
			return i
		}
	}
	return -1
}

// Group returns a snapshot of a group.
func (mgr *Manager) Group(id string) (GroupInfo, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	g, ok := mgr.groups[id]
	if !ok {
		return GroupInfo{}, false
	}
	return mgr.groupInfo(g), true
}

func (mgr *Manager) groupInfo(g *group) GroupInfo {
	gi := GroupInfo{ID: g.id, OID: g.oid, Members: make([]MemberInfo, 0, len(g.members))}
	for i, m := range g.members {
		gi.Members = append(gi.Members, mgr.info(m, i))
	}
	return gi
}

// Groups returns a snapshot of every group, sorted by id.
func (mgr *Manager) Groups() []GroupInfo {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	out := make([]GroupInfo, 0, len(mgr.groups))
	for _, g := range mgr.groups {
		out = append(out, mgr.groupInfo(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sortedMembers orders a member set by creation sequence so that port
// operations touch members deterministically.
func sortedMembers(set map[*member]struct{}) []*member {
	out := make([]*member, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// PrunedMembers returns the members currently pruned from the device.
func (mgr *Manager) PrunedMembers() []MemberInfo {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	var out []MemberInfo
	for _, m := range sortedMembers(mgr.pruned) {
		out = append(out, mgr.info(m, mgr.position(m)))
	}
	return out
}

// PortMembers returns every member, active or pruned, watching port.
func (mgr *Manager) PortMembers(port string) []MemberInfo {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	var out []MemberInfo
	for _, m := range sortedMembers(mgr.portMembers[port]) {
		out = append(out, mgr.info(m, mgr.position(m)))
	}
	return out
}
