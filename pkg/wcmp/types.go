package wcmp

import (
	"fmt"

	"github.com/newtron-network/wcmpd/pkg/sai"
)

// MemberSpec is one requested member: a next hop, its weight and an
// optional watch port.
type MemberSpec struct {
	NextHopID string `json:"nexthop_id" yaml:"nexthop_id"`
	Weight    int    `json:"weight" yaml:"weight"`
	WatchPort string `json:"watch_port,omitempty" yaml:"watch_port,omitempty"`
}

func (s MemberSpec) String() string {
	if s.WatchPort == "" {
		return fmt.Sprintf("%s(w=%d)", s.NextHopID, s.Weight)
	}
	return fmt.Sprintf("%s(w=%d,watch=%s)", s.NextHopID, s.Weight, s.WatchPort)
}

// GroupEntry is a decoded request for one group.
type GroupEntry struct {
	GroupID string       `json:"wcmp_group_id" yaml:"id"`
	Members []MemberSpec `json:"members" yaml:"members"`
}

// member is the live state of one position in a group. oid is null while
// the member is pruned (or transiently, while it is being created). linked
// is set while the member is counted in the port index, the pruned set and
// the group's reference count. stranded marks a member whose device object
// could not be re-created during a rollback.
type member struct {
	spec     MemberSpec
	groupID  string
	seq      uint64
	oid      sai.OID
	linked   bool
	stranded bool
}

func (m *member) active() bool {
	return !m.oid.IsNull()
}

// same reports whether m can stay in place for s. Only the next hop and
// weight count; a kept member also keeps its watch port and port index entry.
// A stranded member is never kept, so the next request re-creates it.
func (m *member) same(s MemberSpec) bool {
	return !m.stranded && m.spec.NextHopID == s.NextHopID && m.spec.Weight == s.Weight
}

type group struct {
	id      string
	oid     sai.OID
	members []*member
}

// MemberInfo is a read-only view of a member.
type MemberInfo struct {
	GroupID   string
	Position  int
	NextHopID string
	Weight    int
	WatchPort string
	OID       sai.OID
	Pruned    bool
}

// GroupInfo is a read-only view of a group.
type GroupInfo struct {
	ID      string
	OID     sai.OID
	Members []MemberInfo
}
