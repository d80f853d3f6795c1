package wcmp

import (
	"math"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// validateEntry checks a request before any device call is issued.
// Duplicate next hops within one entry are allowed.
func (mgr *Manager) validateEntry(e *GroupEntry) error {
	if e.GroupID == "" {
		return util.NewValidationError("wcmp group id is required")
	}
	for i, s := range e.Members {
		v := &util.ValidationBuilder{}
		if s.NextHopID == "" {
			v.AddErrorf("member %d: next hop id is required", i)
		}
		if s.Weight < 1 {
			v.AddErrorf("member %d: weight %d of next hop %q must be at least 1", i, s.Weight, s.NextHopID)
		}
		if int64(s.Weight) > math.MaxUint32 {
			v.AddErrorf("member %d: weight %d of next hop %q exceeds %d", i, s.Weight, s.NextHopID, uint32(math.MaxUint32))
		}
		if s.WatchPort != "" && !mgr.ports.Exists(s.WatchPort) {
			v.AddErrorf("member %d: watch port %q does not exist", i, s.WatchPort)
		}
		if err := v.Build(); err != nil {
			return err
		}
		if !mgr.oids.Exists(oidmap.ObjectTypeNextHop, oidmap.NextHopKey(s.NextHopID)) {
			return util.NewStatusError(util.ErrNotFound,
				"next hop %q referenced by wcmp group %q does not exist", s.NextHopID, e.GroupID)
		}
	}
	return nil
}
