// Package port keeps the port name <-> OID mapping and the last known
// operational state of every port, and decodes port state notifications.
package port

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// OperStatus is a port's operational state.
type OperStatus string

const (
	OperUp         OperStatus = "up"
	OperDown       OperStatus = "down"
	OperUnknown    OperStatus = "unknown"
	OperTesting    OperStatus = "testing"
	OperNotPresent OperStatus = "not_present"
)

// ParseOperStatus accepts both the SAI spelling
// ("SAI_PORT_OPER_STATUS_UP") and the STATE_DB spelling ("up").
// Anything unrecognized is OperUnknown.
func ParseOperStatus(s string) OperStatus {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "SAI_PORT_OPER_STATUS_"))
	switch OperStatus(s) {
	case OperUp, OperDown, OperTesting, OperNotPresent:
		return OperStatus(s)
	default:
		return OperUnknown
	}
}

// Port is one entry in the table.
type Port struct {
	Name string
	OID  sai.OID
	Oper OperStatus
}

// Table is the port table. Ports whose state was never reported are
// OperUnknown, which the orchestrator treats as not up.
type Table struct {
	mu     sync.RWMutex
	byName map[string]*Port
	byOID  map[sai.OID]string
}

// NewTable creates an empty port table.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]*Port),
		byOID:  make(map[sai.OID]string),
	}
}

// Add registers a port. Re-adding an existing name replaces its OID and state.
func (t *Table) Add(name string, oid sai.OID, oper OperStatus) error {
	if name == "" {
		return util.NewValidationError("port name is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if owner, ok := t.byOID[oid]; ok && owner != name && !oid.IsNull() {
		return util.NewStatusError(util.ErrAlreadyExists, "%s already belongs to port %s", oid, owner)
	}
	if old, ok := t.byName[name]; ok {
		delete(t.byOID, old.OID)
	}
	if oper == "" {
		oper = OperUnknown
	}
	t.byName[name] = &Port{Name: name, OID: oid, Oper: oper}
	if !oid.IsNull() {
		t.byOID[oid] = name
	}
	return nil
}

// Exists reports whether name is a known port.
func (t *Table) Exists(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byName[name]
	return ok
}

// NameByOID resolves a port OID to its name.
func (t *Table) NameByOID(oid sai.OID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.byOID[oid]
	return name, ok
}

// OperStatus returns the last known state of name.
func (t *Table) OperStatus(name string) (OperStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byName[name]
	if !ok {
		return OperUnknown, false
	}
	return p.Oper, true
}

// IsOperUp reports whether name is known and operationally up.
func (t *Table) IsOperUp(name string) bool {
	st, ok := t.OperStatus(name)
	return ok && st == OperUp
}

// SetOperStatus records a new state and reports whether it differs from the
// previous one.
func (t *Table) SetOperStatus(name string, st OperStatus) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byName[name]
	if !ok {
		return false, util.NewStatusError(util.ErrNotFound, "port %s does not exist", name)
	}
	if p.Oper == st {
		return false, nil
	}
	p.Oper = st
	return true, nil
}

// Ports returns a snapshot of the table sorted by name.
func (t *Table) Ports() []Port {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Port, 0, len(t.byName))
	for _, p := range t.byName {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NotificationPortStateChange is the notification op carrying port state
// changes.
const NotificationPortStateChange = "port_state_change"

// StatusChange is one entry of a port_state_change notification.
type StatusChange struct {
	PortID sai.OID
	State  OperStatus
}

// ParseStatusChange decodes the data of a port_state_change notification:
// [{"port_id":"oid:0x...","port_state":"SAI_PORT_OPER_STATUS_DOWN"}, ...]
func ParseStatusChange(data string) ([]StatusChange, error) {
	var raw []struct {
		PortID    string `json:"port_id"`
		PortState string `json:"port_state"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, util.NewStatusError(util.ErrInvalidParam, "decoding port state notification: %v", err)
	}
	changes := make([]StatusChange, 0, len(raw))
	for i, r := range raw {
		oid, err := sai.ParseOID(r.PortID)
		if err != nil {
			return nil, util.NewStatusError(util.ErrInvalidParam, "entry %d: %v", i, err)
		}
		changes = append(changes, StatusChange{PortID: oid, State: ParseOperStatus(r.PortState)})
	}
	return changes, nil
}

// FormatStatusChange encodes changes as the data of a port_state_change
// notification.
func FormatStatusChange(changes []StatusChange) string {
	type entry struct {
		PortID    string `json:"port_id"`
		PortState string `json:"port_state"`
	}
	out := make([]entry, 0, len(changes))
	for _, c := range changes {
		out = append(out, entry{
			PortID:    c.PortID.String(),
			PortState: "SAI_PORT_OPER_STATUS_" + strings.ToUpper(string(c.State)),
		})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// String renders a change for logs.
func (c StatusChange) String() string {
	return fmt.Sprintf("%s=%s", c.PortID, c.State)
}
