// Package scenario replays a scripted sequence of group requests and port
// events against an in-memory device. Requests go through the same intake
// path as table entries read from APPL_DB.
package scenario

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/port"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
	"github.com/newtron-network/wcmpd/pkg/wcmp"
)

// Scenario is a replay script.
type Scenario struct {
	Name     string             `yaml:"name,omitempty"`
	Ports    []PortDef          `yaml:"ports,omitempty"`
	NextHops map[string]sai.OID `yaml:"next_hops"`
	Capacity Capacity           `yaml:"capacity,omitempty"`
	Steps    []Step             `yaml:"steps"`
}

// PortDef declares a port and its initial state.
type PortDef struct {
	Name string  `yaml:"name"`
	OID  sai.OID `yaml:"oid"`
	Oper string  `yaml:"oper,omitempty"`
}

// Capacity bounds the simulated device tables.
type Capacity struct {
	MaxGroups  int `yaml:"max_groups,omitempty"`
	MaxMembers int `yaml:"max_members,omitempty"`
}

// Step is one scripted action. Exactly one of Set, Del and Port is set.
type Step struct {
	Set  *wcmp.GroupEntry `yaml:"set,omitempty"`
	Del  string           `yaml:"del,omitempty"`
	Port *PortEvent       `yaml:"port,omitempty"`

	// Fail scripts device failures, counted from the start of the step.
	Fail []Fault `yaml:"fail,omitempty"`
	// Expect is the response code the step must produce. Empty means
	// success for set and del steps; port steps are not checked.
	Expect util.StatusCode `yaml:"expect,omitempty"`
}

// PortEvent is an oper status change of a declared port.
type PortEvent struct {
	Name string `yaml:"name"`
	Oper string `yaml:"oper"`
}

// Fault makes the nth call of Op within the step fail with Status.
type Fault struct {
	Op     sai.Op `yaml:"op"`
	Nth    int    `yaml:"nth,omitempty"`
	Status string `yaml:"status"`
}

// Kinds of steps.
const (
	KindSet  = "set"
	KindDel  = "del"
	KindPort = "port"
)

func (s Step) kind() string {
	switch {
	case s.Set != nil:
		return KindSet
	case s.Del != "":
		return KindDel
	case s.Port != nil:
		return KindPort
	}
	return ""
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index     int
	Kind      string
	Target    string
	Code      util.StatusCode
	Message   string
	Calls     []sai.Call
	Criticals int
	// Mismatch explains why the step did not meet its expectation, or
	// why the model disagreed with the device afterwards.
	Mismatch string
}

// Passed reports whether the step met its expectation.
func (r StepResult) Passed() bool {
	return r.Mismatch == ""
}

// Result is the outcome of a replay.
type Result struct {
	Steps   []StepResult
	Groups  []wcmp.GroupInfo
	Pruned  []wcmp.MemberInfo
	Failed  int
	Devices DeviceStats
}

// DeviceStats counts the objects left on the simulated device.
type DeviceStats struct {
	Groups  int
	Members int
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scenario for consistency.
func (s *Scenario) Validate() error {
	v := &util.ValidationBuilder{}
	declared := make(map[string]bool, len(s.Ports))
	for i, p := range s.Ports {
		v.Add(p.Name != "", fmt.Sprintf("port %d has no name", i))
		v.Add(!p.OID.IsNull(), fmt.Sprintf("port %s has a null oid", p.Name))
		v.Add(!declared[p.Name], fmt.Sprintf("port %s declared twice", p.Name))
		declared[p.Name] = true
	}
	for id, oid := range s.NextHops {
		v.Add(!oid.IsNull(), fmt.Sprintf("next hop %s has a null oid", id))
	}
	for i, st := range s.Steps {
		n := 0
		for _, set := range []bool{st.Set != nil, st.Del != "", st.Port != nil} {
			if set {
				n++
			}
		}
		v.Add(n == 1, fmt.Sprintf("step %d must have exactly one of set, del, port", i))
		if st.Port != nil {
			v.Add(declared[st.Port.Name], fmt.Sprintf("step %d: port %s is not declared", i, st.Port.Name))
		}
		for _, f := range st.Fail {
			switch f.Op {
			case sai.OpCreateGroup, sai.OpRemoveGroup, sai.OpCreateMember, sai.OpRemoveMember:
			default:
				v.AddErrorf("step %d: unknown device call %s", i, f.Op)
			}
			_, ok := sai.ParseStatus(f.Status)
			v.Add(ok, fmt.Sprintf("step %d: unknown status %s", i, f.Status))
			v.Add(f.Nth >= 0, fmt.Sprintf("step %d: nth must not be negative", i))
		}
	}
	return v.Build()
}

// Runner replays a scenario.
type Runner struct {
	s     *Scenario
	api   *sai.MemoryAPI
	ports *port.Table
	mgr   *wcmp.Manager

	criticals []wcmp.CriticalEvent
}

// NewRunner builds a fresh device, registry and manager for s.
func NewRunner(s *Scenario) (*Runner, error) {
	r := &Runner{s: s, api: sai.NewMemoryAPI(), ports: port.NewTable()}
	r.api.MaxGroups = s.Capacity.MaxGroups
	r.api.MaxMembers = s.Capacity.MaxMembers

	for _, p := range s.Ports {
		if err := r.ports.Add(p.Name, p.OID, port.ParseOperStatus(p.Oper)); err != nil {
			return nil, err
		}
	}
	oids := oidmap.New()
	ids := make([]string, 0, len(s.NextHops))
	for id := range s.NextHops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := oids.SetOID(oidmap.ObjectTypeNextHop, oidmap.NextHopKey(id), s.NextHops[id]); err != nil {
			return nil, err
		}
	}
	r.mgr = wcmp.NewManager(r.api, oids, r.ports, wcmp.WithCriticalHandler(func(ev wcmp.CriticalEvent) {
		r.criticals = append(r.criticals, ev)
	}))
	return r, nil
}

// Manager returns the manager the runner drives.
func (r *Runner) Manager() *wcmp.Manager {
	return r.mgr
}

// Run executes every step in order. A step that misses its expectation
// does not stop the replay.
func (r *Runner) Run(ctx context.Context) *Result {
	res := &Result{}
	for i, st := range r.s.Steps {
		sr := r.runStep(ctx, i, st)
		if !sr.Passed() {
			res.Failed++
			util.WithOperation(sr.Kind).Warnf("step %d (%s): %s", i, sr.Target, sr.Mismatch)
		}
		res.Steps = append(res.Steps, sr)
	}
	res.Groups = r.mgr.Groups()
	res.Pruned = r.mgr.PrunedMembers()
	res.Devices = DeviceStats{Groups: r.api.GroupCount(), Members: r.api.MemberCount()}
	return res
}

func (r *Runner) runStep(ctx context.Context, i int, st Step) StepResult {
	sr := StepResult{Index: i, Kind: st.kind()}
	for _, f := range st.Fail {
		status, _ := sai.ParseStatus(f.Status)
		nth := f.Nth
		if nth == 0 {
			nth = 1
		}
		r.api.FailNth(f.Op, nth, status)
	}
	r.api.ResetCalls()
	before := len(r.criticals)

	switch sr.Kind {
	case KindSet:
		sr.Target = st.Set.GroupID
		r.apply(ctx, st.Set.SetEntry(), &sr)
	case KindDel:
		sr.Target = st.Del
		r.apply(ctx, wcmp.Entry{Key: wcmp.GroupKey(st.Del), Op: wcmp.OpDel}, &sr)
	case KindPort:
		sr.Target = st.Port.Name
		r.portEvent(ctx, st.Port, &sr)
	}

	sr.Calls = r.api.Calls()
	sr.Criticals = len(r.criticals) - before

	want := st.Expect
	if want == "" && sr.Kind != KindPort {
		want = util.StatusSuccess
	}
	if want != "" && sr.Code != want {
		sr.Mismatch = fmt.Sprintf("code %s (%s), want %s", sr.Code, sr.Message, want)
	}
	// Divergence after a critical event is expected; otherwise the model
	// must match the device after every step.
	if sr.Mismatch == "" && sr.Criticals == 0 {
		if err := r.mgr.VerifyState(); err != nil {
			sr.Mismatch = "state check: " + err.Error()
		}
	}
	return sr
}

func (r *Runner) apply(ctx context.Context, e wcmp.Entry, sr *StepResult) {
	r.mgr.Enqueue(e)
	responses := r.mgr.Drain(ctx)
	if len(responses) != 1 {
		sr.Code = util.StatusInternal
		sr.Message = fmt.Sprintf("%d responses for one entry", len(responses))
		return
	}
	sr.Code = responses[0].Code
	sr.Message = responses[0].Message
}

func (r *Runner) portEvent(ctx context.Context, ev *PortEvent, sr *StepResult) {
	var oid sai.OID
	for _, p := range r.ports.Ports() {
		if p.Name == ev.Name {
			oid = p.OID
		}
	}
	data := port.FormatStatusChange([]port.StatusChange{{PortID: oid, State: port.ParseOperStatus(ev.Oper)}})
	err := r.mgr.HandlePortNotification(ctx, port.NotificationPortStateChange, data)
	sr.Code = util.CodeOf(err)
	if err != nil {
		sr.Message = err.Error()
	}
}
