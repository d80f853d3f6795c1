package wcmp

import (
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

const groupKey1 = `{"match/wcmp_group_id":"group-1"}`

func actions(a ...string) []FieldValue {
	return []FieldValue{{Field: FieldActions, Value: "[" + strings.Join(a, ",") + "]"}}
}

func action(nh string, weight int) string {
	return `{"action":"set_nexthop_id","param/nexthop_id":"` + nh + `","weight":` + strconv.Itoa(weight) + `}`
}

func setEntry(fields []FieldValue) Entry {
	return Entry{Key: GroupKey(groupID1), Op: OpSet, Fields: fields}
}

func delEntry() Entry {
	return Entry{Key: GroupKey(groupID1), Op: OpDel}
}

func TestGroupKey(t *testing.T) {
	want := TableName + ":" + groupKey1
	if got := GroupKey(groupID1); got != want {
		t.Errorf("GroupKey = %s, want %s", got, want)
	}
}

func TestDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		fields  []FieldValue
		want    *GroupEntry
		wantErr bool
	}{
		{
			name:   "weights and watch port",
			key:    groupKey1,
			fields: actions(action(nhID1, 2), `{"action":"set_nexthop_id","param/nexthop_id":"`+nhID2+`","weight":1,"watch_port":"Ethernet6"}`),
			want: &GroupEntry{GroupID: groupID1, Members: []MemberSpec{
				{NextHopID: nhID1, Weight: 2},
				{NextHopID: nhID2, Weight: 1, WatchPort: portUp},
			}},
		},
		{
			name:   "weight defaults to one",
			key:    groupKey1,
			fields: actions(`{"action":"set_nexthop_id","param/nexthop_id":"` + nhID1 + `"}`),
			want:   &GroupEntry{GroupID: groupID1, Members: []MemberSpec{{NextHopID: nhID1, Weight: 1}}},
		},
		{
			name:   "duplicate next hops are kept",
			key:    groupKey1,
			fields: actions(action(nhID1, 1), action(nhID1, 1)),
			want: &GroupEntry{GroupID: groupID1, Members: []MemberSpec{
				{NextHopID: nhID1, Weight: 1},
				{NextHopID: nhID1, Weight: 1},
			}},
		},
		{
			name: "controller metadata is ignored",
			key:  groupKey1,
			fields: append(actions(action(nhID1, 3)),
				FieldValue{Field: FieldControllerMetadata, Value: "so_much_metadata"}),
			want: &GroupEntry{GroupID: groupID1, Members: []MemberSpec{{NextHopID: nhID1, Weight: 3}}},
		},
		{
			name: "no actions",
			key:  groupKey1,
			want: &GroupEntry{GroupID: groupID1},
		},
		{name: "key is not json", key: "group-1", wantErr: true},
		{name: "unexpected match field", key: `{"match/wcmp_group_id":"group-1","match/vrf":"b4"}`, wantErr: true},
		{name: "missing group id", key: `{}`, wantErr: true},
		{name: "unexpected field", key: groupKey1, fields: []FieldValue{{Field: "undefined", Value: "1"}}, wantErr: true},
		{name: "actions not an array", key: groupKey1, fields: []FieldValue{{Field: FieldActions, Value: "{}"}}, wantErr: true},
		{name: "unknown action attribute", key: groupKey1, fields: actions(`{"action":"set_nexthop_id","param/nexthop_id":"x","color":"red"}`), wantErr: true},
		{name: "wrong action", key: groupKey1, fields: actions(`{"action":"drop","param/nexthop_id":"x"}`), wantErr: true},
		{name: "missing next hop", key: groupKey1, fields: actions(`{"action":"set_nexthop_id","weight":1}`), wantErr: true},
		{name: "weight beyond 32 bits", key: groupKey1, fields: actions(`{"action":"set_nexthop_id","param/nexthop_id":"x","weight":4294967298}`), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Deserialize(tt.key, tt.fields)
			if tt.wantErr {
				if util.CodeOf(err) != util.StatusInvalidParam {
					t.Errorf("error = %v, want InvalidParam", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("entry mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProcessRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		e    Entry
		code util.StatusCode
	}{
		{"invalid op", Entry{Key: GroupKey(groupID1), Op: "UPDATE"}, util.StatusInvalidParam},
		{"other table", Entry{Key: "FIXED_ROUTER_INTERFACE_TABLE:" + groupKey1, Op: OpSet}, util.StatusInvalidParam},
		{"no table prefix", Entry{Key: groupKey1, Op: OpSet}, util.StatusInvalidParam},
		{"undefined attribute", setEntry([]FieldValue{{Field: "undefined", Value: "x"}}), util.StatusInvalidParam},
		{"zero weight", setEntry(actions(action(nhID1, 0))), util.StatusInvalidParam},
		{"weight beyond 32 bits", setEntry(actions(action(nhID1, 4294967298))), util.StatusInvalidParam},
		{"unknown next hop", setEntry(actions(action("nexthop-9", 1))), util.StatusNotFound},
		{"delete missing group", delEntry(), util.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp := f.mgr.Process(f.ctx, tt.e)
			if resp.Code != tt.code {
				t.Errorf("code = %s (%s), want %s", resp.Code, resp.Message, tt.code)
			}
			if resp.Key != tt.e.Key || resp.Op != tt.e.Op {
				t.Errorf("response echoes %s %s, want %s %s", resp.Op, resp.Key, tt.e.Op, tt.e.Key)
			}
			if calls := f.api.Calls(); len(calls) != 0 {
				t.Errorf("device calls = %+v, want none", calls)
			}
		})
	}
}

func TestDrainCreateThenDelete(t *testing.T) {
	f := newFixture(t)
	f.mgr.Enqueue(setEntry(actions(action(nhID1, 2), action(nhID2, 1))), delEntry())
	if n := f.mgr.Pending(); n != 2 {
		t.Fatalf("Pending = %d, want 2", n)
	}

	responses := f.mgr.Drain(f.ctx)
	if len(responses) != 2 {
		t.Fatalf("%d responses, want 2", len(responses))
	}
	for i, r := range responses {
		if !r.OK() {
			t.Errorf("response %d: %s %s", i, r.Code, r.Message)
		}
	}
	if n := f.mgr.Pending(); n != 0 {
		t.Errorf("Pending after drain = %d", n)
	}
	f.wantCalls([]sai.Call{
		{Op: sai.OpCreateGroup, OID: groupOID1},
		createMember(groupOID1, nhOID1, 2, memberOID1),
		createMember(groupOID1, nhOID2, 1, memberOID2),
		removeMember(groupOID1, nhOID1, 2, memberOID1),
		removeMember(groupOID1, nhOID2, 1, memberOID2),
		{Op: sai.OpRemoveGroup, OID: groupOID1},
	})
	f.wantGroupGone(groupID1)
	f.wantRefs(map[string]uint32{nhID1: 0, nhID2: 0})
	f.verify()
}

func TestDrainSetOnExistingGroupUpdates(t *testing.T) {
	f := newFixture(t)
	first := setEntry(actions(action(nhID1, 2), action(nhID2, 1)))
	f.mgr.Enqueue(first)
	f.mgr.Drain(f.ctx)
	f.api.ResetCalls()

	// Identical request: nothing is touched.
	f.mgr.Enqueue(first)
	if r := f.mgr.Drain(f.ctx); len(r) != 1 || !r[0].OK() {
		t.Fatalf("responses = %+v", r)
	}
	if calls := f.api.Calls(); len(calls) != 0 {
		t.Errorf("identical SET issued %+v", calls)
	}

	f.mgr.Enqueue(setEntry(actions(action(nhID1, 2), action(nhID3, 5))))
	if r := f.mgr.Drain(f.ctx); len(r) != 1 || !r[0].OK() {
		t.Fatalf("responses = %+v", r)
	}
	f.wantCalls([]sai.Call{
		removeMember(groupOID1, nhOID2, 1, memberOID2),
		createMember(groupOID1, nhOID3, 5, 0x1004),
	})
	f.wantMembers(groupID1, []MemberSpec{{NextHopID: nhID1, Weight: 2}, {NextHopID: nhID3, Weight: 5}})
	f.verify()
}

func TestDrainContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.api.FailNth(sai.OpCreateGroup, 1, sai.StatusTableFull)
	f.mgr.Enqueue(
		setEntry(actions(action(nhID1, 1))),
		Entry{Key: GroupKey("group-2"), Op: OpSet, Fields: actions(action(nhID2, 1))},
	)

	responses := f.mgr.Drain(f.ctx)
	if len(responses) != 2 {
		t.Fatalf("%d responses, want 2", len(responses))
	}
	if responses[0].Code != util.StatusFull {
		t.Errorf("first response = %s, want %s", responses[0].Code, util.StatusFull)
	}
	if !responses[1].OK() {
		t.Errorf("second response = %s %s", responses[1].Code, responses[1].Message)
	}
	f.wantGroupGone(groupID1)
	if _, ok := f.mgr.Group("group-2"); !ok {
		t.Error("group-2 was not created")
	}
	f.verify()
}

func TestGroupIDOf(t *testing.T) {
	id, err := GroupIDOf(GroupKey("group-7"))
	if err != nil || id != "group-7" {
		t.Errorf("GroupIDOf = %q, %v", id, err)
	}
	if _, err := GroupIDOf("OTHER_TABLE:" + groupKey1); util.CodeOf(err) != util.StatusInvalidParam {
		t.Errorf("GroupIDOf on other table = %v, want InvalidParam", err)
	}
}

func TestSetEntryDecodes(t *testing.T) {
	want := &GroupEntry{GroupID: groupID1, Members: []MemberSpec{
		{NextHopID: nhID1, Weight: 2},
		{NextHopID: nhID2, Weight: 1, WatchPort: portUp},
	}}
	e := want.SetEntry()
	if e.Op != OpSet || e.Key != GroupKey(groupID1) {
		t.Fatalf("entry = %s %s", e.Op, e.Key)
	}
	match, err := matchKey(e.Key)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Deserialize(match, e.Fields)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}
