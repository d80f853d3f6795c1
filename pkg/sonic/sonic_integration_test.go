//go:build integration

package sonic

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/wcmpd/internal/testutil"
	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/port"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/wcmp"
)

func setup(t *testing.T) {
	t.Helper()
	testutil.SkipIfNoRedis(t)
	for _, db := range []int{ApplDBID, AsicDBID, CountersDBID, StateDBID, ApplStateDBID} {
		testutil.FlushDB(t, db)
	}
}

func TestAsicDBLifecycle(t *testing.T) {
	setup(t)
	ctx := testutil.Context(t)
	a := NewAsicDB(testutil.RedisClient(t, AsicDBID))
	if err := a.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	g, err := a.CreateGroup(ctx)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	m, err := a.CreateMember(ctx, g, 0x4000000000010, 3)
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	fields := testutil.ReadHash(t, AsicDBID, objectKey(objectTypeMember, m))
	want := map[string]string{
		attrMemberGroup:   g.String(),
		attrMemberNextHop: "oid:0x4000000000010",
		attrMemberWeight:  "3",
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("member hash mismatch (-want +got):\n%s", diff)
	}

	groups, err := a.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 1 || groups[0].Type != sai.GroupType || len(groups[0].Members) != 1 {
		t.Errorf("ListGroups = %+v", groups)
	}

	if err := a.RemoveGroup(ctx, g); err != sai.StatusObjectInUse {
		t.Errorf("RemoveGroup with members = %v, want OBJECT_IN_USE", err)
	}
	if err := a.RemoveMember(ctx, m); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if err := a.RemoveGroup(ctx, g); err != nil {
		t.Fatalf("RemoveGroup: %v", err)
	}
	if n := testutil.KeyCount(t, AsicDBID, asicState+":*"); n != 0 {
		t.Errorf("%d objects left in ASIC_DB", n)
	}
}

func TestAsicDBLoadIndexesExisting(t *testing.T) {
	setup(t)
	ctx := testutil.Context(t)
	first := NewAsicDB(testutil.RedisClient(t, AsicDBID))
	g, _ := first.CreateGroup(ctx)
	m, _ := first.CreateMember(ctx, g, 0x4000000000010, 1)

	second := NewAsicDB(testutil.RedisClient(t, AsicDBID))
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := second.Member(m); !ok {
		t.Error("existing member not indexed")
	}
	if err := second.RemoveGroup(ctx, g); err != sai.StatusObjectInUse {
		t.Errorf("RemoveGroup = %v, want OBJECT_IN_USE", err)
	}
}

func TestConsumerTable(t *testing.T) {
	setup(t)
	ctx := testutil.Context(t)
	appl := testutil.RedisClient(t, ApplDBID)
	producer := NewProducerTable(appl, "P4RT_TABLE")
	consumer := NewConsumerTable(appl, "P4RT_TABLE")

	ps, err := consumer.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer ps.Close()

	key := wcmp.GroupKey("group-1")
	fields := []FieldValue{{Field: wcmp.FieldActions, Value: "[]"}}
	if err := producer.Set(ctx, key, fields); err != nil {
		t.Fatalf("Set: %v", err)
	}
	select {
	case <-ps.Channel():
	case <-time.After(5 * time.Second):
		t.Fatal("no wakeup published")
	}

	got, err := consumer.Pops(ctx)
	if err != nil {
		t.Fatalf("Pops: %v", err)
	}
	if diff := cmp.Diff([]KeyOpFields{{Key: key, Op: OpSet, Fields: fields}}, got); diff != "" {
		t.Errorf("popped mismatch (-want +got):\n%s", diff)
	}
	if h := testutil.ReadHash(t, ApplDBID, "P4RT_TABLE:"+key); h[wcmp.FieldActions] != "[]" {
		t.Errorf("table entry = %v", h)
	}

	if err := producer.Del(ctx, key); err != nil {
		t.Fatalf("Del: %v", err)
	}
	got, err = consumer.Pops(ctx)
	if err != nil {
		t.Fatalf("Pops: %v", err)
	}
	if diff := cmp.Diff([]KeyOpFields{{Key: key, Op: OpDel}}, got); diff != "" {
		t.Errorf("popped mismatch (-want +got):\n%s", diff)
	}
	if got, _ := consumer.Pops(ctx); len(got) != 0 {
		t.Errorf("empty table popped %+v", got)
	}
}

func TestResponsePublisher(t *testing.T) {
	setup(t)
	ctx := testutil.Context(t)
	appl := testutil.RedisClient(t, ApplDBID)
	pub := NewResponsePublisher(appl, testutil.RedisClient(t, ApplStateDBID), "P4RT_TABLE")

	ps := appl.Subscribe(ctx, pub.Channel())
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	key := wcmp.GroupKey("group-1")
	r := Response{Key: key, Op: OpSet, Code: successCode, Fields: []FieldValue{{Field: "actions", Value: "[]"}}}
	if err := pub.Publish(ctx, r); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-ps.Channel():
		want, _ := encodeResponse(r)
		if m.Payload != want {
			t.Errorf("payload = %s, want %s", m.Payload, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no response published")
	}
	if h := testutil.ReadHash(t, ApplStateDBID, "P4RT_TABLE:"+key); h["actions"] != "[]" {
		t.Errorf("applied state = %v", h)
	}

	// A failed request leaves the applied state alone.
	if err := pub.Publish(ctx, Response{Key: key, Op: OpDel, Code: "SWSS_RC_IN_USE"}); err != nil {
		t.Fatal(err)
	}
	if h := testutil.ReadHash(t, ApplStateDBID, "P4RT_TABLE:"+key); len(h) == 0 {
		t.Error("failed delete removed the applied state")
	}
}

func TestLoadPorts(t *testing.T) {
	setup(t)
	ctx := testutil.Context(t)
	testutil.WriteHash(t, CountersDBID, portNameMap, map[string]string{
		"Ethernet0": "oid:0x1000000000002",
		"Ethernet4": "oid:0x1000000000003",
		"Ethernet8": "oid:0x1000000000004",
	})
	testutil.WriteHash(t, StateDBID, "PORT_TABLE|Ethernet0", map[string]string{"oper_status": "up"})
	testutil.WriteHash(t, StateDBID, "PORT_TABLE|Ethernet4", map[string]string{"netdev_oper_status": "down"})

	tbl := port.NewTable()
	if err := LoadPorts(ctx, testutil.RedisClient(t, CountersDBID), testutil.RedisClient(t, StateDBID), tbl); err != nil {
		t.Fatalf("LoadPorts: %v", err)
	}
	want := []port.Port{
		{Name: "Ethernet0", OID: 0x1000000000002, Oper: port.OperUp},
		{Name: "Ethernet4", OID: 0x1000000000003, Oper: port.OperDown},
		{Name: "Ethernet8", OID: 0x1000000000004, Oper: port.OperUnknown},
	}
	if diff := cmp.Diff(want, tbl.Ports()); diff != "" {
		t.Errorf("ports mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifications(t *testing.T) {
	setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	asic := testutil.RedisClient(t, AsicDBID)

	sub, err := SubscribeNotifications(ctx, asic)
	if err != nil {
		t.Fatalf("SubscribeNotifications: %v", err)
	}
	defer sub.Close()
	stream := sub.Stream(ctx)

	asic.Publish(ctx, NotificationChannel, "garbage")
	note := Notification{Op: port.NotificationPortStateChange, Data: `[{"port_id":"oid:0x1","port_state":"SAI_PORT_OPER_STATUS_UP"}]`}
	if err := PublishNotification(ctx, asic, note); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-stream:
		if got != note {
			t.Errorf("received %+v, want %+v", got, note)
		}
	case <-ctx.Done():
		t.Fatal("no notification received")
	}
}

func TestManagerOverAsicDB(t *testing.T) {
	setup(t)
	ctx := testutil.Context(t)
	a := NewAsicDB(testutil.RedisClient(t, AsicDBID))
	oids := oidmap.New()
	for id, oid := range map[string]sai.OID{"nh-1": 0x4000000000001, "nh-2": 0x4000000000002} {
		if err := oids.SetOID(oidmap.ObjectTypeNextHop, oidmap.NextHopKey(id), oid); err != nil {
			t.Fatal(err)
		}
	}
	mgr := wcmp.NewManager(a, oids, port.NewTable())

	err := mgr.CreateGroup(ctx, &wcmp.GroupEntry{GroupID: "g", Members: []wcmp.MemberSpec{
		{NextHopID: "nh-1", Weight: 2}, {NextHopID: "nh-2", Weight: 1},
	}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := mgr.VerifyState(); err != nil {
		t.Errorf("VerifyState: %v", err)
	}
	if n := testutil.KeyCount(t, AsicDBID, asicState+":"+objectTypeMember+":*"); n != 2 {
		t.Errorf("%d members in ASIC_DB, want 2", n)
	}
	if err := mgr.RemoveGroup(ctx, "g"); err != nil {
		t.Fatalf("RemoveGroup: %v", err)
	}
	if n := testutil.KeyCount(t, AsicDBID, asicState+":*"); n != 0 {
		t.Errorf("%d objects left in ASIC_DB", n)
	}
}
