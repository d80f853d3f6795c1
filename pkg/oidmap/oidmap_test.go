package oidmap

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

func TestSetAndGetOID(t *testing.T) {
	m := New()
	key := NextHopKey("nh-1")

	if m.Exists(ObjectTypeNextHop, key) {
		t.Fatal("empty registry should not contain key")
	}
	if err := m.SetOID(ObjectTypeNextHop, key, 7); err != nil {
		t.Fatalf("SetOID: %v", err)
	}
	if !m.Exists(ObjectTypeNextHop, key) {
		t.Error("key should exist after SetOID")
	}
	if m.Exists(ObjectTypeNextHopGroup, key) {
		t.Error("object types must not share keys")
	}

	oid, err := m.GetOID(ObjectTypeNextHop, key)
	if err != nil {
		t.Fatalf("GetOID: %v", err)
	}
	if oid != sai.OID(7) {
		t.Errorf("GetOID = %v, want oid:0x7", oid)
	}

	if err := m.SetOID(ObjectTypeNextHop, key, 8); !errors.Is(err, util.ErrAlreadyExists) {
		t.Errorf("duplicate SetOID error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetOIDNotFound(t *testing.T) {
	m := New()
	if _, err := m.GetOID(ObjectTypeNextHopGroup, GroupKey("missing")); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("GetOID error = %v, want ErrNotFound", err)
	}
	if _, err := m.GetRefCount(ObjectTypeNextHopGroup, GroupKey("missing")); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("GetRefCount error = %v, want ErrNotFound", err)
	}
	if err := m.IncreaseRefCount(ObjectTypeNextHopGroup, GroupKey("missing")); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("IncreaseRefCount error = %v, want ErrNotFound", err)
	}
	if err := m.DecreaseRefCount(ObjectTypeNextHopGroup, GroupKey("missing")); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("DecreaseRefCount error = %v, want ErrNotFound", err)
	}
	if err := m.EraseOID(ObjectTypeNextHopGroup, GroupKey("missing")); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("EraseOID error = %v, want ErrNotFound", err)
	}
}

func TestRefCounting(t *testing.T) {
	m := New()
	key := GroupKey("group-1")
	if err := m.SetOID(ObjectTypeNextHopGroup, key, 10); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := m.IncreaseRefCount(ObjectTypeNextHopGroup, key); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := m.GetRefCount(ObjectTypeNextHopGroup, key); n != 3 {
		t.Errorf("refcount = %d, want 3", n)
	}

	if err := m.EraseOID(ObjectTypeNextHopGroup, key); !errors.Is(err, util.ErrInUse) {
		t.Errorf("EraseOID of referenced object error = %v, want ErrInUse", err)
	}

	for i := 0; i < 3; i++ {
		if err := m.DecreaseRefCount(ObjectTypeNextHopGroup, key); err != nil {
			t.Fatal(err)
		}
	}
	err := m.DecreaseRefCount(ObjectTypeNextHopGroup, key)
	if !errors.Is(err, util.ErrInternal) {
		t.Errorf("underflow error = %v, want ErrInternal", err)
	}
	if n, _ := m.GetRefCount(ObjectTypeNextHopGroup, key); n != 0 {
		t.Errorf("refcount after underflow = %d, want 0 (saturated)", n)
	}

	if err := m.EraseOID(ObjectTypeNextHopGroup, key); err != nil {
		t.Errorf("EraseOID: %v", err)
	}
	if m.Exists(ObjectTypeNextHopGroup, key) {
		t.Error("key should be gone after EraseOID")
	}
}

func TestKeysAndCount(t *testing.T) {
	m := New()
	for i, id := range []string{"b", "a", "c"} {
		if err := m.SetOID(ObjectTypeNextHop, NextHopKey(id), sai.OID(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if n := m.Count(ObjectTypeNextHop); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	if n := m.Count(ObjectTypeNextHopGroup); n != 0 {
		t.Errorf("Count(group) = %d, want 0", n)
	}

	keys := m.Keys(ObjectTypeNextHop)
	sort.Strings(keys)
	want := []string{NextHopKey("a"), NextHopKey("b"), NextHopKey("c")}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
}
