// Package oidmap is the shared object registry: it maps (object type,
// logical key) to a device OID and a reference count. A non-zero reference
// count blocks removal of the object by its owner.
package oidmap

import (
	"fmt"
	"sync"

	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// ObjectType is the kind of a registered object.
type ObjectType string

const (
	ObjectTypeNextHop      ObjectType = "SAI_OBJECT_TYPE_NEXT_HOP"
	ObjectTypeNextHopGroup ObjectType = "SAI_OBJECT_TYPE_NEXT_HOP_GROUP"
)

// NextHopKey returns the registry key of a next hop.
func NextHopKey(nextHopID string) string {
	return "match/nexthop_id=" + nextHopID
}

// GroupKey returns the registry key of a next-hop group.
func GroupKey(groupID string) string {
	return "match/wcmp_group_id=" + groupID
}

type entry struct {
	oid      sai.OID
	refCount uint32
}

// Mapper is the registry. It is safe for concurrent use, but callers that
// run multi-step protocols must serialize those protocols themselves.
type Mapper struct {
	mu      sync.RWMutex
	objects map[ObjectType]map[string]*entry
}

// New creates an empty registry.
func New() *Mapper {
	return &Mapper{objects: make(map[ObjectType]map[string]*entry)}
}

func (m *Mapper) lookup(t ObjectType, key string) (*entry, bool) {
	e, ok := m.objects[t][key]
	return e, ok
}

func notFound(t ObjectType, key string) error {
	return util.NewStatusError(util.ErrNotFound, "%s %s is not registered", t, key)
}

// SetOID registers key with oid and a zero reference count.
func (m *Mapper) SetOID(t ObjectType, key string, oid sai.OID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(t, key); ok {
		return util.NewStatusError(util.ErrAlreadyExists, "%s %s is already registered", t, key)
	}
	if m.objects[t] == nil {
		m.objects[t] = make(map[string]*entry)
	}
	m.objects[t][key] = &entry{oid: oid}
	return nil
}

// GetOID returns the OID registered for key.
func (m *Mapper) GetOID(t ObjectType, key string) (sai.OID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.lookup(t, key)
	if !ok {
		return sai.NullOID, notFound(t, key)
	}
	return e.oid, nil
}

// Exists reports whether key is registered.
func (m *Mapper) Exists(t ObjectType, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.lookup(t, key)
	return ok
}

// EraseOID removes key. Erasing an object that is still referenced fails.
func (m *Mapper) EraseOID(t ObjectType, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(t, key)
	if !ok {
		return notFound(t, key)
	}
	if e.refCount > 0 {
		return util.NewInUseError(fmt.Sprintf("%s %s", t, key), e.refCount)
	}
	delete(m.objects[t], key)
	return nil
}

// GetRefCount returns the reference count of key.
func (m *Mapper) GetRefCount(t ObjectType, key string) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.lookup(t, key)
	if !ok {
		return 0, notFound(t, key)
	}
	return e.refCount, nil
}

// IncreaseRefCount adds one reference to key.
func (m *Mapper) IncreaseRefCount(t ObjectType, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(t, key)
	if !ok {
		return notFound(t, key)
	}
	e.refCount++
	return nil
}

// DecreaseRefCount drops one reference from key. The count saturates at
// zero; decrementing a zero count is a programming error and is reported as
// ErrInternal.
func (m *Mapper) DecreaseRefCount(t ObjectType, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(t, key)
	if !ok {
		return notFound(t, key)
	}
	if e.refCount == 0 {
		util.WithFields(map[string]interface{}{"type": t, "key": key}).
			Error("reference count underflow")
		return util.NewStatusError(util.ErrInternal, "reference count of %s %s is already zero", t, key)
	}
	e.refCount--
	return nil
}

// Count returns the number of registered objects of type t.
func (m *Mapper) Count(t ObjectType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[t])
}

// Keys returns the registered keys of type t in no particular order.
func (m *Mapper) Keys(t ObjectType) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects[t]))
	for k := range m.objects[t] {
		keys = append(keys, k)
	}
	return keys
}
