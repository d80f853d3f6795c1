package sonic

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// ASIC_DB key layout: ASIC_STATE:<object type>:oid:0x...
const (
	asicState        = "ASIC_STATE"
	objectTypeGroup  = "SAI_OBJECT_TYPE_NEXT_HOP_GROUP"
	objectTypeMember = "SAI_OBJECT_TYPE_NEXT_HOP_GROUP_MEMBER"

	attrGroupType     = "SAI_NEXT_HOP_GROUP_ATTR_TYPE"
	attrMemberGroup   = "SAI_NEXT_HOP_GROUP_MEMBER_ATTR_NEXT_HOP_GROUP_ID"
	attrMemberNextHop = "SAI_NEXT_HOP_GROUP_MEMBER_ATTR_NEXT_HOP_ID"
	attrMemberWeight  = "SAI_NEXT_HOP_GROUP_MEMBER_ATTR_WEIGHT"

	vidCounter = "VIDCOUNTER"
)

// sairedis keeps the SAI object type in bits 48..55 of a virtual id.
const (
	vidTypeShift              = 48
	saiTypeNextHopGroup       = 5
	saiTypeNextHopGroupMember = 45
)

func objectKey(objectType string, oid sai.OID) string {
	return asicState + colon + objectType + colon + oid.String()
}

func oidFromKey(objectType, key string) (sai.OID, error) {
	return sai.ParseOID(strings.TrimPrefix(key, asicState+colon+objectType+colon))
}

// parseMember decodes the attributes of a member object hash.
func parseMember(fields map[string]string) (sai.MemberAttrs, error) {
	var attrs sai.MemberAttrs
	var err error
	if attrs.Group, err = sai.ParseOID(fields[attrMemberGroup]); err != nil {
		return attrs, fmt.Errorf("%s: %w", attrMemberGroup, err)
	}
	if attrs.NextHop, err = sai.ParseOID(fields[attrMemberNextHop]); err != nil {
		return attrs, fmt.Errorf("%s: %w", attrMemberNextHop, err)
	}
	attrs.Weight = 1
	if w, ok := fields[attrMemberWeight]; ok {
		n, err := strconv.ParseUint(w, 10, 32)
		if err != nil {
			return attrs, fmt.Errorf("%s: %w", attrMemberWeight, err)
		}
		attrs.Weight = uint32(n)
	}
	return attrs, nil
}

func memberFields(attrs sai.MemberAttrs) map[string]string {
	return map[string]string{
		attrMemberGroup:   attrs.Group.String(),
		attrMemberNextHop: attrs.NextHop.String(),
		attrMemberWeight:  strconv.FormatUint(uint64(attrs.Weight), 10),
	}
}

// AsicDB programs next-hop groups by writing SAI objects to ASIC_DB, where
// syncd picks them up. It keeps an index of the objects it knows about so
// that referential checks and capacity limits do not need a scan per call.
type AsicDB struct {
	client *redis.Client

	// MaxGroups and MaxMembers bound the tables; zero means unbounded.
	MaxGroups  int
	MaxMembers int

	mu      sync.Mutex
	groups  map[sai.OID]map[sai.OID]struct{}
	members map[sai.OID]sai.MemberAttrs
}

// NewAsicDB wraps an ASIC_DB client. Call Load before the first write.
func NewAsicDB(client *redis.Client) *AsicDB {
	return &AsicDB{
		client:  client,
		groups:  make(map[sai.OID]map[sai.OID]struct{}),
		members: make(map[sai.OID]sai.MemberAttrs),
	}
}

// Load indexes the groups and members already present in ASIC_DB.
func (a *AsicDB) Load(ctx context.Context) error {
	groupKeys, err := scanKeys(ctx, a.client, asicState+colon+objectTypeGroup+colon+"*")
	if err != nil {
		return err
	}
	memberKeys, err := scanKeys(ctx, a.client, asicState+colon+objectTypeMember+colon+"*")
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, key := range groupKeys {
		oid, err := oidFromKey(objectTypeGroup, key)
		if err != nil {
			util.Warnf("asic_db: skipping %s: %v", key, err)
			continue
		}
		a.groups[oid] = make(map[sai.OID]struct{})
	}
	for _, key := range memberKeys {
		oid, err := oidFromKey(objectTypeMember, key)
		if err != nil {
			util.Warnf("asic_db: skipping %s: %v", key, err)
			continue
		}
		fields, err := a.client.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		attrs, err := parseMember(fields)
		if err != nil {
			util.Warnf("asic_db: skipping %s: %v", key, err)
			continue
		}
		a.members[oid] = attrs
		if set, ok := a.groups[attrs.Group]; ok {
			set[oid] = struct{}{}
		}
	}
	util.Debugf("asic_db: indexed %d groups, %d members", len(a.groups), len(a.members))
	return nil
}

func (a *AsicDB) allocate(ctx context.Context, objectType int64) (sai.OID, error) {
	n, err := a.client.Incr(ctx, vidCounter).Result()
	if err != nil {
		return sai.NullOID, fmt.Errorf("allocating object id: %w", err)
	}
	return sai.OID(objectType<<vidTypeShift | n), nil
}

// CreateGroup implements sai.NextHopGroupAPI.
func (a *AsicDB) CreateGroup(ctx context.Context) (sai.OID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.MaxGroups > 0 && len(a.groups) >= a.MaxGroups {
		return sai.NullOID, sai.StatusTableFull
	}
	oid, err := a.allocate(ctx, saiTypeNextHopGroup)
	if err != nil {
		return sai.NullOID, err
	}
	pipe := a.client.TxPipeline()
	pipe.HSet(ctx, objectKey(objectTypeGroup, oid), attrGroupType, sai.GroupType)
	if _, err := pipe.Exec(ctx); err != nil {
		return sai.NullOID, fmt.Errorf("writing %s: %w", objectKey(objectTypeGroup, oid), err)
	}
	a.groups[oid] = make(map[sai.OID]struct{})
	return oid, nil
}

// RemoveGroup implements sai.NextHopGroupAPI.
func (a *AsicDB) RemoveGroup(ctx context.Context, group sai.OID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	members, ok := a.groups[group]
	if !ok {
		return sai.StatusItemNotFound
	}
	if len(members) > 0 {
		return sai.StatusObjectInUse
	}
	if err := a.client.Del(ctx, objectKey(objectTypeGroup, group)).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", objectKey(objectTypeGroup, group), err)
	}
	delete(a.groups, group)
	return nil
}

// CreateMember implements sai.NextHopGroupAPI.
func (a *AsicDB) CreateMember(ctx context.Context, group, nextHop sai.OID, weight uint32) (sai.OID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.groups[group]
	if !ok {
		return sai.NullOID, sai.StatusItemNotFound
	}
	if a.MaxMembers > 0 && len(a.members) >= a.MaxMembers {
		return sai.NullOID, sai.StatusTableFull
	}
	oid, err := a.allocate(ctx, saiTypeNextHopGroupMember)
	if err != nil {
		return sai.NullOID, err
	}
	attrs := sai.MemberAttrs{Group: group, NextHop: nextHop, Weight: weight}
	pipe := a.client.TxPipeline()
	pipe.HSet(ctx, objectKey(objectTypeMember, oid), hsetArgs(memberFields(attrs))...)
	if _, err := pipe.Exec(ctx); err != nil {
		return sai.NullOID, fmt.Errorf("writing %s: %w", objectKey(objectTypeMember, oid), err)
	}
	set[oid] = struct{}{}
	a.members[oid] = attrs
	return oid, nil
}

// RemoveMember implements sai.NextHopGroupAPI.
func (a *AsicDB) RemoveMember(ctx context.Context, member sai.OID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	attrs, ok := a.members[member]
	if !ok {
		return sai.StatusItemNotFound
	}
	if err := a.client.Del(ctx, objectKey(objectTypeMember, member)).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", objectKey(objectTypeMember, member), err)
	}
	delete(a.groups[attrs.Group], member)
	delete(a.members, member)
	return nil
}

// Member returns the attributes the member was written with.
func (a *AsicDB) Member(member sai.OID) (sai.MemberAttrs, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	attrs, ok := a.members[member]
	return attrs, ok
}

// MemberObject is one member as stored in ASIC_DB.
type MemberObject struct {
	OID sai.OID `json:"oid"`
	sai.MemberAttrs
}

// GroupObject is one next-hop group as stored in ASIC_DB.
type GroupObject struct {
	OID     sai.OID        `json:"oid"`
	Type    string         `json:"type"`
	Members []MemberObject `json:"members"`
}

// ListGroups reads every next-hop group and its members straight from
// ASIC_DB, ordered by OID.
func (a *AsicDB) ListGroups(ctx context.Context) ([]GroupObject, error) {
	groupKeys, err := scanKeys(ctx, a.client, asicState+colon+objectTypeGroup+colon+"*")
	if err != nil {
		return nil, err
	}
	byOID := make(map[sai.OID]*GroupObject, len(groupKeys))
	for _, key := range groupKeys {
		oid, err := oidFromKey(objectTypeGroup, key)
		if err != nil {
			continue
		}
		typ, err := a.client.HGet(ctx, key, attrGroupType).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		byOID[oid] = &GroupObject{OID: oid, Type: typ}
	}

	memberKeys, err := scanKeys(ctx, a.client, asicState+colon+objectTypeMember+colon+"*")
	if err != nil {
		return nil, err
	}
	for _, key := range memberKeys {
		oid, err := oidFromKey(objectTypeMember, key)
		if err != nil {
			continue
		}
		fields, err := a.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		attrs, err := parseMember(fields)
		if err != nil {
			util.Warnf("asic_db: skipping %s: %v", key, err)
			continue
		}
		if g, ok := byOID[attrs.Group]; ok {
			g.Members = append(g.Members, MemberObject{OID: oid, MemberAttrs: attrs})
		}
	}

	out := make([]GroupObject, 0, len(byOID))
	for _, g := range byOID {
		sort.Slice(g.Members, func(i, j int) bool { return g.Members[i].OID < g.Members[j].OID })
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OID < out[j].OID })
	return out, nil
}
