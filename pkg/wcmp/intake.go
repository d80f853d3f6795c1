package wcmp

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/newtron-network/wcmpd/pkg/util"
)

// TableName is the APPL_DB table carrying group requests.
const TableName = "FIXED_WCMP_GROUP_TABLE"

// Table operations.
const (
	OpSet = "SET"
	OpDel = "DEL"
)

// Field and JSON names of the request format.
const (
	FieldActions            = "actions"
	FieldControllerMetadata = "controller_metadata"

	matchGroupID   = "match/wcmp_group_id"
	actionSetNHID  = "set_nexthop_id"
	tableDelimiter = ":"
)

// FieldValue is one attribute of a table entry.
type FieldValue struct {
	Field string `json:"field" yaml:"field"`
	Value string `json:"value" yaml:"value"`
}

// Entry is one queued table event. Key is "FIXED_WCMP_GROUP_TABLE:" followed
// by the JSON match key.
type Entry struct {
	Key    string       `json:"key" yaml:"key"`
	Op     string       `json:"op" yaml:"op"`
	Fields []FieldValue `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Response is the outcome of one entry.
type Response struct {
	Key     string
	Op      string
	Fields  []FieldValue
	Code    util.StatusCode
	Message string
}

// OK reports whether the entry was applied.
func (r Response) OK() bool {
	return r.Code.OK()
}

// GroupKey builds the table key of a group.
func GroupKey(groupID string) string {
	b, _ := json.Marshal(map[string]string{matchGroupID: groupID})
	return TableName + tableDelimiter + string(b)
}

type actionJSON struct {
	Action    string  `json:"action"`
	NextHopID *string `json:"param/nexthop_id"`
	Weight    *int    `json:"weight"`
	WatchPort string  `json:"watch_port"`
}

type actionOut struct {
	Action    string `json:"action"`
	NextHopID string `json:"param/nexthop_id"`
	Weight    int    `json:"weight"`
	WatchPort string `json:"watch_port,omitempty"`
}

// SetEntry encodes e as the SET entry a controller would write.
func (e *GroupEntry) SetEntry() Entry {
	actions := make([]actionOut, 0, len(e.Members))
	for _, m := range e.Members {
		actions = append(actions, actionOut{
			Action:    actionSetNHID,
			NextHopID: m.NextHopID,
			Weight:    m.Weight,
			WatchPort: m.WatchPort,
		})
	}
	b, _ := json.Marshal(actions)
	return Entry{
		Key:    GroupKey(e.GroupID),
		Op:     OpSet,
		Fields: []FieldValue{{Field: FieldActions, Value: string(b)}},
	}
}

// Deserialize decodes the JSON match key (without the table prefix) and the
// attributes of a SET entry. Members naming the same next hop are kept.
func Deserialize(key string, fields []FieldValue) (*GroupEntry, error) {
	var match map[string]string
	if err := json.Unmarshal([]byte(key), &match); err != nil {
		return nil, util.NewValidationError("failed to deserialize wcmp group key: " + err.Error())
	}
	e := &GroupEntry{}
	for k, v := range match {
		if k != matchGroupID {
			return nil, util.NewValidationError("unexpected match field " + k)
		}
		e.GroupID = v
	}
	if e.GroupID == "" {
		return nil, util.NewValidationError("wcmp group key has no " + matchGroupID)
	}

	for _, fv := range fields {
		switch fv.Field {
		case FieldActions:
			members, err := decodeActions(fv.Value)
			if err != nil {
				return nil, err
			}
			e.Members = members
		case FieldControllerMetadata:
		default:
			return nil, util.NewValidationError("unexpected field " + fv.Field + " in " + TableName)
		}
	}
	return e, nil
}

func decodeActions(value string) ([]MemberSpec, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, util.NewValidationError("failed to deserialize actions: " + err.Error())
	}
	members := make([]MemberSpec, 0, len(raw))
	for i, r := range raw {
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.DisallowUnknownFields()
		var a actionJSON
		if err := dec.Decode(&a); err != nil {
			return nil, util.NewValidationError(
				"failed to deserialize action " + strconv.Itoa(i) + ": " + err.Error())
		}
		if a.Action != actionSetNHID {
			return nil, util.NewValidationError("unexpected action " + a.Action + " in " + TableName)
		}
		if a.NextHopID == nil || *a.NextHopID == "" {
			return nil, util.NewValidationError("action " + strconv.Itoa(i) + " has no next hop id")
		}
		s := MemberSpec{NextHopID: *a.NextHopID, Weight: 1, WatchPort: a.WatchPort}
		if a.Weight != nil {
			if int64(*a.Weight) > math.MaxUint32 {
				return nil, util.NewValidationError(
					"action " + strconv.Itoa(i) + " weight " + strconv.Itoa(*a.Weight) + " is out of range")
			}
			s.Weight = *a.Weight
		}
		members = append(members, s)
	}
	return members, nil
}

// Enqueue adds table events to the pending queue.
func (mgr *Manager) Enqueue(entries ...Entry) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.queue = append(mgr.queue, entries...)
}

// Pending returns the number of queued events.
func (mgr *Manager) Pending() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.queue)
}

// Drain processes every queued event in order and returns one response per
// event. Each event runs to completion, including any rollback, before the
// next one starts.
func (mgr *Manager) Drain(ctx context.Context) []Response {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	queue := mgr.queue
	mgr.queue = nil
	responses := make([]Response, 0, len(queue))
	for _, e := range queue {
		responses = append(responses, mgr.process(ctx, e))
	}
	return responses
}

// Process applies a single table event.
func (mgr *Manager) Process(ctx context.Context, e Entry) Response {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.process(ctx, e)
}

func (mgr *Manager) process(ctx context.Context, e Entry) Response {
	resp := Response{Key: e.Key, Op: e.Op, Fields: e.Fields}
	err := mgr.apply(ctx, e)
	resp.Code = util.CodeOf(err)
	if err != nil {
		resp.Message = err.Error()
		util.WithOperation(e.Op).WithField("key", e.Key).Warnf("%s: %v", resp.Code, err)
	}
	return resp
}

// matchKey strips the table name from a table key.
func matchKey(key string) (string, error) {
	table, match, ok := strings.Cut(key, tableDelimiter)
	if !ok || table != TableName {
		return "", util.NewValidationError("key " + key + " does not belong to " + TableName)
	}
	return match, nil
}

// GroupIDOf returns the group id named by a table key.
func GroupIDOf(key string) (string, error) {
	match, err := matchKey(key)
	if err != nil {
		return "", err
	}
	e, err := Deserialize(match, nil)
	if err != nil {
		return "", err
	}
	return e.GroupID, nil
}

func (mgr *Manager) apply(ctx context.Context, e Entry) error {
	key, err := matchKey(e.Key)
	if err != nil {
		return err
	}
	switch e.Op {
	case OpSet:
		ge, err := Deserialize(key, e.Fields)
		if err != nil {
			return err
		}
		if _, exists := mgr.groups[ge.GroupID]; exists {
			return mgr.updateGroup(ctx, ge)
		}
		return mgr.createGroup(ctx, ge)
	case OpDel:
		ge, err := Deserialize(key, nil)
		if err != nil {
			return err
		}
		return mgr.removeGroup(ctx, ge.GroupID)
	default:
		return util.NewValidationError("unknown operation " + e.Op)
	}
}
