// Package sai defines the device-programming boundary for next-hop groups:
// object ids, status codes, and the create/remove primitives the orchestrator
// issues against the forwarding hardware.
package sai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/newtron-network/wcmpd/pkg/util"
)

// OID is an opaque device object handle. The zero value is the null OID and
// never refers to a live object.
type OID uint64

// NullOID is the null object id.
const NullOID OID = 0

// String formats the OID the way sairedis stores it ("oid:0x1a").
func (o OID) String() string {
	return fmt.Sprintf("oid:0x%x", uint64(o))
}

// IsNull reports whether o is the null OID.
func (o OID) IsNull() bool {
	return o == NullOID
}

// ParseOID parses "oid:0x1a", "0x1a" or a decimal string.
func ParseOID(s string) (OID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "oid:")
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return NullOID, fmt.Errorf("invalid oid %q: %w", s, err)
	}
	return OID(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (o OID) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OID) UnmarshalText(text []byte) error {
	v, err := ParseOID(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// GroupType is the SAI next-hop group type. Only ECMP (uniform multipath with
// per-member weights) is programmed.
const GroupType = "SAI_NEXT_HOP_GROUP_TYPE_ECMP"

// NextHopGroupAPI is the subset of the SAI next-hop-group API the
// orchestrator needs. Every call is synchronous; a non-nil error is either a
// Status or a transport failure.
type NextHopGroupAPI interface {
	CreateGroup(ctx context.Context) (OID, error)
	RemoveGroup(ctx context.Context, group OID) error
	CreateMember(ctx context.Context, group, nextHop OID, weight uint32) (OID, error)
	RemoveMember(ctx context.Context, member OID) error
}

// Status is a SAI status code returned by a failed device call.
type Status int32

const (
	StatusSuccess               Status = 0
	StatusFailure               Status = -1
	StatusNotSupported          Status = -2
	StatusNoMemory              Status = -3
	StatusInsufficientResources Status = -4
	StatusInvalidParameter      Status = -5
	StatusItemAlreadyExists     Status = -6
	StatusItemNotFound          Status = -7
	StatusTableFull             Status = -10
	StatusNotImplemented        Status = -15
	StatusObjectInUse           Status = -17
)

var statusNames = map[Status]string{
	StatusSuccess:               "SAI_STATUS_SUCCESS",
	StatusFailure:               "SAI_STATUS_FAILURE",
	StatusNotSupported:          "SAI_STATUS_NOT_SUPPORTED",
	StatusNoMemory:              "SAI_STATUS_NO_MEMORY",
	StatusInsufficientResources: "SAI_STATUS_INSUFFICIENT_RESOURCES",
	StatusInvalidParameter:      "SAI_STATUS_INVALID_PARAMETER",
	StatusItemAlreadyExists:     "SAI_STATUS_ITEM_ALREADY_EXISTS",
	StatusItemNotFound:          "SAI_STATUS_ITEM_NOT_FOUND",
	StatusTableFull:             "SAI_STATUS_TABLE_FULL",
	StatusNotImplemented:        "SAI_STATUS_NOT_IMPLEMENTED",
	StatusObjectInUse:           "SAI_STATUS_OBJECT_IN_USE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SAI_STATUS_%d", int32(s))
}

func (s Status) Error() string {
	return s.String()
}

// ParseStatus converts a SAI status name back to a Status.
func ParseStatus(name string) (Status, bool) {
	for s, n := range statusNames {
		if n == name {
			return s, true
		}
	}
	return StatusFailure, false
}

// Code maps a device error to the orchestrator's sentinel errors.
func Code(err error) error {
	if err == nil {
		return nil
	}
	var st Status
	if !errors.As(err, &st) {
		return util.ErrUnknown
	}
	switch st {
	case StatusTableFull, StatusInsufficientResources, StatusNoMemory:
		return util.ErrResourceExhausted
	case StatusItemNotFound:
		return util.ErrNotFound
	case StatusObjectInUse:
		return util.ErrInUse
	case StatusItemAlreadyExists:
		return util.ErrAlreadyExists
	case StatusInvalidParameter:
		return util.ErrInvalidParam
	case StatusNotSupported, StatusNotImplemented:
		return util.ErrUnimplemented
	default:
		return util.ErrUnknown
	}
}

// Wrap converts a device error into a StatusError whose code follows Code
// and whose message describes the failed call.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return &util.StatusError{Code: Code(err), Message: fmt.Sprintf("%s: %v", msg, err)}
}
