package sai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/newtron-network/wcmpd/pkg/util"
)

func TestOIDText(t *testing.T) {
	tests := []struct {
		in      string
		want    OID
		wantErr bool
	}{
		{in: "oid:0x1a", want: 0x1a},
		{in: "0x56789abcdff", want: 0x56789abcdff},
		{in: " 42 ", want: 42},
		{in: "oid:0x0", want: NullOID},
		{in: "oid:zz", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseOID(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOID(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseOID(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if s := OID(0x1001).String(); s != "oid:0x1001" {
		t.Errorf("String = %s", s)
	}
	var o OID
	if err := o.UnmarshalText([]byte("oid:0x2002")); err != nil || o != 0x2002 {
		t.Errorf("UnmarshalText = %v, %v", o, err)
	}
}

func TestStatus(t *testing.T) {
	if s := StatusTableFull.Error(); s != "SAI_STATUS_TABLE_FULL" {
		t.Errorf("Error = %s", s)
	}
	if s := Status(-99).String(); s != "SAI_STATUS_-99" {
		t.Errorf("String = %s", s)
	}
	st, ok := ParseStatus("SAI_STATUS_OBJECT_IN_USE")
	if !ok || st != StatusObjectInUse {
		t.Errorf("ParseStatus = %v, %v", st, ok)
	}
	if _, ok := ParseStatus("SAI_STATUS_BOGUS"); ok {
		t.Error("ParseStatus accepted an unknown name")
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want util.StatusCode
	}{
		{StatusTableFull, util.StatusFull},
		{StatusInsufficientResources, util.StatusFull},
		{StatusNoMemory, util.StatusFull},
		{StatusItemNotFound, util.StatusNotFound},
		{StatusObjectInUse, util.StatusInUse},
		{StatusItemAlreadyExists, util.StatusExists},
		{StatusInvalidParameter, util.StatusInvalidParam},
		{StatusNotImplemented, util.StatusUnimplemented},
		{StatusFailure, util.StatusUnknown},
		{fmt.Errorf("redis: %w", StatusTableFull), util.StatusFull},
		{errors.New("connection refused"), util.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := util.CodeOf(Code(tt.err)); got != tt.want {
				t.Errorf("Code(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
	if Code(nil) != nil {
		t.Error("Code(nil) should be nil")
	}
}

func TestWrap(t *testing.T) {
	err := Wrap(StatusTableFull, "failed to create next hop group '%s'", "g1")
	want := "failed to create next hop group 'g1': SAI_STATUS_TABLE_FULL"
	if err.Error() != want {
		t.Errorf("Wrap = %q, want %q", err, want)
	}
	if !errors.Is(err, util.ErrResourceExhausted) {
		t.Errorf("Wrap result does not unwrap to ErrResourceExhausted")
	}
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
