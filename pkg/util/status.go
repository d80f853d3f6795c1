package util

import "errors"

// StatusCode is the response code published back to the producer of a table
// entry. The string values match the codes used by the SONiC response path.
type StatusCode string

const (
	StatusSuccess       StatusCode = "SWSS_RC_SUCCESS"
	StatusInvalidParam  StatusCode = "SWSS_RC_INVALID_PARAM"
	StatusNotFound      StatusCode = "SWSS_RC_NOT_FOUND"
	StatusInUse         StatusCode = "SWSS_RC_IN_USE"
	StatusExists        StatusCode = "SWSS_RC_EXISTS"
	StatusFull          StatusCode = "SWSS_RC_FULL"
	StatusUnimplemented StatusCode = "SWSS_RC_UNIMPLEMENTED"
	StatusInternal      StatusCode = "SWSS_RC_INTERNAL"
	StatusUnknown       StatusCode = "SWSS_RC_UNKNOWN"
)

var codeTable = []struct {
	sentinel error
	code     StatusCode
}{
	{ErrInvalidParam, StatusInvalidParam},
	{ErrNotFound, StatusNotFound},
	{ErrInUse, StatusInUse},
	{ErrAlreadyExists, StatusExists},
	{ErrResourceExhausted, StatusFull},
	{ErrUnimplemented, StatusUnimplemented},
	{ErrInternal, StatusInternal},
	{ErrUnknown, StatusUnknown},
}

// CodeOf maps an error to its response code. nil maps to StatusSuccess and
// errors that wrap no known sentinel map to StatusUnknown.
func CodeOf(err error) StatusCode {
	if err == nil {
		return StatusSuccess
	}
	for _, e := range codeTable {
		if errors.Is(err, e.sentinel) {
			return e.code
		}
	}
	return StatusUnknown
}

// OK reports whether the code denotes success.
func (c StatusCode) OK() bool {
	return c == StatusSuccess
}
