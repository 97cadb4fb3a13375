package billing

import (
	"errors"
	"fmt"
	"strings"
)

// ResponseCode is the status the remote billing service attaches to every reply.
type ResponseCode int

const (
	CodeServiceTimeout      ResponseCode = -3
	CodeFeatureNotSupported ResponseCode = -2
	CodeServiceDisconnected ResponseCode = -1
	CodeOK                  ResponseCode = 0
	CodeUserCanceled        ResponseCode = 1
	CodeServiceUnavailable  ResponseCode = 2
	CodeBillingUnavailable  ResponseCode = 3
	CodeItemUnavailable     ResponseCode = 4
	CodeDeveloperError      ResponseCode = 5
	CodeError               ResponseCode = 6
	CodeItemAlreadyOwned    ResponseCode = 7
	CodeItemNotOwned        ResponseCode = 8
)

var codeNames = map[ResponseCode]string{
	CodeServiceTimeout:      "SERVICE_TIMEOUT",
	CodeFeatureNotSupported: "FEATURE_NOT_SUPPORTED",
	CodeServiceDisconnected: "SERVICE_DISCONNECTED",
	CodeOK:                  "OK",
	CodeUserCanceled:        "USER_CANCELED",
	CodeServiceUnavailable:  "SERVICE_UNAVAILABLE",
	CodeBillingUnavailable:  "BILLING_UNAVAILABLE",
	CodeItemUnavailable:     "ITEM_UNAVAILABLE",
	CodeDeveloperError:      "DEVELOPER_ERROR",
	CodeError:               "ERROR",
	CodeItemAlreadyOwned:    "ITEM_ALREADY_OWNED",
	CodeItemNotOwned:        "ITEM_NOT_OWNED",
}

// String returns the wire name of the code, e.g. "ITEM_ALREADY_OWNED".
func (c ResponseCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(c))
}

// ParseResponseCode converts a wire name back to a ResponseCode.
// Matching is case-insensitive.
func ParseResponseCode(s string) (ResponseCode, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for code, name := range codeNames {
		if name == upper {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown response code %q", s)
}

// Result is the outcome of one remote call.
type Result struct {
	Code         ResponseCode
	DebugMessage string
}

// OK is the zero-value success result.
var OK = Result{Code: CodeOK}

// ResultOf builds a Result with the given code and no debug message.
func ResultOf(code ResponseCode) Result {
	return Result{Code: code}
}

// IsOK reports whether the call succeeded.
func (r Result) IsOK() bool {
	return r.Code == CodeOK
}

// Err returns nil for a successful result and a *Error otherwise.
func (r Result) Err() error {
	if r.IsOK() {
		return nil
	}
	return &Error{Code: r.Code, Message: r.DebugMessage}
}

// Error is a failed remote call.
type Error struct {
	Code    ResponseCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("billing: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("billing: %s", e.Code)
}

// Class returns the error class of the underlying response code.
func (e *Error) Class() ErrorClass {
	return Classify(e.Code)
}

// CodeOf extracts the response code from err, or CodeError when err is not
// a billing error. A nil err yields CodeOK.
func CodeOf(err error) ResponseCode {
	if err == nil {
		return CodeOK
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeError
}

// ClassOf returns the error class of err. A nil err is ClassNone; an
// error that is not a billing error is ClassGeneric.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Class()
	}
	return ClassGeneric
}
