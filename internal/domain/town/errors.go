package town

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict error")
	ErrState      = errors.New("state error")
	ErrNotFound   = errors.New("not found")
	ErrInternal   = errors.New("town error")
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindState      ErrorKind = "state"
	KindNotFound   ErrorKind = "not_found"
	KindInternal   ErrorKind = "internal"
)

const (
	CodeInvalidName           = "INVALID_NAME"
	CodeInappropriateName     = "INAPPROPRIATE_NAME"
	CodeInvalidPosition       = "INVALID_POSITION"
	CodeInvalidSearchRadius   = "INVALID_SEARCH_RADIUS"
	CodeInvalidResources      = "INVALID_RESOURCES"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeInsufficientResources = "INSUFFICIENT_RESOURCES"
	CodeResourceOverflow      = "RESOURCE_OVERFLOW"
	CodeBoundaryConflict      = "BOUNDARY_CONFLICT"
	CodeSpawningDisabled      = "SPAWNING_DISABLED"
	CodeTouristLimitReached   = "TOURIST_LIMIT_REACHED"
	CodeNoTourists            = "NO_TOURISTS"
	CodeTownNotFound          = "TOWN_NOT_FOUND"
	CodeContractNotFound      = "CONTRACT_NOT_FOUND"
	CodeAgentNotFound         = "AGENT_NOT_FOUND"
	CodePaymentNotFound       = "PAYMENT_NOT_FOUND"
	CodePlatformNotFound      = "PLATFORM_NOT_FOUND"
	CodeExpired               = "EXPIRED"
	CodeCompleted             = "COMPLETED"
	CodeNotOpen               = "NOT_OPEN"
	CodeNotAccepted           = "NOT_ACCEPTED"
	CodeSelfDeal              = "SELF_DEAL"
	CodeNotAuthorized         = "NOT_AUTHORIZED"
	CodeRateLimited           = "RATE_LIMITED"
	CodePartitionNotLoaded    = "PARTITION_NOT_LOADED"
	CodeTownError             = "TOWN_ERROR"
)

// Error is the structured failure returned by every town operation. Code is
// machine readable; Message is safe to show to a player verbatim.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	case KindState:
		return ErrState
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrInternal
	}
}

func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func State(code, format string, args ...any) *Error {
	return &Error{Kind: KindState, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: CodeTownError, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the machine code carried by err, or "" when err is not a
// town error.
func CodeOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// HasCode reports whether err carries the given machine code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
