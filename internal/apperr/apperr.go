// Package apperr defines the error kinds shared by services, gates and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

const (
	KindAuthenticationRequired      Kind = "AuthenticationRequired"
	KindUpgradeRequired             Kind = "UpgradeRequired"
	KindPartnerSubscriptionRequired Kind = "PartnerSubscriptionRequired"
	KindVerifiedPartnerRequired     Kind = "VerifiedPartnerRequired"
	KindNotAMember                  Kind = "NotAMember"
	KindInsufficientRole            Kind = "InsufficientRole"
	KindForbidden                   Kind = "Forbidden"
	KindValidation                  Kind = "ValidationError"
	KindNotFound                    Kind = "NotFound"
	KindInvalidStateTransition      Kind = "InvalidStateTransition"
	KindConflict                    Kind = "Conflict"
	KindRateLimited                 Kind = "RateLimited"
	KindInternal                    Kind = "Internal"
)

// Error is an application error carrying a Kind and optional client-facing detail.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field validation messages.
	Fields map[string]string
	// Details is serialized as-is into the error response.
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches client-facing details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithField adds a field-level validation message.
func (e *Error) WithField(field, msg string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
	return e
}

func AuthenticationRequired() *Error {
	return New(KindAuthenticationRequired, "authentication required")
}

// UpgradeRequired reports the minimal plan that would satisfy the gate.
func UpgradeRequired(requiredPlan string) *Error {
	return New(KindUpgradeRequired, "plan upgrade required").
		WithDetails(map[string]string{"requiredPlan": requiredPlan})
}

func PartnerSubscriptionRequired() *Error {
	return New(KindPartnerSubscriptionRequired, "partner subscription required").
		WithDetails(map[string]string{"requiredPlan": "partner"})
}

func VerifiedPartnerRequired() *Error {
	return New(KindVerifiedPartnerRequired, "verified partner organization required").
		WithDetails(map[string]string{"requiredStatus": "verified"})
}

func NotAMember() *Error {
	return New(KindNotAMember, "not a member of this organization")
}

// InsufficientRole reports the minimal role and the caller's role.
func InsufficientRole(required, actual string) *Error {
	return New(KindInsufficientRole, "insufficient organization role").
		WithDetails(map[string]string{"requiredRole": required, "currentRole": actual})
}

func Forbidden(msg string) *Error {
	return New(KindForbidden, "%s", msg)
}

func Validation(msg string) *Error {
	return New(KindValidation, "%s", msg)
}

func NotFound(what string) *Error {
	return New(KindNotFound, "%s not found", what)
}

// InvalidTransition reports a state-machine move not allowed from the current status.
func InvalidTransition(from, action string) *Error {
	return New(KindInvalidStateTransition, "cannot %s from status %s", action, from).
		WithDetails(map[string]string{"currentStatus": from})
}

func Conflict(msg string) *Error {
	return New(KindConflict, "%s", msg)
}

func RateLimited(msg string) *Error {
	return New(KindRateLimited, "%s", msg)
}

// Internal wraps an infrastructure failure. The message is never shown to clients.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err. Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
