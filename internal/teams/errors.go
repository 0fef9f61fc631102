package teams

import (
	"errors"
	"fmt"
)

// Storage sentinels. Stores return these; the service turns them into *Error.
var (
	ErrNotFound   = errors.New("teams: not found")
	ErrOutOfStock = errors.New("teams: product out of stock")
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindPayment
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPayment:
		return "payment"
	case KindState:
		return "state"
	}
	return "unknown"
}

type Code string

const (
	CodeInvalidInput          Code = "InvalidInput"
	CodeProductUnavailable    Code = "ProductUnavailable"
	CodeInvalidQuantity       Code = "InvalidQuantity"
	CodeInvalidAmount         Code = "InvalidAmount"
	CodeTeamNotFound          Code = "TeamNotFound"
	CodeJoinNotAllowed        Code = "JoinNotAllowed"
	CodeCustomerNotFound      Code = "CustomerNotFound"
	CodePaymentMismatch       Code = "PaymentMismatch"
	CodeDuplicateMember       Code = "DuplicateMember"
	CodeAlreadyMember         Code = "AlreadyMember"
	CodeAmountMismatch        Code = "AmountMismatch"
	CodeDuplicateContribution Code = "DuplicateContribution"
	CodeQuantityExceeded      Code = "QuantityExceeded"
	CodePaymentFailed         Code = "PaymentFailed"
)

// Error is a business-rule violation. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Is matches on Code so callers can use errors.Is(err, &Error{Code: CodeTeamNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newErr(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of a business error, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func errInvalid(format string, args ...any) *Error {
	return newErr(KindValidation, CodeInvalidInput, format, args...)
}

func errTeamNotFound() *Error {
	return newErr(KindNotFound, CodeTeamNotFound, "Team not found")
}

func errPaymentFailed(reason string) *Error {
	return newErr(KindPayment, CodePaymentFailed, "Payment processing failed: %s", reason)
}

// joinNotAllowed classifies a CanMemberJoin rejection.
func joinNotAllowed(reason string, rej JoinRejection) *Error {
	kind := KindState
	switch rej {
	case RejectQuantity:
		kind = KindValidation
	case RejectCapacity:
		kind = KindConflict
	}
	return &Error{Kind: kind, Code: CodeJoinNotAllowed, Message: reason}
}
