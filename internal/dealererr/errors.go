// Package dealererr defines the error-kind taxonomy every actor in the
// dealer translates foreign errors into at its boundary. Callers
// use errors.Is against the Kind sentinels and errors.As to recover the
// wrapped *Error for detail/logging.
package dealererr

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind classifies an error by what failed. Kinds are matched with
// errors.Is; they are not meant to be returned bare.
type Kind int

const (
	// Validation means an input constraint was violated: unknown asset,
	// negative amount, exceeded spending cap. The HTTP ingress reports
	// these as 500 with the error code as detail.
	Validation Kind = iota
	// ExternalService means an adjacent system (PSP, price provider,
	// swap venue, wallet) failed.
	ExternalService
	// Communication means a mailbox send or one-shot reply channel was
	// dropped. Always a programming bug, surfaced as 500.
	Communication
	// Repository means a database operation failed. Surfaced as 500,
	// never auto-retried by the core.
	Repository
	// Inventory means wallet balance was insufficient for payout. Not an
	// error to the caller of UpdateStatus.
	Inventory
	// Protocol means a venue response shape was unexpected.
	Protocol
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case ExternalService:
		return "external_service"
	case Communication:
		return "communication"
	case Repository:
		return "repository"
	case Inventory:
		return "inventory"
	case Protocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is the concrete error value every boundary wraps foreign errors
// into. Repository and Communication kinds carry a stack trace (via
// go-errors/errors) since those indicate bugs worth a full trace in logs;
// the others don't need one.
type Error struct {
	Kind    Kind
	Code    string // short machine-readable detail, e.g. "ExceededDailyAmount"
	Message string
	cause   error
	stack   *goerrors.Error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is allows errors.Is(err, dealererr.ErrValidation) style matching against the
// Kind sentinels below.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && k.kind == e.Kind
}

// Stack returns the formatted stack trace for Repository/Communication
// kind errors, or "" for the others.
func (e *Error) Stack() string {
	if e.stack == nil {
		return ""
	}
	return string(e.stack.Stack())
}

type kindSentinel struct{ kind Kind }

func (kindSentinel) Error() string { return "" }

// Sentinel values usable with errors.Is(err, dealererr.ErrValidation).
var (
	ErrValidation       error = kindSentinel{Validation}
	ErrExternalService  error = kindSentinel{ExternalService}
	ErrCommunication    error = kindSentinel{Communication}
	ErrRepository       error = kindSentinel{Repository}
	ErrInventory        error = kindSentinel{Inventory}
	ErrProtocol         error = kindSentinel{Protocol}
)

// New builds a dealererr.Error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap translates a foreign error into the given kind, preserving it via
// Unwrap. Repository and Communication kinds additionally capture a stack
// trace, since those always indicate a bug rather than expected external
// failure.
func Wrap(kind Kind, code string, cause error) *Error {
	e := &Error{Kind: kind, Code: code, Message: cause.Error(), cause: cause}
	if kind == Repository || kind == Communication {
		e.stack = goerrors.Wrap(cause, 1)
	}
	return e
}

// Of extracts the *Error from err, if any, via errors.As.
func Of(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
