package exchange

import "fmt"

// ErrorKind classifies why an exchange call was rejected.
type ErrorKind uint8

const (
	KindValidation ErrorKind = iota + 1
	KindNotAuthorized
	KindInsufficientFunds
	KindNotFound
	// KindFault is a failure after mutations began. The call was rolled back.
	KindFault
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotAuthorized:
		return "NotAuthorized"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindNotFound:
		return "NotFound"
	case KindFault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// Error is returned by every failing exchange operation. Whatever the kind,
// the call has left no trace in the ledger, the books or the event log.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotAuthorized     = &Error{Kind: KindNotAuthorized}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrFault             = &Error{Kind: KindFault}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "exchange: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
