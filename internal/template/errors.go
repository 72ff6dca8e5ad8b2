package template

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies generator failures.
type Kind int

// Failure kinds.
const (
	// UnsupportedType means an element type cannot be reduced or expressed
	// in the selected dialect.
	UnsupportedType Kind = iota + 1
	// MalformedExpression means the tree does not have a shape the
	// generator understands. It signals an upstream classification bug.
	MalformedExpression
	// DeviceFailure wraps an error reported by the device backend.
	DeviceFailure
	// InvalidConfig means the template parameters are unusable.
	InvalidConfig
)

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrUnsupportedType     = errors.New("unsupported scalar type")
	ErrMalformedExpression = errors.New("malformed expression")
	ErrDeviceFailure       = errors.New("device failure")
	ErrInvalidConfig       = errors.New("invalid template configuration")
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case UnsupportedType:
		return "UnsupportedType"
	case MalformedExpression:
		return "MalformedExpression"
	case DeviceFailure:
		return "DeviceFailure"
	case InvalidConfig:
		return "InvalidConfig"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case UnsupportedType:
		return ErrUnsupportedType
	case MalformedExpression:
		return ErrMalformedExpression
	case DeviceFailure:
		return ErrDeviceFailure
	default:
		return ErrInvalidConfig
	}
}

// Error carries the failure kind and the offending position.
// Statement and Node are -1 when the failure is not tied to one.
type Error struct {
	Kind      Kind
	Statement int
	Node      int
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	switch {
	case e.Statement >= 0 && e.Node >= 0:
		msg = fmt.Sprintf("%s (statement %d, node %d)", msg, e.Statement, e.Node)
	case e.Statement >= 0:
		msg = fmt.Sprintf("%s (statement %d)", msg, e.Statement)
	case e.Node >= 0:
		msg = fmt.Sprintf("%s (node %d)", msg, e.Node)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// Errorf returns an Error of the given kind at (stmt, node).
func Errorf(kind Kind, stmt, node int, format string, args ...any) error {
	return &Error{Kind: kind, Statement: stmt, Node: node, Err: errors.Errorf(format, args...)}
}

// Wrap attaches a kind and position to err. A nil err stays nil.
func Wrap(kind Kind, stmt, node int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Statement: stmt, Node: node, Err: err}
}

// KindOf returns the kind of err, if err is or wraps an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
