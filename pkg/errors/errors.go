package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // class file structure
	PhaseDecode  Phase = "decode"  // bytecode decoding
	PhaseRuntime Phase = "runtime" // interpretation
	PhaseConfig  Phase = "config"  // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidMagic      Kind = "invalid_magic"
	KindMissingField      Kind = "missing_field"
	KindInvalidIndex      Kind = "invalid_index"
	KindUnhandledConstant Kind = "unhandled_constant"
	KindUnhandledOpcode   Kind = "unhandled_opcode"
	KindInvalidData       Kind = "invalid_data"
	KindStackUnderflow    Kind = "stack_underflow"
	KindStackOverflow     Kind = "stack_overflow"
	KindTypeMismatch      Kind = "type_mismatch"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindUnsupported       Kind = "unsupported"
	KindNotFound          Kind = "not_found"
	KindStepLimit         Kind = "step_limit"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrInvalidMagic      = &Error{Kind: KindInvalidMagic}
	ErrMissingField      = &Error{Kind: KindMissingField}
	ErrInvalidIndex      = &Error{Kind: KindInvalidIndex}
	ErrUnhandledConstant = &Error{Kind: KindUnhandledConstant}
	ErrUnhandledOpcode   = &Error{Kind: KindUnhandledOpcode}
	ErrInvalidData       = &Error{Kind: KindInvalidData}
	ErrStackUnderflow    = &Error{Kind: KindStackUnderflow}
	ErrStackOverflow     = &Error{Kind: KindStackOverflow}
	ErrTypeMismatch      = &Error{Kind: KindTypeMismatch}
	ErrOutOfBounds       = &Error{Kind: KindOutOfBounds}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrStepLimit         = &Error{Kind: KindStepLimit}
)

// Error is the structured error type used throughout runevm
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	// Offset is the byte offset into the class file (load), the code array
	// (decode) or the program counter (runtime). -1 when unknown.
	Offset int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Offset >= 0 && e.Phase != "" {
		b.WriteString(" at ")
		if e.Phase == PhaseRuntime {
			b.WriteString("pc ")
		} else {
			b.WriteString("offset ")
		}
		b.WriteString(strconv.Itoa(e.Offset))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Value != nil {
		fmt.Fprintf(&b, " (value %v)", e.Value)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: -1,
		},
	}
}

// Offset sets the byte offset or program counter
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// MissingField creates a short-read error
func MissingField(phase Phase, offset int, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMissingField,
		Offset: offset,
		Detail: what,
	}
}

// InvalidIndex creates a constant pool index error
func InvalidIndex(phase Phase, index uint16, detail string, args ...any) *Error {
	return New(phase, KindInvalidIndex).Value(index).Detail(detail, args...).Build()
}

// InvalidData creates a malformed-structure error
func InvalidData(phase Phase, offset int, detail string, args ...any) *Error {
	return New(phase, KindInvalidData).Offset(offset).Detail(detail, args...).Build()
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string, args ...any) *Error {
	return New(phase, KindUnsupported).Detail(what, args...).Build()
}

// NotFound creates a lookup failure error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Offset: -1,
		Detail: what + " " + name,
	}
}

// TypeMismatch creates a runtime type error
func TypeMismatch(pc int, want, got string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTypeMismatch,
		Offset: pc,
		Detail: "expected " + want + ", got " + got,
	}
}

// Wrap wraps an existing error with phase and kind
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Offset: -1,
		Detail: detail,
		Cause:  cause,
	}
}
