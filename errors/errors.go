package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase names the stage of the pipeline an error came from.
type Phase string

const (
	PhaseDecode  Phase = "decode"  // binary to object graph
	PhaseEncode  Phase = "encode"  // object graph to binary
	PhaseRewrite Phase = "rewrite" // call-site lowering
	PhaseLoad    Phase = "load"    // reading input files
	PhaseVerify  Phase = "verify"  // compiling the lowered output
)

// Kind categorizes the error.
type Kind string

const (
	// KindReference marks an instruction operand whose entity is not a
	// member of the module it is encoded against.
	KindReference Kind = "reference"
	// KindOutOfBounds marks an index operand outside its collection.
	KindOutOfBounds Kind = "out_of_bounds"
	// KindInvalidShape marks a fixed-shape operand with an unexpected value,
	// such as a non-zero reserved byte or an unknown value type tag.
	KindInvalidShape Kind = "invalid_shape"
	KindUnsupported  Kind = "unsupported"
	KindInvalidData  Kind = "invalid_data"
	KindNotFound     Kind = "not_found"
	// KindInvalidInput marks a caller mistake, such as a rewrite position
	// outside the function or a stack walk past a block boundary.
	KindInvalidInput Kind = "invalid_input"
	// KindConflict marks a scratch local or global that is already taken.
	KindConflict Kind = "conflict"
	KindOverflow Kind = "overflow"
)

// Error is the structured error returned by the codec, the rewrite engine
// and the CLI. Path locates the failure, typically a function name followed
// by an instruction index.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error renders "[phase] kind at a.b: detail (caused by: cause)".
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Phase, e.Kind)
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same Phase and Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Phase == t.Phase && e.Kind == t.Kind
}

// IsKind reports whether any *Error in err's chain has the given kind,
// regardless of phase.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for stderrors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// Builder assembles an Error field by field.
type Builder struct {
	err Error
}

func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the message. Arguments are applied with fmt.Sprintf.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	b.err.Detail = msg
	return b
}

func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

func at(phase Phase, kind Kind, path []string, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Path: path, Detail: detail}
}

// Reference reports an entity that is not a member of the module being encoded.
func Reference(phase Phase, path []string, what string) *Error {
	return at(phase, KindReference, path, what+" is not a member of the module")
}

func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	e := at(phase, KindOutOfBounds, path, fmt.Sprintf("index %d out of bounds (length %d)", index, length))
	e.Value = index
	return e
}

func InvalidShape(phase Phase, path []string, detail string, value any) *Error {
	e := at(phase, KindInvalidShape, path, detail)
	e.Value = value
	return e
}

func Unsupported(phase Phase, what string) *Error {
	return at(phase, KindUnsupported, nil, what)
}

func InvalidData(phase Phase, path []string, detail string) *Error {
	return at(phase, KindInvalidData, path, detail)
}

// Overflow reports value not fitting into target, e.g. "u32".
func Overflow(phase Phase, path []string, value any, target string) *Error {
	e := at(phase, KindOverflow, path, fmt.Sprintf("value %v overflows %s", value, target))
	e.Value = value
	return e
}

// NotFound reports a missing named entity, e.g. NotFound(p, "global", "__stack_pointer").
func NotFound(phase Phase, what, name string) *Error {
	return at(phase, KindNotFound, nil, fmt.Sprintf("%s %q not found", what, name))
}

func InvalidInput(phase Phase, detail string) *Error {
	return at(phase, KindInvalidInput, nil, detail)
}

func Conflict(phase Phase, path []string, detail string) *Error {
	return at(phase, KindConflict, path, detail)
}

// Wrap attaches phase, kind and detail to an error from outside the package.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	e := at(phase, kind, nil, detail)
	e.Cause = cause
	return e
}

// Load reports an input file that could not be read.
func Load(detail string, cause error) *Error {
	return Wrap(PhaseLoad, KindInvalidData, cause, detail)
}
