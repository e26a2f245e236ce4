// Package asmerr implements the assembler's uniform error reporting:
// each error carries the source position it was raised at, a kind
// drawn from the taxonomy in the specification's error-handling
// design, and a human message. Errors are accumulated rather than
// returned immediately so that assembly can continue until the
// configured error budget is exhausted, matching the reference
// assembler's "keep going, report many errors" behavior.
package asmerr

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/bs9/internal/text"
)

// Kind categorizes an error for reporting purposes. It is not a type
// hierarchy, just a label.
type Kind int

const (
	Lexical Kind = iota
	Syntax
	UndefinedSymbol
	Phase
	OutOfRange
	Overwrite
	IllegalForm
	Duplicate
	Structural
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "lexical"
	case Syntax:
		return "syntax"
	case UndefinedSymbol:
		return "undefined symbol"
	case Phase:
		return "phase error"
	case OutOfRange:
		return "out of range"
	case Overwrite:
		return "overwrite"
	case IllegalForm:
		return "illegal instruction form"
	case Duplicate:
		return "duplicate definition"
	case Structural:
		return "structural"
	default:
		return "error"
	}
}

// An Error is one reported assembly error, tied to the line and
// column it was raised at.
type Error struct {
	Kind Kind
	Pos  text.Scan
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %s: %s", e.Pos.File, e.Pos.Row, e.Kind, e.Msg)
}

// A List accumulates errors up to a configured budget. Once the
// budget is exhausted, Full reports true and the pass driver aborts
// pass 2 early, per the specification's error budget (default 10).
type List struct {
	Budget int
	errors []*Error
}

// Add appends a new error unless the budget has already been spent.
func (l *List) Add(kind Kind, pos text.Scan, format string, args ...interface{}) *Error {
	e := &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
	if !l.Full() {
		l.errors = append(l.errors, e)
	}
	return e
}

// Count returns the number of errors recorded so far.
func (l *List) Count() int { return len(l.errors) }

// Full reports whether the error budget has been exhausted. A
// non-positive budget means unlimited.
func (l *List) Full() bool {
	return l.Budget > 0 && len(l.errors) >= l.Budget
}

// All returns the accumulated errors in the order they were added.
func (l *List) All() []*Error { return l.errors }

// Print writes each error to w as "file, line N, col C: message", followed
// by the offending source line and a caret under the triggering
// column, matching the teacher assembler's verbose error dump.
func Print(w io.Writer, errs []*Error) {
	for _, e := range errs {
		fmt.Fprintf(w, "%s, line %d, col %d: %s\n", e.Pos.File, e.Pos.Row, e.Pos.Column+1, e.Msg)
		fmt.Fprintln(w, e.Pos.Full)
		fmt.Fprintln(w, strings.Repeat("-", e.Pos.Column)+"^")
	}
}
