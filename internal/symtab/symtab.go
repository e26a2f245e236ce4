// Package symtab implements the assembler's symbol table: labels,
// EQU/SET constants, BSS allocations and ENUM counters, plus the
// MODULE/SUBROUTINE local-symbol scoping rule and the per-symbol
// reference list used to print the listing's cross-reference.
//
// This is new code (the teacher assembler's labels are a bare
// map[string]int with no scoping, locking, or reference tracking),
// grounded on the teacher's expr/label evaluation shape in
// asm.assembler.labels and asm.expr.eval's identifier lookup.
package symtab

import (
	"strings"

	"github.com/beevik/bs9/internal/expr"
)

// A Reference records one use of a symbol, for the listing's
// cross-reference section.
type Reference struct {
	Line       int
	Defining   bool
	Addressing string // addressing-mode attribute at this reference, if known
}

// A Symbol is one entry of the symbol table.
type Symbol struct {
	Name       string
	Value      expr.Value
	Length     int  // object length in bytes, for data-defining labels (?SYM)
	Locked     bool // true once bound by a label, EQU/=, ENUM, or -D
	Variable   bool // true if defined with SET (may be redefined)
	References []Reference
}

// Table is the assembler's symbol table. It must be shared,
// unmodified in identity, across both passes: pass 2 needs to observe
// exactly the bindings pass 1 produced.
type Table struct {
	FoldCase bool // -i: fold symbol case to uppercase before lookup

	syms       map[string]*Symbol
	scope      string // current MODULE/SUBROUTINE scope label, "" if none
	enumValue  int
	enumActive bool
	here       expr.Value // current PC, used for '*'
}

// New creates an empty symbol table.
func New() *Table {
	return &Table{syms: make(map[string]*Symbol), enumValue: -1}
}

func (t *Table) fold(name string) string {
	if t.FoldCase {
		return strings.ToUpper(name)
	}
	return name
}

// Resolve rewrites a leading-'.' local identifier to
// "<scope>.identifier". An identifier outside any scope is left bare,
// per the open question in the specification ("append to empty
// scope", i.e. no rewrite).
func (t *Table) Resolve(name string) string {
	if strings.HasPrefix(name, ".") && t.scope != "" {
		return t.scope + name
	}
	return name
}

// EnterScope sets the active MODULE/SUBROUTINE scope label.
func (t *Table) EnterScope(label string) { t.scope = label }

// ExitScope clears the active scope (ENDMOD/ENDSUB).
func (t *Table) ExitScope() { t.scope = "" }

// Scope returns the currently active scope label, or "" if none.
func (t *Table) Scope() string { return t.scope }

// SetHere records the current PC so '*' resolves to it.
func (t *Table) SetHere(v expr.Value) { t.here = v }

// Here implements expr.Resolver.
func (t *Table) Here() expr.Value { return t.here }

// Lookup implements expr.Resolver: an unknown or not-yet-defined
// symbol evaluates to UNDEF rather than an error, so pass 1 can make
// forward progress. A symbol typed with the mnemonic of an opcode or
// pseudo-op never reaches here since the reserved-word guard runs at
// definition time.
func (t *Table) Lookup(name string) expr.Value {
	name = t.fold(t.Resolve(name))
	if s, ok := t.syms[name]; ok {
		return s.Value
	}
	return expr.Undef
}

// Length implements expr.Resolver for the '?name' length-of-data query.
func (t *Table) Length(name string) (int, bool) {
	name = t.fold(t.Resolve(name))
	if s, ok := t.syms[name]; ok && s.Length > 0 {
		return s.Length, true
	}
	return 0, false
}

// Get returns the raw symbol entry (for the listing's cross-reference),
// or nil if undefined.
func (t *Table) Get(name string) *Symbol {
	name = t.fold(t.Resolve(name))
	return t.syms[name]
}

// All returns every defined symbol, unordered.
func (t *Table) All() []*Symbol {
	out := make([]*Symbol, 0, len(t.syms))
	for _, s := range t.syms {
		out = append(out, s)
	}
	return out
}

func (t *Table) entry(name string) *Symbol {
	name = t.fold(name)
	s, ok := t.syms[name]
	if !ok {
		s = &Symbol{Name: name, Value: expr.Undef}
		t.syms[name] = s
	}
	return s
}

// AddReference appends a use-site to a symbol's reference list, for
// the listing's cross-reference. Defining references also reach here
// (with Defining set) so the listing can print the "D" flag.
func (t *Table) AddReference(name string, line int, defining bool, mode string) {
	name = t.fold(t.Resolve(name))
	s := t.entry(name)
	s.References = append(s.References, Reference{Line: line, Defining: defining, Addressing: mode})
}

// DefineLabel binds name to the current PC. Labels are locked: a
// second definition with a different value is a duplicate-definition
// error, reported by the caller (this method just reports whether it
// succeeded). Re-binding the same value, as pass 2 does, is accepted.
func (t *Table) DefineLabel(name string, pc expr.Value, objLen int) (ok bool, dup bool) {
	name = t.fold(t.Resolve(name))
	if s, exists := t.syms[name]; exists && s.Locked && s.Value.Defined && s.Value != pc {
		return false, true
	}
	s := t.entry(name)
	s.Value = pc
	s.Locked = true
	s.Length = objLen
	return true, false
}

// DefineConstant implements EQU/'=': a locked, non-reassignable value.
// As with DefineLabel, re-binding the same value is accepted.
func (t *Table) DefineConstant(name string, v expr.Value) (ok bool, dup bool) {
	name = t.fold(t.Resolve(name))
	if s, exists := t.syms[name]; exists && s.Locked && s.Value.Defined && s.Value != v {
		return false, true
	}
	s := t.entry(name)
	s.Value = v
	s.Locked = true
	return true, false
}

// DefineVariable implements SET: a reassignable value. Unlike EQU,
// redefinition is always allowed.
func (t *Table) DefineVariable(name string, v expr.Value) {
	name = t.fold(t.Resolve(name))
	s := t.entry(name)
	s.Value = v
	s.Variable = true
}

// DefineBSS implements 'BSS n': bind name to the current BSS counter.
// The caller advances the BSS counter by n separately.
func (t *Table) DefineBSS(name string, bss expr.Value, n int) (ok bool, dup bool) {
	return t.DefineLabel(name, bss, n)
}

// ResetEnum resets the running ENUM counter to start-1 so the next
// Enum() call yields start.
func (t *Table) ResetEnum(start int) { t.enumValue = start - 1 }

// Enum implements the ENUM keyword: a locked constant equal to
// last_enum+1, or, if expr is non-nil, to that expression's value
// (which also updates the running counter).
func (t *Table) Enum(name string, explicit *expr.Value) (v expr.Value, ok bool, dup bool) {
	if explicit != nil && explicit.Defined {
		t.enumValue = explicit.N
	} else {
		t.enumValue++
	}
	v = expr.Num(t.enumValue)
	ok, dup = t.DefineConstant(name, v)
	return v, ok, dup
}

// The reserved-word guard is not in this package: pass.IsReservedWord
// checks names against the mnemonic and pseudo-op tables.

// IsLocked reports whether name is already bound and locked.
func (t *Table) IsLocked(name string) bool {
	name = t.fold(t.Resolve(name))
	s, ok := t.syms[name]
	return ok && s.Locked
}
