// Package pass implements the two-pass assembly driver: it owns the
// 64K ROM image, the per-PC instruction-length lock, the BSS and
// program counters, the CPU/SETDP/case-folding assembler state, and
// the dispatch from a source line to either a pseudo-op or an
// instruction encode. Directive handling lives here rather than in a
// separate package to avoid an import cycle (directives mutate PC/
// BSS/CPU/scope, all owned by State; splitting them out would just
// hand back a State-shaped interface).
//
// Grounded on the teacher's asm.assembler, which bundles exactly this
// kind of module-level mutable state (PC, labels, listing buffer) into
// one type threaded through every handler — the same shape the
// specification's design notes recommend keeping explicit rather than
// collapsing passes together.
package pass

import (
	"fmt"

	"github.com/beevik/bs9/internal/asmerr"
	"github.com/beevik/bs9/internal/cond"
	"github.com/beevik/bs9/internal/m6809"
	"github.com/beevik/bs9/internal/macro"
	"github.com/beevik/bs9/internal/symtab"
)

const errorBudgetDefault = 10

// StoreRequest is a pending STORE directive, executed only after pass
// 2 completes without hitting the error budget.
type StoreRequest struct {
	Start, Len    int
	Path          string
	Format        string // "BIN" or "S19"
	Entry         int
	HasEntry      bool
}

// ListLine is one row of the assembly listing.
type ListLine struct {
	LineNo   int
	PC       int
	Bytes    []byte
	NOPsAdded int
	Source   string
	File     string
}

// State is the assembler's full mutable state, shared identically
// across both passes (the symbol table and macro engine must be the
// same instances so pass 2 observes exactly what pass 1 produced).
type State struct {
	Sym    *symtab.Table
	Cond   cond.Stack
	Macros *macro.Engine
	Errors *asmerr.List

	ROM      [65536]byte
	written  [65536]bool
	hasByte  [65536]bool
	instrLen map[int]int // PC -> length recorded in pass 1

	PC      int
	BSS     int
	SETDP   int
	CPU     m6809.CPU
	Pass2   bool
	ListOn  bool
	Ended   bool

	FoldCase      bool // -i
	MotorolaSpace bool // -m
	Optimize      bool // -o
	LineNumbers   bool // -n

	Stores []StoreRequest
	Hints  []string // -o optimization hints (JSR-could-be-BSR), pass 2 only

	Listing []ListLine

	CurFile string
	CurLine int

	// Loader backs the LOAD directive; see Options.Loader.
	Loader func(path string) ([]byte, error)
}

// New creates an empty assembler state with a fresh symbol table,
// macro engine, and error budget.
func New(budget int) *State {
	if budget <= 0 {
		budget = errorBudgetDefault
	}
	return &State{
		Sym:      symtab.New(),
		Macros:   macro.New(),
		Errors:   &asmerr.List{Budget: budget},
		instrLen: make(map[int]int),
	}
}

// ResetForPass2 re-initializes the per-pass mutable fields, per §4.7:
// PC undefined (represented here as 0, immediately set by the first
// ORG or the caller), CPU defaults to 6309, listing on, scope cleared.
func (s *State) ResetForPass2() {
	s.Pass2 = true
	s.PC = 0
	s.BSS = 0
	s.CPU = m6809.CPU6309
	s.ListOn = true
	s.Ended = false
	// Pass 1 wrote provisional bytes (forward references as 0); pass 2
	// rewrites them, so only pass 2's own writers are checked against
	// each other.
	s.hasByte = [65536]bool{}
	s.CurLine = 0
	s.Sym.ResetEnum(0)
	s.Sym.ExitScope()
	s.Cond.Reset()
}

// LockedLen implements encoder.Context.LockedLen.
func (s *State) LockedLen(pc int) (int, bool) {
	n, ok := s.instrLen[pc]
	return n, ok
}

// RecordLen records the instruction length observed at pc during pass
// 1, for pass 2's sticky Direct/Extended and PCR-width decisions.
func (s *State) RecordLen(pc, n int) { s.instrLen[pc] = n }

// WriteBytes writes b at pc, honoring the non-overwrite property:
// two writers claiming the same byte with different values is an
// error; the same value twice (e.g. re-running pass 2 logic) is not.
// Addresses past 0xFFFF wrap around to 0x0000 without an error.
func (s *State) WriteBytes(pc int, b []byte) error {
	for i, v := range b {
		addr := (pc + i) & 0xFFFF
		if s.hasByte[addr] && s.ROM[addr] != v {
			return fmt.Errorf("overwrite at $%04X: have $%02X, write $%02X", addr, s.ROM[addr], v)
		}
		s.ROM[addr] = v
		s.hasByte[addr] = true
	}
	return nil
}

// PadWithNOPs appends NOP bytes after an instruction written at pc
// with actualLen bytes, out to lockedLen, per the phase-length-lock
// rule: the pass-1 length is a maximum pass 2 may shrink into, padded
// inside the original slot.
func (s *State) PadWithNOPs(pc, actualLen, lockedLen int) (int, error) {
	n := lockedLen - actualLen
	if n < 0 {
		return 0, fmt.Errorf("phase error at $%04X: pass 2 length %d exceeds pass 1 length %d", pc, actualLen, lockedLen)
	}
	if n == 0 {
		return 0, nil
	}
	nops := make([]byte, n)
	for i := range nops {
		nops[i] = m6809.NOP
	}
	if err := s.WriteBytes(pc+actualLen, nops); err != nil {
		return 0, err
	}
	return n, nil
}
