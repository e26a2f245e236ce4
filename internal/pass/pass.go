package pass

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/beevik/bs9/internal/asmerr"
	"github.com/beevik/bs9/internal/encoder"
	"github.com/beevik/bs9/internal/expr"
	"github.com/beevik/bs9/internal/m6809"
	"github.com/beevik/bs9/internal/macro"
)

const maxIncludeDepth = 100

// SourceReader supplies source text for the entry file and any file
// named by an INCLUDE directive, keeping the assembler decoupled from
// a particular filesystem layout (the CLI wires this to os.ReadFile; tests
// wire it to an in-memory map).
type SourceReader interface {
	Open(name string) ([]string, error)
}

type includeFrame struct {
	file  string
	lines []string
	pos   int
}

type recording struct {
	name   string
	params []string
	style  macro.DefStyle
	lines  []string
	column int
}

// Options carries the CLI-settable knobs that must take effect before
// pass 1 starts: command-line symbol definitions (-D) and ROM preset
// fill (-l) both need to be visible to the very first line assembled.
type Options struct {
	FoldCase      bool // -i
	MotorolaSpace bool // -m
	Optimize      bool // -o
	LineNumbers   bool // -n
	PresetByte    int  // -l: fill value, 0-255
	HasPreset     bool
	Defines       map[string]int // -D name=value

	// Loader backs the LOAD directive, reading a previously-assembled
	// binary into the ROM image. Left nil in tests that don't exercise
	// LOAD; the CLI wires this to os.ReadFile relative to the source
	// directory, the same place SourceReader resolves INCLUDE from.
	Loader func(path string) ([]byte, error)
}

// Assemble runs both passes over entryFile using reader to resolve
// INCLUDE targets, returning the final state (ROM image, symbol table,
// listing, and any errors recorded).
func Assemble(entryFile string, reader SourceReader, budget int, opts *Options) (*State, error) {
	s := New(budget)
	if opts != nil {
		s.FoldCase = opts.FoldCase
		s.Sym.FoldCase = opts.FoldCase
		s.MotorolaSpace = opts.MotorolaSpace
		s.Optimize = opts.Optimize
		s.LineNumbers = opts.LineNumbers
		if opts.HasPreset {
			for i := range s.ROM {
				s.ROM[i] = byte(opts.PresetByte)
			}
		}
		for name, v := range opts.Defines {
			s.Sym.DefineConstant(name, expr.Num(v))
		}
		s.Loader = opts.Loader
	}

	lines, err := reader.Open(entryFile)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", entryFile, err)
	}

	if err := s.runPass(entryFile, lines, reader); err != nil {
		return s, err
	}
	if !s.Cond.Balanced() {
		s.fail(asmerr.Structural, "unbalanced IF/ENDIF at end of pass 1")
		return s, nil
	}

	s.ResetForPass2()
	if err := s.runPass(entryFile, lines, reader); err != nil {
		return s, err
	}

	if s.Errors.Full() {
		// §7: STORE output is only produced if pass 2 completed
		// without hitting the error budget.
		s.Stores = nil
	}
	return s, nil
}

// runPass drives one full pass over entryFile (and any nested
// INCLUDEs), stopping early if the error budget fills.
func (s *State) runPass(entryFile string, lines []string, reader SourceReader) error {
	stack := []*includeFrame{{file: entryFile, lines: lines}}
	var rec *recording

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		var raw string
		var ok bool

		if line, hasExpansion := s.Macros.NextLine(); hasExpansion {
			raw, ok = line, true
		} else if top.pos < len(top.lines) {
			raw, ok = top.lines[top.pos], true
			top.pos++
			if !s.Macros.Active() {
				s.CurLine++
			}
		} else {
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				s.CurFile = stack[len(stack)-1].file
			}
			continue
		}
		if !ok {
			continue
		}
		s.CurFile = top.file

		if s.Errors.Full() {
			return nil
		}
		if s.Ended {
			continue
		}

		if rec != nil {
			ln := SplitLine(raw)
			if ln.Mnemonic == "ENDM" {
				dup, err := s.Macros.Define(rec.name, rec.params, rec.lines, rec.style, rec.column)
				if err != nil {
					s.fail(asmerr.Structural, "%v", err)
				} else if dup && !s.Pass2 {
					s.fail(asmerr.Duplicate, "macro %s redefined", rec.name)
				}
				rec = nil
				continue
			}
			rec.lines = append(rec.lines, raw)
			continue
		}

		ln := SplitLine(raw)
		if ln.Blank {
			continue
		}

		if newRec, started := startMacroRecording(ln); started {
			rec = newRec
			continue
		}

		if s.Cond.Skipping() {
			switch ln.Mnemonic {
			case "IF", "IFDEF", "IFNDEF", "#IF", "#IFDEF", "#IFNDEF":
				s.handleDirective(ln)
			case "ELSE", "#ELSE", "ENDIF", "#ENDIF":
				s.handleDirective(ln)
			}
			continue
		}

		if m, ok := s.Macros.Lookup(ln.Mnemonic); ok {
			args := macro.SplitArgs(ln.Operand)
			if ln.Label != "" {
				s.defineLabelHere(ln.Label, 0)
			}
			if err := s.Macros.Expand(m, args); err != nil {
				s.fail(asmerr.Structural, "%v", err)
			}
			continue
		}

		if ln.Mnemonic == "INCLUDE" {
			if len(stack) >= maxIncludeDepth {
				s.fail(asmerr.Structural, "include nesting too deep")
				continue
			}
			path := strings.Trim(strings.TrimSpace(ln.Operand), `"`)
			nested, err := reader.Open(path)
			if err != nil {
				s.fail(asmerr.Structural, "cannot open include file %s", path)
				continue
			}
			stack = append(stack, &includeFrame{file: path, lines: nested})
			continue
		}

		if s.handleDirective(ln) {
			continue
		}

		if ln.Mnemonic != "" {
			s.encodeInstructionLine(ln)
		} else if ln.Label != "" {
			s.defineLabelHere(ln.Label, 0)
		}
	}
	return nil
}

func startMacroRecording(ln Line) (*recording, bool) {
	switch {
	case ln.Label != "" && ln.Mnemonic == "MACRO":
		params := splitParamList(ln.Operand)
		return &recording{name: ln.Label, params: params, style: macro.StyleNameFirst}, true
	case ln.Label == "" && ln.Mnemonic == "MACRO":
		fields := strings.Fields(ln.Operand)
		if len(fields) == 0 {
			return nil, false
		}
		params := splitParamList(strings.Join(fields[1:], ","))
		return &recording{name: fields[0], params: params, style: macro.StyleMacroFirst}, true
	}
	return nil, false
}

func splitParamList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	return fields
}

func (s *State) encodeInstructionLine(ln Line) {
	if ln.Label != "" {
		s.defineLabelHere(ln.Label, 0)
	}
	if m6809.Lookup(ln.Mnemonic) == nil {
		s.fail(asmerr.IllegalForm, "unknown mnemonic %s", ln.Mnemonic)
		return
	}
	s.Sym.SetHere(expr.Num(s.PC))

	ctx := encoder.Context{
		CPU:       s.CPU,
		PC:        s.PC,
		SETDP:     s.SETDP,
		Pass2:     s.Pass2,
		Resolver:  s.Sym,
		LockedLen: s.LockedLen,
		Optimize:  s.Optimize,
	}
	if s.Optimize && s.Pass2 {
		ctx.Hint = func(pc int, message string) {
			s.Hints = append(s.Hints, fmt.Sprintf("$%04X: %s", pc, message))
		}
	}
	res, err := encoder.Encode(ln.Mnemonic, ln.Operand, ctx)
	if err != nil {
		s.fail(asmerr.IllegalForm, "%v", err)
		return
	}

	pc := s.PC
	nops := 0
	if !s.Pass2 {
		s.RecordLen(pc, res.Len())
	} else if locked, ok := s.LockedLen(pc); ok {
		n, err := s.PadWithNOPs(pc, res.Len(), locked)
		if err != nil {
			s.fail(asmerr.Phase, "%v", err)
		}
		nops = n
	}

	if err := s.WriteBytes(pc, res.Bytes); err != nil {
		s.fail(asmerr.Overwrite, "%v", err)
	}

	if s.Pass2 && s.ListOn {
		s.Listing = append(s.Listing, ListLine{
			LineNo: s.CurLine, PC: pc, Bytes: res.Bytes, NOPsAdded: nops,
			Source: ln.Mnemonic + " " + ln.Operand, File: s.CurFile,
		})
	}

	locked, haveLock := s.LockedLen(pc)
	total := res.Len()
	if s.Pass2 && haveLock {
		total = locked
	}
	s.PC = (pc + total) & 0xFFFF
}

// ScanLines is a small helper for SourceReader implementations that
// read from an io.Reader (files, strings.Reader for tests).
func ScanLines(r *bufio.Scanner) []string {
	var out []string
	for r.Scan() {
		out = append(out, r.Text())
	}
	return out
}
