// Package listing renders the assembler's .lst output: one row per
// instruction line and per BYTE/FCB/WORD/FDB/LONG/REAL/CMAP data line
// (line number, 4-hex PC, opcode/operand bytes, echoed source) followed
// by the symbol cross-reference table. Other byte-emitting directives
// (BITS, FILL, ALIGN, C5TO3, LOAD) get no row.
//
// Grounded on the teacher's SourceMap concept (asm/sourcemap.go, since
// removed from this tree once absorbed): a compact line<->PC
// correspondence kept alongside the assembled output for listings and
// debugging. The delta/varint encoding there existed to keep the
// teacher's interactive debugger's source map small in memory; this
// package has no such budget (it writes a text file once at the end
// of pass 2), so it keeps the pass driver's []pass.ListLine rows
// directly rather than re-deriving a compressed form.
package listing

import (
	"fmt"
	"io"
	"sort"

	"github.com/beevik/bs9/internal/pass"
	"github.com/beevik/bs9/internal/symtab"
)

// Write renders the full listing (source lines plus the trailing
// symbol cross-reference) to w.
func Write(w io.Writer, s *pass.State, numberLines bool) error {
	for _, row := range s.Listing {
		if err := writeRow(w, row, numberLines); err != nil {
			return err
		}
	}
	return writeCrossReference(w, s.Sym)
}

func writeRow(w io.Writer, row pass.ListLine, numberLines bool) error {
	var prefix string
	if numberLines {
		prefix = fmt.Sprintf("%5d ", row.LineNo)
	}
	hexBytes := ""
	for _, b := range row.Bytes {
		hexBytes += fmt.Sprintf("%02X", b)
	}
	_, err := fmt.Fprintf(w, "%s%04X %-16s %s\n", prefix, row.PC, hexBytes, row.Source)
	if err != nil {
		return err
	}
	if row.NOPsAdded > 0 {
		_, err = fmt.Fprintf(w, "%s     (%d NOP padding byte(s))\n", prefix, row.NOPsAdded)
	}
	return err
}

func writeCrossReference(w io.Writer, sym *symtab.Table) error {
	if _, err := fmt.Fprintf(w, "\nCROSS REFERENCE\n"); err != nil {
		return err
	}
	all := sym.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	for _, s := range all {
		refs := ""
		for i, r := range s.References {
			if i > 0 {
				refs += ","
			}
			refs += fmt.Sprintf("%d", r.Line)
			if r.Defining {
				refs += "D"
			}
		}
		val := "UNDEF"
		if s.Value.Defined {
			val = fmt.Sprintf("%04X", s.Value.N&0xFFFF)
		}
		if _, err := fmt.Fprintf(w, "%-24s %-5s %s\n", s.Name, val, refs); err != nil {
			return err
		}
	}
	return nil
}
