// Package asmlog implements the -d debug trace: a line, a byte dump,
// and a section-header logger all gated by a single enable flag and
// writing to an io.Writer (the CLI points this at Debug.lst).
//
// Grounded directly on the teacher's assembler.log/logLine/logBytes/
// logSection quartet (asm/asm.go), generalized from fmt.Printf to an
// os.Stdout-or-file io.Writer since this assembler's debug trace is a
// named file rather than always stdout.
package asmlog

import (
	"fmt"
	"io"
	"strings"
)

// Logger writes debug trace output when Enabled, and discards it
// otherwise.
type Logger struct {
	W       io.Writer
	Enabled bool
}

// Log writes a formatted line, with a trailing newline.
func (l *Logger) Log(format string, args ...interface{}) {
	if !l.Enabled {
		return
	}
	fmt.Fprintf(l.W, format, args...)
	fmt.Fprintln(l.W)
}

// LogLine writes a row/column-tagged trace line alongside its source
// text, matching the teacher's logLine column layout.
func (l *Logger) LogLine(row, col int, source string, format string, args ...interface{}) {
	if !l.Enabled {
		return
	}
	detail := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.W, "%-3d %-3d | %-20s | %s\n", row, col, detail, source)
}

// LogBytes writes a hex dump of b starting at addr, three bytes per
// trace line (matching the teacher's logBytes grouping).
func (l *Logger) LogBytes(addr int, b []byte) {
	if !l.Enabled {
		return
	}
	for i := 0; i < len(b); i += 3 {
		j := i + 3
		if j > len(b) {
			j = len(b)
		}
		l.Log("%04X- %s", addr+i, hexGroup(b[i:j]))
	}
}

// LogSection writes a boxed section header.
func (l *Logger) LogSection(name string) {
	if !l.Enabled {
		return
	}
	border := strings.Repeat("-", len(name)+6)
	fmt.Fprintln(l.W, border)
	fmt.Fprintf(l.W, "-- %s --\n", name)
	fmt.Fprintln(l.W, border)
}

func hexGroup(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
