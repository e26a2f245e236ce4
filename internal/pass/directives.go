package pass

import (
	"strings"

	"github.com/beevik/bs9/internal/asmerr"
	"github.com/beevik/bs9/internal/expr"
	"github.com/beevik/bs9/internal/m6809"
	"github.com/beevik/bs9/internal/text"
)

// pseudoOps is the set of directive keywords, used by the
// reserved-word guard (§9 design notes: a label may not shadow a
// mnemonic or a pseudo-op).
var pseudoOps = map[string]bool{
	"ORG": true, "SETDP": true, "BYTE": true, "FCB": true, "WORD": true,
	"FDB": true, "LONG": true, "REAL": true, "BITS": true, "CMAP": true,
	"FILL": true, "BSS": true, "RMB": true, "ALIGN": true, "C5TO3": true,
	"INCLUDE": true, "STORE": true, "LOAD": true, "LIST": true, "CASE": true,
	"CPU": true, "END": true, "SIZE": true, "TTL": true, "INTERN": true,
	"EXTERN": true, "MODULE": true, "SUBROUTINE": true, "ENDMOD": true,
	"ENDSUB": true, "EQU": true, "SET": true, "ENUM": true, "MACRO": true,
	"ENDM": true, "IF": true, "IFDEF": true, "IFNDEF": true, "ELSE": true,
	"ENDIF": true, "=": true,
}

// IsReservedWord reports whether name collides with a mnemonic or a
// pseudo-op keyword.
func IsReservedWord(name string) bool {
	upper := strings.ToUpper(name)
	return m6809.Lookup(upper) != nil || pseudoOps[upper]
}

func (s *State) fail(kind asmerr.Kind, format string, args ...interface{}) {
	pos := text.New(s.CurFile, s.CurLine, "")
	s.Errors.Add(kind, pos, format, args...)
}

// handleDirective processes a non-instruction line. handled reports
// whether mnemonic named a directive at all (false means the caller
// should try instruction encoding instead).
func (s *State) handleDirective(ln Line) (handled bool) {
	// "#" is an optional prefix on the conditional-assembly keywords.
	m := ln.Mnemonic
	switch strings.TrimPrefix(m, "#") {
	case "IF", "IFDEF", "IFNDEF", "ELSE", "ENDIF":
		m = strings.TrimPrefix(m, "#")
	}

	// Symbol-definition keywords bind ln.Label.
	switch m {
	case "=", "EQU":
		s.defineConstant(ln)
		return true
	case "SET":
		v, err := s.evalInt(ln.Operand)
		if err != nil {
			s.fail(asmerr.Syntax, "%v", err)
			return true
		}
		s.Sym.DefineVariable(ln.Label, v)
		return true
	case "ENUM":
		s.defineEnum(ln)
		return true
	}

	switch m {
	case "ORG":
		v, err := s.evalInt(ln.Operand)
		if err == nil && v.Defined {
			s.PC = v.N & 0xFFFF
		}
		return true
	case "SETDP":
		v, err := s.evalInt(ln.Operand)
		if err == nil && v.Defined {
			n := v.N
			if n > 255 {
				n = (n >> 8) & 0xFF // §9 open question: use the high byte when value > 255
			}
			s.SETDP = n & 0xFF
		}
		return true
	case "BYTE", "FCB":
		s.emitBytes(ln, 1)
		return true
	case "WORD", "FDB":
		s.emitBytes(ln, 2)
		return true
	case "LONG":
		s.emitBytes(ln, 4)
		return true
	case "REAL":
		s.emitBytes(ln, 4) // simplified: treat as 32-bit values, not IEEE-encoded floats
		return true
	case "BITS":
		s.emitBits(ln)
		return true
	case "CMAP":
		s.emitBytes(ln, 1)
		return true
	case "FILL":
		s.directiveFill(ln)
		return true
	case "BSS", "RMB":
		s.directiveBSS(ln)
		return true
	case "ALIGN":
		s.directiveAlign(ln)
		return true
	case "C5TO3":
		s.directiveC5to3(ln)
		return true
	case "STORE":
		s.directiveStore(ln)
		return true
	case "LOAD":
		s.directiveLoad(ln)
		return true
	case "LIST":
		s.ListOn = ln.Operand != "-"
		return true
	case "CASE":
		s.Sym.FoldCase = ln.Operand == "-"
		return true
	case "CPU":
		switch strings.TrimSpace(strings.TrimPrefix(ln.Operand, "=")) {
		case "6309":
			s.CPU = m6809.CPU6309
		case "6809":
			s.CPU = m6809.CPU6809
		default:
			s.fail(asmerr.Syntax, "CPU must be 6809 or 6309")
		}
		return true
	case "END":
		s.Ended = true
		return true
	case "SIZE", "TTL", "INTERN", "EXTERN":
		return true // listing-only, no-ops for the ROM image
	case "MODULE", "SUBROUTINE":
		s.Sym.EnterScope(ln.Label)
		if ln.Label != "" {
			s.defineLabelHere(ln.Label, 0)
		}
		return true
	case "ENDMOD", "ENDSUB":
		s.Sym.ExitScope()
		return true
	case "MACRO", "ENDM":
		return true // recording is handled by the line reader, not here
	case "IF", "IFDEF", "IFNDEF":
		s.directiveIf(m, ln.Operand)
		return true
	case "ELSE":
		if err := s.Cond.Else(); err != nil {
			s.fail(asmerr.Structural, "%v", err)
		}
		return true
	case "ENDIF":
		if err := s.Cond.Endif(); err != nil {
			s.fail(asmerr.Structural, "%v", err)
		}
		return true
	}
	if strings.HasPrefix(m, "#") {
		if !s.Cond.Skipping() {
			s.fail(asmerr.Structural, "%s", ln.Operand)
		}
		return true
	}
	return false
}

func (s *State) defineConstant(ln Line) {
	if ln.Label == "*" {
		v, err := s.evalInt(ln.Operand)
		if err == nil && v.Defined {
			s.PC = v.N & 0xFFFF
		}
		return
	}
	if ln.Label == "&" {
		v, err := s.evalInt(ln.Operand)
		if err == nil && v.Defined {
			s.BSS = v.N & 0xFFFF
		}
		return
	}
	if ln.Label == "" {
		return
	}
	if IsReservedWord(ln.Label) {
		s.fail(asmerr.IllegalForm, "%s is a reserved word", ln.Label)
		return
	}
	v, err := s.evalInt(ln.Operand)
	if err != nil {
		s.fail(asmerr.Syntax, "%v", err)
		return
	}
	if ok, dup := s.Sym.DefineConstant(ln.Label, v); !ok && dup {
		s.fail(asmerr.Duplicate, "%s redefined", ln.Label)
	}
}

func (s *State) defineEnum(ln Line) {
	if ln.Label == "" {
		return
	}
	var explicit *expr.Value
	if ln.Operand != "" {
		v, err := s.evalInt(ln.Operand)
		if err != nil {
			s.fail(asmerr.Syntax, "%v", err)
			return
		}
		explicit = &v
	}
	if _, ok, dup := s.Sym.Enum(ln.Label, explicit); !ok && dup {
		s.fail(asmerr.Duplicate, "%s redefined", ln.Label)
	}
}

func (s *State) defineLabelHere(name string, objLen int) {
	if IsReservedWord(name) {
		s.fail(asmerr.IllegalForm, "%s is a reserved word", name)
		return
	}
	if ok, dup := s.Sym.DefineLabel(name, expr.Num(s.PC), objLen); !ok && dup {
		s.fail(asmerr.Duplicate, "%s redefined", name)
	}
	s.Sym.AddReference(name, s.CurLine, true, "")
}

func (s *State) emitBytes(ln Line, width int) {
	if ln.Label != "" {
		s.defineLabelHere(ln.Label, 0)
	}
	trees, err := s.evalList(ln.Operand)
	if err != nil {
		s.fail(asmerr.Syntax, "%v", err)
		return
	}
	start := s.PC
	for _, t := range trees {
		if t.IsString() {
			str := t.StringValue()
			for i := 0; i < len(str); i++ {
				s.emitWidth(int(str[i]), 1)
			}
			continue
		}
		v := t.Eval(s.Sym)
		n := 0
		if v.Defined {
			n = v.N
		}
		s.emitWidth(n, width)
	}
	if ln.Label != "" {
		if sym := s.Sym.Get(ln.Label); sym != nil {
			sym.Length = s.PC - start
		}
	}
	if s.Pass2 && s.ListOn {
		data := make([]byte, (s.PC-start)&0xFFFF)
		for i := range data {
			data[i] = s.ROM[(start+i)&0xFFFF]
		}
		s.Listing = append(s.Listing, ListLine{
			LineNo: s.CurLine, PC: start, Bytes: data,
			Source: ln.Mnemonic + " " + ln.Operand, File: s.CurFile,
		})
	}
}

func (s *State) emitWidth(n, width int) {
	var b []byte
	switch width {
	case 1:
		b = []byte{byte(n)}
	case 2:
		b = []byte{byte(n >> 8), byte(n)}
	case 4:
		b = []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
	if err := s.WriteBytes(s.PC, b); err != nil {
		s.fail(asmerr.Overwrite, "%v", err)
	}
	s.PC = (s.PC + len(b)) & 0xFFFF
}

// emitBits packs a list of 0/1 values eight to a byte, most
// significant first.
func (s *State) emitBits(ln Line) {
	if ln.Label != "" {
		s.defineLabelHere(ln.Label, 0)
	}
	trees, err := s.evalList(ln.Operand)
	if err != nil {
		s.fail(asmerr.Syntax, "%v", err)
		return
	}
	var cur byte
	count := 0
	for _, t := range trees {
		v := t.Eval(s.Sym)
		cur <<= 1
		if v.Defined && v.N != 0 {
			cur |= 1
		}
		count++
		if count == 8 {
			s.emitWidth(int(cur), 1)
			cur, count = 0, 0
		}
	}
	if count > 0 {
		cur <<= byte(8 - count)
		s.emitWidth(int(cur), 1)
	}
}

func (s *State) directiveFill(ln Line) {
	parts := splitTopLevelCommaAll(ln.Operand)
	if len(parts) == 0 {
		s.fail(asmerr.Syntax, "FILL requires a count")
		return
	}
	countV, err := s.evalInt(parts[0])
	if err != nil {
		s.fail(asmerr.Syntax, "%v", err)
		return
	}
	value := 0
	if len(parts) > 1 {
		v, err := s.evalInt(parts[1])
		if err != nil {
			s.fail(asmerr.Syntax, "%v", err)
			return
		}
		value = v.N
	}
	if ln.Label != "" {
		s.defineLabelHere(ln.Label, countV.N)
	}
	for i := 0; i < countV.N; i++ {
		s.emitWidth(value, 1)
	}
}

func (s *State) directiveBSS(ln Line) {
	n := 1
	if ln.Operand != "" {
		v, err := s.evalInt(ln.Operand)
		if err != nil {
			s.fail(asmerr.Syntax, "%v", err)
			return
		}
		n = v.N
	}
	if ln.Label != "" {
		if IsReservedWord(ln.Label) {
			s.fail(asmerr.IllegalForm, "%s is a reserved word", ln.Label)
		} else if ok, dup := s.Sym.DefineBSS(ln.Label, expr.Num(s.BSS), n); !ok && dup {
			s.fail(asmerr.Duplicate, "%s redefined", ln.Label)
		}
	}
	s.BSS = (s.BSS + n) & 0xFFFF
}

func (s *State) directiveAlign(ln Line) {
	v, err := s.evalInt(ln.Operand)
	if err != nil || !v.Defined || v.N <= 0 {
		s.fail(asmerr.Syntax, "ALIGN requires a positive constant")
		return
	}
	rem := s.PC % v.N
	if rem != 0 {
		pad := v.N - rem
		for i := 0; i < pad; i++ {
			s.emitWidth(0, 1)
		}
	}
}

// directiveC5to3 packs a string of up to 5-bit characters, three
// 8-bit bytes holding five such characters (a DP/teletype style
// packed-text format used by classic 6809 monitors).
func (s *State) directiveC5to3(ln Line) {
	str := strings.Trim(strings.TrimSpace(ln.Operand), `"`)
	var codes []byte
	for i := 0; i < len(str); i++ {
		c := str[i]
		if c >= 'a' && c <= 'z' {
			c -= 32
		}
		codes = append(codes, (c&0x1F))
	}
	for len(codes)%5 != 0 {
		codes = append(codes, 0)
	}
	for i := 0; i < len(codes); i += 5 {
		chunk := codes[i : i+5]
		var v uint32
		for _, c := range chunk {
			v = v<<5 | uint32(c)
		}
		s.emitWidth(int(v>>17)&0xFF, 1)
		s.emitWidth(int(v>>9)&0xFF, 1)
		s.emitWidth(int(v>>1)&0xFF, 1)
	}
}

func (s *State) directiveStore(ln Line) {
	parts := splitTopLevelCommaAll(ln.Operand)
	if len(parts) < 3 {
		s.fail(asmerr.Syntax, "STORE requires start,len,\"path\"[,fmt[,entry]]")
		return
	}
	startV, err1 := s.evalInt(parts[0])
	lenV, err2 := s.evalInt(parts[1])
	if err1 != nil || err2 != nil {
		s.fail(asmerr.Syntax, "STORE: bad start/len expression")
		return
	}
	path := strings.Trim(strings.TrimSpace(parts[2]), `"`)
	format := "BIN"
	if len(parts) > 3 {
		format = strings.ToUpper(strings.TrimSpace(parts[3]))
	}
	req := StoreRequest{Start: startV.N, Len: lenV.N, Path: path, Format: format}
	if len(parts) > 4 {
		entryV, err := s.evalInt(parts[4])
		if err == nil && entryV.Defined {
			req.Entry, req.HasEntry = entryV.N, true
		}
	}
	if s.Pass2 {
		s.Stores = append(s.Stores, req)
	}
}

// directiveLoad implements "LOAD [addr,] \"path\"": read path's bytes
// into the ROM image at addr (or the current PC if addr is absent, in
// which case the PC advances past the loaded bytes). Overwriting an
// already-written byte with a different value is the same Overwrite
// error WriteBytes reports for any other emitter.
func (s *State) directiveLoad(ln Line) {
	parts := splitTopLevelCommaAll(ln.Operand)
	if len(parts) == 0 {
		s.fail(asmerr.Syntax, "LOAD requires a path")
		return
	}
	var addrExpr, pathExpr string
	advancePC := false
	if len(parts) == 1 {
		pathExpr = parts[0]
		advancePC = true
	} else {
		addrExpr, pathExpr = parts[0], parts[1]
	}
	path := strings.Trim(strings.TrimSpace(pathExpr), `"`)
	if s.Loader == nil {
		s.fail(asmerr.Structural, "LOAD: no file loader configured")
		return
	}
	data, err := s.Loader(path)
	if err != nil {
		s.fail(asmerr.Structural, "cannot open %s: %v", path, err)
		return
	}
	addr := s.PC
	if addrExpr != "" {
		v, err := s.evalInt(addrExpr)
		if err != nil || !v.Defined {
			s.fail(asmerr.Syntax, "LOAD: bad address expression")
			return
		}
		addr = v.N & 0xFFFF
	}
	if err := s.WriteBytes(addr, data); err != nil {
		s.fail(asmerr.Overwrite, "%v", err)
		return
	}
	if advancePC {
		s.PC = (addr + len(data)) & 0xFFFF
	}
}

func (s *State) directiveIf(kind, operand string) {
	var cond bool
	switch kind {
	case "IF":
		v, err := s.evalInt(operand)
		cond = err == nil && v.Defined && v.N != 0
	case "IFDEF":
		v, err := s.evalInt(operand)
		cond = err == nil && v.Defined
	case "IFNDEF":
		v, err := s.evalInt(operand)
		cond = err != nil || !v.Defined
	}
	if err := s.Cond.PushIf(cond); err != nil {
		s.fail(asmerr.Structural, "%v", err)
	}
}
