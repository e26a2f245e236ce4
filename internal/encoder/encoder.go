// Package encoder selects an addressing mode for a (mnemonic, operand)
// pair and emits the opcode, post-byte, and operand bytes, following
// the nine-step selection order and indexed post-byte rules.
//
// The teacher assembler's cpu package never needed this: the 6502 has
// a fixed one-byte-per-opcode, fixed-length-per-mode instruction set,
// so its encode step is a table lookup (cpu/instructions.go). Here the
// mnemonic->mode->opcode indirection, the variable-length indexed
// post-byte, and the two-pass length lock are new, but Result mirrors
// the teacher's habit of returning a small value struct the pass
// driver appends to the ROM image rather than writing bytes directly.
package encoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/bs9/internal/expr"
	"github.com/beevik/bs9/internal/m6809"
	"github.com/beevik/bs9/internal/text"
)

func newScan(s string) text.Scan { return text.New("", 0, s) }

// Context carries everything the encoder needs beyond the mnemonic
// and operand text. Resolver is used to evaluate sub-expressions.
type Context struct {
	CPU      m6809.CPU
	PC       int // address of the first byte of this instruction
	SETDP    int // current direct-page assumption, high byte 0-255
	Pass2    bool
	Resolver expr.Resolver

	// LockedLen returns the instruction length recorded for this PC
	// during pass 1, if any. Only consulted when Pass2 is true, to
	// make the Direct/Extended and PCR-width choices sticky (§4.6.9).
	LockedLen func(pc int) (int, bool)

	// Optimize enables the peephole rewrites of §4.6: short/long
	// branch auto-promotion and shrinking, JMP-to-BRA, and the
	// JSR-to-BSR hint. false reproduces each mnemonic's natural form
	// unconditionally, erroring on overflow instead of rewriting.
	Optimize bool

	// Hint, if non-nil, receives a one-line optimization hint (the
	// JSR-that-could-be-BSR rule, which is reported rather than
	// applied since shrinking JSR would shift subsequent addresses).
	// Only called when Optimize is true.
	Hint func(pc int, message string)
}

// Result is a fully encoded instruction.
type Result struct {
	Mode  m6809.Mode
	Bytes []byte
}

func (r Result) Len() int { return len(r.Bytes) }

// Encode selects an addressing mode for mnemonic/operand and encodes
// it. mnemonic must already be upper-cased; operand is the raw
// post-mnemonic text with any trailing comment already stripped.
func Encode(mnemonic, operand string, ctx Context) (Result, error) {
	inst := m6809.Lookup(mnemonic)
	if inst == nil {
		return Result{}, fmt.Errorf("unknown mnemonic %q", mnemonic)
	}
	if inst.CPU6309 && ctx.CPU != m6809.CPU6309 {
		return Result{}, fmt.Errorf("%s is a 6309-only instruction", mnemonic)
	}
	operand = strings.TrimSpace(operand)

	// 1. Inherent: no operand.
	if operand == "" && inst.Inherent != nil && !inst.RegisterList && !inst.RegisterPair {
		return Result{Mode: m6809.ModeInherent, Bytes: inst.Inherent.Bytes()}, nil
	}

	// 2. Register list / register pair / TFM.
	switch {
	case inst.RegisterList:
		return encodeRegisterList(inst, operand)
	case inst.RegisterPair:
		return encodeRegisterPair(inst, operand)
	case inst.TFMForm:
		return encodeTFM(inst, operand)
	}

	// 3. Relative (short/long branch).
	if inst.Relative != nil || inst.RelativeLong != nil {
		return encodeRelative(mnemonic, inst, operand, ctx)
	}

	// 4. Immediate-to-memory: "#value, address".
	if inst.ImmToMem != nil {
		return encodeImmToMem(mnemonic, inst, operand, ctx)
	}

	// 5. Immediate.
	if strings.HasPrefix(operand, "#") {
		return encodeImmediate(mnemonic, inst, operand[1:], ctx)
	}

	// 6. Indirect (brackets) — extended-indirect or indexed-indirect.
	if strings.HasPrefix(operand, "[") && strings.HasSuffix(operand, "]") {
		inner := strings.TrimSpace(operand[1 : len(operand)-1])
		if !containsTopLevelComma(inner) {
			v, _, err := evalExpr(inner, ctx)
			if err != nil {
				return Result{}, err
			}
			b := []byte{0x9F, byte(v.N >> 8), byte(v.N)}
			return Result{Mode: m6809.ModeIndexed, Bytes: append(inst.Indexed.Bytes(), b...)}, nil
		}
		return encodeIndexed(mnemonic, inst, inner, true, ctx)
	}

	// 7. Register-bit form: contains both ',' and '.'.
	if inst.RegBit != nil && containsTopLevelComma(operand) && strings.Contains(operand, ".") {
		return encodeRegisterBit(inst, operand, ctx)
	}

	// 8. Indexed: contains ','.
	if containsTopLevelComma(operand) {
		return encodeIndexed(mnemonic, inst, operand, false, ctx)
	}

	// 9. Direct or Extended.
	if ctx.Optimize && (mnemonic == "JMP" || mnemonic == "JSR") {
		if res, ok, err := encodeJumpHint(mnemonic, inst, operand, ctx); ok {
			return res, err
		}
	}
	return encodeDirectOrExtended(mnemonic, inst, operand, ctx)
}

// encodeJumpHint implements the two optimizer rules that target JMP
// and JSR specifically (§4.6 peephole rules 5-6): a backward JMP
// extended whose target sits within -128..-1 of the next PC is
// rewritten to a BRA (strictly shrinking, safe to decide identically
// in both passes since it's a pure function of the phase-stable
// target value); a JSR extended within BSR's signed range is only
// reported as a hint, never rewritten, because shrinking JSR to BSR
// would shift every subsequent address and isn't safe mid-pass. ok is
// false when neither rule applies, so the caller falls through to the
// ordinary Direct/Extended dispatch.
func encodeJumpHint(mnemonic string, inst *m6809.Inst, operand string, ctx Context) (Result, bool, error) {
	if inst.Extended == nil || strings.Contains(operand, ",") || strings.HasPrefix(operand, "[") {
		return Result{}, false, nil
	}
	v, fflag, err := evalExpr(operand, ctx)
	if err != nil || !v.Defined || fflag == expr.ForceLow {
		return Result{}, false, nil
	}
	// Skip the rewrite when Direct addressing would apply anyway;
	// both rules are phrased in terms of the Extended form.
	if inst.Direct != nil && fflag != expr.ForceHigh && (v.N>>8)&0xFF == ctx.SETDP {
		return Result{}, false, nil
	}

	if mnemonic == "JMP" {
		disp := v.N - (ctx.PC + 2)
		if disp >= -128 && disp <= -1 {
			return Result{Mode: m6809.ModeRelative, Bytes: []byte{0x20, byte(disp)}}, true, nil
		}
		return Result{}, false, nil
	}

	// JSR: report, never rewrite.
	disp := v.N - (ctx.PC + 2)
	if disp >= -128 && disp <= 127 && ctx.Hint != nil {
		ctx.Hint(ctx.PC, fmt.Sprintf("JSR $%04X could be BSR (displacement %d)", v.N, disp))
	}
	return Result{}, false, nil
}

func evalExpr(exprText string, ctx Context) (expr.Value, expr.Force, error) {
	var p expr.Parser
	line := newScan(exprText)
	tree, _, err := p.Parse(line, expr.AllowParens)
	if err != nil {
		return expr.Undef, expr.ForceNone, err
	}
	if len(p.Errors) > 0 {
		return expr.Undef, expr.ForceNone, fmt.Errorf("%s", p.Errors[0].Msg)
	}
	v := tree.Eval(ctx.Resolver)
	if ctx.Pass2 && !v.Defined {
		// UNDEF operands are tolerated in pass 1 only.
		return expr.Undef, expr.ForceNone, fmt.Errorf("undefined symbol in %q", exprText)
	}
	return v, tree.Force(), nil
}

func containsTopLevelComma(s string) bool {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == ',' && depth == 0:
			return true
		}
	}
	return false
}

// splitTopLevelComma splits on the first comma not nested inside
// brackets, parens, or quotes.
func splitTopLevelComma(s string) (left, right string, ok bool) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == ',' && depth == 0:
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
		}
	}
	return s, "", false
}

func immediateSize(mnemonic string, inst *m6809.Inst) int {
	if inst.ImmBytes != 0 {
		return inst.ImmBytes
	}
	switch mnemonic {
	case "LDMD", "CWAI":
		return 1
	}
	last := mnemonic[len(mnemonic)-1]
	switch last {
	case 'D', 'X', 'Y', 'W', 'S', 'U':
		return 2
	case 'Q':
		return 4
	default:
		return 1
	}
}

func encodeImmediate(mnemonic string, inst *m6809.Inst, operandText string, ctx Context) (Result, error) {
	if inst.Immediate == nil {
		return Result{}, fmt.Errorf("%s does not support immediate addressing", mnemonic)
	}
	v, _, err := evalExpr(operandText, ctx)
	if err != nil {
		return Result{}, err
	}
	n := immediateSize(mnemonic, inst)
	bytes := append([]byte{}, inst.Immediate.Bytes()...)
	if v.Defined {
		switch n {
		case 1:
			if v.N < -128 || v.N > 255 {
				return Result{}, fmt.Errorf("immediate value %d out of 8-bit range", v.N)
			}
			bytes = append(bytes, byte(v.N))
		case 2:
			bytes = append(bytes, byte(v.N>>8), byte(v.N))
		case 4:
			bytes = append(bytes, byte(v.N>>24), byte(v.N>>16), byte(v.N>>8), byte(v.N))
		}
	} else {
		bytes = append(bytes, make([]byte, n)...)
	}
	return Result{Mode: m6809.ModeImmediate, Bytes: bytes}, nil
}

func encodeImmToMem(mnemonic string, inst *m6809.Inst, operand string, ctx Context) (Result, error) {
	valText, addrText, ok := splitTopLevelComma(operand)
	if !ok {
		return Result{}, fmt.Errorf("%s requires '#value,address' operand", mnemonic)
	}
	valText = strings.TrimPrefix(strings.TrimSpace(valText), "#")
	v, _, err := evalExpr(valText, ctx)
	if err != nil {
		return Result{}, err
	}
	addr, err := encodeImmToMemAddress(mnemonic, addrText, ctx)
	if err != nil {
		return Result{}, err
	}
	bytes := append([]byte{}, inst.ImmToMem.Bytes()...)
	bytes = append(bytes, byte(v.N))
	// Drop the placeholder opcode byte produced by the address
	// sub-encode; keep only the address operand bytes (direct, indexed
	// post-byte, or extended).
	bytes = append(bytes, addr.Bytes[1:]...)
	return Result{Mode: m6809.ModeImmToMem, Bytes: bytes}, nil
}

// encodeImmToMemAddress encodes the address operand of an immediate-
// to-memory instruction (OIM/AIM/EIM/TIM), which per §4.6.4 may take
// any of direct, indexed, or extended addressing, unlike a plain
// Direct/Extended-only instruction. It mirrors Encode's steps 6, 8,
// and 9 against a placeholder instruction whose single opcode byte the
// caller discards.
func encodeImmToMemAddress(mnemonic, addrText string, ctx Context) (Result, error) {
	placeholder := &m6809.Inst{
		Mnemonic: mnemonic,
		Direct:   &m6809.Opcode{},
		Indexed:  &m6809.Opcode{},
		Extended: &m6809.Opcode{},
	}

	if strings.HasPrefix(addrText, "[") && strings.HasSuffix(addrText, "]") {
		inner := strings.TrimSpace(addrText[1 : len(addrText)-1])
		if !containsTopLevelComma(inner) {
			v, _, err := evalExpr(inner, ctx)
			if err != nil {
				return Result{}, err
			}
			b := []byte{0x9F, byte(v.N >> 8), byte(v.N)}
			return Result{Mode: m6809.ModeIndexed, Bytes: append(placeholder.Indexed.Bytes(), b...)}, nil
		}
		return encodeIndexed(mnemonic, placeholder, inner, true, ctx)
	}

	if containsTopLevelComma(addrText) {
		return encodeIndexed(mnemonic, placeholder, addrText, false, ctx)
	}

	return encodeDirectOrExtended(mnemonic, placeholder, addrText, ctx)
}

func encodeDirectOrExtended(mnemonic string, inst *m6809.Inst, operand string, ctx Context) (Result, error) {
	v, fflag, err := evalExpr(operand, ctx)
	if err != nil {
		return Result{}, err
	}
	forced := m6809.Mode(0)
	if fflag == expr.ForceLow {
		forced = m6809.ModeDirect
	} else if fflag == expr.ForceHigh {
		forced = m6809.ModeExtended
	}

	useDirect := false
	switch {
	case forced == m6809.ModeDirect && inst.Direct != nil:
		useDirect = true
	case forced == m6809.ModeExtended:
		useDirect = false
	case inst.Direct != nil && v.Defined && (v.N>>8)&0xFF == ctx.SETDP:
		useDirect = true
	}

	if ctx.Pass2 && ctx.LockedLen != nil {
		if n, ok := ctx.LockedLen(ctx.PC); ok {
			dirLen, extLen := 0, 0
			if inst.Direct != nil {
				dirLen = inst.Direct.Len() + 1
			}
			if inst.Extended != nil {
				extLen = inst.Extended.Len() + 2
			}
			if dirLen != 0 && n == dirLen {
				useDirect = true
			} else if extLen != 0 && n == extLen {
				useDirect = false
			}
		}
	}

	if useDirect {
		return Result{Mode: m6809.ModeDirect, Bytes: append(append([]byte{}, inst.Direct.Bytes()...), byte(v.N))}, nil
	}
	if inst.Extended == nil {
		return Result{}, fmt.Errorf("%s does not support extended addressing", mnemonic)
	}
	return Result{Mode: m6809.ModeExtended, Bytes: append(append([]byte{}, inst.Extended.Bytes()...), byte(v.N>>8), byte(v.N))}, nil
}

// encodeRelative picks between a branch mnemonic's short and long
// forms. Outside the optimizer (ctx.Optimize false), each mnemonic's
// natural form is used as written: a short mnemonic (BRA/Bcc/BSR)
// never promotes itself to long, and an out-of-range displacement is
// a fatal Out-of-range error (§4.6.3); a long mnemonic (LBRA/LBcc/
// LBSR) always emits the long form. With the optimizer on, a short
// mnemonic that overflows promotes to the long opcode (§4.6 peephole
// rule 1-2), and a long mnemonic whose displacement now fits in 8
// bits shrinks to the short opcode (rule 3-4) — both mnemonics share
// one *m6809.Inst with both opcodes recorded, so promotion and
// shrinking are the same code path, just triggered from opposite
// natural forms.
func encodeRelative(mnemonic string, inst *m6809.Inst, operand string, ctx Context) (Result, error) {
	v, _, err := evalExpr(operand, ctx)
	if err != nil {
		return Result{}, err
	}
	useLong := inst.Relative == nil || inst.PreferLong
	var afterLen int
	if inst.Relative != nil {
		afterLen = inst.Relative.Len() + 1
	}
	if inst.RelativeLong != nil && inst.Relative == nil {
		afterLen = inst.RelativeLong.Len() + 2
	}

	switch {
	case !ctx.Optimize:
		// Each mnemonic's natural form is used as written; no
		// promotion or shrinking. Overflowing a short form is fatal.
		if !useLong && v.Defined {
			disp := v.N - (ctx.PC + afterLen)
			if disp < -128 || disp > 127 {
				return Result{}, fmt.Errorf("%s displacement %d out of range (enable the optimizer with -o to auto-promote to a long branch)", mnemonic, disp)
			}
		}

	case !ctx.Pass2:
		// Pass 1 must lock a length pass 2 can only shrink into (§4.6
		// "optimizations never cause phase errors" rule ii): a short
		// mnemonic whose target isn't yet resolved, or is resolved but
		// already overflows, commits to the long form now.
		if !useLong && inst.RelativeLong != nil {
			if !v.Defined {
				useLong = true
			} else if disp := v.N - (ctx.PC + afterLen); disp < -128 || disp > 127 {
				useLong = true
			}
		}

	default:
		// Pass 2: symbol values are final, so recompute the tightest
		// fit from scratch. Shrinking from pass 1's locked long form
		// down to short is safe — the pass driver pads the freed
		// bytes with NOP out to the locked length (§4.6 rule iii).
		if v.Defined {
			switch {
			case useLong && inst.Relative != nil:
				if disp := v.N - (ctx.PC + inst.Relative.Len() + 1); disp >= -128 && disp <= 127 {
					useLong = false
				}
			case !useLong:
				if disp := v.N - (ctx.PC + afterLen); disp < -128 || disp > 127 {
					if inst.RelativeLong == nil {
						return Result{}, fmt.Errorf("%s displacement %d out of range and no long form available", mnemonic, disp)
					}
					useLong = true
				}
			}
		}
	}

	if useLong {
		disp := 0
		if v.Defined {
			disp = v.N - (ctx.PC + inst.RelativeLong.Len() + 2)
		}
		return Result{Mode: m6809.ModeRelativeLong, Bytes: append(append([]byte{}, inst.RelativeLong.Bytes()...), byte(disp>>8), byte(disp))}, nil
	}
	disp := 0
	if v.Defined {
		disp = v.N - (ctx.PC + inst.Relative.Len() + 1)
		if disp < -128 || disp > 127 {
			return Result{}, fmt.Errorf("%s short branch displacement %d out of range", mnemonic, disp)
		}
	}
	return Result{Mode: m6809.ModeRelative, Bytes: append(append([]byte{}, inst.Relative.Bytes()...), byte(disp))}, nil
}

func encodeRegisterList(inst *m6809.Inst, operand string) (Result, error) {
	regs := m6809.ParseRegisterList(operand)
	mask, bad := m6809.RegisterListMask(regs)
	if bad != "" {
		return Result{}, fmt.Errorf("unknown register %q in %s operand", bad, inst.Mnemonic)
	}
	return Result{Mode: m6809.ModeRegisterList, Bytes: append(append([]byte{}, inst.Inherent.Bytes()...), mask)}, nil
}

func encodeRegisterPair(inst *m6809.Inst, operand string) (Result, error) {
	left, right, ok := splitTopLevelComma(operand)
	if !ok {
		return Result{}, fmt.Errorf("%s requires 'Rs,Rd' operand", inst.Mnemonic)
	}
	left, right = strings.ToUpper(left), strings.ToUpper(right)
	ls, lok := m6809.TFRRegNibble[left]
	rs, rok := m6809.TFRRegNibble[right]
	if !lok || !rok {
		return Result{}, fmt.Errorf("unknown register in %s operand %q", inst.Mnemonic, operand)
	}
	lw, rw := m6809.Is16BitNibble(ls), m6809.Is16BitNibble(rs)
	if !m6809.IsPseudoRegNibble(ls) && !m6809.IsPseudoRegNibble(rs) && lw != rw {
		return Result{}, fmt.Errorf("%s: cannot mix 8-bit and 16-bit registers (%s, %s)", inst.Mnemonic, left, right)
	}
	postbyte := ls<<4 | rs
	return Result{Mode: m6809.ModeRegisterPair, Bytes: append(append([]byte{}, inst.Inherent.Bytes()...), postbyte)}, nil
}

func encodeTFM(inst *m6809.Inst, operand string) (Result, error) {
	left, right, ok := splitTopLevelComma(operand)
	if !ok {
		return Result{}, fmt.Errorf("TFM requires 'Rs,Rd' operand")
	}
	srcReg, srcInc := parseTFMReg(left)
	dstReg, dstInc := parseTFMReg(right)
	op, ok := m6809.TFMOpcode(srcInc, dstInc)
	if !ok {
		return Result{}, fmt.Errorf("TFM: unsupported increment/decrement combination %q,%q", left, right)
	}
	sn, sok := m6809.TFRRegNibble[srcReg]
	dn, dok := m6809.TFRRegNibble[dstReg]
	if !sok || !dok {
		return Result{}, fmt.Errorf("TFM: unknown register")
	}
	postbyte := sn<<4 | dn
	return Result{Mode: m6809.ModeTFM, Bytes: append(op.Bytes(), postbyte)}, nil
}

func parseTFMReg(s string) (reg string, inc int) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "+"):
		return strings.ToUpper(strings.TrimSuffix(s, "+")), 1
	case strings.HasSuffix(s, "-"):
		return strings.ToUpper(strings.TrimSuffix(s, "-")), -1
	default:
		return strings.ToUpper(s), 0
	}
}

func encodeRegisterBit(inst *m6809.Inst, operand string, ctx Context) (Result, error) {
	left, right, ok := splitTopLevelComma(operand)
	if !ok {
		return Result{}, fmt.Errorf("%s requires 'Reg.bit,addr.bit' operand", inst.Mnemonic)
	}
	regPart, srcBitText, ok := splitDot(left)
	if !ok {
		return Result{}, fmt.Errorf("%s: malformed register.bit operand", inst.Mnemonic)
	}
	addrText, dstBitText, ok := splitDot(right)
	if !ok {
		return Result{}, fmt.Errorf("%s: malformed address.bit operand", inst.Mnemonic)
	}
	field, ok := m6809.RegBitField[strings.ToUpper(regPart)]
	if !ok {
		return Result{}, fmt.Errorf("%s: unknown register %q", inst.Mnemonic, regPart)
	}
	srcBit, err := strconv.Atoi(strings.TrimSpace(srcBitText))
	if err != nil || srcBit < 0 || srcBit > 7 {
		return Result{}, fmt.Errorf("%s: source bit must be 0-7", inst.Mnemonic)
	}
	dstBit, err := strconv.Atoi(strings.TrimSpace(dstBitText))
	if err != nil || dstBit < 0 || dstBit > 7 {
		return Result{}, fmt.Errorf("%s: destination bit must be 0-7", inst.Mnemonic)
	}
	v, _, err := evalExpr(addrText, ctx)
	if err != nil {
		return Result{}, err
	}
	postbyte := field | byte(srcBit)<<3 | byte(dstBit)
	bytes := append(append([]byte{}, inst.RegBit.Bytes()...), postbyte, byte(v.N))
	return Result{Mode: m6809.ModeRegisterBit, Bytes: bytes}, nil
}

func splitDot(s string) (before, after string, ok bool) {
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
}
