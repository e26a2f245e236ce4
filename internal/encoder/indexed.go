package encoder

import (
	"fmt"
	"strings"

	"github.com/beevik/bs9/internal/expr"
	"github.com/beevik/bs9/internal/m6809"
)

// encodeIndexed implements the indexed post-byte table of §4.6:
// accumulator-offset forms, the W-register special forms, auto-inc/
// dec forms, constant-offset forms (5/8/16-bit), and PC-relative
// forms. indirect is true when the caller unwrapped "[...]" brackets.
func encodeIndexed(mnemonic string, inst *m6809.Inst, operand string, indirect bool, ctx Context) (Result, error) {
	if inst.Indexed == nil {
		return Result{}, fmt.Errorf("%s does not support indexed addressing", mnemonic)
	}
	left, right, ok := splitTopLevelComma(operand)
	if !ok {
		return Result{}, fmt.Errorf("%s: malformed indexed operand %q", mnemonic, operand)
	}
	rightUpper := strings.ToUpper(right)
	base := strings.ToUpper(right)
	forced := m6809.Mode(0)

	// Accumulator-offset form: "A,R"/"B,R"/"D,R"/"E,R"/"F,R"/"W,R"
	// where R is a plain base register (no inc/dec marks on it).
	if suffix, ok := m6809.AccumulatorOffsetSuffix[strings.ToUpper(left)]; ok {
		if rc, ok := m6809.IndexRegCode[base]; ok {
			pb := byte(0x80) | rc | suffix
			if indirect {
				pb |= 0x10
			}
			return finish(inst, pb, nil)
		}
	}

	// W-register special forms (base register is W itself).
	if isWForm(rightUpper) {
		return encodeWForm(inst, left, rightUpper, indirect, ctx)
	}

	// PC-relative forms ("offset,PCR"/"offset,PC"). Must be checked
	// before the IndexRegCode lookup below: PCR/PC aren't in that
	// table (they aren't base registers), so falling through to it
	// would misreport them as an unknown index register.
	if base == "PCR" || base == "PC" {
		if left == "" {
			return Result{}, fmt.Errorf("%s: PCR/PC indexed form requires an offset expression", mnemonic)
		}
		return encodePCRelative(inst, left, indirect, ctx)
	}

	rc, ok := m6809.IndexRegCode[base]
	noIncDec := ok
	incDec := 0
	if !noIncDec {
		// Base register carries +/++/-/-- marks: strip them.
		trimmed, n := stripIncDec(rightUpper)
		rc, ok = m6809.IndexRegCode[trimmed]
		if !ok {
			return Result{}, fmt.Errorf("%s: unknown index register in %q", mnemonic, right)
		}
		incDec = n
	}

	if left == "" {
		// No offset: auto-inc/dec or plain ",R".
		var sub byte
		switch incDec {
		case 1: // ,R+
			sub = 0x00
		case 2: // ,R++
			sub = 0x01
		case -1: // ,-R
			sub = 0x02
		case -2: // ,--R
			sub = 0x03
		default: // ,R
			sub = 0x04
		}
		pb := byte(0x80) | rc | sub
		if indirect {
			if incDec == 1 || incDec == -1 {
				return Result{}, fmt.Errorf("%s: single inc/dec form cannot be indirect", mnemonic)
			}
			pb |= 0x10
		}
		return finish(inst, pb, nil)
	}

	v, force, err := evalExpr(left, ctx)
	if err != nil {
		return Result{}, err
	}
	if force == expr.ForceLow {
		forced = m6809.ModeDirect
	} else if force == expr.ForceHigh {
		forced = m6809.ModeExtended
	}

	use5 := !indirect && forced == 0 && v.Defined && v.N >= -16 && v.N <= 15
	if ctx.Pass2 && ctx.LockedLen != nil {
		if n, ok := ctx.LockedLen(ctx.PC); ok {
			use5 = n == inst.Indexed.Len()+1
		}
	}
	if use5 {
		pb := rc | byte(v.N&0x1F)
		return finish(inst, pb, nil)
	}

	use8 := forced == m6809.ModeDirect || (forced == 0 && v.Defined && v.N >= -128 && v.N <= 127)
	if ctx.Pass2 && ctx.LockedLen != nil {
		if n, ok := ctx.LockedLen(ctx.PC); ok {
			dirLen := inst.Indexed.Len() + 2
			extLen := inst.Indexed.Len() + 3
			if n == dirLen {
				use8 = true
			} else if n == extLen {
				use8 = false
			}
		}
	}
	if use8 {
		pb := byte(0x80) | rc | 0x08
		if indirect {
			pb |= 0x10
		}
		return finish(inst, pb, []byte{byte(v.N)})
	}
	pb := byte(0x80) | rc | 0x09
	if indirect {
		pb |= 0x10
	}
	return finish(inst, pb, []byte{byte(v.N >> 8), byte(v.N)})
}

// encodePCRelative handles "offset,PCR"/"offset,PC": the displacement
// is relative to the address after the instruction (§4.6), with the
// same 8-bit/16-bit sticky selection across passes as the constant-
// offset forms above.
func encodePCRelative(inst *m6809.Inst, left string, indirect bool, ctx Context) (Result, error) {
	v, force, err := evalExpr(left, ctx)
	if err != nil {
		return Result{}, err
	}
	use16 := force == expr.ForceHigh
	afterLen := inst.Indexed.Len() + 2
	disp8 := 0
	if v.Defined {
		disp8 = v.N - (ctx.PC + afterLen)
	}
	if !use16 && (disp8 < -128 || disp8 > 127) {
		use16 = true
	}
	if ctx.Pass2 && ctx.LockedLen != nil {
		if n, ok := ctx.LockedLen(ctx.PC); ok {
			use16 = n == inst.Indexed.Len()+3
		}
	}
	if use16 {
		disp := 0
		if v.Defined {
			disp = v.N - (ctx.PC + inst.Indexed.Len() + 3)
		}
		pb := byte(0x8D)
		if indirect {
			pb |= 0x10
		}
		return finish(inst, pb, []byte{byte(disp >> 8), byte(disp)})
	}
	pb := byte(0x8C)
	if indirect {
		pb |= 0x10
	}
	return finish(inst, pb, []byte{byte(disp8)})
}

func finish(inst *m6809.Inst, postbyte byte, extra []byte) (Result, error) {
	bytes := append(append([]byte{}, inst.Indexed.Bytes()...), postbyte)
	bytes = append(bytes, extra...)
	return Result{Mode: m6809.ModeIndexed, Bytes: bytes}, nil
}

func isWForm(rightUpper string) bool {
	return rightUpper == "W" || rightUpper == "W++" || rightUpper == "--W"
}

// stripIncDec strips trailing/leading +/- marks from a base register
// token, returning the bare register name and a signed inc/dec code:
// +1 = single post-increment, +2 = double, -1/-2 = pre-decrement.
func stripIncDec(s string) (reg string, code int) {
	switch {
	case strings.HasSuffix(s, "++"):
		return strings.TrimSuffix(s, "++"), 2
	case strings.HasSuffix(s, "+"):
		return strings.TrimSuffix(s, "+"), 1
	case strings.HasPrefix(s, "--"):
		return strings.TrimPrefix(s, "--"), -2
	case strings.HasPrefix(s, "-"):
		return strings.TrimPrefix(s, "-"), -1
	default:
		return s, 0
	}
}

// encodeWForm handles the eight W-register special indexed forms
// (,W ,W++ ,--W n,W, each plain or indirect),
// which replace the generic offset encoding entirely when the base
// register is W (6309 only).
func encodeWForm(inst *m6809.Inst, left, rightUpper string, indirect bool, ctx Context) (Result, error) {
	switch {
	case left == "" && rightUpper == "W":
		if indirect {
			return finish(inst, 0x90, nil)
		}
		return finish(inst, 0x8F, nil)
	case left == "" && rightUpper == "W++":
		if indirect {
			return finish(inst, 0xD0, nil)
		}
		return finish(inst, 0xCF, nil)
	case left == "" && rightUpper == "--W":
		if indirect {
			return finish(inst, 0xF0, nil)
		}
		return finish(inst, 0xEF, nil)
	case left != "" && rightUpper == "W":
		v, _, err := evalExpr(left, ctx)
		if err != nil {
			return Result{}, err
		}
		if indirect {
			return finish(inst, 0xB0, []byte{byte(v.N >> 8), byte(v.N)})
		}
		return finish(inst, 0xAF, []byte{byte(v.N >> 8), byte(v.N)})
	default:
		return Result{}, fmt.Errorf("malformed W-register indexed operand %q,%q", left, rightUpper)
	}
}
