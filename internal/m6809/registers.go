package m6809

import "strings"

// PushPullMask maps a register name to its bit in the PSHS/PULS/PSHU/
// PULU post-byte mask, per §4.6. Register lists are split on commas
// and each name is looked up whole, so "DP" and "D" never collide.
var PushPullMask = map[string]byte{
	"CC": 0x01,
	"A":  0x02,
	"B":  0x04,
	"D":  0x06,
	"DP": 0x08,
	"X":  0x10,
	"Y":  0x20,
	"S":  0x40,
	"U":  0x40,
	"PC": 0x80,
}

// TFRRegNibble maps a register name to its 4-bit EXG/TFR nibble
// index. Nibble 13 (the "0" pseudo-register, 6309 only) is exempt
// from the 8/16-bit type-mixing check.
var TFRRegNibble = map[string]byte{
	"D": 0x0, "X": 0x1, "Y": 0x2, "U": 0x3, "S": 0x4, "PC": 0x5,
	"W": 0x6, "V": 0x7,
	"A": 0x8, "B": 0x9, "CC": 0xA, "DP": 0xB,
	"0": 0xD, "E": 0xE, "F": 0xF,
}

// Is16BitNibble reports whether a TFR/EXG register nibble addresses a
// 16-bit register (nibbles 0-7) as opposed to an 8-bit one (8-F). The
// pseudo-register (nibble 13) is exempt from the mixing check.
func Is16BitNibble(n byte) bool { return n <= 0x7 }

// IsPseudoRegNibble reports whether n is the 6309 "0" pseudo-register,
// exempt from the EXG/TFR 8-vs-16-bit type mismatch check.
func IsPseudoRegNibble(n byte) bool { return n == 0xD }

// IndexRegCode maps an indexed-addressing base register to its 2-bit
// field within the post-byte (bits 6:5).
var IndexRegCode = map[string]byte{
	"X": 0x00, "Y": 0x20, "U": 0x40, "S": 0x60,
}

// AccumulatorOffsetSuffix maps an accumulator-offset indexed form
// (A,R / B,R / D,R / E,R / F,R / W,R) to its post-byte suffix field.
var AccumulatorOffsetSuffix = map[string]byte{
	"A": 0x06, "B": 0x05, "D": 0x0B, "E": 0x07, "F": 0x0A, "W": 0x0E,
}

// RegBitField maps the CC/A/B register used by BAND/BOR/... to its
// 2-bit post-byte field (§4.6 rule 7).
var RegBitField = map[string]byte{
	"CC": 0x00, "A": 0x40, "B": 0x80,
}

// ParseRegisterList splits a PSHS/PULS/PSHU/PULU operand into
// register names, expanding "ALL" to the full set and otherwise
// splitting on commas (spaces are removed first).
func ParseRegisterList(operand string) []string {
	operand = strings.ToUpper(strings.ReplaceAll(operand, " ", ""))
	if operand == "ALL" {
		return []string{"CC", "A", "B", "DP", "X", "Y", "S", "PC"}
	}
	return strings.Split(operand, ",")
}

// RegisterListMask computes the PSHS/PULS/PSHU/PULU bitmask for a
// parsed register list.
func RegisterListMask(regs []string) (mask byte, unknown string) {
	for _, r := range regs {
		r = strings.ToUpper(strings.TrimSpace(r))
		if r == "ALL" {
			return 0xFF, ""
		}
		b, ok := PushPullMask[r]
		if !ok {
			return 0, r
		}
		mask |= b
	}
	return mask, ""
}

// TFMOpcode selects one of the four TFM opcodes (0x1138-0x113B) based
// on the increment/decrement pattern of its two register operands.
// srcInc and dstInc are positive for R+, negative for R-, and 0 for a
// plain R.
func TFMOpcode(srcInc, dstInc int) (Opcode, bool) {
	switch {
	case srcInc > 0 && dstInc > 0:
		return op11(0x38), true
	case srcInc < 0 && dstInc < 0:
		return op11(0x39), true
	case srcInc > 0 && dstInc == 0:
		return op11(0x3A), true
	case srcInc == 0 && dstInc > 0:
		return op11(0x3B), true
	default:
		return Opcode{}, false
	}
}
