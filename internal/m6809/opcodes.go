package m6809

// Inst describes one mnemonic's supported addressing modes and their
// opcodes. A nil *Opcode means the mnemonic doesn't support that mode.
type Inst struct {
	Mnemonic string
	CPU6309  bool // 6309-only extension; rejected when targeting 6809

	Inherent  *Opcode
	Direct    *Opcode
	Extended  *Opcode
	Indexed   *Opcode
	Immediate *Opcode
	ImmBytes  int // immediate operand size override; 0 means derive from mnemonic's register-size suffix

	Relative     *Opcode // short branch
	RelativeLong *Opcode // long branch (0x10 prefix)
	PreferLong   bool    // mnemonic's natural form is the long branch (e.g. LBRA, LBNE)

	RegisterList bool // PSHS/PULS/PSHU/PULU form
	RegisterPair bool // EXG/TFR form
	TFMForm      bool // TFM form

	ImmToMem  *Opcode // OIM/AIM/EIM/TIM: '#value,address'
	RegBit    *Opcode // BAND/BOR/.../LDBT/STBT
}

func p(b byte) *Opcode   { o := op(b); return &o }
func p10(b byte) *Opcode { o := op10(b); return &o }
func p11(b byte) *Opcode { o := op11(b); return &o }

// Table is the full mnemonic -> addressing-mode-opcode table.
var Table = buildTable()

func buildTable() map[string]*Inst {
	t := make(map[string]*Inst)
	add := func(i *Inst) { t[i.Mnemonic] = i }

	// Read-modify-write group: Direct/Indexed/Extended, plus inherent
	// A/B-register forms under separate mnemonics (NEGA, NEGB, ...).
	rmw := []struct {
		name                          string
		dir, ext, idx, inhA, inhB byte
	}{
		{"NEG", 0x00, 0x70, 0x60, 0x40, 0x50},
		{"COM", 0x03, 0x73, 0x63, 0x43, 0x53},
		{"LSR", 0x04, 0x74, 0x64, 0x44, 0x54},
		{"ROR", 0x06, 0x76, 0x66, 0x46, 0x56},
		{"ASR", 0x07, 0x77, 0x67, 0x47, 0x57},
		{"ASL", 0x08, 0x78, 0x68, 0x48, 0x58},
		{"ROL", 0x09, 0x79, 0x69, 0x49, 0x59},
		{"DEC", 0x0A, 0x7A, 0x6A, 0x4A, 0x5A},
		{"INC", 0x0C, 0x7C, 0x6C, 0x4C, 0x5C},
		{"TST", 0x0D, 0x7D, 0x6D, 0x4D, 0x5D},
		{"CLR", 0x0F, 0x7F, 0x6F, 0x4F, 0x5F},
	}
	for _, r := range rmw {
		add(&Inst{Mnemonic: r.name, Direct: p(r.dir), Extended: p(r.ext), Indexed: p(r.idx)})
		add(&Inst{Mnemonic: r.name + "A", Inherent: p(r.inhA)})
		add(&Inst{Mnemonic: r.name + "B", Inherent: p(r.inhB)})
	}
	// LSL is an alias for ASL.
	add(&Inst{Mnemonic: "LSL", Direct: p(0x08), Extended: p(0x78), Indexed: p(0x68)})
	add(&Inst{Mnemonic: "LSLA", Inherent: p(0x48)})
	add(&Inst{Mnemonic: "LSLB", Inherent: p(0x58)})
	// JMP has no inherent/immediate form.
	add(&Inst{Mnemonic: "JMP", Direct: p(0x0E), Extended: p(0x7E), Indexed: p(0x6E)})

	// Accumulator load/store/arithmetic group: Immediate/Direct/Indexed/Extended.
	acc := []struct {
		name                         string
		imm, dir, idx, ext byte
	}{
		{"SUBA", 0x80, 0x90, 0xA0, 0xB0},
		{"CMPA", 0x81, 0x91, 0xA1, 0xB1},
		{"SBCA", 0x82, 0x92, 0xA2, 0xB2},
		{"ANDA", 0x84, 0x94, 0xA4, 0xB4},
		{"BITA", 0x85, 0x95, 0xA5, 0xB5},
		{"LDA", 0x86, 0x96, 0xA6, 0xB6},
		{"EORA", 0x88, 0x98, 0xA8, 0xB8},
		{"ADCA", 0x89, 0x99, 0xA9, 0xB9},
		{"ORA", 0x8A, 0x9A, 0xAA, 0xBA},
		{"ADDA", 0x8B, 0x9B, 0xAB, 0xBB},
		{"SUBB", 0xC0, 0xD0, 0xE0, 0xF0},
		{"CMPB", 0xC1, 0xD1, 0xE1, 0xF1},
		{"SBCB", 0xC2, 0xD2, 0xE2, 0xF2},
		{"ANDB", 0xC4, 0xD4, 0xE4, 0xF4},
		{"BITB", 0xC5, 0xD5, 0xE5, 0xF5},
		{"LDB", 0xC6, 0xD6, 0xE6, 0xF6},
		{"EORB", 0xC8, 0xD8, 0xE8, 0xF8},
		{"ADCB", 0xC9, 0xD9, 0xE9, 0xF9},
		{"ORB", 0xCA, 0xDA, 0xEA, 0xFA},
		{"ADDB", 0xCB, 0xDB, 0xEB, 0xFB},
	}
	for _, a := range acc {
		add(&Inst{Mnemonic: a.name, Immediate: p(a.imm), Direct: p(a.dir), Indexed: p(a.idx), Extended: p(a.ext), ImmBytes: 1})
	}
	add(&Inst{Mnemonic: "STA", Direct: p(0x97), Indexed: p(0xA7), Extended: p(0xB7)})
	add(&Inst{Mnemonic: "STB", Direct: p(0xD7), Indexed: p(0xE7), Extended: p(0xF7)})

	// 16-bit load/store/arithmetic group.
	add(&Inst{Mnemonic: "SUBD", Immediate: p(0x83), Direct: p(0x93), Indexed: p(0xA3), Extended: p(0xB3), ImmBytes: 2})
	add(&Inst{Mnemonic: "ADDD", Immediate: p(0xC3), Direct: p(0xD3), Indexed: p(0xE3), Extended: p(0xF3), ImmBytes: 2})
	add(&Inst{Mnemonic: "CMPX", Immediate: p(0x8C), Direct: p(0x9C), Indexed: p(0xAC), Extended: p(0xBC), ImmBytes: 2})
	add(&Inst{Mnemonic: "LDX", Immediate: p(0x8E), Direct: p(0x9E), Indexed: p(0xAE), Extended: p(0xBE), ImmBytes: 2})
	add(&Inst{Mnemonic: "STX", Direct: p(0x9F), Indexed: p(0xAF), Extended: p(0xBF)})
	add(&Inst{Mnemonic: "LDD", Immediate: p(0xCC), Direct: p(0xDC), Indexed: p(0xEC), Extended: p(0xFC), ImmBytes: 2})
	add(&Inst{Mnemonic: "STD", Direct: p(0xDD), Indexed: p(0xED), Extended: p(0xFD)})
	add(&Inst{Mnemonic: "LDU", Immediate: p(0xCE), Direct: p(0xDE), Indexed: p(0xEE), Extended: p(0xFE), ImmBytes: 2})
	add(&Inst{Mnemonic: "STU", Direct: p(0xDF), Indexed: p(0xEF), Extended: p(0xFF)})

	// Prefixed (0x10) 16-bit group: LDY/STY/LDS/STS/CMPD/CMPY (CMPX is unprefixed above; CMPU/CMPS are 0x11-prefixed below).
	add(&Inst{Mnemonic: "LDY", Immediate: p10(0x8E), Direct: p10(0x9E), Indexed: p10(0xAE), Extended: p10(0xBE), ImmBytes: 2})
	add(&Inst{Mnemonic: "STY", Direct: p10(0x9F), Indexed: p10(0xAF), Extended: p10(0xBF)})
	add(&Inst{Mnemonic: "LDS", Immediate: p10(0xCE), Direct: p10(0xDE), Indexed: p10(0xEE), Extended: p10(0xFE), ImmBytes: 2})
	add(&Inst{Mnemonic: "STS", Direct: p10(0xDF), Indexed: p10(0xEF), Extended: p10(0xFF)})
	add(&Inst{Mnemonic: "CMPD", Immediate: p10(0x83), Direct: p10(0x93), Indexed: p10(0xA3), Extended: p10(0xB3), ImmBytes: 2})
	add(&Inst{Mnemonic: "CMPY", Immediate: p10(0x8C), Direct: p10(0x9C), Indexed: p10(0xAC), Extended: p10(0xBC), ImmBytes: 2})
	// 0x11-prefixed group.
	add(&Inst{Mnemonic: "CMPU", Immediate: p11(0x83), Direct: p11(0x93), Indexed: p11(0xA3), Extended: p11(0xB3), ImmBytes: 2})
	add(&Inst{Mnemonic: "CMPS", Immediate: p11(0x8C), Direct: p11(0x9C), Indexed: p11(0xAC), Extended: p11(0xBC), ImmBytes: 2})

	// Inherent-only instructions.
	inherentOnly := map[string]byte{
		"NOP": 0x12, "SYNC": 0x13, "DAA": 0x19, "SEX": 0x1D,
		"RTS": 0x39, "ABX": 0x3A, "RTI": 0x3B, "MUL": 0x3D, "SWI": 0x3F,
	}
	for name, b := range inherentOnly {
		add(&Inst{Mnemonic: name, Inherent: p(b)})
	}
	add(&Inst{Mnemonic: "SWI2", Inherent: p10(0x3F)})
	add(&Inst{Mnemonic: "SWI3", Inherent: p11(0x3F)})

	// CC/accumulator-immediate-only ops.
	add(&Inst{Mnemonic: "ANDCC", Immediate: p(0x1C), ImmBytes: 1})
	add(&Inst{Mnemonic: "ORCC", Immediate: p(0x1A), ImmBytes: 1})
	add(&Inst{Mnemonic: "CWAI", Immediate: p(0x3C), ImmBytes: 1})
	add(&Inst{Mnemonic: "LDMD", Immediate: p11(0x3D), ImmBytes: 1, CPU6309: true})

	// LEA group (indexed only).
	add(&Inst{Mnemonic: "LEAX", Indexed: p(0x30)})
	add(&Inst{Mnemonic: "LEAY", Indexed: p(0x31)})
	add(&Inst{Mnemonic: "LEAS", Indexed: p(0x32)})
	add(&Inst{Mnemonic: "LEAU", Indexed: p(0x33)})

	// JSR/BSR.
	add(&Inst{Mnemonic: "JSR", Direct: p(0x9D), Indexed: p(0xAD), Extended: p(0xBD)})
	add(&Inst{Mnemonic: "BSR", Relative: p(0x8D)})
	// LBRA/LBSR are the two long branches that are NOT page-2
	// (0x10-)prefixed, unlike every other long conditional branch.
	add(&Inst{Mnemonic: "LBSR", Relative: p(0x8D), RelativeLong: p(0x17), PreferLong: true})

	// Short branches and their long (0x10-prefixed) counterparts.
	branches := []struct {
		name          string
		short, long byte
	}{
		{"BRA", 0x20, 0x16}, // LBRA has no 0x10 prefix; see below
		{"BRN", 0x21, 0x21},
		{"BHI", 0x22, 0x22},
		{"BLS", 0x23, 0x23},
		{"BCC", 0x24, 0x24},
		{"BCS", 0x25, 0x25},
		{"BNE", 0x26, 0x26},
		{"BEQ", 0x27, 0x27},
		{"BVC", 0x28, 0x28},
		{"BVS", 0x29, 0x29},
		{"BPL", 0x2A, 0x2A},
		{"BMI", 0x2B, 0x2B},
		{"BGE", 0x2C, 0x2C},
		{"BLT", 0x2D, 0x2D},
		{"BGT", 0x2E, 0x2E},
		{"BLE", 0x2F, 0x2F},
	}
	add(&Inst{Mnemonic: "BRA", Relative: p(0x20), RelativeLong: p(0x16)})
	add(&Inst{Mnemonic: "LBRA", Relative: p(0x20), RelativeLong: p(0x16), PreferLong: true})
	for _, b := range branches {
		if b.name == "BRA" {
			continue
		}
		add(&Inst{Mnemonic: b.name, Relative: p(b.short), RelativeLong: p10(b.long)})
		add(&Inst{Mnemonic: "L" + b.name, Relative: p(b.short), RelativeLong: p10(b.long), PreferLong: true})
	}

	// Register-list / register-pair / TFM pseudo-instructions. Opcode
	// fields hold the base opcode; the post-byte is computed by the
	// encoder from the parsed register operand(s).
	add(&Inst{Mnemonic: "PSHS", RegisterList: true, Inherent: p(0x34)})
	add(&Inst{Mnemonic: "PULS", RegisterList: true, Inherent: p(0x35)})
	add(&Inst{Mnemonic: "PSHU", RegisterList: true, Inherent: p(0x36)})
	add(&Inst{Mnemonic: "PULU", RegisterList: true, Inherent: p(0x37)})
	add(&Inst{Mnemonic: "EXG", RegisterPair: true, Inherent: p(0x1E)})
	add(&Inst{Mnemonic: "TFR", RegisterPair: true, Inherent: p(0x1F)})
	add(&Inst{Mnemonic: "TFM", TFMForm: true, CPU6309: true})

	// 6309 immediate-to-memory group.
	add(&Inst{Mnemonic: "OIM", ImmToMem: p(0x01), CPU6309: true})
	add(&Inst{Mnemonic: "AIM", ImmToMem: p(0x02), CPU6309: true})
	add(&Inst{Mnemonic: "EIM", ImmToMem: p(0x05), CPU6309: true})
	add(&Inst{Mnemonic: "TIM", ImmToMem: p(0x0B), CPU6309: true})

	// 6309 register-bit group.
	add(&Inst{Mnemonic: "BAND", RegBit: p11(0x30), CPU6309: true})
	add(&Inst{Mnemonic: "BIAND", RegBit: p11(0x31), CPU6309: true})
	add(&Inst{Mnemonic: "BOR", RegBit: p11(0x32), CPU6309: true})
	add(&Inst{Mnemonic: "BIOR", RegBit: p11(0x33), CPU6309: true})
	add(&Inst{Mnemonic: "BEOR", RegBit: p11(0x34), CPU6309: true})
	add(&Inst{Mnemonic: "BIEOR", RegBit: p11(0x35), CPU6309: true})
	add(&Inst{Mnemonic: "LDBT", RegBit: p11(0x36), CPU6309: true})
	add(&Inst{Mnemonic: "STBT", RegBit: p11(0x37), CPU6309: true})

	// 6309 8/16-bit extras: E/F accumulators, W register, Q.
	add(&Inst{Mnemonic: "LDE", Immediate: p11(0x86), Direct: p11(0x96), Indexed: p11(0xA6), Extended: p11(0xB6), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "STE", Direct: p11(0x97), Indexed: p11(0xA7), Extended: p11(0xB7), CPU6309: true})
	add(&Inst{Mnemonic: "LDF", Immediate: p11(0xC6), Direct: p11(0xD6), Indexed: p11(0xE6), Extended: p11(0xF6), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "STF", Direct: p11(0xD7), Indexed: p11(0xE7), Extended: p11(0xF7), CPU6309: true})
	add(&Inst{Mnemonic: "ADDE", Immediate: p11(0x8B), Direct: p11(0x9B), Indexed: p11(0xAB), Extended: p11(0xBB), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "ADDF", Immediate: p11(0xCB), Direct: p11(0xDB), Indexed: p11(0xEB), Extended: p11(0xFB), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "SUBE", Immediate: p11(0x80), Direct: p11(0x90), Indexed: p11(0xA0), Extended: p11(0xB0), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "SUBF", Immediate: p11(0xC0), Direct: p11(0xD0), Indexed: p11(0xE0), Extended: p11(0xF0), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "CMPE", Immediate: p11(0x81), Direct: p11(0x91), Indexed: p11(0xA1), Extended: p11(0xB1), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "CMPF", Immediate: p11(0xC1), Direct: p11(0xD1), Indexed: p11(0xE1), Extended: p11(0xF1), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "ADDW", Immediate: p10(0x80), Direct: p10(0x90), Indexed: p10(0xA0), Extended: p10(0xB0), ImmBytes: 2, CPU6309: true})
	add(&Inst{Mnemonic: "SUBW", Immediate: p10(0x80 ^ 0x03), Direct: p10(0x90 ^ 0x03), Indexed: p10(0xA0 ^ 0x03), Extended: p10(0xB0 ^ 0x03), ImmBytes: 2, CPU6309: true})
	add(&Inst{Mnemonic: "CMPW", Immediate: p10(0x81), Direct: p10(0x91), Indexed: p10(0xA1), Extended: p10(0xB1), ImmBytes: 2, CPU6309: true})
	add(&Inst{Mnemonic: "LDQ", Immediate: p(0xCD), Direct: p11(0xDC), Indexed: p11(0xEC), Extended: p11(0xFC), ImmBytes: 4, CPU6309: true})
	add(&Inst{Mnemonic: "STQ", Direct: p11(0xDD), Indexed: p11(0xED), Extended: p11(0xFD), CPU6309: true})
	add(&Inst{Mnemonic: "MULD", Immediate: p11(0x8F), Direct: p11(0x9F), Indexed: p11(0xAF), Extended: p11(0xBF), ImmBytes: 2, CPU6309: true})
	add(&Inst{Mnemonic: "DIVD", Immediate: p11(0x8D), Direct: p11(0x9D), Indexed: p11(0xAD), Extended: p11(0xBD), ImmBytes: 1, CPU6309: true})
	add(&Inst{Mnemonic: "DIVQ", Immediate: p11(0x8E), Direct: p11(0x9E), Indexed: p11(0xAE), Extended: p11(0xBE), ImmBytes: 2, CPU6309: true})
	add(&Inst{Mnemonic: "SEXW", Inherent: p10(0x14), CPU6309: true})

	return t
}

// Lookup returns the table entry for a mnemonic (already upper-cased
// by the caller), or nil.
func Lookup(mnemonic string) *Inst { return Table[mnemonic] }
