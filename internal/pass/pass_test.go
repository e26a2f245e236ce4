package pass

import (
	"strings"
	"testing"
)

const hexDigits = "0123456789ABCDEF"

// memReader is an in-memory SourceReader, analogous to the teacher's
// use of a bytes.Reader to feed Assemble in its own tests.
type memReader map[string]string

func (m memReader) Open(name string) ([]string, error) {
	src, ok := m[name]
	if !ok {
		return nil, &notFoundError{name}
	}
	return strings.Split(src, "\n"), nil
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return "file not found: " + e.name }

func assemble(t *testing.T, src string) *State {
	t.Helper()
	s, err := Assemble("main.as9", memReader{"main.as9": src}, 10, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return s
}

func hexOf(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0F]
	}
	return string(out)
}

// checkASM assembles src and compares the concatenated bytes of every
// listing row (in program order) against the expected hex string.
func checkASM(t *testing.T, src, expected string) *State {
	t.Helper()
	s := assemble(t, src)
	if errs := s.Errors.All(); len(errs) > 0 {
		t.Fatalf("unexpected error(s): %v", errs[0])
	}
	var got strings.Builder
	for _, row := range s.Listing {
		got.WriteString(hexOf(row.Bytes))
	}
	if got.String() != expected {
		t.Errorf("code mismatch\n got: %s\n want: %s", got.String(), expected)
	}
	return s
}

func checkASMError(t *testing.T, src string, wantKind string) {
	t.Helper()
	s := assemble(t, src)
	errs := s.Errors.All()
	if len(errs) == 0 {
		t.Fatalf("expected an error, got none")
	}
	if wantKind != "" && !strings.Contains(errs[0].Kind.String(), wantKind) {
		t.Errorf("got error kind %q, want it to contain %q (msg: %s)", errs[0].Kind.String(), wantKind, errs[0].Msg)
	}
}

func TestInherentRTS(t *testing.T) {
	checkASM(t, "\tRTS\n", "39")
}

func TestImmediateLDX(t *testing.T) {
	checkASM(t, "\tLDX #$1234\n", "8E1234")
}

func TestImmediateLDAByte(t *testing.T) {
	checkASM(t, "\tLDA #$20\n", "8620")
}

func TestDirectVsExtended(t *testing.T) {
	// With SETDP matching the operand's high byte, Direct mode wins;
	// otherwise Extended.
	checkASM(t, "\tSETDP $00\n\tLDA $0020\n", "9620")
	checkASM(t, "\tSETDP $00\n\tLDA $1234\n", "B61234")
}

func TestShortBranch(t *testing.T) {
	// Spec §8 scenario 3: displacement 0x01 = skip($1003) - (BNE $1000 + 2).
	src := "\tORG $1000\n\tBNE skip\n\tNOP\nskip\tRTS\n"
	checkASM(t, src, "26011239")
}

func TestShortBranchBackward(t *testing.T) {
	src := "start\tNOP\n\tBRA start\n"
	// start=$0000 (the NOP); BRA at $0001, length 2, so the
	// displacement is start - (0x0001+2) = -3 = 0xFD.
	checkASM(t, src, "12"+"20FD")
}

func TestLongBranchForwardUndef(t *testing.T) {
	// A forward reference whose displacement can't be known to fit in
	// a short branch on pass 1 must still resolve; with the optimizer
	// on (§4.6 peephole rule 1), a branch to a label more than 127
	// bytes ahead promotes to long form.
	var b strings.Builder
	b.WriteString("\tBRA far\n")
	for i := 0; i < 200; i++ {
		b.WriteString("\tNOP\n")
	}
	b.WriteString("far\tRTS\n")
	opts := &Options{Optimize: true}
	s, err := Assemble("main.as9", memReader{"main.as9": b.String()}, 10, opts)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if errs := s.Errors.All(); len(errs) > 0 {
		t.Fatalf("unexpected error: %v", errs[0])
	}
	if len(s.Listing) == 0 {
		t.Fatal("empty listing")
	}
	first := s.Listing[0]
	if len(first.Bytes) != 3 {
		t.Errorf("expected a 3-byte long branch (16 opcode + 2-byte displacement), got %d bytes: %X", len(first.Bytes), first.Bytes)
	}
}

func TestShortBranchOverflowWithoutOptimizerIsFatal(t *testing.T) {
	// Without -o, a short branch that can't reach its target is a
	// plain out-of-range error, not an automatic long-branch rewrite
	// (§4.6: the peephole optimizer is "only active when enabled").
	var b strings.Builder
	b.WriteString("\tBRA far\n")
	for i := 0; i < 200; i++ {
		b.WriteString("\tNOP\n")
	}
	b.WriteString("far\tRTS\n")
	checkASMError(t, b.String(), "")
}

func TestOptimizerShrinksLongBranch(t *testing.T) {
	// An explicit LBNE whose target is well within short-branch range
	// shrinks to BNE (§4.6 peephole rule 3) when the optimizer is on.
	opts := &Options{Optimize: true}
	s, err := Assemble("main.as9", memReader{"main.as9": "\tLBNE skip\n\tNOP\nskip\tRTS\n"}, 10, opts)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if errs := s.Errors.All(); len(errs) > 0 {
		t.Fatalf("unexpected error: %v", errs[0])
	}
	if hexOf(s.Listing[0].Bytes) != "2603" {
		t.Errorf("expected LBNE to shrink to a 2-byte BNE (2603), got %s", hexOf(s.Listing[0].Bytes))
	}
}

func TestLoadDirective(t *testing.T) {
	opts := &Options{Loader: func(path string) ([]byte, error) {
		if path != "payload.bin" {
			t.Fatalf("unexpected load path %q", path)
		}
		return []byte{0xDE, 0xAD, 0xBE, 0xEF}, nil
	}}
	s, err := Assemble("main.as9", memReader{"main.as9": "\tORG $3000\n\tLOAD \"payload.bin\"\n\tRTS\n"}, 10, opts)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if errs := s.Errors.All(); len(errs) > 0 {
		t.Fatalf("unexpected error: %v", errs[0])
	}
	if got := s.ROM[0x3000:0x3004]; hexOf(got) != "DEADBEEF" {
		t.Errorf("got %s, want DEADBEEF at $3000", hexOf(got))
	}
	// PC must advance past the loaded bytes so RTS lands at $3004.
	if s.Listing[len(s.Listing)-1].PC != 0x3004 {
		t.Errorf("expected RTS at $3004, got %+v", s.Listing[len(s.Listing)-1])
	}
}

func TestLoadDirectiveExplicitAddressDoesNotAdvancePC(t *testing.T) {
	opts := &Options{Loader: func(path string) ([]byte, error) {
		return []byte{0x01, 0x02}, nil
	}}
	s, err := Assemble("main.as9", memReader{"main.as9": "\tORG $4000\n\tLOAD $8000,\"payload.bin\"\n\tRTS\n"}, 10, opts)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if errs := s.Errors.All(); len(errs) > 0 {
		t.Fatalf("unexpected error: %v", errs[0])
	}
	if hexOf(s.ROM[0x8000:0x8002]) != "0102" {
		t.Errorf("expected payload at $8000, got %s", hexOf(s.ROM[0x8000:0x8002]))
	}
	if s.Listing[0].PC != 0x4000 {
		t.Errorf("expected RTS still at $4000 (explicit-address LOAD doesn't move PC), got %+v", s.Listing[0])
	}
}

func TestIndexed5BitOffset(t *testing.T) {
	checkASM(t, "\tLDA 5,X\n", "A605")
}

func TestIndexedIndirectExtended(t *testing.T) {
	checkASM(t, "\tLDA [$1234]\n", "A69F1234")
}

func TestIndexedAutoIncDec(t *testing.T) {
	checkASM(t, "\tLDA ,X+\n", "A680")
	checkASM(t, "\tLDA ,X++\n", "A681")
	checkASM(t, "\tLDA ,-X\n", "A682")
	checkASM(t, "\tLDA ,--X\n", "A683")
}

func TestRegisterListPSHS(t *testing.T) {
	checkASM(t, "\tPSHS A,B,X\n", "3416")
}

func TestRegisterPairTFR(t *testing.T) {
	checkASM(t, "\tTFR A,B\n", "1F89")
}

func TestMacroExpansion(t *testing.T) {
	src := "" +
		"DOUBLE MACRO reg\n" +
		"\tADDA #reg\n" +
		"\tENDM\n" +
		"\tDOUBLE 5\n"
	s := assemble(t, src)
	for _, e := range s.Errors.All() {
		t.Fatalf("unexpected error: %v", e)
	}
	if len(s.Listing) != 1 {
		t.Fatalf("expected one expanded instruction, got %d", len(s.Listing))
	}
	if hexOf(s.Listing[0].Bytes) != "8B05" {
		t.Errorf("got %s, want 8B05", hexOf(s.Listing[0].Bytes))
	}
}

func TestUndefinedSymbolReported(t *testing.T) {
	checkASMError(t, "\tLDA NOWHERE\n\tEND\n", "")
}

func TestOverwriteDetected(t *testing.T) {
	src := "\tORG $1000\n\tBYTE $01\n\tORG $1000\n\tBYTE $02\n"
	checkASMError(t, src, "overwrite")
}

func TestPhaseLengthLockNoPadding(t *testing.T) {
	// A direct-page instruction whose length is identical across both
	// passes should never be NOP-padded.
	s := checkASM(t, "\tSETDP $00\n\tLDA $0020\n", "9620")
	for _, row := range s.Listing {
		if row.NOPsAdded != 0 {
			t.Errorf("unexpected NOP padding: %+v", row)
		}
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	src := "\tLDX #$2000\n\tLDA 0,X\n\tSTA 1,X\n\tRTS\n"
	a := assemble(t, src)
	b := assemble(t, src)
	if len(a.Listing) != len(b.Listing) {
		t.Fatalf("listing length differs: %d vs %d", len(a.Listing), len(b.Listing))
	}
	for i := range a.Listing {
		if hexOf(a.Listing[i].Bytes) != hexOf(b.Listing[i].Bytes) {
			t.Errorf("row %d differs between runs", i)
		}
	}
}

func TestConditionalAssembly(t *testing.T) {
	src := "\tIFDEF MISSING\n\tBYTE $01\n\tELSE\n\tBYTE $02\n\tENDIF\n"
	checkASM(t, src, "02")
}

func TestStoreDirectiveRecorded(t *testing.T) {
	src := "\tORG $2000\n\tBYTE $AA,$BB\n\tSTORE $2000,2,\"out.bin\"\n"
	s := assemble(t, src)
	for _, e := range s.Errors.All() {
		t.Fatalf("unexpected error: %v", e)
	}
	if len(s.Stores) != 1 {
		t.Fatalf("expected one recorded STORE, got %d", len(s.Stores))
	}
	req := s.Stores[0]
	if req.Start != 0x2000 || req.Len != 2 || req.Path != "out.bin" {
		t.Errorf("got %+v", req)
	}
}

func TestIncludeDirective(t *testing.T) {
	s, err := Assemble("main.as9", memReader{
		"main.as9": "\tINCLUDE \"lib.as9\"\n\tRTS\n",
		"lib.as9":  "\tNOP\n",
	}, 10, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, e := range s.Errors.All() {
		t.Fatalf("unexpected error: %v", e)
	}
	var got strings.Builder
	for _, row := range s.Listing {
		got.WriteString(hexOf(row.Bytes))
	}
	if got.String() != "1239" {
		t.Errorf("got %s, want 1239", got.String())
	}
}

func TestOptionsPresetAndDefine(t *testing.T) {
	opts := &Options{HasPreset: true, PresetByte: 0xFF, Defines: map[string]int{"BASE": 0x4000}}
	s, err := Assemble("main.as9", memReader{"main.as9": "\tORG BASE\n\tLDA #1\n"}, 10, opts)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, e := range s.Errors.All() {
		t.Fatalf("unexpected error: %v", e)
	}
	if s.ROM[0x5000] != 0xFF {
		t.Errorf("expected ROM preset fill, got %#02x at $5000", s.ROM[0x5000])
	}
	if len(s.Listing) != 1 || s.Listing[0].PC != 0x4000 {
		t.Errorf("expected ORG BASE to set PC to $4000, got %+v", s.Listing)
	}
}
