package encoder

import (
	"fmt"
	"testing"

	"github.com/beevik/bs9/internal/expr"
	"github.com/beevik/bs9/internal/m6809"
)

// stubResolver answers '?'-free expression lookups for encoder tests;
// identifiers resolve to a fixed table, mirroring how internal/pass
// wires the real symtab.Table into encoder.Context.Resolver.
type stubResolver struct {
	syms map[string]expr.Value
	here expr.Value
}

func (r *stubResolver) Lookup(name string) expr.Value {
	if v, ok := r.syms[name]; ok {
		return v
	}
	return expr.Undef
}
func (r *stubResolver) Here() expr.Value          { return r.here }
func (r *stubResolver) Length(string) (int, bool) { return 0, false }

func hexBytes(b []byte) string {
	s := ""
	for _, v := range b {
		s += fmt.Sprintf("%02X", v)
	}
	return s
}

func encode(t *testing.T, mnemonic, operand string, ctx Context) Result {
	t.Helper()
	res, err := Encode(mnemonic, operand, ctx)
	if err != nil {
		t.Fatalf("Encode(%q, %q): %v", mnemonic, operand, err)
	}
	return res
}

func baseCtx() Context {
	return Context{CPU: m6809.CPU6309, Resolver: &stubResolver{syms: map[string]expr.Value{}}}
}

func TestInherentRTS(t *testing.T) {
	res := encode(t, "RTS", "", baseCtx())
	if hexBytes(res.Bytes) != "39" {
		t.Errorf("got %s, want 39", hexBytes(res.Bytes))
	}
}

func TestImmediate16Bit(t *testing.T) {
	res := encode(t, "LDX", "#$1234", baseCtx())
	if hexBytes(res.Bytes) != "8E1234" {
		t.Errorf("got %s, want 8E1234", hexBytes(res.Bytes))
	}
}

func TestIndexed5BitOffset(t *testing.T) {
	res := encode(t, "LDA", "5,X", baseCtx())
	if hexBytes(res.Bytes) != "A605" {
		t.Errorf("got %s, want A605", hexBytes(res.Bytes))
	}
}

func TestIndirectPCRelative8Bit(t *testing.T) {
	// §8 scenario 6: LDA [label,PCR] where label is 10 bytes ahead of
	// the instruction's start; instruction is 3 bytes (opcode,
	// postbyte 0x9C, 1-byte displacement). With PC=$1000 and the
	// instruction occupying 3 bytes, a label at $1000+10=$100A gives
	// a post-instruction displacement of $100A-$1003 = 7.
	r := &stubResolver{syms: map[string]expr.Value{"LABEL": expr.Num(0x100A)}}
	ctx := baseCtx()
	ctx.Resolver = r
	ctx.PC = 0x1000
	res := encode(t, "LDA", "[LABEL,PCR]", ctx)
	if hexBytes(res.Bytes) != "A69C07" {
		t.Errorf("got %s, want A69C07", hexBytes(res.Bytes))
	}
}

func TestTFMIncIncSelectsOpcodeAndPostbyte(t *testing.T) {
	res := encode(t, "TFM", "D+,X+", baseCtx())
	if hexBytes(res.Bytes) != "113801" {
		t.Errorf("got %s, want 113801", hexBytes(res.Bytes))
	}
}

func TestTFMDecDec(t *testing.T) {
	res := encode(t, "TFM", "D-,X-", baseCtx())
	if hexBytes(res.Bytes) != "113901" {
		t.Errorf("got %s, want 113901", hexBytes(res.Bytes))
	}
}

func TestRegisterBitOperation(t *testing.T) {
	// BAND A.3,$50.5: field(A)=0x40 | srcbit(3)<<3 | dstbit(5) = 0x5D.
	res := encode(t, "BAND", "A.3,$50.5", baseCtx())
	if hexBytes(res.Bytes) != "11305D50" {
		t.Errorf("got %s, want 11305D50", hexBytes(res.Bytes))
	}
}

func TestImmediateToMemory(t *testing.T) {
	// OIM #$01,$50: direct-page address (SETDP=0, high byte 0).
	res := encode(t, "OIM", "#$01,$50", baseCtx())
	if hexBytes(res.Bytes) != "010150" {
		t.Errorf("got %s, want 010150", hexBytes(res.Bytes))
	}
}

func TestRegisterPairTFR(t *testing.T) {
	res := encode(t, "TFR", "A,B", baseCtx())
	if hexBytes(res.Bytes) != "1F89" {
		t.Errorf("got %s, want 1F89", hexBytes(res.Bytes))
	}
}

func TestTFRMixedWidthTypeErrorIsFatal(t *testing.T) {
	_, err := Encode("TFR", "A,X", baseCtx())
	if err == nil {
		t.Errorf("expected a type error mixing 8-bit and 16-bit registers")
	}
}

func TestPSHSRegisterMask(t *testing.T) {
	res := encode(t, "PSHS", "A,B,X", baseCtx())
	if hexBytes(res.Bytes) != "3416" {
		t.Errorf("got %s, want 3416", hexBytes(res.Bytes))
	}
}

func TestDirectVsExtendedSelection(t *testing.T) {
	ctx := baseCtx()
	ctx.SETDP = 0x00
	res := encode(t, "LDA", "$0050", ctx)
	if res.Mode != m6809.ModeDirect {
		t.Errorf("expected Direct mode for $0050 with SETDP=0, got %v", res.Mode)
	}

	ctx.SETDP = 0x00
	res = encode(t, "LDA", "$1050", ctx)
	if res.Mode != m6809.ModeExtended {
		t.Errorf("expected Extended mode for $1050 with SETDP=0, got %v", res.Mode)
	}
}

func TestForcedExtendedOverridesSETDP(t *testing.T) {
	ctx := baseCtx()
	ctx.SETDP = 0x00
	res := encode(t, "LDA", ">$0050", ctx)
	if res.Mode != m6809.ModeExtended {
		t.Errorf("'>' should force Extended even within the DP range, got %v", res.Mode)
	}
}

func TestCPU6309OnlyMnemonicRejectedOn6809(t *testing.T) {
	ctx := baseCtx()
	ctx.CPU = m6809.CPU6809
	_, err := Encode("TFM", "D+,X+", ctx)
	if err == nil {
		t.Errorf("expected TFM to be rejected under 6809 CPU mode")
	}
}

func TestIndexedIndirectExtended(t *testing.T) {
	res := encode(t, "LDA", "[$1234]", baseCtx())
	if hexBytes(res.Bytes) != "A69F1234" {
		t.Errorf("got %s, want A69F1234", hexBytes(res.Bytes))
	}
}
