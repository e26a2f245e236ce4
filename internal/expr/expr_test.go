package expr

import (
	"testing"

	"github.com/beevik/bs9/internal/text"
)

// fakeResolver is a minimal Resolver for parser/evaluator tests,
// analogous to the teacher's use of a bare map for its expression
// evaluator tests.
type fakeResolver struct {
	syms map[string]Value
	here Value
	lens map[string]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{syms: make(map[string]Value), lens: make(map[string]int)}
}

func (f *fakeResolver) Lookup(name string) Value {
	if v, ok := f.syms[name]; ok {
		return v
	}
	return Undef
}

func (f *fakeResolver) Here() Value { return f.here }

func (f *fakeResolver) Length(name string) (int, bool) {
	n, ok := f.lens[name]
	return n, ok
}

func evalStr(t *testing.T, s string, r Resolver, flags Flags) Value {
	t.Helper()
	var p Parser
	tree, remain, err := p.Parse(text.New("t.as9", 1, s), flags)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	if !remain.IsEmpty() {
		t.Fatalf("Parse(%q): unconsumed remainder %q", s, remain.Str)
	}
	return tree.Eval(r)
}

func TestPrecedence(t *testing.T) {
	r := newFakeResolver()
	cases := map[string]int{
		"2+3*4":      14,
		"(2+3)*4":    20,
		"1+2<<3":     (1 + 2) << 3,
		"16>>2+1":    16 >> (2 + 1),
		"1|2&3":      1 | (2 & 3),
		"1^2|4":      (1 ^ 2) | 4,
		"1==1&&2==2": 1,
		"1==1||0==1": 1,
		"2<3":        1,
		"3<2":        0,
		"2<=2":       1,
		"3>2":        1,
		"2>=3":       0,
		"1!=2":       1,
		"~0":         -1,
		"!0":         1,
		"!5":         0,
		"-5+2":       -3,
		"+5":         5,
	}
	for src, want := range cases {
		v := evalStr(t, src, r, AllowParens)
		if !v.Defined || v.N != want {
			t.Errorf("%q = %v, want %d", src, v, want)
		}
	}
}

func TestForwardReferenceUndef(t *testing.T) {
	r := newFakeResolver()
	v := evalStr(t, "UNSEEN+1", r, 0)
	if v.Defined {
		t.Errorf("expected UNDEF, got %v", v)
	}

	r.syms["UNSEEN"] = Num(10)
	v = evalStr(t, "UNSEEN+1", r, 0)
	if !v.Defined || v.N != 11 {
		t.Errorf("after definition: got %v, want 11", v)
	}
}

func TestUndefPropagatesThroughAllOps(t *testing.T) {
	r := newFakeResolver()
	exprs := []string{
		"X+1", "1+X", "X-1", "X*2", "X/2", "X<<1", "X>>1",
		"X<1", "X<=1", "X>1", "X>=1", "X==1", "X!=1",
		"X&1", "X|1", "X^1", "X&&1", "X||1",
		"-X", "+X", "<X", ">X", "!X", "~X",
	}
	for _, src := range exprs {
		v := evalStr(t, src, r, 0)
		if v.Defined {
			t.Errorf("%q: expected UNDEF, got %v", src, v)
		}
	}
}

func TestDivisionByZeroYieldsUndef(t *testing.T) {
	r := newFakeResolver()
	v := evalStr(t, "5/0", r, 0)
	if v.Defined {
		t.Errorf("5/0: expected UNDEF, got %v", v)
	}
}

func TestForcedModeFlags(t *testing.T) {
	r := newFakeResolver()
	r.syms["L"] = Num(0x1234)

	var p Parser
	tree, _, err := p.Parse(text.New("t.as9", 1, "<L"), 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tree.Force() != ForceLow {
		t.Errorf("force = %v, want ForceLow", tree.Force())
	}
	if v := tree.Eval(r); v.N != 0x34 {
		t.Errorf("<L = %#x, want 0x34", v.N)
	}

	tree, _, err = p.Parse(text.New("t.as9", 1, ">L"), 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tree.Force() != ForceHigh {
		t.Errorf("force = %v, want ForceHigh", tree.Force())
	}
	if v := tree.Eval(r); v.N != 0x12 {
		t.Errorf(">L = %#x, want 0x12", v.N)
	}
}

func TestHereOperator(t *testing.T) {
	r := newFakeResolver()
	r.here = Num(0x2000)
	v := evalStr(t, "*+2", r, 0)
	if !v.Defined || v.N != 0x2002 {
		t.Errorf("*+2 = %v, want 0x2002", v)
	}
}

func TestHexDecimalBinaryLiterals(t *testing.T) {
	r := newFakeResolver()
	cases := map[string]int{
		"$1F":     0x1F,
		"1FH":     0x1F,
		"1Fh":     0x1F,
		"%1010":   10,
		"%.*.*":   5,
		"42":      42,
		"'A'":     'A',
		"'\\n'":   10,
		"\"AB\"":  0x4142,
		"\"ABCD\"": 0x41424344,
	}
	for src, want := range cases {
		v := evalStr(t, src, r, 0)
		if !v.Defined || v.N != want {
			t.Errorf("%q = %v, want %d", src, v, want)
		}
	}
}

func TestLengthOfData(t *testing.T) {
	r := newFakeResolver()
	r.lens["TBL"] = 5
	v := evalStr(t, "?TBL", r, 0)
	if !v.Defined || v.N != 5 {
		t.Errorf("?TBL = %v, want 5", v)
	}
	v = evalStr(t, "?NOPE", r, 0)
	if v.Defined {
		t.Errorf("?NOPE: expected UNDEF, got %v", v)
	}
}

func TestStringLiteralFlag(t *testing.T) {
	var p Parser
	tree, remain, err := p.Parse(text.New("t.as9", 1, `"hello"`), AllowStrings)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !remain.IsEmpty() {
		t.Fatalf("unconsumed: %q", remain.Str)
	}
	if !tree.IsString() || tree.StringValue() != "hello" {
		t.Errorf("got %q (isString=%v), want %q", tree.StringValue(), tree.IsString(), "hello")
	}
}

func TestSyntaxErrors(t *testing.T) {
	r := newFakeResolver()
	_ = r
	cases := []string{"1+", "*1", "(1+2", "1+2)"}
	for _, src := range cases {
		var p Parser
		_, _, err := p.Parse(text.New("t.as9", 1, src), AllowParens)
		if err == nil {
			t.Errorf("%q: expected a parse error, got none", src)
		}
	}
}
