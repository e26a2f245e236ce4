package pass

import (
	"strings"

	"github.com/beevik/bs9/internal/text"
)

// Line is a source line split into its label, mnemonic, and operand
// fields, per the column-1-label source format of §6.
type Line struct {
	Label    string // without trailing ':'
	Mnemonic string // upper-cased
	Operand  string
	Blank    bool
}

// SplitLine strips the comment from one raw source line and parses it.
func SplitLine(raw string) Line {
	scan := text.New("", 0, raw).StripComment()
	if scan.IsEmpty() {
		return Line{Blank: true}
	}

	var label string
	hasLabel := scan.StartsWith(text.LabelStart)
	// '*' and '&' are special one-character pseudo-labels for the
	// "* = expr" / "& = expr" PC/BSS-set forms.
	special := scan.StartsWithChar('*') || scan.StartsWithChar('&')
	if hasLabel {
		head, remain := scan.ConsumeUntil(text.Whitespace)
		label = strings.TrimSuffix(head.Str, ":")
		scan = remain.ConsumeWhitespace()
	} else if special {
		head, remain := scan.ConsumeWhile(func(b byte) bool { return b == '*' || b == '&' })
		label = head.Str
		scan = remain.ConsumeWhitespace()
	} else {
		scan = scan.ConsumeWhitespace()
	}

	if scan.IsEmpty() {
		return Line{Label: label}
	}

	mnemonicScan, remain := scan.ConsumeUntil(text.Whitespace)
	mnemonic := strings.ToUpper(mnemonicScan.Str)
	operand := strings.TrimSpace(remain.Str)

	// "name MACRO args" and "name(arg1,arg2)" call forms put what
	// looks like a mnemonic into the label slot; the directive/macro
	// dispatcher re-checks this, SplitLine only does lexical splitting.
	return Line{Label: label, Mnemonic: mnemonic, Operand: operand}
}
