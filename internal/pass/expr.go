package pass

import (
	"fmt"

	"github.com/beevik/bs9/internal/expr"
	"github.com/beevik/bs9/internal/text"
)

// eval parses and evaluates a directive operand expression against the
// state's symbol table, honoring string operands for directives like
// CMAP/C5TO3 that allow them.
func (s *State) eval(operand string, flags expr.Flags) (*expr.Tree, expr.Value, error) {
	var p expr.Parser
	line := text.New(s.CurFile, s.CurLine, operand)
	s.Sym.SetHere(expr.Num(s.PC))
	tree, _, err := p.Parse(line, flags)
	if err != nil {
		return nil, expr.Undef, err
	}
	if len(p.Errors) > 0 {
		return nil, expr.Undef, fmt.Errorf("%s", p.Errors[0].Msg)
	}
	return tree, tree.Eval(s.Sym), nil
}

func (s *State) evalInt(operand string) (expr.Value, error) {
	_, v, err := s.eval(operand, expr.AllowParens)
	return v, err
}

// evalList splits a comma-separated operand and evaluates each
// element, used by BYTE/WORD/LONG/FILL-style data directives. String
// literal elements evaluate to their raw bytes rather than a numeric
// value.
func (s *State) evalList(operand string) ([]*expr.Tree, error) {
	parts := splitTopLevelCommaAll(operand)
	trees := make([]*expr.Tree, 0, len(parts))
	for _, part := range parts {
		tree, _, err := s.eval(part, expr.AllowParens|expr.AllowStrings)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

func splitTopLevelCommaAll(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
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
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	for i := range parts {
		parts[i] = trimSpace(parts[i])
	}
	return parts
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}
